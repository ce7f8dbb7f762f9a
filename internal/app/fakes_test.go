package app

import (
	"context"
	"fmt"
	"student_market/internal/models/application"
	"student_market/internal/models/contract"
	"student_market/internal/models/conversation"
	"student_market/internal/models/notification"
	"student_market/internal/models/offer"
	"student_market/internal/models/user"
	"student_market/internal/storage/postgres"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// fakeStore mirrors the Postgres storage semantics in memory, including the
// compare-and-swap behavior of the transition writes and the one-contract-
// per-application uniqueness.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]user.User
	offers        map[string]offer.Offer
	apps          map[string]application.Application
	contracts     map[string]contract.Contract
	contractByApp map[string]string
	milestones    map[string]contract.Milestone
	conversations map[string]conversation.Conversation
	messages      []conversation.Message
	notifications []notification.Notification

	failNotifications bool
	failConversations bool
	beforeAccept      func()

	nextId int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]user.User),
		offers:        make(map[string]offer.Offer),
		apps:          make(map[string]application.Application),
		contracts:     make(map[string]contract.Contract),
		contractByApp: make(map[string]string),
		milestones:    make(map[string]contract.Milestone),
		conversations: make(map[string]conversation.Conversation),
	}
}

func (f *fakeStore) genId(prefix string) string {
	f.nextId++
	return fmt.Sprintf("%s-%d", prefix, f.nextId)
}

func (f *fakeStore) addUser(username, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = user.User{Id: f.genId("user"), Username: username, Role: role, CreatedAt: time.Now()}
}

func (f *fakeStore) addOffer(company, kind, status string, rate decimal.NullDecimal) offer.Offer {
	f.mu.Lock()
	defer f.mu.Unlock()
	off := offer.Offer{
		Id:              f.genId("offer"),
		CompanyUsername: company,
		Name:            "Test offer",
		Description:     "desc",
		Category:        "it",
		Kind:            kind,
		Status:          status,
		Rate:            rate,
		CreatedAt:       time.Now(),
	}
	f.offers[off.Id] = off
	return off
}

func (f *fakeStore) addApplication(offerId, student, status string, proposed, counter, agreed decimal.NullDecimal) application.Application {
	f.mu.Lock()
	defer f.mu.Unlock()
	app := application.Application{
		Id:              f.genId("app"),
		OfferId:         offerId,
		StudentUsername: student,
		Status:          status,
		ProposedRate:    proposed,
		CounterRate:     counter,
		AgreedRate:      agreed,
		CreatedAt:       time.Now(),
	}
	f.apps[app.Id] = app
	return app
}

func (f *fakeStore) FetchUser(username string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usr, ok := f.users[username]
	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}
	return usr, nil
}

func (f *fakeStore) GetOffer(offerId string) (offer.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off, ok := f.offers[offerId]
	if !ok {
		return offer.Offer{}, postgres.ErrNotFound
	}
	return off, nil
}

func (f *fakeStore) GetApplication(ctx context.Context, applicationId string) (application.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[applicationId]
	if !ok {
		return application.Application{}, postgres.ErrNotFound
	}
	return app, nil
}

func (f *fakeStore) SaveApplication(ctx context.Context, app application.Application) (application.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.apps {
		if existing.OfferId == app.OfferId && existing.StudentUsername == app.StudentUsername && application.Active(existing.Status) {
			return application.Application{}, postgres.ErrAlreadyApplied
		}
	}
	app.Id = f.genId("app")
	app.Status = application.StatusSent
	app.CreatedAt = time.Now()
	f.apps[app.Id] = app
	return app, nil
}

func (f *fakeStore) AcceptApplication(ctx context.Context, applicationId, fromStatus string, agreedRate decimal.Decimal, singleHire bool) (application.Application, []application.Application, error) {
	if f.beforeAccept != nil {
		f.beforeAccept()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	app, ok := f.apps[applicationId]
	if !ok || app.Status != fromStatus {
		return application.Application{}, nil, postgres.ErrConflict
	}

	now := time.Now()
	app.Status = application.StatusAccepted
	app.AgreedRate = decimal.NullDecimal{Decimal: agreedRate, Valid: true}
	app.DecidedAt = &now

	rejected := make([]application.Application, 0)
	if singleHire {
		off, ok := f.offers[app.OfferId]
		if !ok || off.Status != offer.StatusPublished {
			return application.Application{}, nil, postgres.ErrConflict
		}
		off.Status = offer.StatusInProgress
		f.offers[off.Id] = off

		for id, sibling := range f.apps {
			if sibling.OfferId == app.OfferId && id != app.Id &&
				(sibling.Status == application.StatusSent || sibling.Status == application.StatusCountered) {
				decided := now
				sibling.Status = application.StatusRejected
				sibling.DecidedAt = &decided
				f.apps[id] = sibling
				rejected = append(rejected, sibling)
			}
		}
	}

	f.apps[app.Id] = app
	return app, rejected, nil
}

func (f *fakeStore) CounterApplication(ctx context.Context, applicationId string, counterRate decimal.Decimal) (application.Application, error) {
	return f.casUpdate(applicationId, []string{application.StatusSent}, func(app *application.Application) {
		app.Status = application.StatusCountered
		app.CounterRate = decimal.NullDecimal{Decimal: counterRate, Valid: true}
		app.AgreedRate = decimal.NullDecimal{}
		app.DecidedAt = nil
	})
}

func (f *fakeStore) ProposeNewRate(ctx context.Context, applicationId string, proposedRate decimal.Decimal) (application.Application, error) {
	return f.casUpdate(applicationId, []string{application.StatusCountered}, func(app *application.Application) {
		app.Status = application.StatusSent
		app.ProposedRate = decimal.NullDecimal{Decimal: proposedRate, Valid: true}
		app.CounterRate = decimal.NullDecimal{}
		app.AgreedRate = decimal.NullDecimal{}
		app.DecidedAt = nil
	})
}

func (f *fakeStore) RejectApplication(ctx context.Context, applicationId string) (application.Application, error) {
	now := time.Now()
	return f.casUpdate(applicationId, []string{application.StatusSent, application.StatusCountered}, func(app *application.Application) {
		app.Status = application.StatusRejected
		app.DecidedAt = &now
	})
}

func (f *fakeStore) WithdrawApplication(ctx context.Context, applicationId string) (application.Application, error) {
	now := time.Now()
	return f.casUpdate(applicationId, []string{application.StatusSent, application.StatusCountered}, func(app *application.Application) {
		app.Status = application.StatusCancelled
		app.CancelledAt = &now
	})
}

func (f *fakeStore) CancelApplication(ctx context.Context, applicationId, reason string) (application.Application, error) {
	now := time.Now()
	app, err := f.casUpdate(applicationId, []string{application.StatusAccepted}, func(app *application.Application) {
		app.Status = application.StatusCancelled
		app.CancelledAt = &now
		app.CancelReason = reason
	})
	if err != nil {
		return application.Application{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if contractId, ok := f.contractByApp[app.Id]; ok {
		con := f.contracts[contractId]
		if con.Status != contract.StatusCompleted {
			con.Status = contract.StatusCancelled
			con.CancelledAt = &now
			f.contracts[contractId] = con
		}
	}
	if off, ok := f.offers[app.OfferId]; ok && off.Status == offer.StatusInProgress {
		off.Status = offer.StatusCancelled
		f.offers[off.Id] = off
	}
	return app, nil
}

func (f *fakeStore) casUpdate(applicationId string, fromStatuses []string, mutate func(*application.Application)) (application.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	app, ok := f.apps[applicationId]
	if !ok {
		return application.Application{}, postgres.ErrConflict
	}
	matched := false
	for _, status := range fromStatuses {
		if app.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return application.Application{}, postgres.ErrConflict
	}

	mutate(&app)
	f.apps[app.Id] = app
	return app, nil
}

func (f *fakeStore) EnsureContract(ctx context.Context, applicationId string, total decimal.Decimal, milestoneTitle string) (contract.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if contractId, ok := f.contractByApp[applicationId]; ok {
		return f.contractWithMilestones(contractId), nil
	}

	con := contract.Contract{
		Id:            f.genId("contract"),
		ApplicationId: applicationId,
		Status:        contract.StatusAwaitingFunding,
		Total:         total,
		CreatedAt:     time.Now(),
	}
	f.contracts[con.Id] = con
	f.contractByApp[applicationId] = con.Id

	mil := contract.Milestone{
		Id:         f.genId("milestone"),
		ContractId: con.Id,
		Title:      milestoneTitle,
		Amount:     total,
		Status:     contract.MilestonePending,
		Position:   1,
	}
	f.milestones[mil.Id] = mil

	return f.contractWithMilestones(con.Id), nil
}

func (f *fakeStore) contractWithMilestones(contractId string) contract.Contract {
	con := f.contracts[contractId]
	con.Milestones = nil
	for _, mil := range f.milestones {
		if mil.ContractId == contractId {
			con.Milestones = append(con.Milestones, mil)
		}
	}
	return con
}

func (f *fakeStore) GetContract(ctx context.Context, contractId string) (contract.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contracts[contractId]; !ok {
		return contract.Contract{}, postgres.ErrNotFound
	}
	return f.contractWithMilestones(contractId), nil
}

func (f *fakeStore) GetContractByApplication(ctx context.Context, applicationId string) (contract.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contractId, ok := f.contractByApp[applicationId]
	if !ok {
		return contract.Contract{}, postgres.ErrNotFound
	}
	return f.contractWithMilestones(contractId), nil
}

func (f *fakeStore) GetMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mil, ok := f.milestones[milestoneId]
	if !ok {
		return contract.Milestone{}, postgres.ErrNotFound
	}
	return mil, nil
}

func (f *fakeStore) AddMilestone(ctx context.Context, contractId, title string, amount decimal.Decimal) (contract.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	position := 0
	for _, mil := range f.milestones {
		if mil.ContractId == contractId && mil.Position > position {
			position = mil.Position
		}
	}

	mil := contract.Milestone{
		Id:         f.genId("milestone"),
		ContractId: contractId,
		Title:      title,
		Amount:     amount,
		Status:     contract.MilestonePending,
		Position:   position + 1,
	}
	f.milestones[mil.Id] = mil

	con := f.contracts[contractId]
	con.Total = con.Total.Add(amount)
	f.contracts[contractId] = con

	return mil, nil
}

func (f *fakeStore) FundMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mil, ok := f.milestones[milestoneId]
	if !ok || mil.Status != contract.MilestonePending {
		return contract.Milestone{}, postgres.ErrConflict
	}
	mil.Status = contract.MilestoneFunded
	f.milestones[mil.Id] = mil

	con := f.contracts[mil.ContractId]
	if con.Status == contract.StatusAwaitingFunding {
		con.Status = contract.StatusActive
		f.contracts[con.Id] = con
	}

	return mil, nil
}

func (f *fakeStore) DeliverMilestone(ctx context.Context, milestoneId string, autoAcceptAt time.Time) (contract.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mil, ok := f.milestones[milestoneId]
	if !ok || mil.Status != contract.MilestoneFunded {
		return contract.Milestone{}, postgres.ErrConflict
	}
	now := time.Now()
	mil.Status = contract.MilestoneDelivered
	mil.DeliveredAt = &now
	mil.AutoAcceptAt = &autoAcceptAt
	f.milestones[mil.Id] = mil

	return mil, nil
}

func (f *fakeStore) AcceptMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mil, ok := f.milestones[milestoneId]
	if !ok || mil.Status != contract.MilestoneDelivered {
		return contract.Milestone{}, postgres.ErrConflict
	}
	mil.Status = contract.MilestoneAccepted
	f.milestones[mil.Id] = mil

	now := time.Now()
	for id, sibling := range f.milestones {
		if sibling.ContractId == mil.ContractId && sibling.Status == contract.MilestoneDelivered &&
			sibling.AutoAcceptAt != nil && !now.Before(*sibling.AutoAcceptAt) {
			sibling.Status = contract.MilestoneAccepted
			f.milestones[id] = sibling
		}
	}

	allAccepted := true
	for _, sibling := range f.milestones {
		if sibling.ContractId == mil.ContractId && sibling.Status != contract.MilestoneAccepted {
			allAccepted = false
			break
		}
	}
	if allAccepted {
		con := f.contracts[mil.ContractId]
		if con.Status == contract.StatusActive {
			con.Status = contract.StatusCompleted
			f.contracts[con.Id] = con

			if app, ok := f.apps[con.ApplicationId]; ok && app.Status == application.StatusAccepted {
				app.Status = application.StatusCompleted
				f.apps[app.Id] = app

				if off, ok := f.offers[app.OfferId]; ok && off.Status == offer.StatusInProgress {
					off.Status = offer.StatusCompleted
					f.offers[off.Id] = off
				}
			}
		}
	}

	return mil, nil
}

func (f *fakeStore) SaveNotification(ctx context.Context, n notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNotifications {
		return fmt.Errorf("notification store unavailable")
	}
	n.Id = f.genId("notification")
	n.CreatedAt = time.Now()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) EnsureConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConversations {
		return conversation.Conversation{}, fmt.Errorf("conversation store unavailable")
	}
	if existing, ok := f.conversations[conv.ApplicationId]; ok {
		return existing, nil
	}
	conv.Id = f.genId("conversation")
	conv.CreatedAt = time.Now()
	f.conversations[conv.ApplicationId] = conv
	return conv, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConversations {
		return conversation.Message{}, fmt.Errorf("conversation store unavailable")
	}
	msg.Id = f.genId("message")
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) notificationsFor(username string) []notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]notification.Notification, 0)
	for _, n := range f.notifications {
		if n.Username == username {
			result = append(result, n)
		}
	}
	return result
}

func (f *fakeStore) messagesWithTag(tag string) []conversation.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]conversation.Message, 0)
	for _, msg := range f.messages {
		if msg.EventTag == tag {
			result = append(result, msg)
		}
	}
	return result
}
