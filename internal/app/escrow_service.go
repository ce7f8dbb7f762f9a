package app

import (
	"context"
	"errors"
	"log/slog"
	liberrors "student_market/internal/lib/errors"
	"student_market/internal/models/application"
	"student_market/internal/models/contract"
	"student_market/internal/models/notification"
	"student_market/internal/models/offer"
	"student_market/internal/storage/postgres"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAutoAcceptWindow is how long a company has to review a delivered
// milestone before it counts as accepted on its own.
const DefaultAutoAcceptWindow = 14 * 24 * time.Hour

type EscrowStore interface {
	GetOffer(offerId string) (offer.Offer, error)
	GetApplication(ctx context.Context, applicationId string) (application.Application, error)
	EnsureContract(ctx context.Context, applicationId string, total decimal.Decimal, milestoneTitle string) (contract.Contract, error)
	GetContract(ctx context.Context, contractId string) (contract.Contract, error)
	GetContractByApplication(ctx context.Context, applicationId string) (contract.Contract, error)
	GetMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error)
	AddMilestone(ctx context.Context, contractId, title string, amount decimal.Decimal) (contract.Milestone, error)
	FundMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error)
	DeliverMilestone(ctx context.Context, milestoneId string, autoAcceptAt time.Time) (contract.Milestone, error)
	AcceptMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error)
}

// EscrowService guarantees exactly one contract per accepted application and
// walks each milestone through funding, delivery and release. Auto-acceptance
// is a read-time policy: nothing is scheduled, the deadline is evaluated
// wherever milestone status is consumed.
type EscrowService struct {
	store            EscrowStore
	notifier         Notifier
	log              *slog.Logger
	autoAcceptWindow time.Duration
	now              func() time.Time
}

func NewEscrowService(store EscrowStore, notifier Notifier, log *slog.Logger, autoAcceptWindow time.Duration) *EscrowService {
	if autoAcceptWindow <= 0 {
		autoAcceptWindow = DefaultAutoAcceptWindow
	}
	return &EscrowService{
		store:            store,
		notifier:         notifier,
		log:              log,
		autoAcceptWindow: autoAcceptWindow,
		now:              time.Now,
	}
}

// EnsureContractForAccepted is the internal idempotent bootstrap invoked by
// the negotiation side right after an accept commits.
func (s *EscrowService) EnsureContractForAccepted(ctx context.Context, app application.Application) (contract.Contract, error) {
	if !app.AgreedRate.Valid {
		return contract.Contract{}, liberrors.New(liberrors.KindPrecondition, "accepted application carries no agreed rate")
	}
	return s.store.EnsureContract(ctx, app.Id, app.AgreedRate.Decimal, "Full delivery")
}

// EnsureContractForApplication is the caller-facing variant: either party of
// an accepted application may redundantly invoke it and always observes the
// single contract.
func (s *EscrowService) EnsureContractForApplication(ctx context.Context, caller, applicationId string) (contract.Contract, error) {
	app, _, err := s.loadParty(ctx, caller, applicationId)
	if err != nil {
		return contract.Contract{}, err
	}

	if app.Status == application.StatusAccepted {
		return s.EnsureContractForAccepted(ctx, app)
	}

	// Past the live phase the contract may still exist (completed or
	// cancelled engagements); never create one from a non-accepted status.
	con, err := s.store.GetContractByApplication(ctx, applicationId)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return contract.Contract{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s, a contract requires an accepted application", app.Status)
		}
		return contract.Contract{}, err
	}
	return con, nil
}

// FundMilestone escrows a pending milestone on the company's side.
func (s *EscrowService) FundMilestone(ctx context.Context, caller, milestoneId string) (contract.Milestone, error) {
	mil, app, off, err := s.loadMilestone(ctx, milestoneId)
	if err != nil {
		return contract.Milestone{}, err
	}
	if off.CompanyUsername != caller {
		return contract.Milestone{}, liberrors.New(liberrors.KindForbidden, "milestone belongs to another company's contract")
	}
	if mil.Status != contract.MilestonePending {
		return contract.Milestone{}, liberrors.Newf(liberrors.KindPrecondition, "milestone is %s, only a pending milestone can be funded", mil.Status)
	}

	funded, err := s.store.FundMilestone(ctx, milestoneId)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return contract.Milestone{}, liberrors.Wrap(liberrors.KindConflict, "milestone changed concurrently, refresh and retry", err)
		}
		return contract.Milestone{}, err
	}

	s.notifier.Notify(ctx, app.StudentUsername, notification.EventMilestoneFunded, map[string]any{
		"milestoneId": funded.Id,
		"contractId":  funded.ContractId,
		"amount":      funded.Amount.String(),
	})

	return funded, nil
}

// DeliverMilestone marks funded work as delivered and starts the
// auto-accept clock.
func (s *EscrowService) DeliverMilestone(ctx context.Context, caller, milestoneId string) (contract.Milestone, error) {
	mil, app, off, err := s.loadMilestone(ctx, milestoneId)
	if err != nil {
		return contract.Milestone{}, err
	}
	if app.StudentUsername != caller {
		return contract.Milestone{}, liberrors.New(liberrors.KindForbidden, "milestone belongs to another student's contract")
	}
	if mil.Status != contract.MilestoneFunded {
		return contract.Milestone{}, liberrors.Newf(liberrors.KindPrecondition, "milestone is %s, only a funded milestone can be delivered", mil.Status)
	}

	delivered, err := s.store.DeliverMilestone(ctx, milestoneId, s.now().Add(s.autoAcceptWindow))
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return contract.Milestone{}, liberrors.Wrap(liberrors.KindConflict, "milestone changed concurrently, refresh and retry", err)
		}
		return contract.Milestone{}, err
	}

	s.notifier.Notify(ctx, off.CompanyUsername, notification.EventMilestoneDelivery, map[string]any{
		"milestoneId":  delivered.Id,
		"contractId":   delivered.ContractId,
		"autoAcceptAt": delivered.AutoAcceptAt,
	})

	return delivered, nil
}

// AcceptMilestone releases the escrowed amount. Works on any delivered
// milestone, including one already past its auto-accept deadline.
func (s *EscrowService) AcceptMilestone(ctx context.Context, caller, milestoneId string) (contract.Milestone, error) {
	mil, app, off, err := s.loadMilestone(ctx, milestoneId)
	if err != nil {
		return contract.Milestone{}, err
	}
	if off.CompanyUsername != caller {
		return contract.Milestone{}, liberrors.New(liberrors.KindForbidden, "milestone belongs to another company's contract")
	}
	if mil.Status != contract.MilestoneDelivered {
		return contract.Milestone{}, liberrors.Newf(liberrors.KindPrecondition, "milestone is %s, only a delivered milestone can be accepted", mil.Status)
	}

	accepted, err := s.store.AcceptMilestone(ctx, milestoneId)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return contract.Milestone{}, liberrors.Wrap(liberrors.KindConflict, "milestone changed concurrently, refresh and retry", err)
		}
		return contract.Milestone{}, err
	}

	s.notifier.Notify(ctx, app.StudentUsername, notification.EventMilestoneAccepted, map[string]any{
		"milestoneId": accepted.Id,
		"contractId":  accepted.ContractId,
		"amount":      accepted.Amount.String(),
	})

	return accepted, nil
}

// AddMilestone lets the company split remaining work into a further payable
// unit; the contract total grows by the milestone amount.
func (s *EscrowService) AddMilestone(ctx context.Context, caller, contractId, title string, amount decimal.Decimal) (contract.Milestone, error) {
	if !amount.IsPositive() {
		return contract.Milestone{}, liberrors.New(liberrors.KindValidation, "milestone amount must be positive")
	}

	con, _, off, err := s.loadContract(ctx, contractId)
	if err != nil {
		return contract.Milestone{}, err
	}
	if off.CompanyUsername != caller {
		return contract.Milestone{}, liberrors.New(liberrors.KindForbidden, "contract belongs to another company")
	}
	if con.Status != contract.StatusAwaitingFunding && con.Status != contract.StatusActive {
		return contract.Milestone{}, liberrors.Newf(liberrors.KindPrecondition, "contract is %s, milestones can only be added while it is open", con.Status)
	}

	return s.store.AddMilestone(ctx, contractId, title, amount)
}

// Summary aggregates milestone money state for reporting surfaces. The
// contract status is the authoritative completion signal; paid and in-escrow
// totals apply the read-time auto-accept policy.
func (s *EscrowService) Summary(ctx context.Context, caller, contractId string) (contract.Summary, error) {
	con, app, off, err := s.loadContract(ctx, contractId)
	if err != nil {
		return contract.Summary{}, err
	}
	if app.StudentUsername != caller && off.CompanyUsername != caller {
		return contract.Summary{}, liberrors.New(liberrors.KindForbidden, "caller is not a party to this contract")
	}

	now := s.now()
	sum := contract.Summary{
		ContractId:    con.Id,
		Status:        con.Status,
		Total:         con.Total,
		PaidTotal:     decimal.Zero,
		InEscrowTotal: decimal.Zero,
		Milestones:    make([]contract.Milestone, 0, len(con.Milestones)),
	}
	for _, mil := range con.Milestones {
		effective := mil
		effective.Status = mil.EffectiveStatus(now)
		sum.Milestones = append(sum.Milestones, effective)

		switch {
		case mil.Paid(now):
			sum.PaidTotal = sum.PaidTotal.Add(mil.Amount)
		case mil.InEscrow(now):
			sum.InEscrowTotal = sum.InEscrowTotal.Add(mil.Amount)
		}
	}

	return sum, nil
}

func (s *EscrowService) loadParty(ctx context.Context, caller, applicationId string) (application.Application, offer.Offer, error) {
	app, err := s.store.GetApplication(ctx, applicationId)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindNotFound, "application not found")
		}
		return application.Application{}, offer.Offer{}, err
	}

	off, err := s.store.GetOffer(app.OfferId)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindNotFound, "offer not found")
		}
		return application.Application{}, offer.Offer{}, err
	}

	if app.StudentUsername != caller && off.CompanyUsername != caller {
		return application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindForbidden, "caller is not a party to this application")
	}

	return app, off, nil
}

func (s *EscrowService) loadContract(ctx context.Context, contractId string) (contract.Contract, application.Application, offer.Offer, error) {
	con, err := s.store.GetContract(ctx, contractId)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return contract.Contract{}, application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindNotFound, "contract not found")
		}
		return contract.Contract{}, application.Application{}, offer.Offer{}, err
	}

	app, err := s.store.GetApplication(ctx, con.ApplicationId)
	if err != nil {
		return contract.Contract{}, application.Application{}, offer.Offer{}, err
	}

	off, err := s.store.GetOffer(app.OfferId)
	if err != nil {
		return contract.Contract{}, application.Application{}, offer.Offer{}, err
	}

	return con, app, off, nil
}

func (s *EscrowService) loadMilestone(ctx context.Context, milestoneId string) (contract.Milestone, application.Application, offer.Offer, error) {
	mil, err := s.store.GetMilestone(ctx, milestoneId)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return contract.Milestone{}, application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindNotFound, "milestone not found")
		}
		return contract.Milestone{}, application.Application{}, offer.Offer{}, err
	}

	_, app, off, err := s.loadContract(ctx, mil.ContractId)
	if err != nil {
		return contract.Milestone{}, application.Application{}, offer.Offer{}, err
	}

	return mil, app, off, nil
}
