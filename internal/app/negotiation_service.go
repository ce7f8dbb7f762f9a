package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	liberrors "student_market/internal/lib/errors"
	"student_market/internal/models/application"
	"student_market/internal/models/contract"
	"student_market/internal/models/conversation"
	"student_market/internal/models/notification"
	"student_market/internal/models/offer"
	"student_market/internal/models/user"
	"student_market/internal/storage/postgres"

	"github.com/shopspring/decimal"
)

type NegotiationStore interface {
	FetchUser(username string) (user.User, error)
	GetOffer(offerId string) (offer.Offer, error)
	GetApplication(ctx context.Context, applicationId string) (application.Application, error)
	SaveApplication(ctx context.Context, app application.Application) (application.Application, error)
	AcceptApplication(ctx context.Context, applicationId, fromStatus string, agreedRate decimal.Decimal, singleHire bool) (application.Application, []application.Application, error)
	CounterApplication(ctx context.Context, applicationId string, counterRate decimal.Decimal) (application.Application, error)
	ProposeNewRate(ctx context.Context, applicationId string, proposedRate decimal.Decimal) (application.Application, error)
	RejectApplication(ctx context.Context, applicationId string) (application.Application, error)
	WithdrawApplication(ctx context.Context, applicationId string) (application.Application, error)
	CancelApplication(ctx context.Context, applicationId, reason string) (application.Application, error)
}

// ContractEnsurer is the escrow engine's idempotent entry point as seen by
// the negotiation side.
type ContractEnsurer interface {
	EnsureContractForAccepted(ctx context.Context, app application.Application) (contract.Contract, error)
}

// NegotiationService owns the application status transitions and the
// money-term fields. Every operation takes the caller's identity explicitly
// and checks ownership before touching state. Chat and notification legs run
// after the authoritative write and are never allowed to fail it.
type NegotiationService struct {
	store    NegotiationStore
	escrow   ContractEnsurer
	bridge   ConversationBridge
	notifier Notifier
	log      *slog.Logger
}

func NewNegotiationService(store NegotiationStore, escrow ContractEnsurer, bridge ConversationBridge, notifier Notifier, log *slog.Logger) *NegotiationService {
	return &NegotiationService{store: store, escrow: escrow, bridge: bridge, notifier: notifier, log: log}
}

// Apply submits a student's bid on a published offer. The proposed rate is
// optional; when absent the offer's listed rate applies at acceptance time.
func (s *NegotiationService) Apply(ctx context.Context, caller, offerId string, proposedRate decimal.NullDecimal, message string) (application.Application, error) {
	usr, err := s.requireUser(caller)
	if err != nil {
		return application.Application{}, err
	}
	if usr.Role != user.RoleStudent {
		return application.Application{}, liberrors.New(liberrors.KindForbidden, "only students can apply to offers")
	}

	off, err := s.getOffer(offerId)
	if err != nil {
		return application.Application{}, err
	}
	if off.Status != offer.StatusPublished {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "offer is %s, applications are only accepted on published offers", off.Status)
	}
	if proposedRate.Valid && !proposedRate.Decimal.IsPositive() {
		return application.Application{}, liberrors.New(liberrors.KindValidation, "proposed rate must be positive")
	}

	app, err := s.store.SaveApplication(ctx, application.Application{
		OfferId:         offerId,
		StudentUsername: caller,
		ProposedRate:    proposedRate,
		Message:         message,
	})
	if err != nil {
		if errors.Is(err, postgres.ErrAlreadyApplied) {
			return application.Application{}, liberrors.New(liberrors.KindConflict, "an active application for this offer already exists")
		}
		return application.Application{}, err
	}

	s.notifier.Notify(ctx, off.CompanyUsername, notification.EventNewProposal, map[string]any{
		"applicationId": app.Id,
		"offerId":       off.Id,
		"student":       caller,
	})

	return app, nil
}

// AcceptProposal lets the company accept a fresh bid at the student's
// proposed rate, falling back to the offer's listed rate. Triggers contract
// creation and, for single-hire offers, the competing-application sweep.
func (s *NegotiationService) AcceptProposal(ctx context.Context, caller, applicationId string) (application.Application, error) {
	app, off, err := s.loadForCompany(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status != application.StatusSent {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s, only a sent proposal can be accepted", app.Status)
	}

	var agreed decimal.Decimal
	switch {
	case app.ProposedRate.Valid:
		agreed = app.ProposedRate.Decimal
	case off.Rate.Valid:
		agreed = off.Rate.Decimal
	default:
		return application.Application{}, liberrors.New(liberrors.KindValidation, "neither the application nor the offer carries a rate to agree on")
	}

	return s.accept(ctx, app, off, application.StatusSent, agreed)
}

// AcceptCounter lets the student accept the company's counter rate.
func (s *NegotiationService) AcceptCounter(ctx context.Context, caller, applicationId string) (application.Application, error) {
	app, off, err := s.loadForStudent(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status != application.StatusCountered {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s, only a countered application can accept the counter", app.Status)
	}
	if !app.CounterRate.Valid {
		return application.Application{}, liberrors.New(liberrors.KindPrecondition, "application carries no counter rate")
	}

	return s.accept(ctx, app, off, application.StatusCountered, app.CounterRate.Decimal)
}

func (s *NegotiationService) accept(ctx context.Context, app application.Application, off offer.Offer, fromStatus string, agreed decimal.Decimal) (application.Application, error) {
	singleHire := off.Kind == offer.KindSingleHire

	winner, rejected, err := s.store.AcceptApplication(ctx, app.Id, fromStatus, agreed, singleHire)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return application.Application{}, liberrors.Wrap(liberrors.KindConflict, "application or offer changed concurrently, refresh and retry", err)
		}
		return application.Application{}, err
	}

	// The accept is committed; a failed contract bootstrap is recoverable
	// through the idempotent ensure endpoint, so it does not fail the call.
	if _, err := s.escrow.EnsureContractForAccepted(ctx, winner); err != nil {
		s.log.Error("failed to create contract for accepted application",
			slog.String("applicationId", winner.Id), slog.String("error", err.Error()))
	}

	s.bridge.SystemMessage(ctx, winner, off, conversation.EventProposalAccepted,
		fmt.Sprintf("Application accepted at rate %s.", agreed.String()),
		map[string]any{"agreed_rate": agreed.String()})

	counterparty := winner.StudentUsername
	if fromStatus == application.StatusCountered {
		counterparty = off.CompanyUsername
	}
	s.notifier.Notify(ctx, counterparty, notification.EventProposalAccepted, map[string]any{
		"applicationId": winner.Id,
		"offerId":       off.Id,
		"agreedRate":    agreed.String(),
	})

	for _, loser := range rejected {
		s.notifier.Notify(ctx, loser.StudentUsername, notification.EventOfferFilled, map[string]any{
			"applicationId": loser.Id,
			"offerId":       off.Id,
		})
	}

	return winner, nil
}

// CounterOffer lets the company answer a sent bid with its own rate.
func (s *NegotiationService) CounterOffer(ctx context.Context, caller, applicationId string, counterRate decimal.Decimal) (application.Application, error) {
	if !counterRate.IsPositive() {
		return application.Application{}, liberrors.New(liberrors.KindValidation, "counter rate must be positive")
	}

	app, off, err := s.loadForCompany(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status != application.StatusSent {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s, only a sent proposal can be countered", app.Status)
	}

	updated, err := s.store.CounterApplication(ctx, applicationId, counterRate)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return application.Application{}, liberrors.Wrap(liberrors.KindConflict, "application changed concurrently, refresh and retry", err)
		}
		return application.Application{}, err
	}

	s.bridge.SystemMessage(ctx, updated, off, conversation.EventCounterOffer,
		fmt.Sprintf("Company countered at rate %s.", counterRate.String()),
		map[string]any{"counter_rate": counterRate.String()})
	s.notifier.Notify(ctx, updated.StudentUsername, notification.EventCounterOffer, map[string]any{
		"applicationId": updated.Id,
		"offerId":       off.Id,
		"counterRate":   counterRate.String(),
	})

	return updated, nil
}

// ProposeNewRate reopens the negotiation after a counter: the application
// returns to sent with a fresh proposed rate. The loop between sent and
// countered is unbounded until one side accepts or rejects.
func (s *NegotiationService) ProposeNewRate(ctx context.Context, caller, applicationId string, proposedRate decimal.Decimal) (application.Application, error) {
	if !proposedRate.IsPositive() {
		return application.Application{}, liberrors.New(liberrors.KindValidation, "proposed rate must be positive")
	}

	app, off, err := s.loadForStudent(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status != application.StatusCountered {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s, a new rate can only answer a counter offer", app.Status)
	}

	updated, err := s.store.ProposeNewRate(ctx, applicationId, proposedRate)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return application.Application{}, liberrors.Wrap(liberrors.KindConflict, "application changed concurrently, refresh and retry", err)
		}
		return application.Application{}, err
	}

	s.bridge.SystemMessage(ctx, updated, off, conversation.EventNewProposal,
		fmt.Sprintf("Student proposed a new rate of %s.", proposedRate.String()),
		map[string]any{"proposed_rate": proposedRate.String()})
	s.notifier.Notify(ctx, off.CompanyUsername, notification.EventNewProposal, map[string]any{
		"applicationId": updated.Id,
		"offerId":       off.Id,
		"proposedRate":  proposedRate.String(),
	})

	return updated, nil
}

// Reject closes the negotiation from either side while it is still in
// sent or countered.
func (s *NegotiationService) Reject(ctx context.Context, caller, applicationId string) (application.Application, error) {
	app, off, err := s.loadForParty(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status != application.StatusSent && app.Status != application.StatusCountered {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s and can no longer be rejected", app.Status)
	}

	updated, err := s.store.RejectApplication(ctx, applicationId)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return application.Application{}, liberrors.Wrap(liberrors.KindConflict, "application changed concurrently, refresh and retry", err)
		}
		return application.Application{}, err
	}

	s.bridge.SystemMessage(ctx, updated, off, conversation.EventRejected,
		"Application rejected.", map[string]any{"rejected_by": caller})

	counterparty := updated.StudentUsername
	if caller == updated.StudentUsername {
		counterparty = off.CompanyUsername
	}
	s.notifier.Notify(ctx, counterparty, notification.EventRejected, map[string]any{
		"applicationId": updated.Id,
		"offerId":       off.Id,
	})

	return updated, nil
}

// Withdraw is the student's soft-delete of a pending application. Any
// status outside sent/countered fails with an error naming the blocker.
func (s *NegotiationService) Withdraw(ctx context.Context, caller, applicationId string) (application.Application, error) {
	app, off, err := s.loadForStudent(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status != application.StatusSent && app.Status != application.StatusCountered {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s and cannot be withdrawn", app.Status)
	}

	updated, err := s.store.WithdrawApplication(ctx, applicationId)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return application.Application{}, liberrors.Wrap(liberrors.KindConflict, "application changed concurrently, refresh and retry", err)
		}
		return application.Application{}, err
	}

	s.bridge.SystemMessage(ctx, updated, off, conversation.EventWithdrawn,
		"Student withdrew the application.", nil)
	s.notifier.Notify(ctx, off.CompanyUsername, notification.EventWithdrawn, map[string]any{
		"applicationId": updated.Id,
		"offerId":       off.Id,
	})

	return updated, nil
}

// Cancel terminates an accepted engagement. The authoritative cancel (status,
// reason, timestamp, contract and offer close-out) commits first; the system
// message and counterparty notification follow best-effort.
func (s *NegotiationService) Cancel(ctx context.Context, caller, applicationId, reason string) (application.Application, error) {
	if reason == "" {
		return application.Application{}, liberrors.New(liberrors.KindValidation, "a cancellation reason is required")
	}

	app, off, err := s.loadForParty(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status != application.StatusAccepted {
		return application.Application{}, liberrors.Newf(liberrors.KindPrecondition, "application is %s, only an accepted engagement can be cancelled", app.Status)
	}

	updated, err := s.store.CancelApplication(ctx, applicationId, reason)
	if err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			return application.Application{}, liberrors.Wrap(liberrors.KindConflict, "application changed concurrently, refresh and retry", err)
		}
		return application.Application{}, err
	}

	s.bridge.SystemMessage(ctx, updated, off, conversation.EventCancelled,
		fmt.Sprintf("Engagement cancelled by %s: %s", caller, reason),
		map[string]any{"cancelled_by": caller, "reason": reason})

	counterparty := updated.StudentUsername
	if caller == updated.StudentUsername {
		counterparty = off.CompanyUsername
	}
	s.notifier.Notify(ctx, counterparty, notification.EventCancelled, map[string]any{
		"applicationId": updated.Id,
		"offerId":       off.Id,
		"reason":        reason,
	})

	return updated, nil
}

func (s *NegotiationService) Get(ctx context.Context, caller, applicationId string) (application.Application, error) {
	app, _, err := s.loadForParty(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, err
	}
	return app, nil
}

func (s *NegotiationService) requireUser(username string) (user.User, error) {
	usr, err := s.store.FetchUser(username)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return user.User{}, liberrors.New(liberrors.KindUnauthorized, "unknown user")
		}
		return user.User{}, err
	}
	return usr, nil
}

func (s *NegotiationService) getOffer(offerId string) (offer.Offer, error) {
	off, err := s.store.GetOffer(offerId)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return offer.Offer{}, liberrors.New(liberrors.KindNotFound, "offer not found")
		}
		return offer.Offer{}, err
	}
	return off, nil
}

func (s *NegotiationService) load(ctx context.Context, caller, applicationId string) (application.Application, offer.Offer, error) {
	if _, err := s.requireUser(caller); err != nil {
		return application.Application{}, offer.Offer{}, err
	}

	app, err := s.store.GetApplication(ctx, applicationId)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindNotFound, "application not found")
		}
		return application.Application{}, offer.Offer{}, err
	}

	off, err := s.getOffer(app.OfferId)
	if err != nil {
		return application.Application{}, offer.Offer{}, err
	}

	return app, off, nil
}

func (s *NegotiationService) loadForCompany(ctx context.Context, caller, applicationId string) (application.Application, offer.Offer, error) {
	app, off, err := s.load(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, offer.Offer{}, err
	}
	if off.CompanyUsername != caller {
		return application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindForbidden, "offer belongs to another company")
	}
	return app, off, nil
}

func (s *NegotiationService) loadForStudent(ctx context.Context, caller, applicationId string) (application.Application, offer.Offer, error) {
	app, off, err := s.load(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, offer.Offer{}, err
	}
	if app.StudentUsername != caller {
		return application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindForbidden, "application belongs to another student")
	}
	return app, off, nil
}

func (s *NegotiationService) loadForParty(ctx context.Context, caller, applicationId string) (application.Application, offer.Offer, error) {
	app, off, err := s.load(ctx, caller, applicationId)
	if err != nil {
		return application.Application{}, offer.Offer{}, err
	}
	if app.StudentUsername != caller && off.CompanyUsername != caller {
		return application.Application{}, offer.Offer{}, liberrors.New(liberrors.KindForbidden, "caller is not a party to this application")
	}
	return app, off, nil
}
