package app

import (
	"context"
	"io"
	"log/slog"
	liberrors "student_market/internal/lib/errors"
	"student_market/internal/models/application"
	"student_market/internal/models/contract"
	"student_market/internal/models/conversation"
	"student_market/internal/models/notification"
	"student_market/internal/models/offer"
	"student_market/internal/models/user"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

func nullDec(t *testing.T, raw string) decimal.NullDecimal {
	t.Helper()
	return decimal.NullDecimal{Decimal: dec(t, raw), Valid: true}
}

func newServices(store *fakeStore) (*NegotiationService, *EscrowService) {
	log := testLogger()
	notifier := NewInboxNotifier(store, log)
	bridge := NewChatBridge(store, log)
	escrow := NewEscrowService(store, notifier, log, 0)
	return NewNegotiationService(store, escrow, bridge, notifier, log), escrow
}

func assertKind(t *testing.T, err error, kind liberrors.Kind) {
	t.Helper()
	require.Error(t, err)
	got, ok := liberrors.KindOf(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	assert.Equal(t, kind, got)
}

func TestApply(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	svc, _ := newServices(store)

	app, err := svc.Apply(context.Background(), "alice", off.Id, decimal.NullDecimal{}, "hi")
	require.NoError(t, err)

	assert.Equal(t, application.StatusSent, app.Status)
	assert.Equal(t, "alice", app.StudentUsername)
	assert.False(t, app.ProposedRate.Valid)

	inbox := store.notificationsFor("acme")
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.EventNewProposal, inbox[0].EventType)
}

func TestApplyGuards(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	published := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	draft := store.addOffer("acme", offer.KindSingleHire, offer.StatusDraft, nullDec(t, "400"))
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.Apply(ctx, "ghost", published.Id, decimal.NullDecimal{}, "")
	assertKind(t, err, liberrors.KindUnauthorized)

	_, err = svc.Apply(ctx, "acme", published.Id, decimal.NullDecimal{}, "")
	assertKind(t, err, liberrors.KindForbidden)

	_, err = svc.Apply(ctx, "alice", draft.Id, decimal.NullDecimal{}, "")
	assertKind(t, err, liberrors.KindPrecondition)

	_, err = svc.Apply(ctx, "alice", published.Id, nullDec(t, "-10"), "")
	assertKind(t, err, liberrors.KindValidation)

	_, err = svc.Apply(ctx, "alice", "offer-missing", decimal.NullDecimal{}, "")
	assertKind(t, err, liberrors.KindNotFound)
}

func TestApplyRejectsSecondActiveApplication(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.Apply(ctx, "alice", off.Id, decimal.NullDecimal{}, "")
	require.NoError(t, err)

	_, err = svc.Apply(ctx, "alice", off.Id, decimal.NullDecimal{}, "")
	assertKind(t, err, liberrors.KindConflict)
}

func TestApplyAgainAfterTerminalStatus(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	store.addApplication(off.Id, "alice", application.StatusRejected, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)

	_, err := svc.Apply(context.Background(), "alice", off.Id, decimal.NullDecimal{}, "second try")
	require.NoError(t, err)
}

func TestAcceptProposalAgreedRate(t *testing.T) {
	cases := []struct {
		name      string
		offerRate decimal.NullDecimal
		proposed  decimal.NullDecimal
		want      string
		wantErr   bool
	}{
		{name: "proposed rate wins", offerRate: decimal.NullDecimal{Decimal: decimal.NewFromInt(400), Valid: true}, proposed: decimal.NullDecimal{Decimal: decimal.NewFromInt(350), Valid: true}, want: "350"},
		{name: "falls back to offer rate", offerRate: decimal.NullDecimal{Decimal: decimal.NewFromInt(400), Valid: true}, want: "400"},
		{name: "no rate anywhere", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.addUser("acme", user.RoleCompany)
			store.addUser("alice", user.RoleStudent)
			off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, tc.offerRate)
			app := store.addApplication(off.Id, "alice", application.StatusSent, tc.proposed, decimal.NullDecimal{}, decimal.NullDecimal{})
			svc, _ := newServices(store)

			got, err := svc.AcceptProposal(context.Background(), "acme", app.Id)
			if tc.wantErr {
				assertKind(t, err, liberrors.KindValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, application.StatusAccepted, got.Status)
			require.True(t, got.AgreedRate.Valid)
			assert.Equal(t, tc.want, got.AgreedRate.Decimal.String())
			require.NotNil(t, got.DecidedAt)
		})
	}
}

func TestAcceptProposalBootstrapsContract(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	app := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.AcceptProposal(ctx, "acme", app.Id)
	require.NoError(t, err)

	con, err := store.GetContractByApplication(ctx, app.Id)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusAwaitingFunding, con.Status)
	assert.Equal(t, "400", con.Total.String())
	require.Len(t, con.Milestones, 1)
	assert.Equal(t, contract.MilestonePending, con.Milestones[0].Status)
	assert.Equal(t, "400", con.Milestones[0].Amount.String())

	messages := store.messagesWithTag(conversation.EventProposalAccepted)
	require.Len(t, messages, 1)
	assert.Equal(t, SystemSender, messages[0].SenderUsername)

	inbox := store.notificationsFor("alice")
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.EventProposalAccepted, inbox[0].EventType)
}

func TestAcceptSingleHireRejectsCompetitors(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	store.addUser("bob", user.RoleStudent)
	store.addUser("carol", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	winner := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	loserSent := store.addApplication(off.Id, "bob", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	loserCountered := store.addApplication(off.Id, "carol", application.StatusCountered, decimal.NullDecimal{}, nullDec(t, "300"), decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.AcceptProposal(ctx, "acme", winner.Id)
	require.NoError(t, err)

	for _, id := range []string{loserSent.Id, loserCountered.Id} {
		app, err := store.GetApplication(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, application.StatusRejected, app.Status)
		require.NotNil(t, app.DecidedAt)
	}

	updatedOffer, err := store.GetOffer(off.Id)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusInProgress, updatedOffer.Status)

	for _, username := range []string{"bob", "carol"} {
		inbox := store.notificationsFor(username)
		require.Len(t, inbox, 1)
		assert.Equal(t, notification.EventOfferFilled, inbox[0].EventType)
	}
}

func TestAcceptMultiInstanceLeavesCompetitorsAlone(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	store.addUser("bob", user.RoleStudent)
	off := store.addOffer("acme", offer.KindMultiInstance, offer.StatusPublished, nullDec(t, "50"))
	winner := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	other := store.addApplication(off.Id, "bob", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.AcceptProposal(ctx, "acme", winner.Id)
	require.NoError(t, err)

	untouched, err := store.GetApplication(ctx, other.Id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusSent, untouched.Status)

	updatedOffer, err := store.GetOffer(off.Id)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusPublished, updatedOffer.Status)
}

func TestAcceptProposalGuards(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("rival", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	sent := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	countered := store.addApplication(off.Id, "alice", application.StatusCountered, decimal.NullDecimal{}, nullDec(t, "300"), decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.AcceptProposal(ctx, "rival", sent.Id)
	assertKind(t, err, liberrors.KindForbidden)

	_, err = svc.AcceptProposal(ctx, "acme", countered.Id)
	assertKind(t, err, liberrors.KindPrecondition)
	assert.Contains(t, err.Error(), application.StatusCountered)
}

func TestAcceptConflictsWhenStatusChangesUnderneath(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	app := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)

	// Flip the status between the service's read and its guarded write, the
	// way a racing withdraw would.
	store.beforeAccept = func() {
		store.mu.Lock()
		defer store.mu.Unlock()
		racing := store.apps[app.Id]
		racing.Status = application.StatusCancelled
		store.apps[app.Id] = racing
	}

	_, err := svc.AcceptProposal(context.Background(), "acme", app.Id)
	assertKind(t, err, liberrors.KindConflict)
}

func TestNegotiationLoop(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	svc, _ := newServices(store)
	ctx := context.Background()

	app, err := svc.Apply(ctx, "alice", off.Id, decimal.NullDecimal{}, "interested")
	require.NoError(t, err)

	app, err = svc.CounterOffer(ctx, "acme", app.Id, dec(t, "350"))
	require.NoError(t, err)
	assert.Equal(t, application.StatusCountered, app.Status)
	assert.Equal(t, "350", app.CounterRate.Decimal.String())

	app, err = svc.ProposeNewRate(ctx, "alice", app.Id, dec(t, "380"))
	require.NoError(t, err)
	assert.Equal(t, application.StatusSent, app.Status)
	assert.Equal(t, "380", app.ProposedRate.Decimal.String())
	assert.False(t, app.CounterRate.Valid)

	app, err = svc.AcceptProposal(ctx, "acme", app.Id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusAccepted, app.Status)
	assert.Equal(t, "380", app.AgreedRate.Decimal.String())

	con, err := store.GetContractByApplication(ctx, app.Id)
	require.NoError(t, err)
	assert.Equal(t, "380", con.Total.String())
}

func TestAcceptCounter(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	app := store.addApplication(off.Id, "alice", application.StatusCountered, decimal.NullDecimal{}, nullDec(t, "350"), decimal.NullDecimal{})
	svc, _ := newServices(store)

	got, err := svc.AcceptCounter(context.Background(), "alice", app.Id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusAccepted, got.Status)
	assert.Equal(t, "350", got.AgreedRate.Decimal.String())

	// The company accepted last, so it is the one to notify.
	inbox := store.notificationsFor("acme")
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.EventProposalAccepted, inbox[0].EventType)
}

func TestAcceptCounterGuards(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	sent := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	noRate := store.addApplication(off.Id, "alice", application.StatusCountered, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.AcceptCounter(ctx, "acme", sent.Id)
	assertKind(t, err, liberrors.KindForbidden)

	_, err = svc.AcceptCounter(ctx, "alice", sent.Id)
	assertKind(t, err, liberrors.KindPrecondition)

	_, err = svc.AcceptCounter(ctx, "alice", noRate.Id)
	assertKind(t, err, liberrors.KindPrecondition)
}

func TestCounterOfferGuards(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	countered := store.addApplication(off.Id, "alice", application.StatusCountered, decimal.NullDecimal{}, nullDec(t, "300"), decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.CounterOffer(ctx, "acme", countered.Id, decimal.Zero)
	assertKind(t, err, liberrors.KindValidation)

	_, err = svc.CounterOffer(ctx, "acme", countered.Id, dec(t, "320"))
	assertKind(t, err, liberrors.KindPrecondition)
	assert.Contains(t, err.Error(), application.StatusCountered)
}

func TestProposeNewRateGuards(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	sent := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.ProposeNewRate(ctx, "alice", sent.Id, dec(t, "-5"))
	assertKind(t, err, liberrors.KindValidation)

	_, err = svc.ProposeNewRate(ctx, "alice", sent.Id, dec(t, "380"))
	assertKind(t, err, liberrors.KindPrecondition)
	assert.Contains(t, err.Error(), application.StatusSent)
}

func TestRejectByEitherParty(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	store.addUser("mallory", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	byCompany := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	byStudent := store.addApplication(off.Id, "alice", application.StatusCountered, decimal.NullDecimal{}, nullDec(t, "300"), decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.Reject(ctx, "mallory", byCompany.Id)
	assertKind(t, err, liberrors.KindForbidden)

	got, err := svc.Reject(ctx, "acme", byCompany.Id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusRejected, got.Status)

	got, err = svc.Reject(ctx, "alice", byStudent.Id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusRejected, got.Status)

	_, err = svc.Reject(ctx, "acme", byCompany.Id)
	assertKind(t, err, liberrors.KindPrecondition)
}

func TestWithdraw(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	app := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)

	got, err := svc.Withdraw(context.Background(), "alice", app.Id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	inbox := store.notificationsFor("acme")
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.EventWithdrawn, inbox[0].EventType)
}

func TestWithdrawNamesBlockingStatus(t *testing.T) {
	blocked := []string{
		application.StatusAccepted,
		application.StatusRejected,
		application.StatusCancelled,
		application.StatusCompleted,
	}

	for _, status := range blocked {
		t.Run(status, func(t *testing.T) {
			store := newFakeStore()
			store.addUser("acme", user.RoleCompany)
			store.addUser("alice", user.RoleStudent)
			off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
			app := store.addApplication(off.Id, "alice", status, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
			svc, _ := newServices(store)

			_, err := svc.Withdraw(context.Background(), "alice", app.Id)
			assertKind(t, err, liberrors.KindPrecondition)
			assert.Contains(t, err.Error(), status)

			unchanged, err := store.GetApplication(context.Background(), app.Id)
			require.NoError(t, err)
			assert.Equal(t, status, unchanged.Status)
		})
	}
}

func TestCancel(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusInProgress, nullDec(t, "400"))
	app := store.addApplication(off.Id, "alice", application.StatusAccepted, decimal.NullDecimal{}, decimal.NullDecimal{}, nullDec(t, "400"))
	svc, escrow := newServices(store)
	ctx := context.Background()

	_, err := escrow.EnsureContractForAccepted(ctx, mustGetApp(t, store, app.Id))
	require.NoError(t, err)

	got, err := svc.Cancel(ctx, "alice", app.Id, "scope changed")
	require.NoError(t, err)
	assert.Equal(t, application.StatusCancelled, got.Status)
	assert.Equal(t, "scope changed", got.CancelReason)
	require.NotNil(t, got.CancelledAt)

	con, err := store.GetContractByApplication(ctx, app.Id)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusCancelled, con.Status)

	updatedOffer, err := store.GetOffer(off.Id)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusCancelled, updatedOffer.Status)

	messages := store.messagesWithTag(conversation.EventCancelled)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Body, "scope changed")

	inbox := store.notificationsFor("acme")
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.EventCancelled, inbox[0].EventType)

	_, err = svc.Cancel(ctx, "alice", app.Id, "again")
	assertKind(t, err, liberrors.KindPrecondition)
}

func TestCancelGuards(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	store.addUser("mallory", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusInProgress, nullDec(t, "400"))
	accepted := store.addApplication(off.Id, "alice", application.StatusAccepted, decimal.NullDecimal{}, decimal.NullDecimal{}, nullDec(t, "400"))
	sent := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	svc, _ := newServices(store)
	ctx := context.Background()

	_, err := svc.Cancel(ctx, "alice", accepted.Id, "")
	assertKind(t, err, liberrors.KindValidation)

	_, err = svc.Cancel(ctx, "mallory", accepted.Id, "reason")
	assertKind(t, err, liberrors.KindForbidden)

	_, err = svc.Cancel(ctx, "alice", sent.Id, "reason")
	assertKind(t, err, liberrors.KindPrecondition)
	assert.Contains(t, err.Error(), application.StatusSent)
}

func TestCancelByCompany(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusInProgress, nullDec(t, "400"))
	app := store.addApplication(off.Id, "alice", application.StatusAccepted, decimal.NullDecimal{}, decimal.NullDecimal{}, nullDec(t, "400"))
	svc, _ := newServices(store)

	_, err := svc.Cancel(context.Background(), "acme", app.Id, "budget cut")
	require.NoError(t, err)

	inbox := store.notificationsFor("alice")
	require.Len(t, inbox, 1)
	assert.Equal(t, notification.EventCancelled, inbox[0].EventType)
}

func TestSideEffectFailuresDoNotFailTransitions(t *testing.T) {
	store := newFakeStore()
	store.addUser("acme", user.RoleCompany)
	store.addUser("alice", user.RoleStudent)
	off := store.addOffer("acme", offer.KindSingleHire, offer.StatusPublished, nullDec(t, "400"))
	app := store.addApplication(off.Id, "alice", application.StatusSent, decimal.NullDecimal{}, decimal.NullDecimal{}, decimal.NullDecimal{})
	store.failNotifications = true
	store.failConversations = true
	svc, _ := newServices(store)
	ctx := context.Background()

	got, err := svc.AcceptProposal(ctx, "acme", app.Id)
	require.NoError(t, err)
	assert.Equal(t, application.StatusAccepted, got.Status)

	// The authoritative write and the contract bootstrap still happened.
	con, err := store.GetContractByApplication(ctx, app.Id)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusAwaitingFunding, con.Status)
}

func mustGetApp(t *testing.T, store *fakeStore, id string) application.Application {
	t.Helper()
	app, err := store.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app
}
