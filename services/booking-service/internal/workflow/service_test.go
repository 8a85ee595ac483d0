package workflow_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/vetcall/libs/apperr"
	"github.com/md-rashed-zaman/vetcall/libs/auth"
	"github.com/md-rashed-zaman/vetcall/libs/events"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow/workflowtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner      = auth.Principal{UserID: "owner-1", Role: auth.RolePetOwner}
	otherOwner = auth.Principal{UserID: "owner-2", Role: auth.RolePetOwner}
	vet        = auth.Principal{UserID: "vet-1", Role: auth.RoleVet}
	vet2       = auth.Principal{UserID: "vet-2", Role: auth.RoleVet}
	namedVet   = auth.Principal{UserID: "00000000-0000-4000-8000-0000000000aa", Role: auth.RoleVet}
	admin      = auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}
)

var fixedNow = time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*workflow.Service, *workflowtest.Store) {
	t.Helper()
	store := workflowtest.New()
	svc := workflow.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), workflow.Options{
		Now: func() time.Time { return fixedNow },
	})
	return svc, store
}

func strp(s string) *string { return &s }

// bookedAppointment walks a draft for Buddy through checkout into waiting_for_vet.
func bookedAppointment(t *testing.T, svc *workflow.Service) model.Appointment {
	t.Helper()
	ctx := context.Background()
	pet, err := svc.CreatePet(ctx, owner, model.Pet{Name: "Buddy", Species: "dog", Breed: "Beagle"})
	require.NoError(t, err)

	draft, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	draft, err = svc.UpdateDraft(ctx, owner, draft.ID, workflow.DraftPatch{
		PetID:        strp(pet.ID),
		Date:         strp("2025-05-31"),
		TimeSlot:     strp("08:00 - 10:00 AM"),
		Address:      strp("12 Elm St"),
		ServiceCodes: []string{"house_call", "vaccination"},
	}, 0)
	require.NoError(t, err)

	a, err := svc.MarkPaymentAuthorized(ctx, draft.ID, "pi_123", "cs_123")
	require.NoError(t, err)
	require.Equal(t, model.StatusWaitingForVet, a.Status)
	return a
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func TestGetOrCreateDraftIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	second, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.StatusPending, second.Status)

	other, err := svc.GetOrCreateDraft(ctx, otherOwner)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreateDraftRequiresOwner(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetOrCreateDraft(context.Background(), vet)
	requireKind(t, err, apperr.KindForbidden)

	_, err = svc.GetOrCreateDraft(context.Background(), auth.Principal{})
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestUpdateDraftValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	draft, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(ctx, owner, draft.ID, workflow.DraftPatch{TimeSlot: strp("morning")}, 0)
	requireKind(t, err, apperr.KindValidation)

	_, err = svc.UpdateDraft(ctx, owner, draft.ID, workflow.DraftPatch{ServiceCodes: []string{"teeth_whitening"}}, 0)
	requireKind(t, err, apperr.KindValidation)

	foreignPet, err := svc.CreatePet(ctx, otherOwner, model.Pet{Name: "Rex", Species: "dog"})
	require.NoError(t, err)
	_, err = svc.UpdateDraft(ctx, owner, draft.ID, workflow.DraftPatch{PetID: strp(foreignPet.ID)}, 0)
	requireKind(t, err, apperr.KindValidation)

	_, err = svc.UpdateDraft(ctx, otherOwner, draft.ID, workflow.DraftPatch{Notes: strp("mine now")}, 0)
	requireKind(t, err, apperr.KindNotFound)
}

func TestUpdateDraftRejectedAfterPayment(t *testing.T) {
	svc, _ := newTestService(t)
	a := bookedAppointment(t, svc)

	_, err := svc.UpdateDraft(context.Background(), owner, a.ID, workflow.DraftPatch{PetID: strp("pet-99")}, 0)
	requireKind(t, err, apperr.KindConflict)
}

func TestVetOperationsForbiddenForOtherRoles(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)
	eventsBefore := len(store.EventTypes())

	for _, p := range []auth.Principal{owner, admin} {
		_, err := svc.Accept(ctx, p, a.ID, false, 0)
		requireKind(t, err, apperr.KindForbidden)
		_, err = svc.Decline(ctx, p, a.ID, "busy", 0)
		requireKind(t, err, apperr.KindForbidden)
		_, err = svc.Propose(ctx, p, a.ID, "2025-06-01", "10:00 - 12:00 PM", "", 0)
		requireKind(t, err, apperr.KindForbidden)
	}

	got, err := svc.Get(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingForVet, got.Status)
	assert.Equal(t, a.Version, got.Version)
	assert.Len(t, store.EventTypes(), eventsBefore)
}

func TestAcceptMissingAppointment(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Accept(context.Background(), vet, "appt-404", false, 0)
	requireKind(t, err, apperr.KindNotFound)
}

func TestAcceptConfirmsAndNotifiesOwner(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	got, err := svc.Accept(ctx, vet, a.ID, false, a.Version)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, vet.UserID, got.VetID)
	require.NotNil(t, got.ConfirmedAt)

	notes, err := svc.Notifications(ctx, owner, true, 0)
	require.NoError(t, err)
	var kinds []string
	for _, n := range notes {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, workflow.KindAccepted)
	assert.Equal(t, events.AppointmentAccepted, store.EventTypes()[len(store.EventTypes())-1])

	// A second vet no longer sees the assigned appointment.
	_, err = svc.Accept(ctx, vet2, a.ID, false, 0)
	requireKind(t, err, apperr.KindNotFound)
}

func TestAcceptWithStartGoesInProgress(t *testing.T) {
	svc, _ := newTestService(t)
	a := bookedAppointment(t, svc)

	got, err := svc.Accept(context.Background(), vet, a.ID, true, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestStaleVersionIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	_, err := svc.Accept(ctx, vet, a.ID, false, a.Version)
	require.NoError(t, err)

	// The owner still holds the version from before the accept.
	err = svc.Cancel(ctx, owner, a.ID, a.Version)
	requireKind(t, err, apperr.KindConflict)

	got, err := svc.Get(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestIllegalTransitionIsConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)
	_, err := svc.Accept(ctx, vet, a.ID, false, 0)
	require.NoError(t, err)

	_, err = svc.Propose(ctx, vet, a.ID, "2025-06-01", "10:00 - 12:00 PM", "", 0)
	requireKind(t, err, apperr.KindConflict)
	_, err = svc.Accept(ctx, vet, a.ID, false, 0)
	requireKind(t, err, apperr.KindConflict)
}

func TestDeclineRecordsReasonAndDeclinesProposals(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	_, err := svc.Propose(ctx, vet, a.ID, "2025-06-01", "10:00 - 12:00 PM", "", 0)
	require.NoError(t, err)

	got, err := svc.Decline(ctx, vet2, a.ID, "out of area", 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeclined, got.Status)
	assert.Equal(t, "out of area", got.DeclineReason)
	assert.Empty(t, got.ProposedDate)

	props, err := svc.Proposals(ctx, owner, a.ID)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, model.ProposalDeclined, props[0].Status)

	_, err = svc.Accept(ctx, vet2, a.ID, false, 0)
	requireKind(t, err, apperr.KindConflict)
	assert.Contains(t, store.EventTypes(), events.AppointmentDeclined)
}

func TestDeclineOfNamedVetRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	pet, err := svc.CreatePet(ctx, owner, model.Pet{Name: "Milo", Species: "cat"})
	require.NoError(t, err)
	draft, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	_, err = svc.UpdateDraft(ctx, owner, draft.ID, workflow.DraftPatch{
		PetID:        strp(pet.ID),
		VetID:        strp(namedVet.UserID),
		Date:         strp("2025-05-31"),
		TimeSlot:     strp("10:00 - 12:00 PM"),
		Address:      strp("3 Oak Ave"),
		ServiceCodes: []string{"house_call"},
	}, 0)
	require.NoError(t, err)
	a, err := svc.MarkPaymentAuthorized(ctx, draft.ID, "pi_9", "cs_9")
	require.NoError(t, err)
	require.Equal(t, model.StatusWaitingForVet, a.Status)

	_, err = svc.Decline(ctx, vet2, a.ID, "busy", 0)
	requireKind(t, err, apperr.KindNotFound)

	got, err := svc.Decline(ctx, namedVet, a.ID, "busy", 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDeclined, got.Status)
}

func TestUpdateDraftRejectsMalformedVetID(t *testing.T) {
	svc, _ := newTestService(t)
	draft, err := svc.GetOrCreateDraft(context.Background(), owner)
	require.NoError(t, err)
	_, err = svc.UpdateDraft(context.Background(), owner, draft.ID, workflow.DraftPatch{VetID: strp("dr-who")}, 0)
	requireKind(t, err, apperr.KindValidation)
}

func TestProposeRequiresDateAndTime(t *testing.T) {
	svc, _ := newTestService(t)
	a := bookedAppointment(t, svc)

	_, err := svc.Propose(context.Background(), vet, a.ID, "2025-06-01", "", "", 0)
	requireKind(t, err, apperr.KindValidation)
	_, err = svc.Propose(context.Background(), vet, a.ID, "", "10:00 - 12:00 PM", "", 0)
	requireKind(t, err, apperr.KindValidation)
}

func TestProposeTwiceUpdatesSameProposal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	_, err := svc.Propose(ctx, vet, a.ID, "2025-06-01", "10:00 - 12:00 PM", "", 0)
	require.NoError(t, err)
	got, err := svc.Propose(ctx, vet, a.ID, "2025-06-02", "02:00 - 04:00 PM", "later works better", 0)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", got.ProposedDate)

	props, err := svc.Proposals(ctx, owner, a.ID)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "2025-06-02", props[0].Date)
	assert.Equal(t, "02:00 - 04:00 PM", props[0].TimeSlot)
}

func TestAcceptingProposalDeclinesSiblings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	_, err := svc.Propose(ctx, vet, a.ID, "2025-06-01", "10:00 - 12:00 PM", "", 0)
	require.NoError(t, err)
	_, err = svc.Propose(ctx, vet2, a.ID, "2025-06-03", "04:00 - 06:00 PM", "", 0)
	require.NoError(t, err)

	props, err := svc.Proposals(ctx, owner, a.ID)
	require.NoError(t, err)
	require.Len(t, props, 2)
	var chosen model.TimeProposal
	for _, p := range props {
		if p.VetID == vet.UserID {
			chosen = p
		}
	}

	got, err := svc.OwnerRespond(ctx, owner, a.ID, workflow.AcceptProposal, chosen.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, chosen.Date, got.Date)
	assert.Equal(t, chosen.TimeSlot, got.TimeSlot)
	assert.Equal(t, chosen.VetID, got.VetID)
	assert.Empty(t, got.ProposedDate)
	assert.Empty(t, got.ProposedBy)

	props, err = svc.Proposals(ctx, owner, a.ID)
	require.NoError(t, err)
	for _, p := range props {
		if p.ID == chosen.ID {
			assert.Equal(t, model.ProposalAccepted, p.Status)
		} else {
			assert.Equal(t, model.ProposalDeclined, p.Status)
		}
	}
}

func TestDeclineProposalCancels(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)
	_, err := svc.Propose(ctx, vet, a.ID, "2025-06-01", "10:00 - 12:00 PM", "", 0)
	require.NoError(t, err)

	got, err := svc.OwnerRespond(ctx, owner, a.ID, workflow.DeclineProposal, "", 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Empty(t, got.ProposedTimeSlot)
	assert.Equal(t, events.AppointmentProposalDeclined, store.EventTypes()[len(store.EventTypes())-1])

	_, err = svc.OwnerRespond(ctx, owner, a.ID, workflow.AcceptProposal, "", 0)
	requireKind(t, err, apperr.KindConflict)
}

func TestOwnerRespondRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	_, err := svc.OwnerRespond(ctx, owner, a.ID, "maybe", "", 0)
	requireKind(t, err, apperr.KindValidation)
	_, err = svc.OwnerRespond(ctx, vet, a.ID, workflow.AcceptProposal, "", 0)
	requireKind(t, err, apperr.KindForbidden)
	_, err = svc.OwnerRespond(ctx, otherOwner, a.ID, workflow.AcceptProposal, "", 0)
	requireKind(t, err, apperr.KindNotFound)
	_, err = svc.OwnerRespond(ctx, owner, a.ID, workflow.AcceptProposal, "", 0)
	requireKind(t, err, apperr.KindConflict)
}

func TestCompleteRequiresAssignedVetAndDiagnosis(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)
	_, err := svc.Accept(ctx, vet, a.ID, false, 0)
	require.NoError(t, err)

	_, _, err = svc.Complete(ctx, vet, a.ID, workflow.ReportInput{}, 0)
	requireKind(t, err, apperr.KindValidation)
	_, _, err = svc.Complete(ctx, vet2, a.ID, workflow.ReportInput{Diagnosis: "healthy"}, 0)
	requireKind(t, err, apperr.KindNotFound)

	got, report, err := svc.Complete(ctx, vet, a.ID, workflow.ReportInput{Diagnosis: "healthy", Treatment: "rabies booster"}, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "healthy", report.Diagnosis)

	stored, err := svc.ClinicalReport(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, stored.ID)

	var payload events.Appointment
	last := store.Events()[len(store.Events())-1]
	require.Equal(t, events.AppointmentCompleted, last.EventType)
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.Equal(t, "pi_123", payload.PaymentIntentID)
}

func TestCancelDeletesChildrenBeforeAppointment(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)
	_, err := svc.Propose(ctx, vet, a.ID, "2025-06-01", "10:00 - 12:00 PM", "", 0)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, owner, a.ID, 0))

	assert.Equal(t, []string{"notifications", "time_proposals", "clinical_reports", "appointments"}, store.Deletes())
	_, err = svc.Get(ctx, owner, a.ID)
	requireKind(t, err, apperr.KindNotFound)
	for _, n := range store.AllNotifications() {
		assert.NotEqual(t, a.ID, n.AppointmentID, "no notification may reference the deleted appointment")
	}
	props, err := store.ListProposals(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, props)

	vetNotes, err := svc.Notifications(ctx, vet, false, 0)
	require.NoError(t, err)
	require.Len(t, vetNotes, 1)
	assert.Equal(t, workflow.KindCancelled, vetNotes[0].Kind)
	assert.Empty(t, vetNotes[0].AppointmentID)
	assert.Equal(t, events.AppointmentCancelled, store.EventTypes()[len(store.EventTypes())-1])
}

func TestCancelRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	requireKind(t, svc.Cancel(ctx, vet, a.ID, 0), apperr.KindForbidden)
	requireKind(t, svc.Cancel(ctx, otherOwner, a.ID, 0), apperr.KindNotFound)

	_, err := svc.Accept(ctx, vet, a.ID, true, 0)
	require.NoError(t, err)
	requireKind(t, svc.Cancel(ctx, owner, a.ID, 0), apperr.KindConflict)
}

func TestCancelDraftEmitsCancelledWithoutNotices(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	draft, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	draft, err = svc.UpdateDraft(ctx, owner, draft.ID, workflow.DraftPatch{
		VetID:    strp(namedVet.UserID),
		Date:     strp("2025-05-31"),
		TimeSlot: strp("08:00 - 10:00 AM"),
	}, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, owner, draft.ID, 0))
	require.Equal(t, []string{events.AppointmentCancelled}, store.EventTypes())
	assert.Empty(t, store.AllNotifications())

	var payload events.Appointment
	require.NoError(t, json.Unmarshal(store.Events()[0].Payload, &payload))
	assert.Equal(t, draft.ID, payload.AppointmentID)
	assert.Equal(t, string(model.StatusCancelled), payload.Status)
	assert.Equal(t, string(model.StatusPending), payload.PreviousStatus)
	assert.Empty(t, payload.Notices)

	// Checkout finishing after the cancel finds nothing to book; billing
	// has already been told to release.
	_, err = svc.MarkPaymentAuthorized(ctx, draft.ID, "pi_1", "cs_1")
	requireKind(t, err, apperr.KindNotFound)

	fresh, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	assert.NotEqual(t, draft.ID, fresh.ID)
}

func TestFailedOutboxRollsBackTransition(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	store.FailEnqueue = true
	_, err := svc.Accept(ctx, vet, a.ID, false, 0)
	requireKind(t, err, apperr.KindUpstream)

	store.FailEnqueue = false
	got, err := svc.Get(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingForVet, got.Status)
	assert.Empty(t, got.VetID)
}

func TestPaymentEventsAreIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)
	count := len(store.EventTypes())

	again, err := svc.MarkPaymentAuthorized(ctx, a.ID, "pi_123", "cs_123")
	require.NoError(t, err)
	assert.Equal(t, a.Version, again.Version)
	assert.Len(t, store.EventTypes(), count)

	captured, err := svc.MarkPaymentCaptured(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCaptured, captured.PaymentStatus)

	released, err := svc.MarkPaymentReleased(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCaptured, released.PaymentStatus, "settled payments are never released")
}

func TestVetListingIncludesOpenRequests(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)

	list, err := svc.List(ctx, vet2, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	_, err = svc.Accept(ctx, vet, a.ID, false, 0)
	require.NoError(t, err)
	list, err = svc.List(ctx, vet2, "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(ctx, otherOwner, "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.List(ctx, admin, "bogus", 0)
	requireKind(t, err, apperr.KindValidation)
}

func TestNotificationsReadAndExpiry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	bookedAppointment(t, svc)

	notes, err := svc.Notifications(ctx, owner, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, workflow.KindWaitingForVet, notes[0].Kind)

	require.NoError(t, svc.MarkNotificationRead(ctx, owner, notes[0].ID))
	requireKind(t, svc.MarkNotificationRead(ctx, otherOwner, notes[0].ID), apperr.KindNotFound)

	unread, err := svc.Notifications(ctx, owner, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	store.PutNotification(model.Notification{ID: "note-old", UserID: owner.UserID, ExpiresAt: fixedNow.Add(-time.Hour)})
	all, err := svc.Notifications(ctx, owner, false, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	n, err := svc.MarkAllNotificationsRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the expired row was still unread")
}

func TestSlotsExcludeVetBookings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := bookedAppointment(t, svc)
	_, err := svc.Accept(ctx, vet, a.ID, false, 0)
	require.NoError(t, err)

	slots, err := svc.Slots(ctx, "2025-05-31", vet.UserID)
	require.NoError(t, err)
	for _, s := range slots {
		assert.NotEqual(t, "08:00 - 10:00 AM", s.Label)
	}
	all, err := svc.Slots(ctx, "2025-05-31", "")
	require.NoError(t, err)
	assert.Len(t, all, len(slots)+1)

	_, err = svc.Slots(ctx, "tomorrow", "")
	requireKind(t, err, apperr.KindValidation)
}

func TestBuddyScenario(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	pet, err := svc.CreatePet(ctx, owner, model.Pet{Name: "Buddy", Species: "dog"})
	require.NoError(t, err)
	draft, err := svc.GetOrCreateDraft(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, draft.Status)

	draft, err = svc.UpdateDraft(ctx, owner, draft.ID, workflow.DraftPatch{
		PetID:        strp(pet.ID),
		Date:         strp("2025-05-30"),
		TimeSlot:     strp("08:00 - 10:00 AM"),
		Address:      strp("1 Main St"),
		ServiceCodes: []string{"house_call", "wellness_exam"},
	}, draft.Version)
	require.NoError(t, err)
	assert.Empty(t, workflow.MissingForCheckout(draft))

	// checkout.session.completed reaches booking as billing.payment.authorized.
	paid, err := svc.MarkPaymentAuthorized(ctx, draft.ID, "pi_buddy", "cs_buddy")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentAuthorized, paid.PaymentStatus)
	assert.Equal(t, model.StatusWaitingForVet, paid.Status)

	proposed, err := svc.Propose(ctx, vet, paid.ID, "2025-06-01", "10:00 - 12:00 PM", "I can do Sunday morning", 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTimeProposed, proposed.Status)

	confirmed, err := svc.OwnerRespond(ctx, owner, paid.ID, workflow.AcceptProposal, "", proposed.Version)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "2025-06-01", confirmed.Date)
	assert.Equal(t, "10:00 - 12:00 PM", confirmed.TimeSlot)
	assert.Equal(t, vet.UserID, confirmed.VetID)

	completed, _, err := svc.Complete(ctx, vet, paid.ID, workflow.ReportInput{Diagnosis: "Healthy adult beagle"}, 0)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)

	// billing captures on booking.appointment.completed and reports back.
	captured, err := svc.MarkPaymentCaptured(ctx, paid.ID, "pi_buddy")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCaptured, captured.PaymentStatus)

	assert.Equal(t, []string{
		events.AppointmentWaitingForVet,
		events.AppointmentTimeProposed,
		events.AppointmentProposalAccepted,
		events.AppointmentCompleted,
	}, store.EventTypes())

	var payload events.Appointment
	require.NoError(t, json.Unmarshal(store.Events()[1].Payload, &payload))
	assert.Equal(t, "Buddy", payload.PetName)
	require.Len(t, payload.Notices, 1)
	assert.Equal(t, owner.UserID, payload.Notices[0].UserID)
	assert.Contains(t, payload.Notices[0].Body, "2025-06-01 10:00 - 12:00 PM")
}
