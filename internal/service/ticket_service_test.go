package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/notify"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	"github.com/spec-kit/servicedesk-sla/internal/repository/memstore"
	apperrors "github.com/spec-kit/servicedesk-sla/pkg/util/errorutil"
)

func TestCreateTicketStartsTimer(t *testing.T) {
	h := newHarness(t)
	ticket, timer, err := h.tickets.CreateTicket(context.Background(), h.actor, TicketCreateInput{
		Summary:    "  laptop will not boot ",
		PriorityID: h.priority(8 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "laptop will not boot", ticket.Summary)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "emp-1", *ticket.CreatedByID)
	assert.NotEmpty(t, ticket.ExternalKey)
	assert.Equal(t, domain.SLAStatusActive, timer.Status)
	assert.Equal(t, t0, *timer.StartTime)
	assert.Equal(t, t0.Add(8*time.Hour), *timer.SLADueDate)
}

func TestCreateTicketAssignsUniqueExternalKey(t *testing.T) {
	var keys []string
	h := newHarness(t, withTxManager(func(s *memstore.Store) repository.TxManager {
		return keyRecorder{Store: s, keys: &keys}
	}))

	first := h.ticket(nil)
	second := h.ticket(nil)

	require.Len(t, keys, 2)
	for _, key := range keys {
		assert.Regexp(t, `^TCK-[0-9A-F]{12}$`, key)
	}
	assert.NotEqual(t, keys[0], keys[1])
	assert.Equal(t, keys[0], first.ExternalKey)
	assert.Equal(t, keys[1], second.ExternalKey)
}

func TestCreateTicketValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.tickets.CreateTicket(ctx, h.actor, TicketCreateInput{Summary: "  "})
	assertDomainCode(t, err, "VALIDATION_FAILED")

	missing := int64(999)
	_, _, err = h.tickets.CreateTicket(ctx, h.actor, TicketCreateInput{Summary: "x", PriorityID: &missing})
	assertDomainCode(t, err, "VALIDATION_FAILED")

	stranger := "emp-404"
	_, _, err = h.tickets.CreateTicket(ctx, h.actor, TicketCreateInput{Summary: "x", AssigneeID: &stranger})
	assertDomainCode(t, err, "VALIDATION_FAILED")

	tickets, err := h.tickets.ListTickets(ctx, h.actor)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(h.priority(time.Hour))

	_, err := h.tickets.UpdateStatus(context.Background(), h.actor, ticket.ID, domain.TicketStatusResolved, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assertDomainCode(t, err, "INVALID_TRANSITION")

	_, err = h.tickets.UpdateStatus(context.Background(), h.actor, ticket.ID, "Sleeping", "")
	assertDomainCode(t, err, "VALIDATION_FAILED")

	assert.Equal(t, domain.SLAStatusActive, h.timer(ticket.ID).Status)
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(nil)
	before := h.timer(ticket.ID).Version

	got, err := h.tickets.UpdateStatus(context.Background(), h.actor, ticket.ID, domain.TicketStatusOpen, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, got.Status)
	assert.Equal(t, before, h.timer(ticket.ID).Version)
}

func TestResolveStopsTimer(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(h.priority(4 * time.Hour))
	h.move(ticket.ID, domain.TicketStatusWorkingInProgress)
	h.clock.Advance(time.Hour)
	h.move(ticket.ID, domain.TicketStatusWaitingForUser)
	h.clock.Advance(time.Hour)
	h.move(ticket.ID, domain.TicketStatusWorkingInProgress)
	h.clock.Advance(time.Hour)
	h.move(ticket.ID, domain.TicketStatusResolved)

	timer := h.timer(ticket.ID)
	assert.Equal(t, domain.SLAStatusStopped, timer.Status)
	assert.Equal(t, t0.Add(3*time.Hour), *timer.EndTime)
	assert.Equal(t, time.Hour, timer.TotalPausedTime)

	h.clock.Advance(time.Hour)
	h.move(ticket.ID, domain.TicketStatusClosed)
	closed := h.timer(ticket.ID)
	assert.Equal(t, t0.Add(3*time.Hour), *closed.EndTime)
	assert.False(t, closed.Breached)
}

func TestCancelWhilePausedClosesPause(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(h.priority(4 * time.Hour))
	h.move(ticket.ID, domain.TicketStatusWaitingForUser)
	h.clock.Advance(2 * time.Hour)
	h.move(ticket.ID, domain.TicketStatusCanceled)

	timer := h.timer(ticket.ID)
	assert.Equal(t, domain.SLAStatusStopped, timer.Status)
	assert.Equal(t, 2*time.Hour, timer.TotalPausedTime)

	pauses, err := h.store.Timers().ListPauses(context.Background(), timer.ID)
	require.NoError(t, err)
	require.Len(t, pauses, 1)
	require.NotNil(t, pauses[0].ResumedAt)
}

func TestCanceledTicketNeverBreaches(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(h.priority(4 * time.Hour))
	h.move(ticket.ID, domain.TicketStatusWorkingInProgress)
	h.clock.Advance(time.Hour)
	h.move(ticket.ID, domain.TicketStatusCanceled)

	h.clock.Advance(24 * time.Hour)
	result := h.sweep()
	assert.Zero(t, result.Breaches)
	assert.Zero(t, result.Warnings)

	timer := h.timer(ticket.ID)
	assert.Equal(t, domain.SLAStatusStopped, timer.Status)
	assert.Equal(t, t0.Add(time.Hour), *timer.EndTime)
	assert.False(t, timer.Breached)
	h.notifier.AssertNumberOfCalls(t, "SendWarning", 0)
	h.notifier.AssertNumberOfCalls(t, "SendBreach", 0)
}

func TestExplicitBreachedStopsTimerWithoutNotice(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(h.priority(4 * time.Hour))
	h.move(ticket.ID, domain.TicketStatusWorkingInProgress)
	h.move(ticket.ID, domain.TicketStatusBreached)

	timer := h.timer(ticket.ID)
	assert.True(t, timer.Breached)
	assert.Equal(t, domain.SLAStatusStopped, timer.Status)
	h.notifier.AssertNotCalled(t, "SendBreach", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	h.move(ticket.ID, domain.TicketStatusClosed)
}

func TestDelegatedLeavesTimerAlone(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(h.priority(4 * time.Hour))
	h.move(ticket.ID, domain.TicketStatusWorkingInProgress)
	before := h.timer(ticket.ID)

	h.clock.Advance(time.Minute)
	h.move(ticket.ID, domain.TicketStatusDelegated)

	after := h.timer(ticket.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, *before.SLADueDate, *after.SLADueDate)
}

func TestUpdatePriorityRecomputesDueDate(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(h.priority(72 * time.Hour))
	h.move(ticket.ID, domain.TicketStatusWaitingForUser)
	h.clock.Advance(2 * time.Hour)

	_, timer, err := h.tickets.UpdatePriority(context.Background(), h.actor, ticket.ID, h.priority(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(24*time.Hour), *timer.SLADueDate)

	_, timer, err = h.tickets.UpdatePriority(context.Background(), h.actor, ticket.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, timer.SLADueDate)

	history, err := h.tickets.ListHistory(context.Background(), h.actor, ticket.ID)
	require.NoError(t, err)
	var priorityChanges int
	for _, entry := range history {
		if entry.ChangeType == domain.ChangeTypePriority {
			priorityChanges++
		}
	}
	assert.Equal(t, 2, priorityChanges)
}

func TestTicketsAreScopedToOrganisation(t *testing.T) {
	h := newHarness(t)
	ticket := h.ticket(nil)
	outsider := &domain.Principal{EmployeeID: "emp-9", OrganisationID: "org-2", Roles: []domain.Role{domain.RoleAdmin}}

	_, err := h.tickets.GetTicket(context.Background(), outsider, ticket.ID)
	assertDomainCode(t, err, "NOT_FOUND")

	_, err = h.tickets.UpdateStatus(context.Background(), outsider, ticket.ID, domain.TicketStatusWorkingInProgress, "")
	assertDomainCode(t, err, "NOT_FOUND")
}

func TestUpdateStatusConflictRollsBackTicket(t *testing.T) {
	control := &flaky{}
	h := newHarness(t, withFlaky(control))
	ticket := h.ticket(h.priority(time.Hour))

	control.failures.Store(1)
	_, err := h.tickets.UpdateStatus(context.Background(), h.actor, ticket.ID, domain.TicketStatusWorkingInProgress, "")
	require.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	stored, err := h.store.Tickets().GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)

	history, err := h.store.History().ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStatusChangePublishesEventAndEmailsCreator(t *testing.T) {
	h := newHarness(t)
	sender := &mockNotifier{}
	sender.On("SendStatusChanged", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	NewNotificationService(h.dispatcher, h.store, sender, nil).RegisterHandlers()

	var published []events.Event
	h.dispatcher.Subscribe(events.EventTicketStatusChanged, func(_ context.Context, ev events.Event) error {
		published = append(published, ev)
		return nil
	})

	ticket := h.ticket(nil)
	h.move(ticket.ID, domain.TicketStatusWorkingInProgress)

	require.Len(t, published, 1)
	payload := published[0].Payload.(events.TicketStatusChangedPayload)
	assert.Equal(t, domain.TicketStatusOpen, payload.OldStatus)
	assert.Equal(t, domain.TicketStatusWorkingInProgress, payload.NewStatus)

	sender.AssertNumberOfCalls(t, "SendStatusChanged", 1)
	call := sender.Calls[0]
	assert.Equal(t, "agent@example.com", call.Arguments.Get(2).(notify.Recipient).Email)
	data := call.Arguments.Get(3).(map[string]string)
	assert.Equal(t, string(domain.TicketStatusWorkingInProgress), data[notify.DataNewStatus])
	assert.Equal(t, "Unassigned", data[notify.DataAssignee])
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.ToDomainError(err).Code)
}
