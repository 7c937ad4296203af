package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/notify"
)

func newAssignmentService(h *harness) *AssignmentService {
	return NewAssignmentService(AssignmentDependencies{
		Store:      h.store,
		Dispatcher: h.dispatcher,
		Clock:      h.clock,
	})
}

func TestAssignTicketRecordsHistory(t *testing.T) {
	h := newHarness(t)
	h.employee("emp-2", "second@example.com")
	svc := newAssignmentService(h)
	ticket := h.ticket(nil)
	assignee := "emp-2"

	got, err := svc.AssignTicket(context.Background(), h.actor, ticket.ID, &assignee)
	require.NoError(t, err)
	assert.Equal(t, "emp-2", *got.AssigneeID)

	history, err := h.tickets.ListHistory(context.Background(), h.actor, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeAssignee, history[0].ChangeType)

	got, err = svc.AssignTicket(context.Background(), h.actor, ticket.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got.AssigneeID)
}

func TestAssignTicketRequiresManager(t *testing.T) {
	h := newHarness(t)
	svc := newAssignmentService(h)
	ticket := h.ticket(nil)
	agent := &domain.Principal{EmployeeID: "emp-1", OrganisationID: "org-1", Roles: []domain.Role{domain.RoleAgent}}
	other := "emp-1"

	_, err := svc.AssignTicket(context.Background(), agent, ticket.ID, &other)
	assertDomainCode(t, err, "FORBIDDEN")

	got, err := svc.SelfAssignTicket(context.Background(), agent, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", *got.AssigneeID)
}

func TestAssignTicketRejectsInactiveEmployee(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Employees().Upsert(context.Background(), &domain.Employee{
		ID: "emp-3", OrganisationID: "org-1", Name: "gone", IsActive: false,
	}))
	svc := newAssignmentService(h)
	ticket := h.ticket(nil)
	assignee := "emp-3"

	_, err := svc.AssignTicket(context.Background(), h.actor, ticket.ID, &assignee)
	assertDomainCode(t, err, "CONFLICT")
}

func TestAssigneeReceivesSweepWarning(t *testing.T) {
	notifier := &mockNotifier{}
	h := newHarness(t, withNotifier(notifier))
	h.employee("emp-2", "second@example.com")
	ticket := h.ticket(h.priority(4 * time.Hour))
	assignee := "emp-2"
	_, err := newAssignmentService(h).AssignTicket(context.Background(), h.actor, ticket.ID, &assignee)
	require.NoError(t, err)

	notifier.On("SendWarning", mock.Anything, mock.Anything,
		notify.Recipient{Name: "emp-2", Email: "second@example.com"}, t0.Add(4*time.Hour)).Return(nil).Once()

	h.clock.Advance(3*time.Hour + time.Minute)
	result := h.sweep()
	assert.Equal(t, 1, result.Warnings)
	notifier.AssertExpectations(t)
}
