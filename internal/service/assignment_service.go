package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	apperrors "github.com/spec-kit/servicedesk-sla/pkg/util/errorutil"
)

// AssignmentService sets who works a ticket. The assignee is the first
// recipient of SLA warnings and breaches.
type AssignmentService struct {
	store      repository.TxManager
	dispatcher events.Dispatcher
	clock      clock.Clock
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store      repository.TxManager
	Dispatcher events.Dispatcher
	Clock      clock.Clock
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &AssignmentService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
	}
}

// SelfAssignTicket assigns the ticket to the caller.
func (s *AssignmentService) SelfAssignTicket(ctx context.Context, actor *domain.Principal, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("employee required")
	}
	if !actor.HasRole(domain.RoleAgent, domain.RoleManager, domain.RoleAdmin) {
		return nil, apperrors.NewForbidden("insufficient role for self assign")
	}
	assignee := actor.EmployeeID
	return s.assign(ctx, actor, ticketID, &assignee)
}

// AssignTicket assigns the ticket to another employee, or unassigns it
// when employeeID is nil. Managers and admins only.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor *domain.Principal, ticketID string, employeeID *string) (*domain.Ticket, error) {
	if err := requireAssignPriv(actor); err != nil {
		return nil, err
	}
	return s.assign(ctx, actor, ticketID, employeeID)
}

func (s *AssignmentService) assign(ctx context.Context, actor *domain.Principal, ticketID string, employeeID *string) (*domain.Ticket, error) {
	var (
		ticket      *domain.Ticket
		oldAssignee *string
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		ticket, err = store.Tickets().GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !canAccess(actor, ticket) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		if err := checkAssignee(ctx, store, actor.OrganisationID, employeeID); err != nil {
			return err
		}
		oldAssignee = ticket.AssigneeID
		ticket.AssigneeID = employeeID
		if err := store.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return recordAssigneeChange(ctx, store, actor.EmployeeID, ticket.ID, oldAssignee, employeeID)
	})
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketAssigned,
			TicketID:  ticket.ID,
			Actor:     employeeActor(actor.EmployeeID),
			Timestamp: s.clock.Now(),
			Payload: events.TicketAssignedPayload{
				OldAssigneeID: oldAssignee,
				NewAssigneeID: employeeID,
			},
		})
	}
	return ticket, nil
}

func requireAssignPriv(actor *domain.Principal) error {
	if actor == nil {
		return apperrors.NewUnauthorized("employee required")
	}
	if !actor.HasRole(domain.RoleManager, domain.RoleAdmin) {
		return apperrors.NewForbidden("insufficient role for assignment")
	}
	return nil
}

func recordAssigneeChange(ctx context.Context, store repository.Store, actorID string, ticketID string, oldAssignee, newAssignee *string) error {
	return store.History().Create(ctx, &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: &actorID,
		ChangeType:  domain.ChangeTypeAssignee,
		OldValue: map[string]any{
			"assignee_id": oldAssignee,
		},
		NewValue: map[string]any{
			"assignee_id": newAssignee,
		},
	})
}
