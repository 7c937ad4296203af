package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	apperrors "github.com/spec-kit/servicedesk-sla/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows. Every ticket write and its
// SLA side effect commit together.
type TicketService struct {
	store      repository.TxManager
	sla        *SLAService
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.TxManager
	SLA        *SLAService
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Summary     string
	Description string
	PriorityID  *int64
	AssigneeID  *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{
		store:      deps.Store,
		sla:        deps.SLA,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// CreateTicket opens a ticket and starts its SLA timer.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.Principal, input TicketCreateInput) (*domain.Ticket, *domain.SLATimer, error) {
	if actor == nil {
		return nil, nil, apperrors.NewUnauthorized("employee required")
	}
	summary := strings.TrimSpace(input.Summary)
	if summary == "" {
		return nil, nil, apperrors.NewValidationError("summary is required", map[string]any{"field": "summary"})
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		OrganisationID: actor.OrganisationID,
		ExternalKey:    newTicketKey(),
		Summary:        summary,
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TicketStatusOpen,
		PriorityID:     input.PriorityID,
		AssigneeID:     input.AssigneeID,
		CreatedByID:    &actor.EmployeeID,
	}

	var timer *domain.SLATimer
	err := s.store.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		if err := checkPriority(ctx, store, actor.OrganisationID, ticket.PriorityID); err != nil {
			return err
		}
		if err := checkAssignee(ctx, store, actor.OrganisationID, ticket.AssigneeID); err != nil {
			return err
		}
		if err := store.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
		var err error
		timer, err = s.sla.startTimer(ctx, store, ticket, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    employeeActor(actor.EmployeeID),
		Payload: events.TicketCreatedPayload{
			OrganisationID: ticket.OrganisationID,
			PriorityID:     ticket.PriorityID,
			Summary:        ticket.Summary,
		},
	})
	return ticket, timer, nil
}

// newTicketKey returns a human readable key such as TCK-3F9A1C04B2D7. The
// twelve hex digits come from the random part of a v4 UUID.
func newTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// GetTicket returns a ticket of the caller's organisation.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// ListTickets returns the tickets of the caller's organisation.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.Principal) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("employee required")
	}
	return s.store.Tickets().ListByOrganisation(ctx, actor.OrganisationID)
}

// ListHistory returns the audit trail of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.Principal, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.store.History().ListByTicket(ctx, ticketID)
}

// UpdateStatus moves a ticket along the lifecycle and applies the matching
// SLA timer command in the same transaction. A conflicting timer writer
// fails the whole change with ErrConcurrentUpdate.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.Principal, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("employee required")
	}
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}

	now := s.clock.Now()
	var (
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
		eff       *effects
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
		oldStatus = ticket.Status
		if oldStatus == newStatus {
			return nil
		}
		if !isValidTransition(oldStatus, newStatus) {
			return apperrors.NewInvalidTransition(oldStatus, newStatus)
		}

		ticket.Status = newStatus
		if err := store.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		if err := recordStatusChange(ctx, store, &actor.EmployeeID, ticket.ID, oldStatus, newStatus, comment); err != nil {
			return err
		}
		eff, err = s.sla.applyStatus(ctx, store, ticket, oldStatus, newStatus, now, employeeActor(actor.EmployeeID))
		return err
	})
	if err != nil {
		return nil, err
	}
	if oldStatus == newStatus {
		return ticket, nil
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticket.ID,
		Actor:     employeeActor(actor.EmployeeID),
		Timestamp: now,
		Payload: events.TicketStatusChangedPayload{
			OldStatus:   oldStatus,
			NewStatus:   newStatus,
			Comment:     comment,
			CreatedByID: ticket.CreatedByID,
		},
	})
	s.sla.flush(ctx, eff)
	return ticket, nil
}

// UpdatePriority changes the ticket priority and recomputes the cached due
// date. A nil priority leaves the due date undetermined.
func (s *TicketService) UpdatePriority(ctx context.Context, actor *domain.Principal, ticketID string, priorityID *int64) (*domain.Ticket, *domain.SLATimer, error) {
	if actor == nil {
		return nil, nil, apperrors.NewUnauthorized("employee required")
	}

	now := s.clock.Now()
	var (
		ticket      *domain.Ticket
		timer       *domain.SLATimer
		oldPriority *int64
		eff         *effects
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
		if err := checkPriority(ctx, store, actor.OrganisationID, priorityID); err != nil {
			return err
		}
		oldPriority = ticket.PriorityID
		ticket.PriorityID = priorityID
		if err := store.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		if err := recordPriorityChange(ctx, store, &actor.EmployeeID, ticket.ID, oldPriority, priorityID); err != nil {
			return err
		}
		eff, timer, err = s.sla.applyPriority(ctx, store, ticket, now, employeeActor(actor.EmployeeID))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketPriorityChanged,
		TicketID:  ticket.ID,
		Actor:     employeeActor(actor.EmployeeID),
		Timestamp: now,
		Payload: events.TicketPriorityChangedPayload{
			OldPriorityID: oldPriority,
			NewPriorityID: priorityID,
			DueDate:       timer.SLADueDate,
		},
	})
	s.sla.flush(ctx, eff)
	return ticket, timer, nil
}

func checkPriority(ctx context.Context, store repository.Store, organisationID string, priorityID *int64) error {
	if priorityID == nil {
		return nil
	}
	priority, err := store.Priorities().GetByID(ctx, *priorityID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && priority.OrganisationID != organisationID) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority_id": *priorityID})
	}
	return err
}

func checkAssignee(ctx context.Context, store repository.Store, organisationID string, employeeID *string) error {
	if employeeID == nil {
		return nil
	}
	employee, err := store.Employees().GetByID(ctx, *employeeID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && employee.OrganisationID != organisationID) {
		return apperrors.NewValidationError("unknown assignee", map[string]any{"assignee_id": *employeeID})
	}
	if err != nil {
		return err
	}
	if !employee.IsActive {
		return apperrors.NewConflict("assignee inactive", map[string]any{"assignee_id": *employeeID})
	}
	return nil
}

func canAccess(actor *domain.Principal, ticket *domain.Ticket) bool {
	return actor != nil && ticket.OrganisationID == actor.OrganisationID
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func employeeActor(employeeID string) events.Actor {
	return events.Actor{EmployeeID: &employeeID}
}

// allowedTransitions is the ticket lifecycle. Breached is also entered by
// the SLA engine itself when a timer breaches, bypassing this table.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:              {domain.TicketStatusWorkingInProgress, domain.TicketStatusWaitingForUser, domain.TicketStatusCanceled, domain.TicketStatusDelegated},
	domain.TicketStatusWorkingInProgress: {domain.TicketStatusWaitingForUser, domain.TicketStatusResolved, domain.TicketStatusBreached, domain.TicketStatusDelegated},
	domain.TicketStatusWaitingForUser:    {domain.TicketStatusWorkingInProgress, domain.TicketStatusCanceled},
	domain.TicketStatusResolved:          {domain.TicketStatusClosed},
	domain.TicketStatusBreached:          {domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusDelegated:         {domain.TicketStatusOpen, domain.TicketStatusWorkingInProgress},
	domain.TicketStatusCanceled:          {},
	domain.TicketStatusClosed:            {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func recordStatusChange(ctx context.Context, store repository.Store, actorID *string, ticketID string, oldStatus, newStatus domain.TicketStatus, comment string) error {
	entry := &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: actorID,
		ChangeType:  domain.ChangeTypeStatus,
		OldValue: map[string]any{
			"status": oldStatus,
		},
		NewValue: map[string]any{
			"status":  newStatus,
			"comment": comment,
		},
	}
	return store.History().Create(ctx, entry)
}

func recordPriorityChange(ctx context.Context, store repository.Store, actorID *string, ticketID string, oldPriority, newPriority *int64) error {
	entry := &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: actorID,
		ChangeType:  domain.ChangeTypePriority,
		OldValue: map[string]any{
			"priority_id": oldPriority,
		},
		NewValue: map[string]any{
			"priority_id": newPriority,
		},
	}
	return store.History().Create(ctx, entry)
}
