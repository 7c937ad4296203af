package events

import (
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventSLAWarning            EventType = "sla_warning"
	EventSLABreached           EventType = "sla_breached"
)

// Actor identifies who caused an event. EmployeeID is nil for the sweep.
type Actor struct {
	EmployeeID *string `json:"employee_id,omitempty"`
	System     bool    `json:"system,omitempty"`
}

// SystemActor is the actor of sweep-driven events.
var SystemActor = Actor{System: true}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OrganisationID string `json:"organisation_id"`
	PriorityID     *int64 `json:"priority_id,omitempty"`
	Summary        string `json:"summary"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus   domain.TicketStatus `json:"old_status"`
	NewStatus   domain.TicketStatus `json:"new_status"`
	Comment     string              `json:"comment,omitempty"`
	CreatedByID *string             `json:"created_by_id,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriorityID *int64     `json:"old_priority_id,omitempty"`
	NewPriorityID *int64     `json:"new_priority_id,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID *string `json:"new_assignee_id,omitempty"`
}

// SLAPayload accompanies sla_warning and sla_breached.
type SLAPayload struct {
	TimerID int64     `json:"timer_id"`
	DueDate time.Time `json:"due_date"`
}
