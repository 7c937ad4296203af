package dto

import (
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	PriorityID  *int64  `json:"priority_id"`
	AssigneeID  *string `json:"assignee_id"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// UpdatePriorityRequest payload. A null priority_id clears the priority.
type UpdatePriorityRequest struct {
	PriorityID *int64 `json:"priority_id"`
}

// AssignTicketRequest payload. A null employee_id unassigns the ticket.
type AssignTicketRequest struct {
	EmployeeID *string `json:"employee_id"`
}

// TicketResponse represents a ticket.
type TicketResponse struct {
	ID          string              `json:"id"`
	ExternalKey string              `json:"external_key"`
	Summary     string              `json:"summary"`
	Description string              `json:"description,omitempty"`
	Status      domain.TicketStatus `json:"status"`
	PriorityID  *int64              `json:"priority_id"`
	AssigneeID  *string             `json:"assignee_id"`
	CreatedByID *string             `json:"created_by_id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	SLA         *TimerResponse      `json:"sla,omitempty"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketResponse maps a ticket and, when given, its timer.
func NewTicketResponse(ticket *domain.Ticket, timer *domain.SLATimer) TicketResponse {
	resp := TicketResponse{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Summary:     ticket.Summary,
		Description: ticket.Description,
		Status:      ticket.Status,
		PriorityID:  ticket.PriorityID,
		AssigneeID:  ticket.AssigneeID,
		CreatedByID: ticket.CreatedByID,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
	if timer != nil {
		view := NewTimerResponse(*timer, timer.TotalPausedTime)
		resp.SLA = &view
	}
	return resp
}

// NewHistoryResponses maps audit entries.
func NewHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	resp := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}
