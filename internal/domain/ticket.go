package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen              TicketStatus = "Open"
	TicketStatusWorkingInProgress TicketStatus = "Working in Progress"
	TicketStatusWaitingForUser    TicketStatus = "Waiting for User Response"
	TicketStatusResolved          TicketStatus = "Resolved"
	TicketStatusBreached          TicketStatus = "Breached"
	TicketStatusClosed            TicketStatus = "Closed"
	TicketStatusCanceled          TicketStatus = "Canceled"
	TicketStatusDelegated         TicketStatus = "Delegated"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusWorkingInProgress, TicketStatusWaitingForUser,
		TicketStatusResolved, TicketStatusBreached, TicketStatusClosed,
		TicketStatusCanceled, TicketStatusDelegated:
		return true
	}
	return false
}

// Ticket is the subject under SLA.
type Ticket struct {
	ID             string
	OrganisationID string
	ExternalKey    string
	Summary        string
	Description    string
	Status         TicketStatus
	PriorityID     *int64
	AssigneeID     *string
	CreatedByID    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
