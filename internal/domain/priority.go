package domain

import "time"

// Priority is organisation-owned reference data that sets the SLA budget.
type Priority struct {
	ID             int64
	OrganisationID string
	UrgencyName    string
	Description    string
	ResponseTarget time.Duration
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
