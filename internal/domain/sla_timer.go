package domain

import "time"

// SLAStatus is the state of an SLA timer.
type SLAStatus string

const (
	SLAStatusActive  SLAStatus = "Active"
	SLAStatusPaused  SLAStatus = "Paused"
	SLAStatusStopped SLAStatus = "Stopped"
)

// SLATimer tracks the SLA clock of exactly one ticket.
type SLATimer struct {
	ID              int64
	TicketID        string
	StartTime       *time.Time
	PausedTime      *time.Time
	ResumedTime     *time.Time
	EndTime         *time.Time
	TotalPausedTime time.Duration
	SLADueDate      *time.Time
	Breached        bool
	WarningSent     bool
	BreachNotified  bool
	Status          SLAStatus
	Version         int64
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// PauseInterval is one pause of a timer. ResumedAt is nil while the pause
// is still open.
type PauseInterval struct {
	ID        int64
	TimerID   int64
	PausedAt  *time.Time
	ResumedAt *time.Time
	Duration  time.Duration
}
