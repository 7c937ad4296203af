package sla

import (
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// DefaultWarningRatio is the elapsed share of the SLA budget after which a
// warning goes out.
const DefaultWarningRatio = 0.75

// ComputeDueDate returns start + target + paused. The second result is
// false when either the start time or the target is unknown, in which case
// the timer cannot breach.
func ComputeDueDate(start *time.Time, target *time.Duration, paused time.Duration) (time.Time, bool) {
	if start == nil || target == nil {
		return time.Time{}, false
	}
	return start.UTC().Add(*target).Add(paused), true
}

// Change lists the ledger rows a command touched, for the caller to persist.
type Change struct {
	Opened *domain.PauseInterval
	Closed *domain.PauseInterval
}

// Outcome is the result of a breach check.
type Outcome struct {
	Breached          bool
	BreachTriggered   bool
	WarningTriggered  bool
	WarningSuppressed bool
	DueDate           time.Time
}

// Machine applies SLA commands to one timer and its pause ledger. It is not
// safe for concurrent use; callers serialise access per timer.
type Machine struct {
	timer        *domain.SLATimer
	ledger       *Ledger
	target       *time.Duration
	warningRatio float64
}

// Option configures a Machine.
type Option func(*Machine)

// WithWarningRatio overrides DefaultWarningRatio.
func WithWarningRatio(ratio float64) Option {
	return func(m *Machine) {
		if ratio > 0 && ratio < 1 {
			m.warningRatio = ratio
		}
	}
}

// NewMachine wraps timer. target is nil when the ticket has no priority.
func NewMachine(timer *domain.SLATimer, ledger *Ledger, target *time.Duration, opts ...Option) *Machine {
	if ledger == nil {
		ledger = NewLedger(timer.ID, nil)
	}
	m := &Machine{timer: timer, ledger: ledger, target: target, warningRatio: DefaultWarningRatio}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timer returns the wrapped timer.
func (m *Machine) Timer() *domain.SLATimer { return m.timer }

// Ledger returns the pause ledger.
func (m *Machine) Ledger() *Ledger { return m.ledger }

// Resume moves the timer to Active. The first resume only starts the clock;
// later ones close the open pause.
func (m *Machine) Resume(now time.Time) Change {
	var change Change
	if m.timer.Status == domain.SLAStatusStopped {
		return change
	}
	now = now.UTC()
	if m.timer.StartTime == nil {
		m.timer.StartTime = &now
	}
	if closed, ok := m.ledger.RecordResume(now); ok {
		change.Closed = &closed
		m.timer.ResumedTime = &now
	}
	m.timer.TotalPausedTime = m.ledger.ClosedTotal()
	m.timer.Status = domain.SLAStatusActive
	m.refreshDueDate()
	return change
}

// Pause opens a pause interval and moves the timer to Paused.
func (m *Machine) Pause(now time.Time) Change {
	var change Change
	if m.timer.Status == domain.SLAStatusStopped {
		return change
	}
	now = now.UTC()
	if m.timer.StartTime == nil {
		m.timer.StartTime = &now
	}
	if opened, ok := m.ledger.RecordPause(now); ok {
		change.Opened = &opened
		m.timer.PausedTime = &now
	}
	m.timer.Status = domain.SLAStatusPaused
	m.refreshDueDate()
	return change
}

// Stop ends the clock. An open pause is closed at now so the paused total
// is final. Stopped is terminal.
func (m *Machine) Stop(now time.Time) Change {
	var change Change
	if m.timer.Status == domain.SLAStatusStopped {
		return change
	}
	now = now.UTC()
	if closed, ok := m.ledger.RecordResume(now); ok {
		change.Closed = &closed
		m.timer.ResumedTime = &now
	}
	m.timer.TotalPausedTime = m.ledger.ClosedTotal()
	m.timer.EndTime = &now
	m.timer.Status = domain.SLAStatusStopped
	m.refreshDueDate()
	return change
}

// MarkBreached sets the breached flag without notifying. Used when the
// ticket itself is moved to Breached.
func (m *Machine) MarkBreached() {
	m.timer.Breached = true
}

// SetTarget replaces the response target after a priority change.
func (m *Machine) SetTarget(target *time.Duration) {
	m.target = target
	m.refreshDueDate()
}

// DueDate computes the deadline from the timer's cached inputs.
func (m *Machine) DueDate() (time.Time, bool) {
	return ComputeDueDate(m.timer.StartTime, m.target, m.timer.TotalPausedTime)
}

func (m *Machine) refreshDueDate() {
	due, ok := m.DueDate()
	if !ok {
		m.timer.SLADueDate = nil
		return
	}
	m.timer.SLADueDate = &due
}

// CheckBreach evaluates the timer at now. It only acts on an Active timer
// with a determined due date. The breach is checked before the warning; a
// warning that was not sent before the breach is suppressed, so a ticket
// never receives a warning after its breach notice.
func (m *Machine) CheckBreach(now time.Time) Outcome {
	out := Outcome{Breached: m.timer.Breached}
	if m.timer.Status != domain.SLAStatusActive {
		return out
	}
	due, ok := m.DueDate()
	if !ok {
		return out
	}
	m.timer.SLADueDate = &due
	out.DueDate = due
	now = now.UTC()

	if now.After(due) {
		m.timer.Breached = true
	}
	if m.timer.Breached && !m.timer.BreachNotified {
		m.timer.BreachNotified = true
		out.BreachTriggered = true
	}

	if !m.timer.WarningSent {
		switch {
		case m.timer.Breached:
			m.timer.WarningSent = true
			out.WarningSuppressed = true
		case m.pastWarningThreshold(now, due):
			m.timer.WarningSent = true
			out.WarningTriggered = true
		}
	}

	out.Breached = m.timer.Breached
	return out
}

func (m *Machine) pastWarningThreshold(now, due time.Time) bool {
	start := *m.timer.StartTime
	budget := due.Sub(start)
	threshold := time.Duration(float64(budget) * m.warningRatio)
	return now.Sub(start) > threshold
}

// Remaining returns the time left before the due date. It is nil unless
// the timer is Active with a determined due date, and zero once past due.
func (m *Machine) Remaining(now time.Time) *time.Duration {
	if m.timer.Status != domain.SLAStatusActive {
		return nil
	}
	due, ok := m.DueDate()
	if !ok {
		return nil
	}
	left := due.Sub(now.UTC())
	if left < 0 {
		left = 0
	}
	return &left
}
