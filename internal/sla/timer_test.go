package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newActiveMachine(target *time.Duration) *Machine {
	start := t0
	timer := &domain.SLATimer{ID: 1, TicketID: "T-1", StartTime: &start, Status: domain.SLAStatusActive}
	m := NewMachine(timer, nil, target)
	m.refreshDueDate()
	return m
}

func TestComputeDueDateIsPure(t *testing.T) {
	start := t0
	target := 72 * time.Hour
	first, ok := ComputeDueDate(&start, &target, 5*time.Hour)
	require.True(t, ok)
	second, _ := ComputeDueDate(&start, &target, 5*time.Hour)
	assert.Equal(t, first, second)
	assert.Equal(t, t0.Add(77*time.Hour), first)
}

func TestComputeDueDateUndetermined(t *testing.T) {
	start := t0
	target := time.Hour
	_, ok := ComputeDueDate(&start, nil, 0)
	assert.False(t, ok)
	_, ok = ComputeDueDate(nil, &target, 0)
	assert.False(t, ok)
}

func TestPauseResumeExtendsDueDate(t *testing.T) {
	m := newActiveMachine(ptr(72 * time.Hour))

	m.ApplyStatus(domain.TicketStatusWorkingInProgress, t0)
	require.NotNil(t, m.Timer().SLADueDate)
	assert.Equal(t, t0.Add(72*time.Hour), *m.Timer().SLADueDate)

	change := m.ApplyStatus(domain.TicketStatusWaitingForUser, t0.Add(24*time.Hour))
	require.NotNil(t, change.Opened)
	assert.Equal(t, domain.SLAStatusPaused, m.Timer().Status)
	assert.Equal(t, t0.Add(24*time.Hour), *m.Timer().PausedTime)

	change = m.ApplyStatus(domain.TicketStatusWorkingInProgress, t0.Add(29*time.Hour))
	require.NotNil(t, change.Closed)
	assert.Equal(t, 5*time.Hour, change.Closed.Duration)
	assert.Equal(t, domain.SLAStatusActive, m.Timer().Status)
	assert.Equal(t, 5*time.Hour, m.Timer().TotalPausedTime)
	assert.Equal(t, t0.Add(77*time.Hour), *m.Timer().SLADueDate)
}

func TestFirstResumeSetsStartTime(t *testing.T) {
	timer := &domain.SLATimer{ID: 1, Status: domain.SLAStatusActive}
	m := NewMachine(timer, nil, ptr(time.Hour))

	change := m.Resume(t0)
	assert.Nil(t, change.Closed)
	require.NotNil(t, timer.StartTime)
	assert.Equal(t, t0, *timer.StartTime)
	assert.Equal(t, t0.Add(time.Hour), *timer.SLADueDate)
}

func TestDelegatedAndOpenLeaveTimerUnchanged(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))
	before := *m.Timer()

	m.ApplyStatus(domain.TicketStatusDelegated, t0.Add(time.Minute))
	m.ApplyStatus(domain.TicketStatusOpen, t0.Add(2*time.Minute))

	assert.Equal(t, before, *m.Timer())
}

func TestStopIsTerminalAndClosesOpenPause(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))
	m.Pause(t0.Add(10 * time.Minute))

	change := m.ApplyStatus(domain.TicketStatusResolved, t0.Add(30*time.Minute))
	require.NotNil(t, change.Closed)
	assert.Equal(t, domain.SLAStatusStopped, m.Timer().Status)
	assert.Equal(t, t0.Add(30*time.Minute), *m.Timer().EndTime)
	assert.Equal(t, 20*time.Minute, m.Timer().TotalPausedTime)

	m.Resume(t0.Add(40 * time.Minute))
	m.Pause(t0.Add(50 * time.Minute))
	m.Stop(t0.Add(60 * time.Minute))
	assert.Equal(t, domain.SLAStatusStopped, m.Timer().Status)
	assert.Equal(t, t0.Add(30*time.Minute), *m.Timer().EndTime)
	assert.Len(t, m.Ledger().Intervals(), 1)
}

func TestBreachedStatusStopsAndFlags(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))
	m.ApplyStatus(domain.TicketStatusBreached, t0.Add(2*time.Hour))

	assert.True(t, m.Timer().Breached)
	assert.False(t, m.Timer().BreachNotified)
	assert.Equal(t, domain.SLAStatusStopped, m.Timer().Status)
}

func TestCheckBreachUndeterminedIsNoop(t *testing.T) {
	m := newActiveMachine(nil)
	out := m.CheckBreach(t0.Add(1000 * time.Hour))

	assert.False(t, out.Breached)
	assert.False(t, out.BreachTriggered)
	assert.False(t, m.Timer().WarningSent)
}

func TestCheckBreachIgnoresPausedTimer(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))
	m.Pause(t0.Add(10 * time.Minute))

	out := m.CheckBreach(t0.Add(5 * time.Hour))
	assert.False(t, out.BreachTriggered)
	assert.False(t, m.Timer().Breached)
}

func TestCheckBreachNotifiesOnce(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))
	now := t0.Add(2 * time.Hour)

	first := m.CheckBreach(now)
	second := m.CheckBreach(now)

	assert.True(t, first.BreachTriggered)
	assert.False(t, second.BreachTriggered)
	assert.True(t, second.Breached)
}

func TestWarningThenBreach(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))

	out := m.CheckBreach(t0.Add(44 * time.Minute))
	assert.False(t, out.WarningTriggered, "below 75%")

	out = m.CheckBreach(t0.Add(46 * time.Minute))
	assert.True(t, out.WarningTriggered)
	assert.False(t, out.BreachTriggered)
	assert.True(t, m.Timer().WarningSent)

	out = m.CheckBreach(t0.Add(61 * time.Minute))
	assert.True(t, out.BreachTriggered)
	assert.False(t, out.WarningTriggered)
	assert.True(t, m.Timer().Breached)
}

func TestBreachSuppressesLateWarning(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))

	out := m.CheckBreach(t0.Add(3 * time.Hour))
	assert.True(t, out.BreachTriggered)
	assert.False(t, out.WarningTriggered)
	assert.True(t, out.WarningSuppressed)
	assert.True(t, m.Timer().WarningSent)
}

func TestBreachIsMonotonic(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))
	m.CheckBreach(t0.Add(2 * time.Hour))
	require.True(t, m.Timer().Breached)

	m.Pause(t0.Add(3 * time.Hour))
	m.Resume(t0.Add(30 * time.Hour))
	m.SetTarget(ptr(1000 * time.Hour))
	out := m.CheckBreach(t0.Add(31 * time.Hour))

	assert.True(t, out.Breached)
	assert.True(t, m.Timer().Breached)
}

func TestWarningRatioOption(t *testing.T) {
	start := t0
	timer := &domain.SLATimer{ID: 1, StartTime: &start, Status: domain.SLAStatusActive}
	m := NewMachine(timer, nil, ptr(time.Hour), WithWarningRatio(0.5))

	out := m.CheckBreach(t0.Add(31 * time.Minute))
	assert.True(t, out.WarningTriggered)
}

func TestRemaining(t *testing.T) {
	m := newActiveMachine(ptr(time.Hour))

	left := m.Remaining(t0.Add(20 * time.Minute))
	require.NotNil(t, left)
	assert.Equal(t, 40*time.Minute, *left)

	left = m.Remaining(t0.Add(2 * time.Hour))
	require.NotNil(t, left)
	assert.Equal(t, time.Duration(0), *left)

	m.Pause(t0.Add(2 * time.Hour))
	assert.Nil(t, m.Remaining(t0.Add(2*time.Hour)))
}

func TestCommandFor(t *testing.T) {
	assert.Equal(t, CommandResume, CommandFor(domain.TicketStatusWorkingInProgress))
	assert.Equal(t, CommandPause, CommandFor(domain.TicketStatusWaitingForUser))
	assert.Equal(t, CommandStop, CommandFor(domain.TicketStatusResolved))
	assert.Equal(t, CommandStop, CommandFor(domain.TicketStatusClosed))
	assert.Equal(t, CommandStop, CommandFor(domain.TicketStatusBreached))
	assert.Equal(t, CommandStop, CommandFor(domain.TicketStatusCanceled))
	assert.Equal(t, CommandNone, CommandFor(domain.TicketStatusDelegated))
	assert.Equal(t, CommandNone, CommandFor(domain.TicketStatusOpen))
	assert.Equal(t, "pause", CommandPause.String())
}
