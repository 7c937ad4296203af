package service

import (
	"context"
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
)

// TimerSummary is a timer with its paused total as of the read.
type TimerSummary struct {
	Timer       domain.SLATimer
	TotalPaused time.Duration
}

// TimerReport is the detail view of one ticket's timer.
type TimerReport struct {
	Timer        domain.SLATimer
	TotalPaused  time.Duration
	Remaining    *time.Duration
	PausedFor    *time.Duration
	Intervals    []domain.PauseInterval
	DueDateLocal *time.Time
	Zone         *time.Location
}

// Dashboard aggregates resolution statistics for an organisation.
type Dashboard struct {
	AvgSolveTime     time.Duration
	AvgPausedTime    time.Duration
	AvgWorkingTime   time.Duration
	ProcessedTickets int
	TotalTickets     int
	ByStatus         map[domain.TicketStatus]int
}

// ListTimers returns every timer of the organisation. The paused total
// includes a running pause up to now.
func (s *SLAService) ListTimers(ctx context.Context, organisationID string) ([]TimerSummary, error) {
	timers, err := s.store.Timers().ListByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	pauses, err := s.organisationPauses(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]TimerSummary, 0, len(timers))
	for _, timer := range timers {
		ledger := sla.NewLedger(timer.ID, pauses[timer.ID])
		out = append(out, TimerSummary{Timer: timer, TotalPaused: ledger.Total(now)})
	}
	return out, nil
}

// TimerView returns the timer of ticketID with its remaining time and pause
// history.
func (s *SLAService) TimerView(ctx context.Context, ticketID string) (*TimerReport, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	timer, err := s.store.Timers().GetByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	machine, err := s.machineFor(ctx, s.store, ticket, timer)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ledger := machine.Ledger()
	report := &TimerReport{
		Timer:       *timer,
		TotalPaused: ledger.Total(now),
		Remaining:   machine.Remaining(now),
		Intervals:   ledger.Intervals(),
		Zone:        s.zone,
	}
	if open, ok := ledger.Open(); ok {
		pausedFor := now.Sub(*open.PausedAt)
		if pausedFor < 0 {
			pausedFor = 0
		}
		report.PausedFor = &pausedFor
	}
	if due, ok := machine.DueDate(); ok {
		report.Timer.SLADueDate = &due
		local := due.In(s.zone)
		report.DueDateLocal = &local
	}
	return report, nil
}

// Dashboard averages solve, paused and working time over the
// organisation's tickets. Solve time runs from creation to the last update;
// working time is solve time minus paused time. Tickets without a timer are
// counted in TotalTickets only. The whole report costs three queries.
func (s *SLAService) Dashboard(ctx context.Context, organisationID string) (*Dashboard, error) {
	tickets, err := s.store.Tickets().ListByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	timers, err := s.store.Timers().ListByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	pauses, err := s.organisationPauses(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	timerIDs := make(map[string]int64, len(timers))
	for _, timer := range timers {
		timerIDs[timer.TicketID] = timer.ID
	}

	now := s.clock.Now()
	dash := &Dashboard{TotalTickets: len(tickets), ByStatus: map[domain.TicketStatus]int{}}

	var solve, paused time.Duration
	for _, ticket := range tickets {
		dash.ByStatus[ticket.Status]++
		timerID, ok := timerIDs[ticket.ID]
		if !ok {
			continue
		}
		ledger := sla.NewLedger(timerID, pauses[timerID])
		solve += ticket.UpdatedAt.Sub(ticket.CreatedAt)
		paused += ledger.Total(now)
		dash.ProcessedTickets++
	}

	if dash.ProcessedTickets > 0 {
		n := time.Duration(dash.ProcessedTickets)
		dash.AvgSolveTime = solve / n
		dash.AvgPausedTime = paused / n
		dash.AvgWorkingTime = dash.AvgSolveTime - dash.AvgPausedTime
	}
	return dash, nil
}

// organisationPauses loads the pause log of every timer of the
// organisation in one query, keyed by timer id.
func (s *SLAService) organisationPauses(ctx context.Context, organisationID string) (map[int64][]domain.PauseInterval, error) {
	rows, err := s.store.Timers().ListPausesByOrganisation(ctx, organisationID)
	if err != nil {
		return nil, err
	}
	byTimer := make(map[int64][]domain.PauseInterval)
	for _, row := range rows {
		byTimer[row.TimerID] = append(byTimer[row.TimerID], row)
	}
	return byTimer, nil
}
