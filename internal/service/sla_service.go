package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/config"
	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/notify"
	"github.com/spec-kit/servicedesk-sla/internal/observability"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
)

// SLAService runs the SLA timer engine: the lifecycle adapter, the periodic
// sweep and the reporting reads.
type SLAService struct {
	store      repository.TxManager
	notifier   notify.Notifier
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.SLAConfig
	zone       *time.Location
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	Store      repository.TxManager
	Notifier   notify.Notifier
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Config     config.SLAConfig
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked   int `json:"checked"`
	Breaches  int `json:"breaches"`
	Warnings  int `json:"warnings"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) (*SLAService, error) {
	zone, err := sla.LoadReportZone(deps.Config.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("load report timezone: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &SLAService{
		store:      deps.Store,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		zone:       zone,
	}, nil
}

// Zone is the display zone for reports.
func (s *SLAService) Zone() *time.Location { return s.zone }

// notice is a notification decided inside a transaction.
type notice struct {
	kind      notify.Kind
	ticket    notify.TicketRef
	recipient notify.Recipient
	due       time.Time
}

// effects collects the side effects of a committed unit of work. Nothing in
// it runs before the transaction commits.
type effects struct {
	notices  []notice
	events   []events.Event
	breaches int
	warnings int
}

// OnStatusChanged applies the timer command for a ticket status change in
// its own transaction. Ticket writes go through TicketService, which calls
// applyStatus inside the ticket's transaction instead.
func (s *SLAService) OnStatusChanged(ctx context.Context, ticketID string, oldStatus, newStatus domain.TicketStatus, now time.Time) error {
	var eff *effects
	err := s.store.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		ticket, err := store.Tickets().GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		eff, err = s.applyStatus(ctx, store, ticket, oldStatus, newStatus, now, events.SystemActor)
		return err
	})
	if err != nil {
		return err
	}
	s.flush(ctx, eff)
	return nil
}

// applyStatus runs the lifecycle adapter for ticket inside store's
// transaction: the timer command for newStatus, then the breach check.
func (s *SLAService) applyStatus(ctx context.Context, store repository.Store, ticket *domain.Ticket, oldStatus, newStatus domain.TicketStatus, now time.Time, actor events.Actor) (*effects, error) {
	machine, err := s.lockMachine(ctx, store, ticket, now)
	if err != nil {
		return nil, err
	}

	change := machine.ApplyStatus(newStatus, now)
	if err := persistChange(ctx, store, machine, change); err != nil {
		return nil, err
	}
	s.logger.Debug("sla timer command applied",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("timer_id", machine.Timer().ID),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(newStatus)),
		zap.Stringer("command", sla.CommandFor(newStatus)))

	eff, err := s.evaluate(ctx, store, ticket, machine, now, actor)
	if err != nil {
		return nil, err
	}
	if err := store.Timers().Update(ctx, machine.Timer()); err != nil {
		return nil, err
	}
	return eff, nil
}

// applyPriority recomputes the cached due date after a priority change.
func (s *SLAService) applyPriority(ctx context.Context, store repository.Store, ticket *domain.Ticket, now time.Time, actor events.Actor) (*effects, *domain.SLATimer, error) {
	machine, err := s.lockMachine(ctx, store, ticket, now)
	if err != nil {
		return nil, nil, err
	}
	target, err := responseTarget(ctx, store, ticket)
	if err != nil {
		return nil, nil, err
	}
	machine.SetTarget(target)
	eff, err := s.evaluate(ctx, store, ticket, machine, now, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Timers().Update(ctx, machine.Timer()); err != nil {
		return nil, nil, err
	}
	return eff, machine.Timer(), nil
}

// startTimer creates the timer of a new ticket.
func (s *SLAService) startTimer(ctx context.Context, store repository.Store, ticket *domain.Ticket, now time.Time) (*domain.SLATimer, error) {
	target, err := responseTarget(ctx, store, ticket)
	if err != nil {
		return nil, err
	}
	start := now.UTC()
	timer := &domain.SLATimer{
		TicketID:  ticket.ID,
		StartTime: &start,
		Status:    domain.SLAStatusActive,
	}
	if due, ok := sla.ComputeDueDate(timer.StartTime, target, 0); ok {
		timer.SLADueDate = &due
	}
	if err := store.Timers().Create(ctx, timer); err != nil {
		return nil, err
	}
	return timer, nil
}

// lockMachine loads the ticket's timer under a row lock, creating it when
// the ticket has none yet.
func (s *SLAService) lockMachine(ctx context.Context, store repository.Store, ticket *domain.Ticket, now time.Time) (*sla.Machine, error) {
	timer, err := store.Timers().GetByTicketForUpdate(ctx, ticket.ID)
	if errors.Is(err, domain.ErrNotFound) {
		timer, err = s.startTimer(ctx, store, ticket, now)
	}
	if err != nil {
		return nil, err
	}
	return s.machineFor(ctx, store, ticket, timer)
}

func (s *SLAService) machineFor(ctx context.Context, store repository.Store, ticket *domain.Ticket, timer *domain.SLATimer) (*sla.Machine, error) {
	rows, err := store.Timers().ListPauses(ctx, timer.ID)
	if err != nil {
		return nil, err
	}
	target, err := responseTarget(ctx, store, ticket)
	if err != nil {
		return nil, err
	}
	return sla.NewMachine(timer, sla.NewLedger(timer.ID, rows), target, sla.WithWarningRatio(s.cfg.WarningRatio)), nil
}

// responseTarget returns nil when the ticket has no priority, which leaves
// the due date undetermined.
func responseTarget(ctx context.Context, store repository.Store, ticket *domain.Ticket) (*time.Duration, error) {
	if ticket.PriorityID == nil {
		return nil, nil
	}
	priority, err := store.Priorities().GetByID(ctx, *ticket.PriorityID)
	if err != nil {
		return nil, fmt.Errorf("load priority %d: %w", *ticket.PriorityID, err)
	}
	target := priority.ResponseTarget
	return &target, nil
}

func persistChange(ctx context.Context, store repository.Store, machine *sla.Machine, change sla.Change) error {
	if change.Closed != nil && change.Closed.ID != 0 {
		if err := store.Timers().ClosePause(ctx, *change.Closed); err != nil {
			return err
		}
	}
	if change.Opened != nil {
		if err := store.Timers().InsertPause(ctx, change.Opened); err != nil {
			return err
		}
		machine.Ledger().AssignOpenID(change.Opened.ID)
	}
	return nil
}

// evaluate runs the breach check and turns its outcome into history rows,
// notices and events. The flags are already set on the timer; delivery
// happens after commit and never clears them.
func (s *SLAService) evaluate(ctx context.Context, store repository.Store, ticket *domain.Ticket, machine *sla.Machine, now time.Time, actor events.Actor) (*effects, error) {
	outcome := machine.CheckBreach(now)
	timer := machine.Timer()
	eff := &effects{}
	if !outcome.WarningTriggered && !outcome.BreachTriggered {
		if outcome.WarningSuppressed {
			s.logger.Info("sla warning suppressed after breach", zap.String("ticket_id", ticket.ID), zap.Int64("timer_id", timer.ID))
		}
		return eff, nil
	}

	recipient, err := resolveRecipient(ctx, store, ticket)
	if err != nil {
		return nil, err
	}
	ref := notify.TicketRef{ID: ticket.ID, Key: ticket.ExternalKey}

	if outcome.WarningTriggered {
		eff.warnings++
		if err := recordSLAHistory(ctx, store, ticket.ID, domain.ChangeTypeSLAWarning, timer, outcome.DueDate); err != nil {
			return nil, err
		}
		eff.addNotice(s.logger, notify.KindSLAWarning, ref, recipient, outcome.DueDate)
		eff.events = append(eff.events, slaEvent(events.EventSLAWarning, ticket.ID, timer.ID, outcome.DueDate, now))
	}

	if outcome.BreachTriggered {
		eff.breaches++
		if err := recordSLAHistory(ctx, store, ticket.ID, domain.ChangeTypeSLABreach, timer, outcome.DueDate); err != nil {
			return nil, err
		}
		eff.addNotice(s.logger, notify.KindSLABreach, ref, recipient, outcome.DueDate)
		eff.events = append(eff.events, slaEvent(events.EventSLABreached, ticket.ID, timer.ID, outcome.DueDate, now))

		if s.cfg.MarkTicketBreached {
			ev, err := markTicketBreached(ctx, store, ticket, now)
			if err != nil {
				return nil, err
			}
			if ev != nil {
				eff.events = append(eff.events, *ev)
			}
		}
	}
	return eff, nil
}

func (e *effects) addNotice(logger *zap.Logger, kind notify.Kind, ticket notify.TicketRef, recipient notify.Recipient, due time.Time) {
	if recipient.Empty() {
		logger.Warn("no recipient for sla notification",
			zap.String("ticket_id", ticket.ID),
			zap.String("kind", string(kind)))
		return
	}
	e.notices = append(e.notices, notice{kind: kind, ticket: ticket, recipient: recipient, due: due})
}

// markTicketBreached moves the ticket to Breached when the timer breaches.
// The timer is left running; only an explicit status change stops it.
func markTicketBreached(ctx context.Context, store repository.Store, ticket *domain.Ticket, now time.Time) (*events.Event, error) {
	switch ticket.Status {
	case domain.TicketStatusOpen, domain.TicketStatusWorkingInProgress, domain.TicketStatusDelegated:
	default:
		return nil, nil
	}
	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusBreached
	if err := store.Tickets().Update(ctx, ticket); err != nil {
		return nil, err
	}
	if err := recordStatusChange(ctx, store, nil, ticket.ID, oldStatus, ticket.Status, "sla breached"); err != nil {
		return nil, err
	}
	return &events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticket.ID,
		Actor:     events.SystemActor,
		Timestamp: now,
		Payload: events.TicketStatusChangedPayload{
			OldStatus:   oldStatus,
			NewStatus:   ticket.Status,
			Comment:     "sla breached",
			CreatedByID: ticket.CreatedByID,
		},
	}, nil
}

// resolveRecipient picks the assignee, falling back to the ticket creator.
func resolveRecipient(ctx context.Context, store repository.Store, ticket *domain.Ticket) (notify.Recipient, error) {
	for _, id := range []*string{ticket.AssigneeID, ticket.CreatedByID} {
		if id == nil {
			continue
		}
		employee, err := store.Employees().GetByID(ctx, *id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return notify.Recipient{}, err
		}
		recipient := notify.Recipient{Name: employee.Name, Email: employee.Email, Phone: employee.Phone}
		if !recipient.Empty() {
			return recipient, nil
		}
	}
	return notify.Recipient{}, nil
}

func recordSLAHistory(ctx context.Context, store repository.Store, ticketID string, changeType domain.TicketChangeType, timer *domain.SLATimer, due time.Time) error {
	return store.History().Create(ctx, &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: changeType,
		OldValue:   map[string]any{},
		NewValue: map[string]any{
			"timer_id": timer.ID,
			"due_date": due.UTC().Format(time.RFC3339),
		},
	})
}

func slaEvent(eventType events.EventType, ticketID string, timerID int64, due, now time.Time) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.SystemActor,
		Timestamp: now,
		Payload:   events.SLAPayload{TimerID: timerID, DueDate: due},
	}
}

// flush hands committed notices to the notifier and publishes events.
// Dispatch failures are logged and counted only.
func (s *SLAService) flush(ctx context.Context, eff *effects) {
	if eff == nil {
		return
	}
	for i := 0; i < eff.breaches; i++ {
		s.metrics.RecordBreach()
	}
	for i := 0; i < eff.warnings; i++ {
		s.metrics.RecordWarning()
	}
	for _, n := range eff.notices {
		if s.notifier == nil {
			break
		}
		var err error
		switch n.kind {
		case notify.KindSLAWarning:
			err = s.notifier.SendWarning(ctx, n.ticket, n.recipient, n.due)
		case notify.KindSLABreach:
			err = s.notifier.SendBreach(ctx, n.ticket, n.recipient, n.due)
		}
		if err != nil {
			s.metrics.RecordDispatchFailure(string(n.kind))
			s.logger.Error("failed to dispatch sla notification",
				zap.String("ticket_id", n.ticket.ID),
				zap.String("kind", string(n.kind)),
				zap.Error(err))
		}
	}
	if s.dispatcher == nil {
		return
	}
	for _, ev := range eff.events {
		_ = s.dispatcher.Publish(ctx, ev)
	}
}

// RunSweep checks every Active timer at now. Timers are processed
// independently on a bounded pool; a conflicting writer is retried with
// backoff and any other failure only affects its own timer.
func (s *SLAService) RunSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	started := time.Now()
	ticketIDs, err := s.store.Timers().ListActiveTicketIDs(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Checked: len(ticketIDs)}
	workers := s.cfg.SweepWorkers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(workers)
	for _, id := range ticketIDs {
		if ctx.Err() != nil {
			break
		}
		id := id
		group.Go(func() error {
			eff, err := s.checkWithRetry(ctx, id, now)
			outcome := s.tally(&mu, &result, eff, err)
			s.metrics.RecordSweepTimer(outcome)
			if err != nil {
				s.logger.Warn("sla check failed",
					zap.String("ticket_id", id),
					zap.String("outcome", outcome),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()

	s.metrics.RecordSweep(time.Since(started))
	return result, ctx.Err()
}

func (s *SLAService) tally(mu *sync.Mutex, result *SweepResult, eff *effects, err error) string {
	mu.Lock()
	defer mu.Unlock()
	switch {
	case errors.Is(err, domain.ErrConcurrentUpdate):
		result.Conflicts++
		return observability.OutcomeConflict
	case err != nil:
		result.Failed++
		return observability.OutcomeFailed
	}
	result.Breaches += eff.breaches
	result.Warnings += eff.warnings
	switch {
	case eff.breaches > 0:
		return observability.OutcomeBreach
	case eff.warnings > 0:
		return observability.OutcomeWarning
	default:
		return observability.OutcomeOK
	}
}

func (s *SLAService) checkWithRetry(ctx context.Context, ticketID string, now time.Time) (*effects, error) {
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.cfg.SweepBackoff),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxElapsedTime(0),
	)
	retries := uint64(max(s.cfg.SweepRetries, 0))

	var lastErr error
	eff, err := backoff.RetryWithData(func() (*effects, error) {
		eff, err := s.checkTimer(ctx, ticketID, now)
		lastErr = err
		if err != nil && !errors.Is(err, domain.ErrConcurrentUpdate) {
			return nil, backoff.Permanent(err)
		}
		return eff, err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	if err != nil && lastErr != nil && !errors.Is(err, lastErr) {
		// cancelled while waiting to retry a conflict
		err = errors.Join(lastErr, err)
	}
	return eff, err
}

// checkTimer evaluates one timer in its own transaction, bounded by the
// per-timer timeout, and flushes the effects once committed.
func (s *SLAService) checkTimer(ctx context.Context, ticketID string, now time.Time) (*effects, error) {
	if s.cfg.SweepTimerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SweepTimerTimeout)
		defer cancel()
	}

	var eff *effects
	err := s.store.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		timer, err := store.Timers().GetByTicketForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		ticket, err := store.Tickets().GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		machine, err := s.machineFor(ctx, store, ticket, timer)
		if err != nil {
			return err
		}
		before := *timer
		eff, err = s.evaluate(ctx, store, ticket, machine, now, events.SystemActor)
		if err != nil {
			return err
		}
		if !timerChanged(before, *machine.Timer()) {
			return nil
		}
		return store.Timers().Update(ctx, machine.Timer())
	})
	if errors.Is(err, domain.ErrNotFound) {
		// the ticket or timer went away after it was listed
		return &effects{}, nil
	}
	if err != nil {
		return nil, err
	}
	s.flush(ctx, eff)
	return eff, nil
}

// timerChanged reports whether the sweep touched anything worth a write.
func timerChanged(before, after domain.SLATimer) bool {
	return before.Breached != after.Breached ||
		before.WarningSent != after.WarningSent ||
		before.BreachNotified != after.BreachNotified ||
		!sameTime(before.SLADueDate, after.SLADueDate)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
