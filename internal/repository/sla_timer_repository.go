package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// TimerRepository persists SLA timers and their pause intervals.
type TimerRepository interface {
	Create(ctx context.Context, timer *domain.SLATimer) error
	// Update writes timer and bumps its version. It fails with
	// ErrConcurrentUpdate when the stored version moved on.
	Update(ctx context.Context, timer *domain.SLATimer) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.SLATimer, error)
	// GetByTicketForUpdate locks the timer row without waiting. A held lock
	// surfaces as ErrConcurrentUpdate.
	GetByTicketForUpdate(ctx context.Context, ticketID string) (*domain.SLATimer, error)
	ListActiveTicketIDs(ctx context.Context) ([]string, error)
	ListByOrganisation(ctx context.Context, organisationID string) ([]domain.SLATimer, error)

	ListPauses(ctx context.Context, timerID int64) ([]domain.PauseInterval, error)
	// ListPausesByOrganisation returns the pause log of every timer of the
	// organisation, ordered by timer and then by id.
	ListPausesByOrganisation(ctx context.Context, organisationID string) ([]domain.PauseInterval, error)
	InsertPause(ctx context.Context, interval *domain.PauseInterval) error
	ClosePause(ctx context.Context, interval domain.PauseInterval) error
}

type timerRepository struct {
	q Querier
}

const timerColumns = `t.id, t.ticket_id, t.start_time, t.paused_time, t.resumed_time, t.end_time,
               t.total_paused_us, t.sla_due_date, t.breached, t.warning_sent, t.breach_notified,
               t.status, t.version, t.created_at, t.modified_at`

func (r *timerRepository) Create(ctx context.Context, timer *domain.SLATimer) error {
	const query = `
        INSERT INTO sla_timers (ticket_id, start_time, paused_time, resumed_time, end_time, total_paused_us,
            sla_due_date, breached, warning_sent, breach_notified, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, version, created_at, modified_at`
	err := r.q.QueryRow(ctx, query,
		timer.TicketID,
		timer.StartTime,
		timer.PausedTime,
		timer.ResumedTime,
		timer.EndTime,
		timer.TotalPausedTime.Microseconds(),
		timer.SLADueDate,
		timer.Breached,
		timer.WarningSent,
		timer.BreachNotified,
		timer.Status,
	).Scan(&timer.ID, &timer.Version, &timer.CreatedAt, &timer.ModifiedAt)
	if isUniqueViolation(err) {
		// another writer created the ticket's timer first
		return errors.Join(domain.ErrConcurrentUpdate, err)
	}
	return mapError(err)
}

func (r *timerRepository) Update(ctx context.Context, timer *domain.SLATimer) error {
	const query = `
        UPDATE sla_timers SET start_time=$1, paused_time=$2, resumed_time=$3, end_time=$4, total_paused_us=$5,
            sla_due_date=$6, breached=$7, warning_sent=$8, breach_notified=$9, status=$10,
            version=version+1, modified_at=NOW()
        WHERE id=$11 AND version=$12
        RETURNING version, modified_at`
	err := r.q.QueryRow(ctx, query,
		timer.StartTime,
		timer.PausedTime,
		timer.ResumedTime,
		timer.EndTime,
		timer.TotalPausedTime.Microseconds(),
		timer.SLADueDate,
		timer.Breached,
		timer.WarningSent,
		timer.BreachNotified,
		timer.Status,
		timer.ID,
		timer.Version,
	).Scan(&timer.Version, &timer.ModifiedAt)
	if err := mapError(err); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrConcurrentUpdate
		}
		return err
	}
	return nil
}

func (r *timerRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	return r.fetchSingle(ctx, `SELECT `+timerColumns+` FROM sla_timers t WHERE t.ticket_id=$1`, ticketID)
}

func (r *timerRepository) GetByTicketForUpdate(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	return r.fetchSingle(ctx, `SELECT `+timerColumns+` FROM sla_timers t WHERE t.ticket_id=$1 FOR UPDATE NOWAIT`, ticketID)
}

func (r *timerRepository) ListActiveTicketIDs(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT ticket_id FROM sla_timers WHERE status=$1 ORDER BY sla_due_date ASC NULLS LAST`,
		domain.SLAStatusActive)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, mapError(rows.Err())
}

func (r *timerRepository) ListByOrganisation(ctx context.Context, organisationID string) ([]domain.SLATimer, error) {
	const query = `SELECT ` + timerColumns + `
        FROM sla_timers t JOIN tickets k ON k.id = t.ticket_id
        WHERE k.organisation_id=$1 ORDER BY t.id ASC`
	rows, err := r.q.Query(ctx, query, organisationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var timers []domain.SLATimer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, *timer)
	}
	return timers, mapError(rows.Err())
}

const pauseColumns = `p.id, p.sla_timer_id, p.paused_time, p.resumed_time, p.pause_duration_us`

func (r *timerRepository) ListPauses(ctx context.Context, timerID int64) ([]domain.PauseInterval, error) {
	const query = `SELECT ` + pauseColumns + `
        FROM sla_pause_log p WHERE p.sla_timer_id=$1 ORDER BY p.id ASC`
	return r.queryPauses(ctx, query, timerID)
}

func (r *timerRepository) ListPausesByOrganisation(ctx context.Context, organisationID string) ([]domain.PauseInterval, error) {
	const query = `SELECT ` + pauseColumns + `
        FROM sla_pause_log p
        JOIN sla_timers t ON t.id = p.sla_timer_id
        JOIN tickets k ON k.id = t.ticket_id
        WHERE k.organisation_id=$1 ORDER BY p.sla_timer_id ASC, p.id ASC`
	return r.queryPauses(ctx, query, organisationID)
}

func (r *timerRepository) queryPauses(ctx context.Context, query string, arg any) ([]domain.PauseInterval, error) {
	rows, err := r.q.Query(ctx, query, arg)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []domain.PauseInterval
	for rows.Next() {
		var (
			interval   domain.PauseInterval
			durationUS int64
		)
		if err := rows.Scan(
			&interval.ID,
			&interval.TimerID,
			&interval.PausedAt,
			&interval.ResumedAt,
			&durationUS,
		); err != nil {
			return nil, err
		}
		interval.Duration = time.Duration(durationUS) * time.Microsecond
		utcTimes(interval.PausedAt, interval.ResumedAt)
		result = append(result, interval)
	}
	return result, mapError(rows.Err())
}

func (r *timerRepository) InsertPause(ctx context.Context, interval *domain.PauseInterval) error {
	const query = `
        INSERT INTO sla_pause_log (sla_timer_id, paused_time, resumed_time, pause_duration_us)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	err := r.q.QueryRow(ctx, query,
		interval.TimerID,
		interval.PausedAt,
		interval.ResumedAt,
		interval.Duration.Microseconds(),
	).Scan(&interval.ID)
	return mapError(err)
}

func (r *timerRepository) ClosePause(ctx context.Context, interval domain.PauseInterval) error {
	const query = `
        UPDATE sla_pause_log SET resumed_time=$1, pause_duration_us=$2
        WHERE id=$3 AND sla_timer_id=$4`
	return requireAffected(r.q.Exec(ctx, query,
		interval.ResumedAt,
		interval.Duration.Microseconds(),
		interval.ID,
		interval.TimerID,
	))
}

func (r *timerRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.SLATimer, error) {
	timer, err := scanTimer(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapError(err)
	}
	return timer, nil
}

func scanTimer(row rowScanner) (*domain.SLATimer, error) {
	var (
		timer    domain.SLATimer
		pausedUS int64
	)
	if err := row.Scan(
		&timer.ID,
		&timer.TicketID,
		&timer.StartTime,
		&timer.PausedTime,
		&timer.ResumedTime,
		&timer.EndTime,
		&pausedUS,
		&timer.SLADueDate,
		&timer.Breached,
		&timer.WarningSent,
		&timer.BreachNotified,
		&timer.Status,
		&timer.Version,
		&timer.CreatedAt,
		&timer.ModifiedAt,
	); err != nil {
		return nil, err
	}
	timer.TotalPausedTime = time.Duration(pausedUS) * time.Microsecond
	utcTimes(timer.StartTime, timer.PausedTime, timer.ResumedTime, timer.EndTime, timer.SLADueDate)
	return &timer, nil
}

func utcTimes(ts ...*time.Time) {
	for _, t := range ts {
		if t != nil {
			*t = t.UTC()
		}
	}
}
