package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// Querier is the subset of pgx shared by the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a Querier that can open transactions. *pgxpool.Pool satisfies it.
type Pool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Tickets() TicketRepository
	Priorities() PriorityRepository
	Employees() EmployeeRepository
	Timers() TimerRepository
	History() TicketHistoryRepository
}

// TxManager is a Store whose reads run outside a transaction, plus a way to
// run a unit of work atomically.
type TxManager interface {
	Store
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

type querierStore struct {
	q Querier
}

func newQuerierStore(q Querier) *querierStore {
	return &querierStore{q: q}
}

func (s *querierStore) Tickets() TicketRepository { return &ticketRepository{q: s.q} }
func (s *querierStore) Priorities() PriorityRepository { return &priorityRepository{q: s.q} }
func (s *querierStore) Employees() EmployeeRepository { return &employeeRepository{q: s.q} }
func (s *querierStore) Timers() TimerRepository { return &timerRepository{q: s.q} }
func (s *querierStore) History() TicketHistoryRepository { return &ticketHistoryRepository{q: s.q} }

// PostgresStore is the pgx-backed TxManager.
type PostgresStore struct {
	*querierStore
	pool Pool
}

// NewPostgresStore binds repositories to pool.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{querierStore: newQuerierStore(pool), pool: pool}
}

// WithinTx runs fn in a READ COMMITTED transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, newQuerierStore(tx)); err != nil {
		return err
	}
	return mapError(tx.Commit(ctx))
}

// Postgres error codes mapped onto domain sentinels.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
)

// mapError translates driver errors into domain sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return errors.Join(domain.ErrConcurrentUpdate, err)
		case codeUniqueViolation:
			return errors.Join(domain.ErrDuplicate, err)
		case codeForeignKeyViolation:
			return errors.Join(domain.ErrMissingReference, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func requireAffected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
