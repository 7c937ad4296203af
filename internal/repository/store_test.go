package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return mock
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, domain.ErrConcurrentUpdate},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, domain.ErrConcurrentUpdate},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, domain.ErrConcurrentUpdate},
		{"unique violation", &pgconn.PgError{Code: "23505"}, domain.ErrDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, domain.ErrMissingReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapError(tc.err)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	assert.NoError(t, mapError(nil))
	other := errors.New("connection reset")
	assert.Same(t, other, mapError(other))
}

func TestWithinTxCommits(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE sla_pause_log").
		WithArgs(pgxmock.AnyArg(), int64(0), int64(1), int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	store := NewPostgresStore(mock)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.Timers().ClosePause(ctx, domain.PauseInterval{ID: 1, TimerID: 2})
	})
	assert.NoError(t, err)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	boom := errors.New("boom")
	store := NewPostgresStore(mock)
	err := store.WithinTx(context.Background(), func(context.Context, Store) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithinTxMapsCommitConflict(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	store := NewPostgresStore(mock)
	err := store.WithinTx(context.Background(), func(context.Context, Store) error { return nil })
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
}
