package repository

import (
	"context"
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// PriorityRepository persists organisation priorities.
type PriorityRepository interface {
	Create(ctx context.Context, priority *domain.Priority) error
	GetByID(ctx context.Context, id int64) (*domain.Priority, error)
	// FindByNameAndTarget returns ErrNotFound when no priority of the
	// organisation has that urgency name and target.
	FindByNameAndTarget(ctx context.Context, organisationID, urgencyName string, target time.Duration) (*domain.Priority, error)
	ListByOrganisation(ctx context.Context, organisationID string) ([]domain.Priority, error)
}

type priorityRepository struct {
	q Querier
}

const priorityColumns = `id, organisation_id, urgency_name, description, response_target_seconds, is_active, created_at, updated_at`

func (r *priorityRepository) Create(ctx context.Context, priority *domain.Priority) error {
	const query = `
        INSERT INTO priorities (organisation_id, urgency_name, description, response_target_seconds, is_active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	err := r.q.QueryRow(ctx, query,
		priority.OrganisationID,
		priority.UrgencyName,
		priority.Description,
		int64(priority.ResponseTarget/time.Second),
		priority.IsActive,
	).Scan(&priority.ID, &priority.CreatedAt, &priority.UpdatedAt)
	return mapError(err)
}

func (r *priorityRepository) GetByID(ctx context.Context, id int64) (*domain.Priority, error) {
	priority, err := scanPriority(r.q.QueryRow(ctx, `SELECT `+priorityColumns+` FROM priorities WHERE id=$1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return priority, nil
}

func (r *priorityRepository) FindByNameAndTarget(ctx context.Context, organisationID, urgencyName string, target time.Duration) (*domain.Priority, error) {
	const query = `SELECT ` + priorityColumns + ` FROM priorities
        WHERE organisation_id=$1 AND urgency_name=$2 AND response_target_seconds=$3
        ORDER BY id LIMIT 1`
	priority, err := scanPriority(r.q.QueryRow(ctx, query, organisationID, urgencyName, int64(target/time.Second)))
	if err != nil {
		return nil, mapError(err)
	}
	return priority, nil
}

func (r *priorityRepository) ListByOrganisation(ctx context.Context, organisationID string) ([]domain.Priority, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+priorityColumns+` FROM priorities WHERE organisation_id=$1 ORDER BY id ASC`,
		organisationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []domain.Priority
	for rows.Next() {
		priority, err := scanPriority(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *priority)
	}
	return result, mapError(rows.Err())
}

func scanPriority(row rowScanner) (*domain.Priority, error) {
	var (
		priority      domain.Priority
		targetSeconds int64
	)
	if err := row.Scan(
		&priority.ID,
		&priority.OrganisationID,
		&priority.UrgencyName,
		&priority.Description,
		&targetSeconds,
		&priority.IsActive,
		&priority.CreatedAt,
		&priority.UpdatedAt,
	); err != nil {
		return nil, err
	}
	priority.ResponseTarget = time.Duration(targetSeconds) * time.Second
	return &priority, nil
}
