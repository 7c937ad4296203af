package repository

import (
	"context"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate locks the ticket row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	ListByOrganisation(ctx context.Context, organisationID string) ([]domain.Ticket, error)
}

type ticketRepository struct {
	q Querier
}

const ticketColumns = `id, organisation_id, external_key, summary, description, status,
               priority_id, assignee_id, created_by_id, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (organisation_id, external_key, summary, description, status, priority_id, assignee_id, created_by_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	err := r.q.QueryRow(ctx, query,
		ticket.OrganisationID,
		ticket.ExternalKey,
		ticket.Summary,
		ticket.Description,
		ticket.Status,
		ticket.PriorityID,
		ticket.AssigneeID,
		ticket.CreatedByID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	return mapError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET summary=$1, description=$2, status=$3, priority_id=$4, assignee_id=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`
	err := r.q.QueryRow(ctx, query,
		ticket.Summary,
		ticket.Description,
		ticket.Status,
		ticket.PriorityID,
		ticket.AssigneeID,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return mapError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id)
}

func (r *ticketRepository) ListByOrganisation(ctx context.Context, organisationID string) ([]domain.Ticket, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE organisation_id=$1 ORDER BY created_at ASC`,
		organisationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, mapError(rows.Err())
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapError(err)
	}
	return ticket, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.OrganisationID,
		&ticket.ExternalKey,
		&ticket.Summary,
		&ticket.Description,
		&ticket.Status,
		&ticket.PriorityID,
		&ticket.AssigneeID,
		&ticket.CreatedByID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
