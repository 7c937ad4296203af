package repository

import (
	"context"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// EmployeeRepository reads the contact directory synced from the identity
// service.
type EmployeeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Employee, error)
	Upsert(ctx context.Context, employee *domain.Employee) error
}

type employeeRepository struct {
	q Querier
}

func (r *employeeRepository) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	const query = `
        SELECT id, organisation_id, name, email, phone, is_active
        FROM employees WHERE id=$1`
	var employee domain.Employee
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&employee.ID,
		&employee.OrganisationID,
		&employee.Name,
		&employee.Email,
		&employee.Phone,
		&employee.IsActive,
	); err != nil {
		return nil, mapError(err)
	}
	return &employee, nil
}

func (r *employeeRepository) Upsert(ctx context.Context, employee *domain.Employee) error {
	const query = `
        INSERT INTO employees (id, organisation_id, name, email, phone, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE SET organisation_id=EXCLUDED.organisation_id, name=EXCLUDED.name,
            email=EXCLUDED.email, phone=EXCLUDED.phone, is_active=EXCLUDED.is_active`
	_, err := r.q.Exec(ctx, query,
		employee.ID,
		employee.OrganisationID,
		employee.Name,
		employee.Email,
		employee.Phone,
		employee.IsActive,
	)
	return mapError(err)
}
