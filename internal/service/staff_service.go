package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	apperrors "github.com/spec-kit/servicedesk-sla/pkg/util/errorutil"
)

// StaffService maintains the employee contact directory pushed by the
// identity service. Only contact details live here; accounts and
// credentials stay with the identity service.
type StaffService struct {
	employees repository.EmployeeRepository
}

// EmployeeInput is one directory record.
type EmployeeInput struct {
	Name     string
	Email    string
	Phone    string
	IsActive bool
}

// NewStaffService constructs the service.
func NewStaffService(store repository.Store) *StaffService {
	return &StaffService{employees: store.Employees()}
}

func requireAdmin(actor *domain.Principal) error {
	if !actor.HasRole(domain.RoleAdmin) {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// UpsertEmployee creates or replaces the contact record of employeeID in
// the caller's organisation.
func (s *StaffService) UpsertEmployee(ctx context.Context, actor *domain.Principal, employeeID string, input EmployeeInput) (*domain.Employee, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, apperrors.NewValidationError("employee id is required", nil)
	}
	email := strings.TrimSpace(input.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": email})
		}
	}

	if existing, err := s.employees.GetByID(ctx, employeeID); err == nil && existing.OrganisationID != actor.OrganisationID {
		return nil, apperrors.NewConflict("employee belongs to another organisation", map[string]any{"employee_id": employeeID})
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	employee := &domain.Employee{
		ID:             employeeID,
		OrganisationID: actor.OrganisationID,
		Name:           strings.TrimSpace(input.Name),
		Email:          email,
		Phone:          strings.TrimSpace(input.Phone),
		IsActive:       input.IsActive,
	}
	if err := s.employees.Upsert(ctx, employee); err != nil {
		return nil, err
	}
	return employee, nil
}

// GetEmployee returns a directory record of the caller's organisation.
func (s *StaffService) GetEmployee(ctx context.Context, actor *domain.Principal, employeeID string) (*domain.Employee, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("employee required")
	}
	employee, err := s.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if employee.OrganisationID != actor.OrganisationID {
		return nil, apperrors.NewNotFound("employee", map[string]any{"employee_id": employeeID})
	}
	return employee, nil
}
