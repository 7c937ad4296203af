package dto

import "github.com/spec-kit/servicedesk-sla/internal/domain"

// UpsertEmployeeRequest is a directory record pushed by the identity
// service.
type UpsertEmployeeRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	IsActive *bool  `json:"is_active"`
}

// EmployeeResponse represents a directory record.
type EmployeeResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	IsActive bool   `json:"is_active"`
}

// NewEmployeeResponse maps an employee.
func NewEmployeeResponse(e *domain.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:       e.ID,
		Name:     e.Name,
		Email:    e.Email,
		Phone:    e.Phone,
		IsActive: e.IsActive,
	}
}
