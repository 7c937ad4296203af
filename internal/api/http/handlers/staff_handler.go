package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-sla/internal/api/dto"
	"github.com/spec-kit/servicedesk-sla/internal/service"
	apperrors "github.com/spec-kit/servicedesk-sla/pkg/util/errorutil"
)

// StaffHandler exposes the employee contact directory.
type StaffHandler struct {
	staff *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{staff: staffService}
}

// UpsertEmployee PUT /employees/:id.
func (h *StaffHandler) UpsertEmployee(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpsertEmployeeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	employee, err := h.staff.UpsertEmployee(c.UserContext(), principal, c.Params("id"), service.EmployeeInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		IsActive: active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEmployeeResponse(employee)})
}

// GetEmployee GET /employees/:id.
func (h *StaffHandler) GetEmployee(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	employee, err := h.staff.GetEmployee(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEmployeeResponse(employee)})
}
