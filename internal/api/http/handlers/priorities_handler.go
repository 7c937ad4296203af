package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-sla/internal/api/dto"
	"github.com/spec-kit/servicedesk-sla/internal/service"
	apperrors "github.com/spec-kit/servicedesk-sla/pkg/util/errorutil"
)

// PrioritiesHandler manages priority endpoints.
type PrioritiesHandler struct {
	priorities *service.PriorityService
}

// NewPrioritiesHandler constructs handler.
func NewPrioritiesHandler(priorityService *service.PriorityService) *PrioritiesHandler {
	return &PrioritiesHandler{priorities: priorityService}
}

// Create POST /priorities. An identical existing priority is returned with
// 200 instead of 201.
func (h *PrioritiesHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	priority, created, err := h.priorities.Create(c.UserContext(), principal, service.PriorityCreateInput{
		UrgencyName:    req.UrgencyName,
		Description:    req.Description,
		ResponseTarget: req.ResponseTargetTime,
	})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewPriorityResponse(priority)})
}

// List GET /priorities.
func (h *PrioritiesHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	priorities, err := h.priorities.List(c.UserContext(), principal)
	if err != nil {
		return err
	}
	items := make([]dto.PriorityResponse, 0, len(priorities))
	for i := range priorities {
		items = append(items, dto.NewPriorityResponse(&priorities[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /priorities/:id.
func (h *PrioritiesHandler) Get(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("invalid priority id", map[string]any{"id": c.Params("id")})
	}
	priority, err := h.priorities.Get(c.UserContext(), principal, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPriorityResponse(priority)})
}
