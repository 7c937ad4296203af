package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-sla/internal/api/dto"
	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/service"
)

// SLAHandler exposes timer reports and the manual sweep trigger.
type SLAHandler struct {
	sla     *service.SLAService
	tickets *service.TicketService
	clock   clock.Clock
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService, ticketService *service.TicketService, clk clock.Clock) *SLAHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &SLAHandler{sla: slaService, tickets: ticketService, clock: clk}
}

// ListTimers GET /sla/timers.
func (h *SLAHandler) ListTimers(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	timers, err := h.sla.ListTimers(c.UserContext(), principal.OrganisationID)
	if err != nil {
		return err
	}
	items := make([]dto.TimerResponse, 0, len(timers))
	for _, t := range timers {
		items = append(items, dto.NewTimerResponse(t.Timer, t.TotalPaused))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTimer GET /sla/timers/:ticketId.
func (h *SLAHandler) GetTimer(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), principal, c.Params("ticketId"))
	if err != nil {
		return err
	}
	report, err := h.sla.TimerView(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTimerDetailResponse(report)})
}

// Dashboard GET /sla/dashboard.
func (h *SLAHandler) Dashboard(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	dash, err := h.sla.Dashboard(c.UserContext(), principal.OrganisationID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDashboardResponse(dash)})
}

// Sweep POST /sla/sweep runs a sweep now and reports its counts.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.sla.RunSweep(c.UserContext(), h.clock.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}
