package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/servicedesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk-sla/internal/auth"
	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Staff          *handlers.StaffHandler
	Priorities     *handlers.PrioritiesHandler
	SLA            *handlers.SLAHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterOpsRoutes wires the health probes and the Prometheus scrape
// endpoint. health may be nil.
func RegisterOpsRoutes(app *fiber.App, health *handlers.HealthHandler, metrics *observability.Metrics) {
	if health != nil {
		app.Get("/health/live", health.Live)
		app.Get("/health/ready", health.Ready)
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

// NewOpsApp returns a fiber app serving only the ops routes. Processes
// without the public API, such as the sweep worker, listen with it.
func NewOpsApp(name string, health *handlers.HealthHandler, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{AppName: name, DisableStartupMessage: true})
	RegisterOpsRoutes(app, health, metrics)
	return app
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	RegisterOpsRoutes(app, cfg.Health, cfg.Metrics)

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}
	managers := auth.RequireRole(domain.RoleManager, domain.RoleAdmin)

	tickets := app.Group("/tickets", authenticated...)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/self-assign", cfg.StaffTickets.SelfAssign)
	tickets.Patch("/:id/assignee", managers, cfg.StaffTickets.Assign)

	priorities := app.Group("/priorities", authenticated...)
	priorities.Post("/", managers, cfg.Priorities.Create)
	priorities.Get("/", cfg.Priorities.List)
	priorities.Get("/:id", cfg.Priorities.Get)

	slaGroup := app.Group("/sla", authenticated...)
	slaGroup.Get("/timers", cfg.SLA.ListTimers)
	slaGroup.Get("/timers/:ticketId", cfg.SLA.GetTimer)
	slaGroup.Get("/dashboard", cfg.SLA.Dashboard)
	slaGroup.Post("/sweep", auth.RequireRole(domain.RoleAdmin), cfg.SLA.Sweep)

	employees := app.Group("/employees", authenticated...)
	employees.Put("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Staff.UpsertEmployee)
	employees.Get("/:id", cfg.Staff.GetEmployee)
}
