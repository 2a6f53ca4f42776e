package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Automation     *handlers.AutomationRulesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Auth.Login)

	// Ticket creation stays open: requesters are identified by email, not
	// by an account.
	app.Post("/tickets", cfg.Tickets.CreateTicket)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Post("/auth/agents", auth.RequireRole(domain.AgentRoleAdmin), cfg.Auth.Register)

	tickets := protected.Group("/tickets")
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/approve", cfg.Tickets.Approve)
	tickets.Post("/:id/reject", cfg.Tickets.Reject)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/links", cfg.Tickets.LinkRelated)
	tickets.Get("/:id/thread", cfg.Tickets.GetThread)
	tickets.Post("/:id/reply", cfg.Tickets.Reply)

	rules := protected.Group("/automation/rules", auth.RequireRole(domain.AgentRoleAdmin))
	rules.Get("", cfg.Automation.List)
	rules.Get("/:id", cfg.Automation.Get)
	rules.Post("", cfg.Automation.Create)
	rules.Put("/:id", cfg.Automation.Update)
	rules.Delete("/:id", cfg.Automation.Delete)
}
