package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/automation"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/repository"
)

// AutomationService bridges lifecycle events to the rule engine. Rule runs
// are fire-and-forget: the publishing request never waits on, or fails
// because of, automation.
type AutomationService struct {
	engine  *automation.Engine
	metrics *observability.Metrics
	logger  *zap.Logger
	timeout time.Duration
}

// NewAutomationService constructs the service.
func NewAutomationService(engine *automation.Engine, metrics *observability.Metrics, logger *zap.Logger) *AutomationService {
	return &AutomationService{
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// RegisterHandlers subscribes the service to ticket lifecycle events.
func (s *AutomationService) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, s.handle(domain.TriggerTicketCreated))
	dispatcher.Subscribe(events.EventTicketUpdated, s.handle(domain.TriggerTicketUpdated))
}

func (s *AutomationService) handle(trigger domain.AutomationTrigger) events.EventHandler {
	return func(_ context.Context, event events.Event) error {
		// Detached from the request context: the run outlives the caller.
		go s.run(trigger, event.Ticket)
		return nil
	}
}

func (s *AutomationService) run(trigger domain.AutomationTrigger, ticket domain.Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.metrics.Inc("automation_runs")
	if err := s.engine.Run(ctx, trigger, ticket); err != nil {
		s.metrics.Inc("automation_errors")
		s.logger.Error("automation run failed",
			zap.String("trigger", string(trigger)),
			zap.String("ticket", ticket.Code),
			zap.Error(err))
	}
}

// automationTicketWriter adapts the repositories to the engine's mutation
// surface. Writes go through the raw-patch path on purpose: automation is
// the one caller allowed to bypass workflow guards.
type automationTicketWriter struct {
	tickets  repository.TicketRepository
	comments repository.CommentRepository
}

// NewAutomationTicketWriter builds the engine's ticket writer.
func NewAutomationTicketWriter(tickets repository.TicketRepository, comments repository.CommentRepository) automation.TicketWriter {
	return &automationTicketWriter{tickets: tickets, comments: comments}
}

func (w *automationTicketWriter) SetField(ctx context.Context, ticketID, field, value string) error {
	return w.tickets.UpdateFields(ctx, ticketID, map[string]string{field: value})
}

func (w *automationTicketWriter) ApplyRawPatch(ctx context.Context, ticketID string, patch map[string]string) error {
	return w.tickets.UpdateFields(ctx, ticketID, patch)
}

func (w *automationTicketWriter) Assign(ctx context.Context, ticketID, assignee string) error {
	return w.tickets.UpdateFields(ctx, ticketID, map[string]string{"assignee": assignee})
}

func (w *automationTicketWriter) AppendComment(ctx context.Context, ticketID string, author domain.CommentAuthorType, authorName, body string) error {
	return w.comments.Create(ctx, &domain.TicketComment{
		TicketID:   ticketID,
		AuthorType: author,
		Author:     authorName,
		Body:       body,
	})
}
