package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/sla"
)

// SlaMonitor periodically sweeps open tickets approaching their SLA due
// time and emits a one-shot warning per ticket. The sla_warning_at marker
// on the row guarantees at-most-once even across overlapping sweeps.
type SlaMonitor struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	dispatcher events.Dispatcher
	policy     func() sla.Policy
	metrics    *observability.Metrics
	logger     *zap.Logger
	cron       *cron.Cron
}

// NewSlaMonitor constructs the monitor.
func NewSlaMonitor(
	tickets repository.TicketRepository,
	comments repository.CommentRepository,
	dispatcher events.Dispatcher,
	policy func() sla.Policy,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SlaMonitor {
	return &SlaMonitor{
		tickets:    tickets,
		comments:   comments,
		dispatcher: dispatcher,
		policy:     policy,
		metrics:    metrics,
		logger:     logger,
	}
}

// Start schedules the sweep every minute. Overlapping runs are skipped.
func (m *SlaMonitor) Start() error {
	m.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	if _, err := m.cron.AddFunc("@every 1m", m.sweep); err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("sla monitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (m *SlaMonitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
}

func (m *SlaMonitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m.metrics.Inc("sla_sweeps")
	if err := m.SweepOnce(ctx, time.Now()); err != nil {
		m.metrics.Inc("sla_sweep_errors")
		m.logger.Error("sla sweep failed", zap.Error(err))
	}
}

// SweepOnce warns every open ticket whose due time falls inside the
// warning window as of now.
func (m *SlaMonitor) SweepOnce(ctx context.Context, now time.Time) error {
	window := time.Duration(m.policy().WarningMinutes) * time.Minute
	tickets, err := m.tickets.ListDueForWarning(ctx, now.Add(window))
	if err != nil {
		return err
	}

	for _, ticket := range tickets {
		if err := m.warn(ctx, ticket, now); err != nil {
			m.logger.Error("sla warning failed",
				zap.String("ticket", ticket.Code), zap.Error(err))
		}
	}
	return nil
}

func (m *SlaMonitor) warn(ctx context.Context, ticket domain.Ticket, now time.Time) error {
	if err := m.tickets.MarkSlaWarned(ctx, ticket.ID, now); err != nil {
		return err
	}

	due := "unknown"
	if ticket.SlaDueAt != nil {
		due = ticket.SlaDueAt.Format(time.RFC3339)
	}
	comment := &domain.TicketComment{
		TicketID:   ticket.ID,
		AuthorType: domain.CommentAuthorSystem,
		Author:     "sla-monitor",
		Body:       fmt.Sprintf("SLA warning: %s due at %s", ticket.Priority, due),
	}
	if err := m.comments.Create(ctx, comment); err != nil {
		m.logger.Error("could not record sla warning comment",
			zap.String("ticket", ticket.Code), zap.Error(err))
	}

	warned := ticket
	warned.SlaWarningAt = &now
	if m.dispatcher != nil {
		_ = m.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventSlaWarning,
			Ticket:    warned,
			Actor:     "sla-monitor",
			Timestamp: now,
		})
	}
	m.metrics.Inc("sla_warnings")
	m.logger.Warn("sla warning issued",
		zap.String("ticket", ticket.Code),
		zap.String("priority", string(ticket.Priority)),
		zap.String("due_at", due))
	return nil
}
