package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/sla"
)

func newTestMonitor(tickets *memTickets, comments *memComments) (*SlaMonitor, *[]events.Event) {
	dispatcher := events.NewInMemoryDispatcher()
	published := &[]events.Event{}
	dispatcher.Subscribe(events.EventSlaWarning, func(_ context.Context, e events.Event) error {
		*published = append(*published, e)
		return nil
	})
	monitor := NewSlaMonitor(tickets, comments, dispatcher,
		func() sla.Policy { return sla.Policy{}.Normalize() },
		observability.NewMetrics(), zap.NewNop())
	return monitor, published
}

func seedTicket(tickets *memTickets, due time.Time, status domain.TicketStatus) domain.Ticket {
	ticket := domain.Ticket{
		Queue:    domain.QueueInternalIT,
		Status:   status,
		Subject:  "x",
		Priority: domain.PriorityP1,
		SlaDueAt: &due,
	}
	_ = tickets.Create(context.Background(), &ticket)
	tickets.byID[ticket.ID] = ticket
	return ticket
}

func TestSweepOnceWarnsTicketInsideWindow(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	tickets := newMemTickets()
	comments := &memComments{}
	inWindow := seedTicket(tickets, now.Add(30*time.Minute), domain.TicketStatusInProgress)
	seedTicket(tickets, now.Add(3*time.Hour), domain.TicketStatusInProgress)

	monitor, published := newTestMonitor(tickets, comments)
	if err := monitor.SweepOnce(context.Background(), now); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	if len(*published) != 1 {
		t.Fatalf("warnings = %d, want 1 (only the ticket inside the window)", len(*published))
	}
	if (*published)[0].Ticket.ID != inWindow.ID {
		t.Fatalf("warned %q, want %q", (*published)[0].Ticket.ID, inWindow.ID)
	}
	if (*published)[0].Ticket.SlaWarningAt == nil {
		t.Fatal("event snapshot must carry the warning timestamp")
	}

	bodies := comments.bodies(inWindow.ID)
	if len(bodies) != 1 || !strings.HasPrefix(bodies[0], "SLA warning: P1 due at ") {
		t.Fatalf("comments = %v", bodies)
	}
}

func TestSweepOnceWarnsAtMostOnce(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	tickets := newMemTickets()
	comments := &memComments{}
	ticket := seedTicket(tickets, now.Add(10*time.Minute), domain.TicketStatusNew)

	monitor, published := newTestMonitor(tickets, comments)
	if err := monitor.SweepOnce(context.Background(), now); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if err := monitor.SweepOnce(context.Background(), now.Add(time.Minute)); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	if len(*published) != 1 {
		t.Fatalf("warnings = %d, want exactly 1", len(*published))
	}
	if len(comments.bodies(ticket.ID)) != 1 {
		t.Fatalf("comments = %v, want one warning comment", comments.bodies(ticket.ID))
	}
}

func TestSweepOnceSkipsTerminalTickets(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	tickets := newMemTickets()
	comments := &memComments{}
	seedTicket(tickets, now.Add(-time.Hour), domain.TicketStatusClosed)
	seedTicket(tickets, now.Add(-time.Hour), domain.TicketStatusCancelled)

	monitor, published := newTestMonitor(tickets, comments)
	if err := monitor.SweepOnce(context.Background(), now); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if len(*published) != 0 {
		t.Fatalf("terminal tickets must not be warned, got %d", len(*published))
	}
}

func TestSweepOnceOverdueTicketStillWarned(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	tickets := newMemTickets()
	comments := &memComments{}
	ticket := seedTicket(tickets, now.Add(-2*time.Hour), domain.TicketStatusInProgress)

	monitor, published := newTestMonitor(tickets, comments)
	if err := monitor.SweepOnce(context.Background(), now); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if len(*published) != 1 || (*published)[0].Ticket.ID != ticket.ID {
		t.Fatalf("overdue ticket must be warned, got %d events", len(*published))
	}
}
