package events

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/servicedesk/internal/domain"
)

func TestPublishInvokesSubscribersInOrder(t *testing.T) {
	d := NewInMemoryDispatcher()
	var order []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, _ Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, _ Event) error {
		order = append(order, "second")
		return nil
	})
	d.Subscribe(EventTicketUpdated, func(_ context.Context, _ Event) error {
		order = append(order, "wrong-type")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
}

func TestPublishHandlerErrorDoesNotStopOthers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var reached bool
	d.Subscribe(EventSlaWarning, func(_ context.Context, _ Event) error {
		return errors.New("boom")
	})
	d.Subscribe(EventSlaWarning, func(_ context.Context, _ Event) error {
		reached = true
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventSlaWarning}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !reached {
		t.Fatal("later handler must still run after a failure")
	}
}

func TestPublishCarriesTicketSnapshot(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got Event
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		got = e
		return nil
	})

	ticket := domain.Ticket{ID: "t-1", Code: "SD-000001", Priority: domain.PriorityP1}
	_ = d.Publish(context.Background(), Event{Type: EventTicketCreated, Ticket: ticket, Actor: "u@example.com"})
	if got.Ticket.Code != "SD-000001" || got.Actor != "u@example.com" {
		t.Fatalf("event = %+v", got)
	}
}
