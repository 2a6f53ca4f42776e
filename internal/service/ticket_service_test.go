package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/ingest"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/sla"
	"github.com/spec-kit/servicedesk/internal/workflow"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

type memTickets struct {
	byID map[string]domain.Ticket
	seq  int
}

func newMemTickets() *memTickets {
	return &memTickets{byID: map[string]domain.Ticket{}}
}

func (m *memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.seq++
	ticket.ID = fmt.Sprintf("t-%d", m.seq)
	ticket.Code = fmt.Sprintf("SD-%06d", m.seq)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	m.byID[ticket.ID] = *ticket
	return nil
}

func (m *memTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := m.byID[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	m.byID[ticket.ID] = *ticket
	return nil
}

func (m *memTickets) UpdateFields(_ context.Context, id string, fields map[string]string) error {
	ticket, ok := m.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	for field, value := range fields {
		switch field {
		case "assignee":
			v := value
			ticket.Assignee = &v
		case "category":
			ticket.Category = value
		case "priority":
			ticket.Priority = domain.TicketPriority(value)
		}
	}
	m.byID[id] = ticket
	return nil
}

func (m *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (m *memTickets) GetByCode(_ context.Context, code string) (*domain.Ticket, error) {
	for _, ticket := range m.byID {
		if ticket.Code == code {
			return &ticket, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTickets) ListWithFilter(_ context.Context, _ repository.TicketFilter) ([]domain.Ticket, error) {
	out := make([]domain.Ticket, 0, len(m.byID))
	for _, ticket := range m.byID {
		out = append(out, ticket)
	}
	return out, nil
}

func (m *memTickets) ListDueForWarning(_ context.Context, before time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range m.byID {
		if ticket.IsTerminal() || ticket.SlaDueAt == nil || ticket.SlaWarningAt != nil {
			continue
		}
		if !ticket.SlaDueAt.After(before) {
			out = append(out, ticket)
		}
	}
	return out, nil
}

func (m *memTickets) MarkSlaWarned(_ context.Context, id string, at time.Time) error {
	ticket, ok := m.byID[id]
	if !ok || ticket.SlaWarningAt != nil {
		return pgx.ErrNoRows
	}
	ticket.SlaWarningAt = &at
	m.byID[id] = ticket
	return nil
}

type memComments struct {
	rows []domain.TicketComment
}

func (m *memComments) Create(_ context.Context, comment *domain.TicketComment) error {
	comment.ID = fmt.Sprintf("c-%d", len(m.rows)+1)
	comment.CreatedAt = time.Now()
	m.rows = append(m.rows, *comment)
	return nil
}

func (m *memComments) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketComment, error) {
	var out []domain.TicketComment
	for _, row := range m.rows {
		if row.TicketID == ticketID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memComments) bodies(ticketID string) []string {
	var out []string
	for _, row := range m.rows {
		if row.TicketID == ticketID {
			out = append(out, row.Body)
		}
	}
	return out
}

type memInboundEmails struct {
	rows []domain.InboundEmail
}

func (m *memInboundEmails) Create(_ context.Context, email *domain.InboundEmail) error {
	m.rows = append(m.rows, *email)
	return nil
}

func (m *memInboundEmails) ExistsByMessageID(_ context.Context, messageID string) (bool, error) {
	for _, row := range m.rows {
		if row.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memInboundEmails) LatestByThreadKey(_ context.Context, _ string) (*domain.InboundEmail, error) {
	return nil, nil
}

func (m *memInboundEmails) ListByTicket(_ context.Context, ticketID string) ([]domain.InboundEmail, error) {
	var out []domain.InboundEmail
	for _, row := range m.rows {
		if row.TicketID == ticketID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memOutboundEmails struct {
	rows []domain.OutboundEmail
}

func (m *memOutboundEmails) Create(_ context.Context, email *domain.OutboundEmail) error {
	m.rows = append(m.rows, *email)
	return nil
}

func (m *memOutboundEmails) ListByTicket(_ context.Context, ticketID string) ([]domain.OutboundEmail, error) {
	var out []domain.OutboundEmail
	for _, row := range m.rows {
		if row.TicketID != nil && *row.TicketID == ticketID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memCatalog struct {
	entries map[string]domain.ServiceCatalogEntry
}

func (m *memCatalog) GetByID(_ context.Context, id string) (*domain.ServiceCatalogEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &entry, nil
}

func (m *memCatalog) ListActive(_ context.Context) ([]domain.ServiceCatalogEntry, error) {
	var out []domain.ServiceCatalogEntry
	for _, entry := range m.entries {
		if entry.Active {
			out = append(out, entry)
		}
	}
	return out, nil
}

type fakeTransport struct {
	sent []string
	err  error
}

func (f *fakeTransport) Send(_ context.Context, to []string, subject, _ string, _ *string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, fmt.Sprintf("%v|%s", to, subject))
	return nil
}

type serviceFixture struct {
	service  *TicketService
	tickets  *memTickets
	comments *memComments
	inbound  *memInboundEmails
	outbound *memOutboundEmails
	catalog  *memCatalog
	events   *[]events.Event
}

func newFixture(mailCfg config.MailboxConfig) serviceFixture {
	tickets := newMemTickets()
	comments := &memComments{}
	inbound := &memInboundEmails{}
	outbound := &memOutboundEmails{}
	catalog := &memCatalog{entries: map[string]domain.ServiceCatalogEntry{}}
	dispatcher := events.NewInMemoryDispatcher()

	published := &[]events.Event{}
	record := func(_ context.Context, event events.Event) error {
		*published = append(*published, event)
		return nil
	}
	dispatcher.Subscribe(events.EventTicketCreated, record)
	dispatcher.Subscribe(events.EventTicketUpdated, record)
	dispatcher.Subscribe(events.EventSlaWarning, record)

	svc := NewTicketService(TicketDependencies{
		TicketRepo:   tickets,
		CommentRepo:  comments,
		InboundRepo:  inbound,
		OutboundRepo: outbound,
		CatalogRepo:  catalog,
		Dispatcher:   dispatcher,
		Transport:    &fakeTransport{},
		Policy:       func() sla.Policy { return sla.Policy{}.Normalize() },
		MailConfig:   mailCfg,
		Logger:       zap.NewNop(),
	})
	return serviceFixture{
		service:  svc,
		tickets:  tickets,
		comments: comments,
		inbound:  inbound,
		outbound: outbound,
		catalog:  catalog,
		events:   published,
	}
}

func eventTypes(list []events.Event) []events.EventType {
	out := make([]events.EventType, 0, len(list))
	for _, e := range list {
		out = append(out, e.Type)
	}
	return out
}

func TestCreateTicketPublishesCreated(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	ticket, err := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject:        "Laptop broken",
		System:         "Hardware",
		Category:       "Laptop",
		Impact:         domain.SeverityHigh,
		Urgency:        domain.SeverityHigh,
		RequesterEmail: "User@Example.com",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Code == "" || ticket.Priority != domain.PriorityP0 {
		t.Fatalf("ticket = %+v", ticket)
	}
	if ticket.RequesterEmail != "user@example.com" {
		t.Fatalf("requester not normalized: %q", ticket.RequesterEmail)
	}
	if got := eventTypes(*fx.events); len(got) != 1 || got[0] != events.EventTicketCreated {
		t.Fatalf("events = %v", got)
	}
	if bodies := fx.comments.bodies(ticket.ID); len(bodies) != 1 || bodies[0] != "Ticket created" {
		t.Fatalf("comments = %v", bodies)
	}
}

func TestCreateTicketApprovalGateFromCatalog(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	role := string(domain.AgentRoleApprover)
	fx.catalog.entries["svc-1"] = domain.ServiceCatalogEntry{
		ID: "svc-1", Name: "VPN", RequiresApproval: true, ApproverRole: &role, Active: true,
	}
	serviceID := "svc-1"

	ticket, err := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject:   "VPN access",
		System:    "VPN",
		Category:  "Access",
		ServiceID: &serviceID,
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Status != domain.TicketStatusWaitingApproval {
		t.Fatalf("status = %s", ticket.Status)
	}
	if ticket.SlaDueAt != nil {
		t.Fatal("SLA clock must be off while approval is pending")
	}
}

func TestCreateTicketVendorRequiresOwner(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	_, err := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject:  "vendor work",
		System:   "ERP",
		Category: "Maintenance",
		Queue:    domain.QueueVendor,
	})
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateTicketPublishesUpdatedAndComments(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	ticket, err := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "x", System: "s", Category: "c",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	status := domain.TicketStatusInProgress
	updated, err := fx.service.UpdateTicket(context.Background(), ticket.ID, workflow.Patch{Status: &status}, "agent@example.com")
	if err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}
	if updated.Status != domain.TicketStatusInProgress {
		t.Fatalf("status = %s", updated.Status)
	}
	got := eventTypes(*fx.events)
	if len(got) != 2 || got[1] != events.EventTicketUpdated {
		t.Fatalf("events = %v", got)
	}
	bodies := fx.comments.bodies(ticket.ID)
	if len(bodies) != 2 || bodies[1] != "Status changed: NEW -> IN_PROGRESS" {
		t.Fatalf("comments = %v", bodies)
	}
}

func TestApproveDoesNotRefireAutomationEvents(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	assignTo := "netops@example.com"
	role := string(domain.AgentRoleApprover)
	fx.catalog.entries["svc-1"] = domain.ServiceCatalogEntry{
		ID: "svc-1", RequiresApproval: true, ApproverRole: &role, AutoAssignTo: &assignTo, Active: true,
	}
	serviceID := "svc-1"
	ticket, err := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "firewall change", System: "Network", Category: "Change", ServiceID: &serviceID,
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	eventsBefore := len(*fx.events)

	actor := workflow.Actor{ID: "a-1", Email: "boss@example.com", Roles: []domain.AgentRole{domain.AgentRoleApprover}}
	approved, err := fx.service.Approve(context.Background(), ticket.ID, actor)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != domain.TicketStatusNew || approved.SlaDueAt == nil {
		t.Fatalf("approved = %+v", approved)
	}
	if approved.Assignee == nil || *approved.Assignee != assignTo {
		t.Fatalf("catalog auto-assign missing: %v", approved.Assignee)
	}
	if len(*fx.events) != eventsBefore {
		t.Fatalf("approval must not publish lifecycle events, got %v", eventTypes(*fx.events))
	}
}

func TestRejectCancels(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	role := string(domain.AgentRoleApprover)
	fx.catalog.entries["svc-1"] = domain.ServiceCatalogEntry{
		ID: "svc-1", RequiresApproval: true, ApproverRole: &role, Active: true,
	}
	serviceID := "svc-1"
	ticket, _ := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "x", System: "s", Category: "c", ServiceID: &serviceID,
	})

	actor := workflow.Actor{ID: "a-1", Email: "boss@example.com", Roles: []domain.AgentRole{domain.AgentRoleApprover}}
	rejected, err := fx.service.Reject(context.Background(), ticket.ID, actor, "not needed")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != domain.TicketStatusCancelled {
		t.Fatalf("status = %s", rejected.Status)
	}
	if rejected.ApprovalReason == nil || *rejected.ApprovalReason != "not needed" {
		t.Fatalf("reason = %v", rejected.ApprovalReason)
	}
}

func TestUpdateTicketNotFound(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	_, err := fx.service.UpdateTicket(context.Background(), "missing", workflow.Patch{}, "x")
	if !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCreateFromEmailAppliesDefaults(t *testing.T) {
	fx := newFixture(config.MailboxConfig{
		DefaultQueue:    domain.QueueInternalIT,
		DefaultImpact:   domain.SeverityLow,
		DefaultUrgency:  domain.SeverityLow,
		DefaultCategory: "Email",
		DefaultSystem:   "Email",
	})
	msg := ingest.ParsedMessage{
		MessageID: "<m1@mail>",
		Subject:   "Printer issue",
		From:      "User@Example.com",
		BodyText:  "it is jammed",
	}
	msg.Finalize()

	ticket, err := fx.service.CreateFromEmail(context.Background(), msg, nil)
	if err != nil {
		t.Fatalf("CreateFromEmail: %v", err)
	}
	if ticket.Priority != domain.PriorityP3 {
		t.Fatalf("priority = %s, want P3 from LOW/LOW defaults", ticket.Priority)
	}
	if ticket.RequesterEmail != "user@example.com" {
		t.Fatalf("requester = %q", ticket.RequesterEmail)
	}
	if got := eventTypes(*fx.events); len(got) != 1 || got[0] != events.EventTicketCreated {
		t.Fatalf("events = %v", got)
	}
	bodies := fx.comments.bodies(ticket.ID)
	if len(bodies) != 1 || bodies[0] != "Email received: it is jammed" {
		t.Fatalf("comments = %v", bodies)
	}
}

func TestCreateFromEmailVendorDowngrade(t *testing.T) {
	fx := newFixture(config.MailboxConfig{DefaultQueue: domain.QueueVendor})
	msg := ingest.ParsedMessage{Subject: "x", From: "u@example.com"}
	msg.Finalize()

	ticket, err := fx.service.CreateFromEmail(context.Background(), msg, nil)
	if err != nil {
		t.Fatalf("CreateFromEmail: %v", err)
	}
	if ticket.Queue != domain.QueueInternalIT {
		t.Fatalf("unowned vendor queue must downgrade to internal, got %s", ticket.Queue)
	}

	fx2 := newFixture(config.MailboxConfig{DefaultQueue: domain.QueueVendor, VendorOwnerID: "vendor-7"})
	ticket2, err := fx2.service.CreateFromEmail(context.Background(), msg, nil)
	if err != nil {
		t.Fatalf("CreateFromEmail with owner: %v", err)
	}
	if ticket2.Queue != domain.QueueVendor || ticket2.ExternalOwnerID == nil || *ticket2.ExternalOwnerID != "vendor-7" {
		t.Fatalf("ticket2 = %+v", ticket2)
	}
}

func TestAppendThreadReplyAddsCommentOnly(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	ticket, _ := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "Printer issue", System: "Print", Category: "Hardware",
	})
	before := fx.tickets.byID[ticket.ID]

	msg := ingest.ParsedMessage{Subject: "Re: Printer issue", From: "u@example.com", BodyText: "still broken"}
	msg.Finalize()
	if err := fx.service.AppendThreadReply(context.Background(), ticket.ID, msg); err != nil {
		t.Fatalf("AppendThreadReply: %v", err)
	}

	after := fx.tickets.byID[ticket.ID]
	if before.Status != after.Status || before.UpdatedAt != after.UpdatedAt {
		t.Fatal("thread reply must not mutate ticket state")
	}
	bodies := fx.comments.bodies(ticket.ID)
	if len(bodies) != 2 || bodies[1] != "Email reply: still broken" {
		t.Fatalf("comments = %v", bodies)
	}
}

func TestGetThreadMergesAndOrders(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	ticket, _ := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "x", System: "s", Category: "c",
	})

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	fx.inbound.rows = append(fx.inbound.rows, domain.InboundEmail{
		MessageID: "<m1>", TicketID: ticket.ID, From: "u@example.com",
		Subject: "x", ReceivedAt: base,
	})
	fx.outbound.rows = append(fx.outbound.rows, domain.OutboundEmail{
		TicketID: &ticket.ID, To: []string{"u@example.com"},
		Subject: "Re: x", Status: domain.OutboundStatusSent, CreatedAt: base.Add(time.Hour),
	})
	fx.inbound.rows = append(fx.inbound.rows, domain.InboundEmail{
		MessageID: "<m2>", TicketID: ticket.ID, From: "u@example.com",
		Subject: "Re: x", ReceivedAt: base.Add(2 * time.Hour),
	})

	entries, err := fx.service.GetThread(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	wantDirs := []ThreadDirection{ThreadInbound, ThreadOutbound, ThreadInbound}
	for i, entry := range entries {
		if entry.Direction != wantDirs[i] {
			t.Fatalf("entry %d direction = %s, want %s", i, entry.Direction, wantDirs[i])
		}
	}
}

func TestSendReplyRecordsComment(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	ticket, _ := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "x", System: "s", Category: "c",
	})

	err := fx.service.SendReply(context.Background(), ticket.ID, "agent@example.com",
		[]string{"u@example.com"}, "update", "working on it")
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	bodies := fx.comments.bodies(ticket.ID)
	if len(bodies) != 2 || bodies[1] != "Replied to u@example.com: update" {
		t.Fatalf("comments = %v", bodies)
	}
}

func TestSendReplyTransportFailure(t *testing.T) {
	fx := newFixture(config.MailboxConfig{})
	ticket, _ := fx.service.CreateTicket(context.Background(), CreateTicketInput{
		Subject: "x", System: "s", Category: "c",
	})
	fx.service.transport = &fakeTransport{err: errors.New("relay down")}

	err := fx.service.SendReply(context.Background(), ticket.ID, "agent@example.com",
		[]string{"u@example.com"}, "update", "body")
	if err == nil {
		t.Fatal("transport failure must surface")
	}
	if bodies := fx.comments.bodies(ticket.ID); len(bodies) != 1 {
		t.Fatalf("no reply comment on failure, got %v", bodies)
	}
}
