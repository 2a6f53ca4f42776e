package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
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

// TicketService coordinates the ticket workflow: creation, guarded
// transitions, the approval sub-flow, comments and the email thread read
// model. All mutations are all-or-nothing: validation happens on an
// immutable snapshot before anything is persisted.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	inbound    repository.InboundEmailRepository
	outbound   repository.OutboundEmailRepository
	catalog    repository.CatalogRepository
	dispatcher events.Dispatcher
	transport  MailTransport
	policy     func() sla.Policy
	mailCfg    config.MailboxConfig
	logger     *zap.Logger
}

// MailTransport sends agent replies and records the outcome.
type MailTransport interface {
	Send(ctx context.Context, to []string, subject, body string, ticketID *string) error
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	CommentRepo  repository.CommentRepository
	InboundRepo  repository.InboundEmailRepository
	OutboundRepo repository.OutboundEmailRepository
	CatalogRepo  repository.CatalogRepository
	Dispatcher   events.Dispatcher
	Transport    MailTransport
	Policy       func() sla.Policy
	MailConfig   config.MailboxConfig
	Logger       *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		inbound:    deps.InboundRepo,
		outbound:   deps.OutboundRepo,
		catalog:    deps.CatalogRepo,
		dispatcher: deps.Dispatcher,
		transport:  deps.Transport,
		policy:     deps.Policy,
		mailCfg:    deps.MailConfig,
		logger:     deps.Logger,
	}
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Queue           domain.TicketQueue
	Subject         string
	Description     string
	System          string
	Category        string
	Impact          domain.Severity
	Urgency         domain.Severity
	RequesterEmail  string
	ExternalOwnerID *string
	ServiceID       *string
}

// CreateTicket creates a ticket through the public API path.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Subject) == "" {
		return nil, apperrors.NewValidationError("subject", "subject is required")
	}

	var catalogEntry *domain.ServiceCatalogEntry
	if input.ServiceID != nil && *input.ServiceID != "" {
		entry, err := s.catalog.GetByID(ctx, *input.ServiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("service catalog entry", map[string]any{"service_id": *input.ServiceID})
			}
			return nil, apperrors.MapError(err)
		}
		if !entry.Active {
			return nil, apperrors.NewConflict("service catalog entry inactive", map[string]any{"service_id": entry.ID})
		}
		catalogEntry = entry
	}

	now := time.Now()
	ticket := workflow.NewTicket(workflow.NewTicketInput{
		Queue:          input.Queue,
		Subject:        strings.TrimSpace(input.Subject),
		Description:    strings.TrimSpace(input.Description),
		System:         input.System,
		Category:       input.Category,
		Impact:         input.Impact,
		Urgency:        input.Urgency,
		RequesterEmail: strings.ToLower(strings.TrimSpace(input.RequesterEmail)),
		Catalog:        catalogEntry,
	}, now, s.policy())
	ticket.ExternalOwnerID = input.ExternalOwnerID
	ticket.Status = initialStatusOrTriage(ticket, input)

	if ticket.Queue == domain.QueueVendor && (ticket.ExternalOwnerID == nil || *ticket.ExternalOwnerID == "") {
		return nil, apperrors.NewValidationError("externalOwnerId", "external owner is required for vendor tickets")
	}
	if catalogEntry != nil && !catalogEntry.RequiresApproval && catalogEntry.AutoAssignTo != nil && ticket.Assignee == nil {
		ticket.Assignee = catalogEntry.AutoAssignTo
	}

	if err := s.tickets.Create(ctx, &ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.appendComment(ctx, ticket.ID, domain.CommentAuthorSystem, "system", "Ticket created")
	s.publish(ctx, events.EventTicketCreated, ticket, ticket.RequesterEmail)
	return &ticket, nil
}

// initialStatusOrTriage keeps the approval gate but routes plain API
// tickets missing triage fields into TRIAGE instead of NEW.
func initialStatusOrTriage(ticket domain.Ticket, input CreateTicketInput) domain.TicketStatus {
	if ticket.Status == domain.TicketStatusWaitingApproval {
		return ticket.Status
	}
	if strings.TrimSpace(input.System) == "" || strings.TrimSpace(input.Category) == "" {
		return domain.TicketStatusTriage
	}
	return ticket.Status
}

// UpdateTicket applies a guarded patch through the state machine and
// emits ticket_updated on success.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketID string, patch workflow.Patch, actor string) (*domain.Ticket, error) {
	current, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	result, err := workflow.ApplyUpdate(*current, patch, time.Now(), s.policy())
	if err != nil {
		return nil, err
	}

	if err := s.tickets.Update(ctx, &result.Ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, body := range result.SystemComments {
		s.appendComment(ctx, result.Ticket.ID, domain.CommentAuthorSystem, actor, body)
	}
	s.publish(ctx, events.EventTicketUpdated, result.Ticket, actor)
	return &result.Ticket, nil
}

// Approve decides an approval-gated ticket. Approval is a continuation of
// the ticket's life, not a creation, so automation is not re-triggered.
func (s *TicketService) Approve(ctx context.Context, ticketID string, actor workflow.Actor) (*domain.Ticket, error) {
	current, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	result, err := workflow.Approve(*current, actor, time.Now(), s.policy())
	if err != nil {
		return nil, err
	}

	if result.Ticket.Assignee == nil && result.Ticket.ServiceID != nil {
		if entry, err := s.catalog.GetByID(ctx, *result.Ticket.ServiceID); err == nil && entry.AutoAssignTo != nil {
			result.Ticket.Assignee = entry.AutoAssignTo
		}
	}

	if err := s.tickets.Update(ctx, &result.Ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, body := range result.SystemComments {
		s.appendComment(ctx, result.Ticket.ID, domain.CommentAuthorSystem, actor.Email, body)
	}
	return &result.Ticket, nil
}

// Reject cancels an approval-gated ticket, recording the reason.
func (s *TicketService) Reject(ctx context.Context, ticketID string, actor workflow.Actor, reason string) (*domain.Ticket, error) {
	current, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	result, err := workflow.Reject(*current, actor, reason, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.tickets.Update(ctx, &result.Ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, body := range result.SystemComments {
		s.appendComment(ctx, result.Ticket.ID, domain.CommentAuthorSystem, actor.Email, body)
	}
	return &result.Ticket, nil
}

// AddComment appends a comment to a ticket.
func (s *TicketService) AddComment(ctx context.Context, ticketID string, authorType domain.CommentAuthorType, author, body string) (*domain.TicketComment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("body", "comment body is required")
	}
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	comment := &domain.TicketComment{
		TicketID:   ticketID,
		AuthorType: authorType,
		Author:     author,
		Body:       strings.TrimSpace(body),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	return comment, nil
}

// LinkTarget names a related entity slot on the ticket.
type LinkTarget string

const (
	LinkDemand  LinkTarget = "demand"
	LinkAsset   LinkTarget = "asset"
	LinkService LinkTarget = "service"
)

// LinkRelated attaches a related entity id to the ticket.
func (s *TicketService) LinkRelated(ctx context.Context, ticketID string, target LinkTarget, value string, actor string) (*domain.Ticket, error) {
	if strings.TrimSpace(value) == "" {
		return nil, apperrors.NewValidationError("value", "link value is required")
	}
	patch := workflow.Patch{}
	switch target {
	case LinkDemand:
		patch.DemandID = &value
	case LinkAsset:
		patch.RelatedAssetID = &value
	case LinkService:
		patch.ServiceID = &value
	default:
		return nil, apperrors.NewValidationError("target", fmt.Sprintf("unknown link target %q", target))
	}
	return s.UpdateTicket(ctx, ticketID, patch, actor)
}

// GetTicket returns the ticket with its comment trail.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.TicketComment, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, comments, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ThreadDirection marks an entry as received or sent.
type ThreadDirection string

const (
	ThreadInbound  ThreadDirection = "INBOUND"
	ThreadOutbound ThreadDirection = "OUTBOUND"
)

// ThreadEntry is one element of a ticket's communication thread.
type ThreadEntry struct {
	Direction ThreadDirection
	At        time.Time
	From      string
	To        []string
	Subject   string
	Body      string
	Status    string
}

// GetThread returns the ordered inbound/outbound email trail for a ticket.
func (s *TicketService) GetThread(ctx context.Context, ticketID string) ([]ThreadEntry, error) {
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	in, err := s.inbound.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	out, err := s.outbound.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	entries := make([]ThreadEntry, 0, len(in)+len(out))
	for _, email := range in {
		entries = append(entries, ThreadEntry{
			Direction: ThreadInbound,
			At:        email.ReceivedAt,
			From:      email.From,
			Subject:   email.Subject,
			Body:      email.BodyText,
		})
	}
	for _, email := range out {
		entries = append(entries, ThreadEntry{
			Direction: ThreadOutbound,
			At:        email.CreatedAt,
			To:        email.To,
			Subject:   email.Subject,
			Body:      email.Body,
			Status:    string(email.Status),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

// SendReply sends an agent reply on a ticket. Delivery failures are
// recorded as failed outbound rows; the reply call itself reports them.
func (s *TicketService) SendReply(ctx context.Context, ticketID, actor string, to []string, subject, body string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.transport.Send(ctx, to, subject, body, &ticket.ID); err != nil {
		return err
	}
	s.appendComment(ctx, ticket.ID, domain.CommentAuthorAgent, actor,
		fmt.Sprintf("Replied to %s: %s", strings.Join(to, ", "), subject))
	return nil
}

// CreateFromEmail opens a ticket for an unthreaded inbound message, using
// the configured routing defaults. Part of the ingestion intake surface.
func (s *TicketService) CreateFromEmail(ctx context.Context, msg ingest.ParsedMessage, attachments []domain.EmailAttachment) (*domain.Ticket, error) {
	queue := s.mailCfg.DefaultQueue
	var externalOwner *string
	if queue == domain.QueueVendor {
		if s.mailCfg.VendorOwnerID == "" {
			// Deliberate downgrade: an unowned vendor queue falls back to
			// internal routing rather than failing the message.
			queue = domain.QueueInternalIT
		} else {
			owner := s.mailCfg.VendorOwnerID
			externalOwner = &owner
		}
	}

	impact := s.mailCfg.DefaultImpact
	urgency := s.mailCfg.DefaultUrgency
	if impact == "" {
		impact = domain.SeverityMedium
	}
	if urgency == "" {
		urgency = domain.SeverityMedium
	}

	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	now := time.Now()
	ticket := workflow.NewTicket(workflow.NewTicketInput{
		Queue:          queue,
		Subject:        subject,
		Description:    msg.BodyText,
		System:         s.mailCfg.DefaultSystem,
		Category:       s.mailCfg.DefaultCategory,
		Impact:         impact,
		Urgency:        urgency,
		RequesterEmail: strings.ToLower(strings.TrimSpace(msg.From)),
	}, now, s.policy())
	ticket.ExternalOwnerID = externalOwner

	if err := s.tickets.Create(ctx, &ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.appendComment(ctx, ticket.ID, domain.CommentAuthorRequester, msg.From,
		fmt.Sprintf("Email received: %s", ingest.Snippet(msg.BodyText, 500)))
	s.publish(ctx, events.EventTicketCreated, ticket, msg.From)
	return &ticket, nil
}

// AppendThreadReply records a follow-up email as a comment on the owning
// ticket without changing ticket state.
func (s *TicketService) AppendThreadReply(ctx context.Context, ticketID string, msg ingest.ParsedMessage) error {
	comment := &domain.TicketComment{
		TicketID:   ticketID,
		AuthorType: domain.CommentAuthorRequester,
		Author:     msg.From,
		Body:       fmt.Sprintf("Email reply: %s", ingest.Snippet(msg.BodyText, 500)),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) appendComment(ctx context.Context, ticketID string, authorType domain.CommentAuthorType, author, body string) {
	comment := &domain.TicketComment{
		TicketID:   ticketID,
		AuthorType: authorType,
		Author:     author,
		Body:       body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		s.logger.Error("could not append ticket comment",
			zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticket domain.Ticket, actor string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Ticket:    ticket,
		Actor:     actor,
		Timestamp: time.Now(),
	})
}
