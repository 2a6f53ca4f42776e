package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk/internal/api/dto"
	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/service"
	"github.com/spec-kit/servicedesk/internal/workflow"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("body", "invalid payload")
	}

	input := service.CreateTicketInput{
		Queue:           req.Queue,
		Subject:         req.Subject,
		Description:     req.Description,
		System:          req.System,
		Category:        req.Category,
		Impact:          req.Impact,
		Urgency:         req.Urgency,
		RequesterEmail:  req.RequesterEmail,
		ExternalOwnerID: req.ExternalOwnerID,
		ServiceID:       req.ServiceID,
	}
	ticket, err := h.service.CreateTicket(c.Context(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListTickets(c.Context(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, comments, err := h.service.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, comments)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("body", "invalid payload")
	}

	patch := workflow.Patch{
		Status:          req.Status,
		Queue:           req.Queue,
		Subject:         req.Subject,
		Description:     req.Description,
		System:          req.System,
		Category:        req.Category,
		Impact:          req.Impact,
		Urgency:         req.Urgency,
		Priority:        req.Priority,
		Assignee:        req.Assignee,
		ExternalOwnerID: req.ExternalOwnerID,
		ResolutionNotes: req.ResolutionNotes,
	}
	ticket, err := h.service.UpdateTicket(c.Context(), c.Params("id"), patch, principal.Agent.Email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Approve POST /tickets/:id/approve.
func (h *TicketsHandler) Approve(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Approve(c.Context(), c.Params("id"), principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Reject POST /tickets/:id/reject.
func (h *TicketsHandler) Reject(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("body", "invalid payload")
	}
	ticket, err := h.service.Reject(c.Context(), c.Params("id"), principal.Actor(), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("body", "invalid payload")
	}
	comment, err := h.service.AddComment(c.Context(), c.Params("id"),
		domain.CommentAuthorAgent, principal.Agent.Email, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(*comment)})
}

// LinkRelated POST /tickets/:id/links.
func (h *TicketsHandler) LinkRelated(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.LinkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("body", "invalid payload")
	}
	ticket, err := h.service.LinkRelated(c.Context(), c.Params("id"),
		service.LinkTarget(req.Target), req.Value, principal.Agent.Email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// GetThread GET /tickets/:id/thread.
func (h *TicketsHandler) GetThread(c *fiber.Ctx) error {
	entries, err := h.service.GetThread(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ThreadEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.ThreadEntryResponse{
			Direction: string(entry.Direction),
			At:        entry.At,
			From:      entry.From,
			To:        entry.To,
			Subject:   entry.Subject,
			Body:      entry.Body,
			Status:    entry.Status,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Reply POST /tickets/:id/reply.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("body", "invalid payload")
	}
	if len(req.To) == 0 {
		return apperrors.NewValidationError("to", "at least one recipient is required")
	}
	if err := h.service.SendReply(c.Context(), c.Params("id"), principal.Agent.Email, req.To, req.Subject, req.Body); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": "sent"})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return nil, apperrors.NewUnauthorized("agent required")
	}
	return principal, nil
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if queueStr := c.Query("queue"); queueStr != "" {
		queue := domain.TicketQueue(strings.TrimSpace(queueStr))
		filter.Queue = &queue
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if assignee := c.Query("assignee"); assignee != "" {
		filter.Assignee = &assignee
	}
	if requester := c.Query("requester"); requester != "" {
		filter.Requester = &requester
	}
	if term := c.Query("q"); term != "" {
		filter.SearchTerm = &term
	}
	if from := parseTime(c.Query("opened_from")); from != nil {
		filter.OpenedFrom = from
	}
	if to := parseTime(c.Query("opened_to")); to != nil {
		filter.OpenedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		Code:           ticket.Code,
		Queue:          ticket.Queue,
		Status:         ticket.Status,
		Subject:        ticket.Subject,
		Priority:       ticket.Priority,
		Impact:         ticket.Impact,
		Urgency:        ticket.Urgency,
		RequesterEmail: ticket.RequesterEmail,
		Assignee:       ticket.Assignee,
		SlaDueAt:       ticket.SlaDueAt,
		OpenedAt:       ticket.OpenedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, comments []domain.TicketComment) dto.TicketDetailResponse {
	items := make([]dto.CommentResponse, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentResponse(comment))
	}
	return dto.TicketDetailResponse{
		TicketSummary:   ticketSummary(ticket),
		Description:     ticket.Description,
		System:          ticket.System,
		Category:        ticket.Category,
		ExternalOwnerID: ticket.ExternalOwnerID,
		ResolutionNotes: ticket.ResolutionNotes,
		ApprovalStatus:  ticket.ApprovalStatus,
		ApprovalReason:  ticket.ApprovalReason,
		DemandID:        ticket.DemandID,
		RelatedAssetID:  ticket.RelatedAssetID,
		ServiceID:       ticket.ServiceID,
		SlaWarningAt:    ticket.SlaWarningAt,
		ResolvedAt:      ticket.ResolvedAt,
		ClosedAt:        ticket.ClosedAt,
		Comments:        items,
	}
}

func commentResponse(comment domain.TicketComment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:         comment.ID,
		AuthorType: comment.AuthorType,
		Author:     comment.Author,
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt,
	}
}
