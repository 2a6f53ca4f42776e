package dto

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Queue           domain.TicketQueue `json:"queue"`
	Subject         string             `json:"subject"`
	Description     string             `json:"description"`
	System          string             `json:"system"`
	Category        string             `json:"category"`
	Impact          domain.Severity    `json:"impact"`
	Urgency         domain.Severity    `json:"urgency"`
	RequesterEmail  string             `json:"requester_email"`
	ExternalOwnerID *string            `json:"external_owner_id"`
	ServiceID       *string            `json:"service_id"`
}

// UpdateTicketRequest is a partial patch; absent fields stay unchanged.
type UpdateTicketRequest struct {
	Status          *domain.TicketStatus   `json:"status"`
	Queue           *domain.TicketQueue    `json:"queue"`
	Subject         *string                `json:"subject"`
	Description     *string                `json:"description"`
	System          *string                `json:"system"`
	Category        *string                `json:"category"`
	Impact          *domain.Severity       `json:"impact"`
	Urgency         *domain.Severity       `json:"urgency"`
	Priority        *domain.TicketPriority `json:"priority"`
	Assignee        *string                `json:"assignee"`
	ExternalOwnerID *string                `json:"external_owner_id"`
	ResolutionNotes *string                `json:"resolution_notes"`
}

// RejectRequest payload.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// CommentRequest payload.
type CommentRequest struct {
	Body string `json:"body"`
}

// LinkRequest payload for attaching related entities.
type LinkRequest struct {
	Target string `json:"target"`
	Value  string `json:"value"`
}

// ReplyRequest payload for agent outbound email.
type ReplyRequest struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	Code           string                `json:"code"`
	Queue          domain.TicketQueue    `json:"queue"`
	Status         domain.TicketStatus   `json:"status"`
	Subject        string                `json:"subject"`
	Priority       domain.TicketPriority `json:"priority"`
	Impact         domain.Severity       `json:"impact"`
	Urgency        domain.Severity       `json:"urgency"`
	RequesterEmail string                `json:"requester_email"`
	Assignee       *string               `json:"assignee"`
	SlaDueAt       *time.Time            `json:"sla_due_at"`
	OpenedAt       time.Time             `json:"opened_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description     string                `json:"description"`
	System          string                `json:"system"`
	Category        string                `json:"category"`
	ExternalOwnerID *string               `json:"external_owner_id"`
	ResolutionNotes *string               `json:"resolution_notes"`
	ApprovalStatus  domain.ApprovalStatus `json:"approval_status"`
	ApprovalReason  *string               `json:"approval_reason,omitempty"`
	DemandID        *string               `json:"demand_id"`
	RelatedAssetID  *string               `json:"related_asset_id"`
	ServiceID       *string               `json:"service_id"`
	SlaWarningAt    *time.Time            `json:"sla_warning_at"`
	ResolvedAt      *time.Time            `json:"resolved_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
	Comments        []CommentResponse     `json:"comments"`
}

// CommentResponse represents one comment in the trail.
type CommentResponse struct {
	ID         string                   `json:"id"`
	AuthorType domain.CommentAuthorType `json:"author_type"`
	Author     string                   `json:"author"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// ThreadEntryResponse is one element of the email thread view.
type ThreadEntryResponse struct {
	Direction string    `json:"direction"`
	At        time.Time `json:"at"`
	From      string    `json:"from,omitempty"`
	To        []string  `json:"to,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Status    string    `json:"status,omitempty"`
}
