package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew              TicketStatus = "NEW"
	TicketStatusTriage           TicketStatus = "TRIAGE"
	TicketStatusInProgress       TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingVendor    TicketStatus = "WAITING_VENDOR"
	TicketStatusWaitingRequester TicketStatus = "WAITING_REQUESTER"
	TicketStatusWaitingApproval  TicketStatus = "WAITING_APPROVAL"
	TicketStatusResolved         TicketStatus = "RESOLVED"
	TicketStatusClosed           TicketStatus = "CLOSED"
	TicketStatusCancelled        TicketStatus = "CANCELLED"
)

// TicketQueue is the routing bucket a ticket belongs to.
type TicketQueue string

const (
	QueueInternalIT TicketQueue = "INTERNAL_IT"
	QueueVendor     TicketQueue = "VENDOR"
)

// Severity grades impact and urgency.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// TicketPriority is derived from impact and urgency.
type TicketPriority string

const (
	PriorityP0 TicketPriority = "P0"
	PriorityP1 TicketPriority = "P1"
	PriorityP2 TicketPriority = "P2"
	PriorityP3 TicketPriority = "P3"
)

// ValidPriority reports whether p is one of P0..P3.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	}
	return false
}

// ApprovalStatus tracks the approval gate on a ticket.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "NONE"
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Ticket is the aggregate for service-desk requests.
type Ticket struct {
	ID              string
	Code            string
	Queue           TicketQueue
	Status          TicketStatus
	Subject         string
	Description     string
	System          string
	Category        string
	Impact          Severity
	Urgency         Severity
	Priority        TicketPriority
	RequesterEmail  string
	Assignee        *string
	ExternalOwnerID *string
	ResolutionNotes *string

	OpenedAt     time.Time
	SlaDueAt     *time.Time
	SlaWarningAt *time.Time
	ResolvedAt   *time.Time
	ClosedAt     *time.Time

	ApprovalStatus       ApprovalStatus
	ApprovalApproverRole *string
	ApprovalApproverID   *string
	ApprovalRequestedAt  *time.Time
	ApprovalDecidedAt    *time.Time
	ApprovalDecidedBy    *string
	ApprovalReason       *string

	DemandID       *string
	RelatedAssetID *string
	ServiceID      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the ticket can no longer transition.
func (t *Ticket) IsTerminal() bool {
	return t.Status == TicketStatusClosed || t.Status == TicketStatusCancelled
}
