// Package workflow implements the ticket state machine as pure functions:
// each transition takes the current snapshot and a patch and returns a new
// snapshot, keeping validation separate from persistence.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/sla"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// Patch carries the fields a caller wants to change. Nil means "leave as is".
type Patch struct {
	Status          *domain.TicketStatus
	Queue           *domain.TicketQueue
	Subject         *string
	Description     *string
	System          *string
	Category        *string
	Impact          *domain.Severity
	Urgency         *domain.Severity
	Priority        *domain.TicketPriority
	Assignee        *string
	ExternalOwnerID *string
	ResolutionNotes *string
	DemandID        *string
	RelatedAssetID  *string
	ServiceID       *string
}

// Result is the outcome of a successful transition: the new snapshot plus
// the system comments to append alongside it.
type Result struct {
	Ticket         domain.Ticket
	SystemComments []string
	StatusChanged  bool
}

// ApplyUpdate validates patch against current and returns the updated
// snapshot. All-or-nothing: on error the input ticket is untouched.
func ApplyUpdate(current domain.Ticket, patch Patch, now time.Time, policy sla.Policy) (Result, error) {
	next := current

	nextStatus := current.Status
	if patch.Status != nil {
		nextStatus = *patch.Status
	}

	// Approval-gated tickets leave WAITING_APPROVAL only through the
	// dedicated Approve/Reject operations.
	if current.Status == domain.TicketStatusWaitingApproval && nextStatus != domain.TicketStatusWaitingApproval {
		return Result{}, apperrors.NewInvalidState("ticket is pending approval; use approve or reject")
	}

	applyStrings(&next, patch)
	if patch.Queue != nil {
		next.Queue = *patch.Queue
	}
	if patch.Impact != nil {
		next.Impact = *patch.Impact
	}
	if patch.Urgency != nil {
		next.Urgency = *patch.Urgency
	}
	next.Status = nextStatus

	if current.Status == domain.TicketStatusTriage && nextStatus != domain.TicketStatusTriage {
		if field, ok := missingTriageField(next); ok {
			return Result{}, apperrors.NewValidationError(field, fmt.Sprintf("%s is required to leave triage", field))
		}
	}

	if next.Queue == domain.QueueVendor || next.Status == domain.TicketStatusWaitingVendor {
		if next.ExternalOwnerID == nil || strings.TrimSpace(*next.ExternalOwnerID) == "" {
			return Result{}, apperrors.NewValidationError("externalOwnerId", "external owner is required for vendor tickets")
		}
	}

	if next.Status == domain.TicketStatusResolved && current.Status != domain.TicketStatusResolved {
		if next.ResolutionNotes == nil || strings.TrimSpace(*next.ResolutionNotes) == "" {
			return Result{}, apperrors.NewValidationError("resolutionNotes", "resolution notes are required to resolve")
		}
		if next.ResolvedAt == nil {
			resolvedAt := now
			next.ResolvedAt = &resolvedAt
		}
	}
	if next.Status == domain.TicketStatusClosed && next.ClosedAt == nil {
		closedAt := now
		next.ClosedAt = &closedAt
	}

	// Priority follows impact x urgency unless the patch carries an
	// explicit, valid override.
	if patch.Priority != nil && domain.ValidPriority(*patch.Priority) {
		next.Priority = *patch.Priority
	} else {
		next.Priority = sla.ComputePriority(next.Impact, next.Urgency)
	}

	// SLA is always anchored at the original openedAt, never the update time.
	if next.Status == domain.TicketStatusWaitingApproval {
		next.SlaDueAt = nil
	} else {
		dueAt := sla.ComputeSlaDueAt(next.Priority, next.OpenedAt, policy)
		next.SlaDueAt = &dueAt
	}

	result := Result{Ticket: next}
	if next.Status != current.Status {
		result.StatusChanged = true
		result.SystemComments = append(result.SystemComments,
			fmt.Sprintf("Status changed: %s -> %s", current.Status, next.Status))
	}
	return result, nil
}

func applyStrings(next *domain.Ticket, patch Patch) {
	if patch.Subject != nil {
		next.Subject = *patch.Subject
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.System != nil {
		next.System = *patch.System
	}
	if patch.Category != nil {
		next.Category = *patch.Category
	}
	if patch.Assignee != nil {
		next.Assignee = patch.Assignee
	}
	if patch.ExternalOwnerID != nil {
		next.ExternalOwnerID = patch.ExternalOwnerID
	}
	if patch.ResolutionNotes != nil {
		next.ResolutionNotes = patch.ResolutionNotes
	}
	if patch.DemandID != nil {
		next.DemandID = patch.DemandID
	}
	if patch.RelatedAssetID != nil {
		next.RelatedAssetID = patch.RelatedAssetID
	}
	if patch.ServiceID != nil {
		next.ServiceID = patch.ServiceID
	}
}

func missingTriageField(t domain.Ticket) (string, bool) {
	switch {
	case strings.TrimSpace(t.System) == "":
		return "system", true
	case strings.TrimSpace(t.Category) == "":
		return "category", true
	case t.Impact == "":
		return "impact", true
	case t.Urgency == "":
		return "urgency", true
	case t.Queue == "":
		return "queue", true
	}
	return "", false
}

// NewTicketInput carries what is needed to construct an initial snapshot.
type NewTicketInput struct {
	Queue          domain.TicketQueue
	Subject        string
	Description    string
	System         string
	Category       string
	Impact         domain.Severity
	Urgency        domain.Severity
	RequesterEmail string
	Catalog        *domain.ServiceCatalogEntry
}

// NewTicket builds the initial snapshot. Tickets start in NEW unless the
// originating catalog entry requires approval, in which case they start in
// WAITING_APPROVAL with no SLA clock.
func NewTicket(in NewTicketInput, now time.Time, policy sla.Policy) domain.Ticket {
	ticket := domain.Ticket{
		Queue:          in.Queue,
		Status:         domain.TicketStatusNew,
		Subject:        in.Subject,
		Description:    in.Description,
		System:         in.System,
		Category:       in.Category,
		Impact:         in.Impact,
		Urgency:        in.Urgency,
		RequesterEmail: in.RequesterEmail,
		OpenedAt:       now,
		ApprovalStatus: domain.ApprovalNone,
	}
	if ticket.Queue == "" {
		ticket.Queue = domain.QueueInternalIT
	}
	if ticket.Impact == "" {
		ticket.Impact = domain.SeverityMedium
	}
	if ticket.Urgency == "" {
		ticket.Urgency = domain.SeverityMedium
	}

	ticket.Priority = sla.ComputePriority(ticket.Impact, ticket.Urgency)

	if cat := in.Catalog; cat != nil {
		if ticket.Category == "" {
			ticket.Category = cat.Category
		}
		if ticket.System == "" {
			ticket.System = cat.System
		}
		if cat.DefaultPriority != nil && domain.ValidPriority(*cat.DefaultPriority) {
			ticket.Priority = *cat.DefaultPriority
		}
		ticket.ServiceID = &cat.ID
		if cat.RequiresApproval {
			ticket.Status = domain.TicketStatusWaitingApproval
			ticket.ApprovalStatus = domain.ApprovalPending
			requestedAt := now
			ticket.ApprovalRequestedAt = &requestedAt
			ticket.ApprovalApproverRole = cat.ApproverRole
			ticket.ApprovalApproverID = cat.ApproverID
		}
	}

	if ticket.Status != domain.TicketStatusWaitingApproval {
		dueAt := sla.ComputeSlaDueAt(ticket.Priority, ticket.OpenedAt, policy)
		ticket.SlaDueAt = &dueAt
	}
	return ticket
}
