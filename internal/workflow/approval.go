package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/sla"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// Actor identifies who is performing an approval decision.
type Actor struct {
	ID    string
	Email string
	Roles []domain.AgentRole
}

// HasRole reports whether the actor holds the given role name.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(string(r), role) {
			return true
		}
	}
	return false
}

func (a Actor) canDecide(ticket domain.Ticket) bool {
	if ticket.ApprovalApproverID != nil && *ticket.ApprovalApproverID != "" {
		return *ticket.ApprovalApproverID == a.ID
	}
	if ticket.ApprovalApproverRole != nil && *ticket.ApprovalApproverRole != "" {
		return a.HasRole(*ticket.ApprovalApproverRole)
	}
	return a.HasRole(string(domain.AgentRoleApprover)) || a.HasRole(string(domain.AgentRoleAdmin))
}

// Approve moves a WAITING_APPROVAL ticket to NEW and starts its SLA clock.
// Authorization failures surface as FORBIDDEN, distinct from state errors.
func Approve(ticket domain.Ticket, actor Actor, now time.Time, policy sla.Policy) (Result, error) {
	if ticket.Status != domain.TicketStatusWaitingApproval {
		return Result{}, apperrors.NewInvalidState("ticket is not awaiting approval")
	}
	if !actor.canDecide(ticket) {
		return Result{}, apperrors.NewForbidden("actor is not authorized to decide this approval")
	}

	next := ticket
	next.Status = domain.TicketStatusNew
	next.ApprovalStatus = domain.ApprovalApproved
	decidedAt := now
	next.ApprovalDecidedAt = &decidedAt
	decidedBy := actor.ID
	next.ApprovalDecidedBy = &decidedBy
	dueAt := sla.ComputeSlaDueAt(next.Priority, next.OpenedAt, policy)
	next.SlaDueAt = &dueAt

	return Result{
		Ticket:        next,
		StatusChanged: true,
		SystemComments: []string{
			fmt.Sprintf("Approval granted by %s", actor.Email),
			fmt.Sprintf("Status changed: %s -> %s", ticket.Status, next.Status),
		},
	}, nil
}

// Reject moves a WAITING_APPROVAL ticket to CANCELLED, recording the reason.
func Reject(ticket domain.Ticket, actor Actor, reason string, now time.Time) (Result, error) {
	if ticket.Status != domain.TicketStatusWaitingApproval {
		return Result{}, apperrors.NewInvalidState("ticket is not awaiting approval")
	}
	if !actor.canDecide(ticket) {
		return Result{}, apperrors.NewForbidden("actor is not authorized to decide this approval")
	}

	next := ticket
	next.Status = domain.TicketStatusCancelled
	next.ApprovalStatus = domain.ApprovalRejected
	decidedAt := now
	next.ApprovalDecidedAt = &decidedAt
	decidedBy := actor.ID
	next.ApprovalDecidedBy = &decidedBy
	if strings.TrimSpace(reason) != "" {
		next.ApprovalReason = &reason
	}

	comment := fmt.Sprintf("Approval rejected by %s", actor.Email)
	if strings.TrimSpace(reason) != "" {
		comment += ": " + reason
	}
	return Result{
		Ticket:        next,
		StatusChanged: true,
		SystemComments: []string{
			comment,
			fmt.Sprintf("Status changed: %s -> %s", ticket.Status, next.Status),
		},
	}, nil
}
