// Package automation evaluates declarative rules against ticket snapshots
// on lifecycle events and executes their actions.
package automation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// RuleSource loads active rules for a trigger in stable order.
type RuleSource interface {
	ListActive(ctx context.Context, trigger domain.AutomationTrigger) ([]domain.AutomationRule, error)
}

// TicketWriter is the mutation surface the engine acts through. SetField and
// ApplyRawPatch deliberately bypass the workflow guards: rules are trusted,
// admin-configured overrides.
type TicketWriter interface {
	SetField(ctx context.Context, ticketID, field, value string) error
	ApplyRawPatch(ctx context.Context, ticketID string, patch map[string]string) error
	Assign(ctx context.Context, ticketID, assignee string) error
	AppendComment(ctx context.Context, ticketID string, author domain.CommentAuthorType, authorName, body string) error
}

// Sender delivers automation notification emails.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string, ticketID *string) error
}

// Engine runs automation rules. Action failures are isolated: each is
// logged and never aborts subsequent actions or rules.
type Engine struct {
	rules   RuleSource
	tickets TicketWriter
	sender  Sender
	logger  *zap.Logger
}

// NewEngine constructs the engine.
func NewEngine(rules RuleSource, tickets TicketWriter, sender Sender, logger *zap.Logger) *Engine {
	return &Engine{rules: rules, tickets: tickets, sender: sender, logger: logger}
}

// Run evaluates all active rules for the trigger against the snapshot and
// executes the actions of every matching rule, in order.
func (e *Engine) Run(ctx context.Context, trigger domain.AutomationTrigger, ticket domain.Ticket) error {
	rules, err := e.rules.ListActive(ctx, trigger)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if !Matches(rule, ticket) {
			continue
		}
		e.logger.Info("automation rule matched",
			zap.String("rule", rule.Name),
			zap.String("ticket", ticket.Code),
			zap.String("trigger", string(trigger)))
		for i, action := range rule.Actions {
			if err := e.execute(ctx, rule, action, ticket); err != nil {
				e.logger.Error("automation action failed",
					zap.String("rule", rule.Name),
					zap.Int("action", i),
					zap.String("type", string(action.Type)),
					zap.String("ticket", ticket.Code),
					zap.Error(err))
			}
		}
	}
	return nil
}

// Matches reports whether every condition of the rule passes against the
// snapshot (logical AND, short-circuit).
func Matches(rule domain.AutomationRule, ticket domain.Ticket) bool {
	for _, cond := range rule.Conditions {
		if !evalCondition(cond, ticket) {
			return false
		}
	}
	return true
}

func evalCondition(cond domain.RuleCondition, ticket domain.Ticket) bool {
	actual := FieldValue(ticket, cond.Field)
	switch cond.Operator {
	case domain.OperatorEquals:
		return looseEqual(actual, cond.Value)
	case domain.OperatorNotEquals:
		return !looseEqual(actual, cond.Value)
	case domain.OperatorContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(cond.Value))
	case domain.OperatorGreaterThan:
		a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
		return errA == nil && errB == nil && a > b
	}
	return false
}

// looseEqual compares numerically when both sides parse as numbers,
// otherwise case-insensitively as strings.
func looseEqual(a, b string) bool {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		return fa == fb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FieldValue resolves a condition field name against the snapshot.
func FieldValue(ticket domain.Ticket, field string) string {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "code":
		return ticket.Code
	case "subject", "title":
		return ticket.Subject
	case "status":
		return string(ticket.Status)
	case "priority":
		return string(ticket.Priority)
	case "queue":
		return string(ticket.Queue)
	case "impact":
		return string(ticket.Impact)
	case "urgency":
		return string(ticket.Urgency)
	case "category":
		return ticket.Category
	case "system":
		return ticket.System
	case "assignee":
		if ticket.Assignee != nil {
			return *ticket.Assignee
		}
		return ""
	case "requester", "requester_email":
		return ticket.RequesterEmail
	case "description":
		return ticket.Description
	}
	return ""
}

func (e *Engine) execute(ctx context.Context, rule domain.AutomationRule, action domain.RuleAction, ticket domain.Ticket) error {
	switch action.Type {
	case domain.ActionSendEmail:
		return e.sendEmail(ctx, rule, action.SendEmail, ticket)
	case domain.ActionUpdateTicket:
		return e.updateTicket(ctx, rule, action.UpdateTicket, ticket)
	case domain.ActionAssignAgent:
		return e.assignAgent(ctx, rule, action.AssignAgent, ticket)
	}
	return fmt.Errorf("unknown action type %q", action.Type)
}

func (e *Engine) sendEmail(ctx context.Context, rule domain.AutomationRule, params *domain.SendEmailParams, ticket domain.Ticket) error {
	if params == nil {
		return fmt.Errorf("send_email params missing")
	}
	to := Render(params.To, ticket)
	subject := Render(params.Subject, ticket)
	body := Render(params.Body, ticket)
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("send_email has no recipient")
	}
	ticketID := ticket.ID
	if err := e.sender.Send(ctx, splitRecipients(to), subject, body, &ticketID); err != nil {
		// Failed sends are recorded as outbound rows by the transport; the
		// workflow itself is never blocked on delivery.
		return err
	}
	return e.tickets.AppendComment(ctx, ticket.ID, domain.CommentAuthorAutomation, rule.Name,
		fmt.Sprintf("Automation sent email to %s: %s", to, subject))
}

func (e *Engine) updateTicket(ctx context.Context, rule domain.AutomationRule, params *domain.UpdateTicketParams, ticket domain.Ticket) error {
	if params == nil {
		return fmt.Errorf("update_ticket params missing")
	}
	var summary string
	switch {
	case params.Field != "":
		if err := e.tickets.SetField(ctx, ticket.ID, params.Field, Render(params.Value, ticket)); err != nil {
			return err
		}
		summary = fmt.Sprintf("Automation set %s=%s", params.Field, params.Value)
	case len(params.Patch) > 0:
		patch := make(map[string]string, len(params.Patch))
		for k, v := range params.Patch {
			patch[k] = Render(v, ticket)
		}
		if err := e.tickets.ApplyRawPatch(ctx, ticket.ID, patch); err != nil {
			return err
		}
		summary = fmt.Sprintf("Automation applied patch (%d fields)", len(patch))
	default:
		return fmt.Errorf("update_ticket params empty")
	}
	return e.tickets.AppendComment(ctx, ticket.ID, domain.CommentAuthorAutomation, rule.Name, summary)
}

func (e *Engine) assignAgent(ctx context.Context, rule domain.AutomationRule, params *domain.AssignAgentParams, ticket domain.Ticket) error {
	if params == nil {
		return fmt.Errorf("assign_agent params missing")
	}
	assignee := params.Assignee
	if assignee == "" {
		assignee = params.AgentEmail
	}
	if strings.TrimSpace(assignee) == "" {
		return fmt.Errorf("assign_agent has no assignee")
	}
	if err := e.tickets.Assign(ctx, ticket.ID, assignee); err != nil {
		return err
	}
	return e.tickets.AppendComment(ctx, ticket.ID, domain.CommentAuthorAutomation, rule.Name,
		fmt.Sprintf("Automation assigned ticket to %s", assignee))
}

func splitRecipients(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
