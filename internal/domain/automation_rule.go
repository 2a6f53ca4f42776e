package domain

import "time"

// AutomationTrigger names the lifecycle event a rule reacts to.
type AutomationTrigger string

const (
	TriggerTicketCreated AutomationTrigger = "TicketCreated"
	TriggerTicketUpdated AutomationTrigger = "TicketUpdated"
)

// ConditionOperator enumerates rule condition comparisons.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorGreaterThan ConditionOperator = "greater_than"
)

// RuleCondition compares one ticket field against a value.
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// ActionType enumerates what a matching rule may do.
type ActionType string

const (
	ActionSendEmail    ActionType = "SendEmail"
	ActionUpdateTicket ActionType = "UpdateTicket"
	ActionAssignAgent  ActionType = "AssignAgent"
)

// SendEmailParams configures a SendEmail action. Subject and body support
// {{ticket_*}} template tokens.
type SendEmailParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// UpdateTicketParams configures an UpdateTicket action. Either Field+Value
// sets a single field, or Patch applies a raw partial update.
type UpdateTicketParams struct {
	Field string            `json:"field,omitempty"`
	Value string            `json:"value,omitempty"`
	Patch map[string]string `json:"patch,omitempty"`
}

// AssignAgentParams configures an AssignAgent action.
type AssignAgentParams struct {
	Assignee   string `json:"assignee,omitempty"`
	AgentEmail string `json:"agent_email,omitempty"`
}

// RuleAction is a tagged union over the three action types; exactly one of
// the params fields is set, matching Type.
type RuleAction struct {
	Type         ActionType          `json:"type"`
	SendEmail    *SendEmailParams    `json:"send_email,omitempty"`
	UpdateTicket *UpdateTicketParams `json:"update_ticket,omitempty"`
	AssignAgent  *AssignAgentParams  `json:"assign_agent,omitempty"`
}

// AutomationRule is a declarative condition/action pair evaluated on ticket
// lifecycle events. Read-only to the engine at evaluation time.
type AutomationRule struct {
	ID         string
	Name       string
	Trigger    AutomationTrigger
	Conditions []RuleCondition
	Actions    []RuleAction
	Active     bool
	Position   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
