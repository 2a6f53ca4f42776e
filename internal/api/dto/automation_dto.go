package dto

import (
	"time"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// AutomationRuleRequest payload for create/update.
type AutomationRuleRequest struct {
	Name       string                   `json:"name"`
	Trigger    domain.AutomationTrigger `json:"trigger"`
	Conditions []domain.RuleCondition   `json:"conditions"`
	Actions    []domain.RuleAction      `json:"actions"`
	Active     *bool                    `json:"active"`
	Position   int                      `json:"position"`
}

// AutomationRuleResponse describes a stored rule.
type AutomationRuleResponse struct {
	ID         string                   `json:"id"`
	Name       string                   `json:"name"`
	Trigger    domain.AutomationTrigger `json:"trigger"`
	Conditions []domain.RuleCondition   `json:"conditions"`
	Actions    []domain.RuleAction      `json:"actions"`
	Active     bool                     `json:"active"`
	Position   int                      `json:"position"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}
