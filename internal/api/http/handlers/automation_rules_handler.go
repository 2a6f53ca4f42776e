package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk/internal/api/dto"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/repository"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// AutomationRulesHandler manages rule administration endpoints.
type AutomationRulesHandler struct {
	rules repository.AutomationRuleRepository
}

// NewAutomationRulesHandler constructs handler.
func NewAutomationRulesHandler(rules repository.AutomationRuleRepository) *AutomationRulesHandler {
	return &AutomationRulesHandler{rules: rules}
}

// List GET /automation/rules.
func (h *AutomationRulesHandler) List(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.Context())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.AutomationRuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /automation/rules/:id.
func (h *AutomationRulesHandler) Get(c *fiber.Ctx) error {
	rule, err := h.rules.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return ruleError(err, c.Params("id"))
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Create POST /automation/rules.
func (h *AutomationRulesHandler) Create(c *fiber.Ctx) error {
	rule, err := parseRule(c)
	if err != nil {
		return err
	}
	if err := h.rules.Create(c.Context(), rule); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Update PUT /automation/rules/:id.
func (h *AutomationRulesHandler) Update(c *fiber.Ctx) error {
	rule, err := parseRule(c)
	if err != nil {
		return err
	}
	rule.ID = c.Params("id")
	if err := h.rules.Update(c.Context(), rule); err != nil {
		return ruleError(err, rule.ID)
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Delete DELETE /automation/rules/:id.
func (h *AutomationRulesHandler) Delete(c *fiber.Ctx) error {
	if err := h.rules.Delete(c.Context(), c.Params("id")); err != nil {
		return ruleError(err, c.Params("id"))
	}
	return c.SendStatus(http.StatusNoContent)
}

func parseRule(c *fiber.Ctx) (*domain.AutomationRule, error) {
	var req dto.AutomationRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, apperrors.NewValidationError("body", "invalid payload")
	}
	if req.Name == "" {
		return nil, apperrors.NewValidationError("name", "name is required")
	}
	switch req.Trigger {
	case domain.TriggerTicketCreated, domain.TriggerTicketUpdated:
	default:
		return nil, apperrors.NewValidationError("trigger", "unknown trigger")
	}
	if len(req.Actions) == 0 {
		return nil, apperrors.NewValidationError("actions", "at least one action is required")
	}
	for _, action := range req.Actions {
		switch action.Type {
		case domain.ActionSendEmail, domain.ActionUpdateTicket, domain.ActionAssignAgent:
		default:
			return nil, apperrors.NewValidationError("actions", "unknown action type")
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &domain.AutomationRule{
		Name:       req.Name,
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		Active:     active,
		Position:   req.Position,
	}, nil
}

func ruleError(err error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("automation rule", map[string]any{"rule_id": id})
	}
	return apperrors.MapError(err)
}

func ruleResponse(rule *domain.AutomationRule) dto.AutomationRuleResponse {
	return dto.AutomationRuleResponse{
		ID:         rule.ID,
		Name:       rule.Name,
		Trigger:    rule.Trigger,
		Conditions: rule.Conditions,
		Actions:    rule.Actions,
		Active:     rule.Active,
		Position:   rule.Position,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}
