package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// AutomationRuleRepository stores declarative automation rules. The engine
// reads them; only the admin API writes them.
type AutomationRuleRepository interface {
	Create(ctx context.Context, rule *domain.AutomationRule) error
	Update(ctx context.Context, rule *domain.AutomationRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.AutomationRule, error)
	List(ctx context.Context) ([]domain.AutomationRule, error)
	ListActive(ctx context.Context, trigger domain.AutomationTrigger) ([]domain.AutomationRule, error)
}

type automationRuleRepository struct {
	pool *pgxpool.Pool
}

// NewAutomationRuleRepository builds repository.
func NewAutomationRuleRepository(pool *pgxpool.Pool) AutomationRuleRepository {
	return &automationRuleRepository{pool: pool}
}

func (r *automationRuleRepository) Create(ctx context.Context, rule *domain.AutomationRule) error {
	conditions, actions, err := marshalRule(rule)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO automation_rules (name, trigger, conditions, actions, active, position)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name, rule.Trigger, conditions, actions, rule.Active, rule.Position,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *automationRuleRepository) Update(ctx context.Context, rule *domain.AutomationRule) error {
	conditions, actions, err := marshalRule(rule)
	if err != nil {
		return err
	}
	const query = `
        UPDATE automation_rules SET name=$1, trigger=$2, conditions=$3, actions=$4,
            active=$5, position=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name, rule.Trigger, conditions, actions, rule.Active, rule.Position, rule.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *automationRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM automation_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *automationRuleRepository) GetByID(ctx context.Context, id string) (*domain.AutomationRule, error) {
	const query = `
        SELECT id, name, trigger, conditions, actions, active, position, created_at, updated_at
        FROM automation_rules WHERE id=$1`
	return scanRule(r.pool.QueryRow(ctx, query, id))
}

func (r *automationRuleRepository) List(ctx context.Context) ([]domain.AutomationRule, error) {
	const query = `
        SELECT id, name, trigger, conditions, actions, active, position, created_at, updated_at
        FROM automation_rules ORDER BY position ASC, created_at ASC`
	return r.queryRules(ctx, query)
}

func (r *automationRuleRepository) ListActive(ctx context.Context, trigger domain.AutomationTrigger) ([]domain.AutomationRule, error) {
	const query = `
        SELECT id, name, trigger, conditions, actions, active, position, created_at, updated_at
        FROM automation_rules WHERE active AND trigger=$1 ORDER BY position ASC, created_at ASC`
	return r.queryRules(ctx, query, trigger)
}

func (r *automationRuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]domain.AutomationRule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func marshalRule(rule *domain.AutomationRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, err
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, err
	}
	return conditions, actions, nil
}

func scanRule(row pgx.Row) (*domain.AutomationRule, error) {
	var rule domain.AutomationRule
	var conditions, actions []byte
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Trigger,
		&conditions,
		&actions,
		&rule.Active,
		&rule.Position,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, err
	}
	return &rule, nil
}
