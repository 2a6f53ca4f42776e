package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// CatalogRepository reads service catalog entries.
type CatalogRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ServiceCatalogEntry, error)
	ListActive(ctx context.Context) ([]domain.ServiceCatalogEntry, error)
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository builds repository.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

const catalogColumns = `id, name, category, system, default_priority, requires_approval,
	approver_role, approver_id, auto_assign_to, active, created_at, updated_at`

func (r *catalogRepository) GetByID(ctx context.Context, id string) (*domain.ServiceCatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM service_catalog WHERE id=$1`
	return scanCatalogEntry(r.pool.QueryRow(ctx, query, id))
}

func (r *catalogRepository) ListActive(ctx context.Context) ([]domain.ServiceCatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM service_catalog WHERE active ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ServiceCatalogEntry
	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

func scanCatalogEntry(row pgx.Row) (*domain.ServiceCatalogEntry, error) {
	var entry domain.ServiceCatalogEntry
	if err := row.Scan(
		&entry.ID,
		&entry.Name,
		&entry.Category,
		&entry.System,
		&entry.DefaultPriority,
		&entry.RequiresApproval,
		&entry.ApproverRole,
		&entry.ApproverID,
		&entry.AutoAssignTo,
		&entry.Active,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
