package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Queue       *domain.TicketQueue
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Assignee    *string
	Requester   *string
	SearchTerm  *string
	OpenedFrom  *time.Time
	OpenedTo    *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. UpdateFields is the
// raw partial-update path used by automation; it bypasses the state
// machine on purpose.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	UpdateFields(ctx context.Context, id string, fields map[string]string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByCode(ctx context.Context, code string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListDueForWarning(ctx context.Context, before time.Time) ([]domain.Ticket, error)
	MarkSlaWarned(ctx context.Context, id string, at time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, code, queue, status, subject, description, system, category,
	impact, urgency, priority, requester_email, assignee, external_owner_id, resolution_notes,
	opened_at, sla_due_at, sla_warning_at, resolved_at, closed_at,
	approval_status, approval_approver_role, approval_approver_id, approval_requested_at,
	approval_decided_at, approval_decided_by, approval_reason,
	demand_id, related_asset_id, service_id, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (code, queue, status, subject, description, system, category,
            impact, urgency, priority, requester_email, assignee, external_owner_id, resolution_notes,
            opened_at, sla_due_at, approval_status, approval_approver_role, approval_approver_id,
            approval_requested_at, demand_id, related_asset_id, service_id)
        VALUES ('SD-' || lpad(nextval('ticket_code_seq')::text, 6, '0'),
            $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
        RETURNING id, code, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Queue,
		ticket.Status,
		ticket.Subject,
		ticket.Description,
		ticket.System,
		ticket.Category,
		ticket.Impact,
		ticket.Urgency,
		ticket.Priority,
		ticket.RequesterEmail,
		ticket.Assignee,
		ticket.ExternalOwnerID,
		ticket.ResolutionNotes,
		ticket.OpenedAt,
		ticket.SlaDueAt,
		ticket.ApprovalStatus,
		ticket.ApprovalApproverRole,
		ticket.ApprovalApproverID,
		ticket.ApprovalRequestedAt,
		ticket.DemandID,
		ticket.RelatedAssetID,
		ticket.ServiceID,
	).Scan(&ticket.ID, &ticket.Code, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET queue=$1, status=$2, subject=$3, description=$4, system=$5, category=$6,
            impact=$7, urgency=$8, priority=$9, assignee=$10, external_owner_id=$11, resolution_notes=$12,
            sla_due_at=$13, resolved_at=$14, closed_at=$15,
            approval_status=$16, approval_approver_role=$17, approval_approver_id=$18,
            approval_requested_at=$19, approval_decided_at=$20, approval_decided_by=$21, approval_reason=$22,
            demand_id=$23, related_asset_id=$24, service_id=$25, updated_at=NOW()
        WHERE id=$26`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Queue,
		ticket.Status,
		ticket.Subject,
		ticket.Description,
		ticket.System,
		ticket.Category,
		ticket.Impact,
		ticket.Urgency,
		ticket.Priority,
		ticket.Assignee,
		ticket.ExternalOwnerID,
		ticket.ResolutionNotes,
		ticket.SlaDueAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ApprovalStatus,
		ticket.ApprovalApproverRole,
		ticket.ApprovalApproverID,
		ticket.ApprovalRequestedAt,
		ticket.ApprovalDecidedAt,
		ticket.ApprovalDecidedBy,
		ticket.ApprovalReason,
		ticket.DemandID,
		ticket.RelatedAssetID,
		ticket.ServiceID,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// rawPatchColumns maps rule field names onto updatable columns. Fields
// outside this map are rejected so automation cannot touch identity or
// audit columns.
var rawPatchColumns = map[string]string{
	"queue":             "queue",
	"status":            "status",
	"subject":           "subject",
	"description":       "description",
	"system":            "system",
	"category":          "category",
	"impact":            "impact",
	"urgency":           "urgency",
	"priority":          "priority",
	"assignee":          "assignee",
	"external_owner_id": "external_owner_id",
	"externalownerid":   "external_owner_id",
	"resolution_notes":  "resolution_notes",
}

func (r *ticketRepository) UpdateFields(ctx context.Context, id string, fields map[string]string) error {
	sets := []string{}
	args := []any{}
	for field, value := range fields {
		column, ok := rawPatchColumns[strings.ToLower(strings.TrimSpace(field))]
		if !ok {
			return fmt.Errorf("field %q is not updatable", field)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE tickets SET %s, updated_at=NOW() WHERE id=$%d",
		strings.Join(sets, ", "), len(args))
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE code=$1`
	return r.fetchSingle(ctx, query, code)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	ticket, err := scanTicket(row)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Queue != nil {
		args = append(args, *filter.Queue)
		clauses = append(clauses, fmt.Sprintf("queue=$%d", len(args)))
	}
	if filter.Assignee != nil {
		args = append(args, *filter.Assignee)
		clauses = append(clauses, fmt.Sprintf("assignee=$%d", len(args)))
	}
	if filter.Requester != nil {
		args = append(args, *filter.Requester)
		clauses = append(clauses, fmt.Sprintf("requester_email=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OpenedFrom != nil {
		args = append(args, *filter.OpenedFrom)
		clauses = append(clauses, fmt.Sprintf("opened_at >= $%d", len(args)))
	}
	if filter.OpenedTo != nil {
		args = append(args, *filter.OpenedTo)
		clauses = append(clauses, fmt.Sprintf("opened_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListDueForWarning(ctx context.Context, before time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE sla_due_at IS NOT NULL AND sla_due_at <= $1 AND sla_warning_at IS NULL
          AND status NOT IN ($2,$3,$4)`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, before,
		domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) MarkSlaWarned(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tickets SET sla_warning_at=$1, updated_at=NOW() WHERE id=$2 AND sla_warning_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := row.Scan(
		&t.ID, &t.Code, &t.Queue, &t.Status, &t.Subject, &t.Description, &t.System, &t.Category,
		&t.Impact, &t.Urgency, &t.Priority, &t.RequesterEmail, &t.Assignee, &t.ExternalOwnerID, &t.ResolutionNotes,
		&t.OpenedAt, &t.SlaDueAt, &t.SlaWarningAt, &t.ResolvedAt, &t.ClosedAt,
		&t.ApprovalStatus, &t.ApprovalApproverRole, &t.ApprovalApproverID, &t.ApprovalRequestedAt,
		&t.ApprovalDecidedAt, &t.ApprovalDecidedBy, &t.ApprovalReason,
		&t.DemandID, &t.RelatedAssetID, &t.ServiceID, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
