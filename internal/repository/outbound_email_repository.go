package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// OutboundEmailRepository records sent and failed outbound mail, immutable
// after creation.
type OutboundEmailRepository interface {
	Create(ctx context.Context, email *domain.OutboundEmail) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.OutboundEmail, error)
}

type outboundEmailRepository struct {
	pool *pgxpool.Pool
}

// NewOutboundEmailRepository builds repository.
func NewOutboundEmailRepository(pool *pgxpool.Pool) OutboundEmailRepository {
	return &outboundEmailRepository{pool: pool}
}

func (r *outboundEmailRepository) Create(ctx context.Context, email *domain.OutboundEmail) error {
	const query = `
        INSERT INTO outbound_emails (ticket_id, recipients, cc, bcc, subject, body, status, error_message)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		email.TicketID,
		email.To,
		email.Cc,
		email.Bcc,
		email.Subject,
		email.Body,
		email.Status,
		email.ErrorMessage,
	).Scan(&email.ID, &email.CreatedAt)
}

func (r *outboundEmailRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.OutboundEmail, error) {
	const query = `
        SELECT id, ticket_id, recipients, cc, bcc, subject, body, status, error_message, created_at
        FROM outbound_emails WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboundEmail
	for rows.Next() {
		var email domain.OutboundEmail
		if err := rows.Scan(
			&email.ID,
			&email.TicketID,
			&email.To,
			&email.Cc,
			&email.Bcc,
			&email.Subject,
			&email.Body,
			&email.Status,
			&email.ErrorMessage,
			&email.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, email)
	}
	return result, rows.Err()
}
