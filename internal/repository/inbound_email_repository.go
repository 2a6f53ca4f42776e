package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// InboundEmailRepository manages the append-only inbound email log. Rows
// are created once and never mutated; message_id carries a unique index
// which makes re-polls idempotent.
type InboundEmailRepository interface {
	Create(ctx context.Context, email *domain.InboundEmail) error
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	LatestByThreadKey(ctx context.Context, threadKey string) (*domain.InboundEmail, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.InboundEmail, error)
}

type inboundEmailRepository struct {
	pool *pgxpool.Pool
}

// NewInboundEmailRepository builds repository.
func NewInboundEmailRepository(pool *pgxpool.Pool) InboundEmailRepository {
	return &inboundEmailRepository{pool: pool}
}

func (r *inboundEmailRepository) Create(ctx context.Context, email *domain.InboundEmail) error {
	attachments, err := json.Marshal(email.Attachments)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO inbound_emails (message_id, thread_key, ticket_id, from_addr, subject,
            received_at, body_text, body_html, attachments)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		email.MessageID,
		email.ThreadKey,
		email.TicketID,
		email.From,
		email.Subject,
		email.ReceivedAt,
		email.BodyText,
		email.BodyHTML,
		attachments,
	).Scan(&email.ID, &email.CreatedAt)
}

func (r *inboundEmailRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM inbound_emails WHERE message_id=$1)`, messageID).Scan(&exists)
	return exists, err
}

func (r *inboundEmailRepository) LatestByThreadKey(ctx context.Context, threadKey string) (*domain.InboundEmail, error) {
	const query = `
        SELECT id, message_id, thread_key, ticket_id, from_addr, subject,
               received_at, body_text, body_html, attachments, created_at
        FROM inbound_emails WHERE thread_key=$1 ORDER BY received_at DESC LIMIT 1`
	email, err := scanInboundEmail(r.pool.QueryRow(ctx, query, threadKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return email, nil
}

func (r *inboundEmailRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.InboundEmail, error) {
	const query = `
        SELECT id, message_id, thread_key, ticket_id, from_addr, subject,
               received_at, body_text, body_html, attachments, created_at
        FROM inbound_emails WHERE ticket_id=$1 ORDER BY received_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.InboundEmail
	for rows.Next() {
		email, err := scanInboundEmail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *email)
	}
	return result, rows.Err()
}

func scanInboundEmail(row pgx.Row) (*domain.InboundEmail, error) {
	var email domain.InboundEmail
	var attachments []byte
	if err := row.Scan(
		&email.ID,
		&email.MessageID,
		&email.ThreadKey,
		&email.TicketID,
		&email.From,
		&email.Subject,
		&email.ReceivedAt,
		&email.BodyText,
		&email.BodyHTML,
		&attachments,
		&email.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &email.Attachments); err != nil {
			return nil, err
		}
	}
	return &email, nil
}
