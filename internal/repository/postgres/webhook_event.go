package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/pkg/database"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
	"github.com/agamenonmacondo/avashop-sub001/pkg/pagination"
)

const webhookEventColumns = `id, provider, idempotency_key, order_id, status, outcome, signature_valid, payload, received_at`

// WebhookEventRepository implements repository.WebhookEventRepository using
// PostgreSQL.
type WebhookEventRepository struct {
	db database.DBTX
}

// NewWebhookEventRepository creates a new PostgreSQL-backed webhook event repository.
func NewWebhookEventRepository(db database.DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func scanWebhookEvent(row pgx.Row, e *domain.WebhookEvent) error {
	var outcome string
	var payload []byte
	if err := row.Scan(
		&e.ID, &e.Provider, &e.IdempotencyKey, &e.OrderID, &e.Status,
		&outcome, &e.SignatureValid, &payload, &e.ReceivedAt,
	); err != nil {
		return err
	}
	e.Outcome = domain.TransitionOutcome(outcome)
	e.Payload = payload
	return nil
}

// Record claims the idempotency key of e.
func (r *WebhookEventRepository) Record(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (` + webhookEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, idempotency_key) DO NOTHING`

	var payload []byte
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	tag, err := r.db.Exec(ctx, query,
		e.ID, e.Provider, e.IdempotencyKey, e.OrderID, e.Status,
		string(e.Outcome), e.SignatureValid, payload, e.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByKey returns the event recorded under (provider, key).
func (r *WebhookEventRepository) GetByKey(ctx context.Context, provider, key string) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE provider = $1 AND idempotency_key = $2`

	var e domain.WebhookEvent
	if err := scanWebhookEvent(r.db.QueryRow(ctx, query, provider, key), &e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("webhook event", key)
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return &e, nil
}

// SetOutcome stores the result of processing event id.
func (r *WebhookEventRepository) SetOutcome(ctx context.Context, id string, outcome domain.TransitionOutcome) error {
	tag, err := r.db.Exec(ctx, `UPDATE webhook_events SET outcome = $2 WHERE id = $1`, id, string(outcome))
	if err != nil {
		return fmt.Errorf("set webhook outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("webhook event", id)
	}
	return nil
}

// List returns events newest first, optionally for one order.
func (r *WebhookEventRepository) List(ctx context.Context, orderID string, page, perPage int) ([]domain.WebhookEvent, int, error) {
	params := pagination.Params{Page: page, PerPage: perPage}.Normalize()

	query := `
		SELECT ` + webhookEventColumns + `, count(*) OVER() AS total_count
		FROM webhook_events
		WHERE ($1::text = '' OR order_id = $1)
		ORDER BY received_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, orderID, params.PerPage, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var total int
	events := make([]domain.WebhookEvent, 0)
	for rows.Next() {
		var (
			e       domain.WebhookEvent
			outcome string
			payload []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Provider, &e.IdempotencyKey, &e.OrderID, &e.Status,
			&outcome, &e.SignatureValid, &payload, &e.ReceivedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan webhook event: %w", err)
		}
		e.Outcome = domain.TransitionOutcome(outcome)
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate webhook events: %w", err)
	}
	return events, total, nil
}
