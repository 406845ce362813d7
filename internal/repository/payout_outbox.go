package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
)

const payoutColumns = `id, kind, amount, destination, status, attempts,
	next_attempt_at, provider_ref, last_error, created_at, delivered_at`

type PayoutOutboxRepository struct {
	db *sql.DB
}

func NewPayoutOutboxRepository(db *sql.DB) *PayoutOutboxRepository {
	return &PayoutOutboxRepository{db: db}
}

// Enqueue inserts the intent inside the ledger transaction that funds it,
// so intent and ledger mutation commit or roll back together.
func (r *PayoutOutboxRepository) Enqueue(ctx context.Context, tx *sql.Tx, p *domain.PayoutIntent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payout_outbox (
			id, kind, amount, destination, status, attempts,
			next_attempt_at, provider_ref, last_error, created_at, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Kind, p.Amount, p.Destination, p.Status, p.Attempts,
		p.NextAttemptAt, p.ProviderRef, p.LastError, p.CreatedAt, p.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

// ClaimPending returns pending intents whose next attempt is due. A single
// dispatcher owns delivery, so no claim lock is taken here.
func (r *PayoutOutboxRepository) ClaimPending(ctx context.Context, asOf time.Time, limit int) ([]domain.PayoutIntent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payout_outbox
		 WHERE status = $1 AND next_attempt_at <= $2
		 ORDER BY created_at LIMIT $3`,
		domain.PayoutStatusPending, asOf, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var intents []domain.PayoutIntent
	for rows.Next() {
		var p domain.PayoutIntent
		err := rows.Scan(
			&p.ID, &p.Kind, &p.Amount, &p.Destination, &p.Status, &p.Attempts,
			&p.NextAttemptAt, &p.ProviderRef, &p.LastError, &p.CreatedAt, &p.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		intents = append(intents, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return intents, nil
}

func (r *PayoutOutboxRepository) MarkDelivered(ctx context.Context, id uuid.UUID, providerRef string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payout_outbox SET status = $1, provider_ref = $2, delivered_at = $3
		 WHERE id = $4`,
		domain.PayoutStatusDelivered, providerRef, at, id,
	)
	if err != nil {
		return fmt.Errorf("MarkDelivered: %w", err)
	}
	return nil
}

// RecordFailure bumps the attempt count and schedules the next retry; the
// intent stays pending until maxAttempts, then flips to failed.
func (r *PayoutOutboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, reason string, nextAttempt time.Time, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payout_outbox SET
			attempts = attempts + 1,
			last_error = $1,
			next_attempt_at = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE status END
		 WHERE id = $4`,
		reason, nextAttempt, maxAttempts, id,
	)
	if err != nil {
		return fmt.Errorf("RecordFailure: %w", err)
	}
	return nil
}
