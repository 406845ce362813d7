package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
)

const postingColumns = `id, type, period, rate, total_amount, beneficiaries,
	status, error, created_at, completed_at`

type PostingRepository struct {
	db *sql.DB
}

func NewPostingRepository(db *sql.DB) *PostingRepository {
	return &PostingRepository{db: db}
}

func (r *PostingRepository) CreateLog(ctx context.Context, l *domain.PostingLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posting_logs (
			id, type, period, rate, total_amount, beneficiaries, status, error, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.Type, l.Period, l.Rate, l.TotalAmount, l.Beneficiaries,
		l.Status, l.Error, l.CreatedAt, l.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateLog: %w", err)
	}
	return nil
}

// HasCompleted reports whether a completed run already exists for the pair.
func (r *PostingRepository) HasCompleted(ctx context.Context, postingType domain.PostingType, period string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM posting_logs WHERE type = $1 AND period = $2 AND status = $3
		)`,
		postingType, period, domain.PostingStatusCompleted,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasCompleted: %w", err)
	}
	return exists, nil
}

// Complete finalizes the log inside the bulk-run transaction so the totals
// commit atomically with the balance updates they describe.
func (r *PostingRepository) Complete(ctx context.Context, tx *sql.Tx, id uuid.UUID, totalAmount int64, beneficiaries int, completedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE posting_logs SET status = $1, total_amount = $2, beneficiaries = $3, completed_at = $4
		 WHERE id = $5`,
		domain.PostingStatusCompleted, totalAmount, beneficiaries, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// MarkFailed runs on the pool: it must survive the rollback of the bulk run.
func (r *PostingRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE posting_logs SET status = $1, error = $2 WHERE id = $3`,
		domain.PostingStatusFailed, reason, id,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

func (r *PostingRepository) GetLog(ctx context.Context, id uuid.UUID) (*domain.PostingLog, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postingColumns+` FROM posting_logs WHERE id = $1`, id,
	)
	var l domain.PostingLog
	err := row.Scan(
		&l.ID, &l.Type, &l.Period, &l.Rate, &l.TotalAmount, &l.Beneficiaries,
		&l.Status, &l.Error, &l.CreatedAt, &l.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetLog: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetLog: %w", err)
	}
	return &l, nil
}
