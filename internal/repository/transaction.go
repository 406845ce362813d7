package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
)

const transactionColumns = `id, account_id, type, amount, balance_after,
	reference, description, actor, status, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, account_id, type, amount, balance_after,
			reference, description, actor, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.AccountID, t.Type, t.Amount, t.BalanceAfter,
		t.Reference, t.Description, t.Actor, t.Status, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ListByAccount returns a time-descending page of transactions within the
// optional [from, to) range, plus the unpaged total row count.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int, from, to *time.Time) ([]domain.Transaction, int, error) {
	where := `account_id = $1`
	args := []any{accountID}
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: count: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT `+transactionColumns+` FROM transactions
		 WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByAccount: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: rows: %w", err)
	}
	return txns, total, nil
}

// Totals sums credits and debits for an account within the optional range.
func (r *TransactionRepository) Totals(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (credits, debits int64, err error) {
	where := `account_id = $1`
	args := []any{accountID}
	if from != nil {
		args = append(args, *from)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(amount) FILTER (WHERE type NOT IN ('withdrawal', 'transfer_out')), 0),
			COALESCE(SUM(amount) FILTER (WHERE type IN ('withdrawal', 'transfer_out')), 0)
		 FROM transactions WHERE `+where,
		args...,
	).Scan(&credits, &debits)
	if err != nil {
		return 0, 0, fmt.Errorf("Totals: %w", err)
	}
	return credits, debits, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter,
		&t.Reference, &t.Description, &t.Actor, &t.Status, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
