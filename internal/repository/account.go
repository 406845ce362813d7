package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
)

const accountColumns = `id, member_id, account_number, type, balance, version, status, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, a *domain.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, member_id, account_number, type, balance, version, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.MemberID, a.AccountNumber, a.Type, a.Balance, a.Version, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByNumber: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByNumber: %w", err)
	}
	return a, nil
}

// GetMain returns the member's main savings account.
func (r *AccountRepository) GetMain(ctx context.Context, memberID uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE member_id = $1 AND type = $2 ORDER BY created_at LIMIT 1`,
		memberID, domain.AccountTypeSavings,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetMain: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetMain: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2 WHERE id = $3 AND version = $4`,
		newBalance, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *AccountRepository) Close(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE accounts SET status = $1 WHERE id = $2`, domain.AccountStatusClosed, id,
	)
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return nil
}

// ListEligibleForUpdate locks and returns all active accounts of the given
// type with a positive balance, in id order so bulk runs always lock rows
// in a consistent order.
func (r *AccountRepository) ListEligibleForUpdate(ctx context.Context, tx *sql.Tx, accountType domain.AccountType) ([]domain.Account, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE status = $1 AND type = $2 AND balance > 0
		 ORDER BY id FOR UPDATE`,
		domain.AccountStatusActive, accountType,
	)
	if err != nil {
		return nil, fmt.Errorf("ListEligibleForUpdate: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListEligibleForUpdate: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEligibleForUpdate: rows: %w", err)
	}
	return accounts, nil
}

// ListEligible is the read-only counterpart used by posting dry runs.
func (r *AccountRepository) ListEligible(ctx context.Context, accountType domain.AccountType) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE status = $1 AND type = $2 AND balance > 0
		 ORDER BY id`,
		domain.AccountStatusActive, accountType,
	)
	if err != nil {
		return nil, fmt.Errorf("ListEligible: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListEligible: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEligible: rows: %w", err)
	}
	return accounts, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.MemberID, &a.AccountNumber, &a.Type,
		&a.Balance, &a.Version, &a.Status, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
