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

const productColumns = `id, name, type, interest_rate, min_duration_months,
	min_deposit, penalty_pct, allow_early_withdrawal, active, created_at`

const planColumns = `id, member_id, product_id, account_id, name, status,
	maturity_date, withdrawal_requested_at, auto_save_amount, auto_save_frequency,
	last_auto_save_at, last_interest_at, created_at`

type SavingsRepository struct {
	db *sql.DB
}

func NewSavingsRepository(db *sql.DB) *SavingsRepository {
	return &SavingsRepository{db: db}
}

func (r *SavingsRepository) CreateProduct(ctx context.Context, p *domain.SavingsProduct) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_products (
			id, name, type, interest_rate, min_duration_months,
			min_deposit, penalty_pct, allow_early_withdrawal, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Type, p.InterestRate, p.MinDurationMonths,
		p.MinDeposit, p.PenaltyPct, p.AllowEarlyWithdrawal, p.Active, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateProduct: %w", err)
	}
	return nil
}

func (r *SavingsRepository) GetProduct(ctx context.Context, id uuid.UUID) (*domain.SavingsProduct, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM savings_products WHERE id = $1`, id,
	)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetProduct: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetProduct: %w", err)
	}
	return p, nil
}

func (r *SavingsRepository) CreatePlan(ctx context.Context, tx *sql.Tx, p *domain.SavingsPlan) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO savings_plans (
			id, member_id, product_id, account_id, name, status,
			maturity_date, withdrawal_requested_at, auto_save_amount, auto_save_frequency,
			last_auto_save_at, last_interest_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.MemberID, p.ProductID, p.AccountID, p.Name, p.Status,
		p.MaturityDate, p.WithdrawalRequestedAt, p.AutoSaveAmount, p.AutoSaveFrequency,
		p.LastAutoSaveAt, p.LastInterestAt, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreatePlan: %w", err)
	}
	return nil
}

func (r *SavingsRepository) GetPlan(ctx context.Context, id uuid.UUID) (*domain.SavingsPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM savings_plans WHERE id = $1`, id,
	)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetPlan: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetPlan: %w", err)
	}
	return p, nil
}

func (r *SavingsRepository) GetPlanForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.SavingsPlan, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM savings_plans WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetPlanForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetPlanForUpdate: %w", err)
	}
	return p, nil
}

func (r *SavingsRepository) UpdatePlan(ctx context.Context, tx *sql.Tx, p *domain.SavingsPlan) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE savings_plans SET
			status = $1, withdrawal_requested_at = $2, last_auto_save_at = $3,
			last_interest_at = $4
		 WHERE id = $5`,
		p.Status, p.WithdrawalRequestedAt, p.LastAutoSaveAt, p.LastInterestAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdatePlan: %w", err)
	}
	return nil
}

// DueAutoSave returns active monthly plans whose auto-save watermark is
// null or at least window old.
func (r *SavingsRepository) DueAutoSave(ctx context.Context, asOf time.Time, window time.Duration) ([]domain.SavingsPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM savings_plans
		 WHERE status = $1 AND auto_save_frequency = $2 AND auto_save_amount > 0
		   AND (last_auto_save_at IS NULL OR last_auto_save_at <= $3)
		 ORDER BY created_at`,
		domain.PlanStatusActive, domain.AutoSaveMonthly, asOf.Add(-window),
	)
	if err != nil {
		return nil, fmt.Errorf("DueAutoSave: %w", err)
	}
	return collectPlans(rows, "DueAutoSave")
}

// DueInterest returns active plans not credited within the window.
func (r *SavingsRepository) DueInterest(ctx context.Context, asOf time.Time, window time.Duration) ([]domain.SavingsPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM savings_plans
		 WHERE status = $1
		   AND (last_interest_at IS NULL OR last_interest_at <= $2)
		 ORDER BY created_at`,
		domain.PlanStatusActive, asOf.Add(-window),
	)
	if err != nil {
		return nil, fmt.Errorf("DueInterest: %w", err)
	}
	return collectPlans(rows, "DueInterest")
}

// MaturedActive returns active plans whose maturity date has passed.
func (r *SavingsRepository) MaturedActive(ctx context.Context, asOf time.Time) ([]domain.SavingsPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM savings_plans
		 WHERE status = $1 AND maturity_date <= $2
		 ORDER BY maturity_date`,
		domain.PlanStatusActive, asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("MaturedActive: %w", err)
	}
	return collectPlans(rows, "MaturedActive")
}

func collectPlans(rows *sql.Rows, op string) ([]domain.SavingsPlan, error) {
	defer rows.Close()

	var plans []domain.SavingsPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return plans, nil
}

func scanProduct(s scanner) (*domain.SavingsProduct, error) {
	var p domain.SavingsProduct
	err := s.Scan(
		&p.ID, &p.Name, &p.Type, &p.InterestRate, &p.MinDurationMonths,
		&p.MinDeposit, &p.PenaltyPct, &p.AllowEarlyWithdrawal, &p.Active, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPlan(s scanner) (*domain.SavingsPlan, error) {
	var p domain.SavingsPlan
	err := s.Scan(
		&p.ID, &p.MemberID, &p.ProductID, &p.AccountID, &p.Name, &p.Status,
		&p.MaturityDate, &p.WithdrawalRequestedAt, &p.AutoSaveAmount, &p.AutoSaveFrequency,
		&p.LastAutoSaveAt, &p.LastInterestAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
