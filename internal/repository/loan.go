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

const loanColumns = `id, member_id, principal, interest_rate, duration_months,
	repayment_mode, monthly_deduction, total_repayable, outstanding, status,
	failed_deductions, extensions, purpose, due_date, last_deduction_at,
	decided_by, decided_at, disbursed_at, created_at`

type LoanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Create(ctx context.Context, l *domain.Loan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO loans (
			id, member_id, principal, interest_rate, duration_months,
			repayment_mode, monthly_deduction, total_repayable, outstanding, status,
			failed_deductions, extensions, purpose, due_date, last_deduction_at,
			decided_by, decided_at, disbursed_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)`,
		l.ID, l.MemberID, l.Principal, l.InterestRate, l.DurationMonths,
		l.RepaymentMode, l.MonthlyDeduction, l.TotalRepayable, l.Outstanding, l.Status,
		l.FailedDeductions, l.Extensions, l.Purpose, l.DueDate, l.LastDeductionAt,
		l.DecidedBy, l.DecidedAt, l.DisbursedAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, id,
	)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return l, nil
}

// GetForUpdate locks the loan row for the duration of a state transition.
func (r *LoanRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Loan, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id,
	)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return l, nil
}

// Update persists every mutable loan field inside the caller's transaction.
func (r *LoanRepository) Update(ctx context.Context, tx *sql.Tx, l *domain.Loan) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE loans SET
			monthly_deduction = $1, total_repayable = $2, outstanding = $3, status = $4,
			failed_deductions = $5, extensions = $6, due_date = $7, last_deduction_at = $8,
			decided_by = $9, decided_at = $10, disbursed_at = $11
		 WHERE id = $12`,
		l.MonthlyDeduction, l.TotalRepayable, l.Outstanding, l.Status,
		l.FailedDeductions, l.Extensions, l.DueDate, l.LastDeductionAt,
		l.DecidedBy, l.DecidedAt, l.DisbursedAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

// IncrementFailedDeductions records a failed automated deduction. It runs
// on the pool, not a batch-wide transaction, so one loan's bookkeeping
// cannot be rolled back by a sibling's failure.
func (r *LoanRepository) IncrementFailedDeductions(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`UPDATE loans SET failed_deductions = failed_deductions + 1
		 WHERE id = $1 RETURNING failed_deductions`, id,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("IncrementFailedDeductions: %w", err)
	}
	return count, nil
}

// DueAutomated returns automated-mode loans whose deduction watermark is
// null or at least window old, in a repayable status.
func (r *LoanRepository) DueAutomated(ctx context.Context, asOf time.Time, window time.Duration) ([]domain.Loan, error) {
	cutoff := asOf.Add(-window)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans
		 WHERE repayment_mode = $1
		   AND status IN ($2, $3, $4)
		   AND (last_deduction_at IS NULL OR last_deduction_at <= $5)
		 ORDER BY created_at`,
		domain.RepaymentModeAutomated,
		domain.LoanStatusDisbursed, domain.LoanStatusRepaying, domain.LoanStatusDefaulted,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("DueAutomated: %w", err)
	}
	return collectLoans(rows, "DueAutomated")
}

// OverdueOrFailing returns loans past their due date or with at least
// maxFailures failed deductions, excluding terminal statuses.
func (r *LoanRepository) OverdueOrFailing(ctx context.Context, asOf time.Time, maxFailures int) ([]domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans
		 WHERE status IN ($1, $2, $3)
		   AND ((due_date IS NOT NULL AND due_date < $4) OR failed_deductions >= $5)
		 ORDER BY created_at`,
		domain.LoanStatusDisbursed, domain.LoanStatusRepaying, domain.LoanStatusDefaulted,
		asOf, maxFailures,
	)
	if err != nil {
		return nil, fmt.Errorf("OverdueOrFailing: %w", err)
	}
	return collectLoans(rows, "OverdueOrFailing")
}

func collectLoans(rows *sql.Rows, op string) ([]domain.Loan, error) {
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		loans = append(loans, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return loans, nil
}

func (r *LoanRepository) CreateRepayment(ctx context.Context, tx *sql.Tx, p *domain.LoanRepayment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO loan_repayments (
			id, loan_id, transaction_id, amount, principal_portion, interest_portion, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.LoanID, p.TransactionID, p.Amount, p.PrincipalPortion, p.InterestPortion, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateRepayment: %w", err)
	}
	return nil
}

func (r *LoanRepository) ListRepayments(ctx context.Context, loanID uuid.UUID) ([]domain.LoanRepayment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, loan_id, transaction_id, amount, principal_portion, interest_portion, created_at
		 FROM loan_repayments WHERE loan_id = $1 ORDER BY created_at`, loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListRepayments: %w", err)
	}
	defer rows.Close()

	var repayments []domain.LoanRepayment
	for rows.Next() {
		var p domain.LoanRepayment
		err := rows.Scan(&p.ID, &p.LoanID, &p.TransactionID, &p.Amount,
			&p.PrincipalPortion, &p.InterestPortion, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("ListRepayments: scan: %w", err)
		}
		repayments = append(repayments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRepayments: rows: %w", err)
	}
	return repayments, nil
}

func scanLoan(s scanner) (*domain.Loan, error) {
	var l domain.Loan
	err := s.Scan(
		&l.ID, &l.MemberID, &l.Principal, &l.InterestRate, &l.DurationMonths,
		&l.RepaymentMode, &l.MonthlyDeduction, &l.TotalRepayable, &l.Outstanding, &l.Status,
		&l.FailedDeductions, &l.Extensions, &l.Purpose, &l.DueDate, &l.LastDeductionAt,
		&l.DecidedBy, &l.DecidedAt, &l.DisbursedAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
