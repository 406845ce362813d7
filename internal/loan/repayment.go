package loan

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/logging"
)

// Repay applies a manual payment against the loan, funded from the
// member's main savings account.
func (s *Service) Repay(ctx context.Context, loanID uuid.UUID, amount int64, actor string) (*domain.LoanRepayment, error) {
	p, err := s.repay(ctx, loanID, amount, actor, false)
	if err != nil {
		return nil, fmt.Errorf("Repay: %w", err)
	}
	return p, nil
}

// Deduct applies one automated monthly deduction and advances the loan's
// deduction watermark so the same window is not processed twice.
func (s *Service) Deduct(ctx context.Context, loanID uuid.UUID, actor string) (*domain.LoanRepayment, error) {
	p, err := s.repay(ctx, loanID, 0, actor, true)
	if err != nil {
		return nil, fmt.Errorf("Deduct: %w", err)
	}
	return p, nil
}

// repay runs the whole payment as one atomic unit: debit the member's main
// account, credit the operations account, record the split, and advance
// the loan state machine.
func (s *Service) repay(ctx context.Context, loanID uuid.UUID, amount int64, actor string, deduction bool) (*domain.LoanRepayment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repay: begin tx: %w", err)
	}
	defer tx.Rollback()

	l, err := s.loans.GetForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, fmt.Errorf("repay: %w", err)
	}
	if !l.Repayable() {
		return nil, fmt.Errorf("repay: loan is %s: %w", l.Status, domain.ErrInvalidState)
	}

	if deduction {
		amount = l.MonthlyDeduction
	}
	if amount <= 0 {
		return nil, fmt.Errorf("repay: %w", domain.ErrInvalidAmount)
	}

	main, err := s.accounts.GetMain(ctx, l.MemberID)
	if err != nil {
		return nil, fmt.Errorf("repay: %w", err)
	}

	_, credit, err := s.ledger.TransferTx(ctx, tx, main.ID, OperationsAccountID, amount,
		domain.TransactionTypeWithdrawal, domain.TransactionTypeLoanRepayment,
		fmt.Sprintf("Loan repayment %s", l.ID), actor)
	if err != nil {
		return nil, fmt.Errorf("repay: %w", err)
	}

	principalPortion, interestPortion := SplitRepayment(amount, l.Principal, l.TotalRepayable)
	now := s.now()
	p := &domain.LoanRepayment{
		ID:               uuid.New(),
		LoanID:           l.ID,
		TransactionID:    credit.ID,
		Amount:           amount,
		PrincipalPortion: principalPortion,
		InterestPortion:  interestPortion,
		CreatedAt:        now,
	}
	if err := s.loans.CreateRepayment(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("repay: %w", err)
	}

	// A successful payment always clears the failure streak, and pulls a
	// defaulted loan back into repaying.
	l.Outstanding -= amount
	l.FailedDeductions = 0
	if l.Outstanding <= 0 {
		l.Status = domain.LoanStatusCompleted
	} else {
		l.Status = domain.LoanStatusRepaying
	}
	if deduction {
		l.LastDeductionAt = &now
	}
	if err := s.loans.Update(ctx, tx, l); err != nil {
		return nil, fmt.Errorf("repay: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repay: commit: %w", err)
	}

	logging.FromContext(ctx).Info("loan repayment applied",
		"loan_id", l.ID,
		"amount", amount,
		"principal_portion", principalPortion,
		"interest_portion", interestPortion,
		"outstanding", l.Outstanding,
		"status", l.Status,
	)
	return p, nil
}

// RecordFailedDeduction bumps the loan's failure counter outside any batch
// transaction. The caller notifies the member; the batch moves on.
func (s *Service) RecordFailedDeduction(ctx context.Context, loanID uuid.UUID) (int, error) {
	count, err := s.loans.IncrementFailedDeductions(ctx, loanID)
	if err != nil {
		return 0, fmt.Errorf("RecordFailedDeduction: %w", err)
	}
	return count, nil
}

// ExtendDefault applies the default-extension policy: a simple-interest
// charge on the outstanding balance for the extension period, a 60-day
// due-date push, and a reset failure streak. Extension count is unbounded.
func (s *Service) ExtendDefault(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ExtendDefault: begin tx: %w", err)
	}
	defer tx.Rollback()

	l, err := s.loans.GetForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, fmt.Errorf("ExtendDefault: %w", err)
	}
	if !l.Repayable() {
		return nil, fmt.Errorf("ExtendDefault: loan is %s: %w", l.Status, domain.ErrInvalidState)
	}

	charge := ExtensionCharge(l.Outstanding, l.InterestRate, extensionMonths)
	l.Outstanding += charge
	l.TotalRepayable += charge
	if l.DueDate != nil {
		due := l.DueDate.AddDate(0, 0, extensionDays)
		l.DueDate = &due
	} else {
		due := s.now().AddDate(0, 0, extensionDays)
		l.DueDate = &due
	}
	l.Extensions++
	l.FailedDeductions = 0
	l.Status = domain.LoanStatusDefaulted

	if err := s.loans.Update(ctx, tx, l); err != nil {
		return nil, fmt.Errorf("ExtendDefault: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ExtendDefault: commit: %w", err)
	}

	logging.FromContext(ctx).Warn("loan default extended",
		"loan_id", l.ID,
		"charge", charge,
		"extensions", l.Extensions,
		"due_date", l.DueDate,
	)
	return l, nil
}
