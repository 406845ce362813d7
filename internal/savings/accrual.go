package savings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/logging"
)

// RunAutoSave moves a plan's configured auto-save amount from the member's
// main account into the plan. An insufficient main balance is reported, not
// an error, and the watermark is left untouched so the next run retries.
func (s *Service) RunAutoSave(ctx context.Context, planID uuid.UUID, asOf time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("RunAutoSave: begin tx: %w", err)
	}
	defer tx.Rollback()

	plan, err := s.plans.GetPlanForUpdate(ctx, tx, planID)
	if err != nil {
		return false, fmt.Errorf("RunAutoSave: %w", err)
	}
	if plan.Status != domain.PlanStatusActive || plan.AutoSaveAmount <= 0 {
		return false, nil
	}

	main, err := s.accounts.GetMain(ctx, plan.MemberID)
	if err != nil {
		return false, fmt.Errorf("RunAutoSave: %w", err)
	}

	_, _, err = s.ledger.TransferTx(ctx, tx, main.ID, plan.AccountID, plan.AutoSaveAmount,
		domain.TransactionTypeTransferOut, domain.TransactionTypeTransferIn,
		fmt.Sprintf("Auto-save for plan %s", plan.ID), "system")
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return false, nil
		}
		return false, fmt.Errorf("RunAutoSave: %w", err)
	}

	plan.LastAutoSaveAt = &asOf
	if err := s.plans.UpdatePlan(ctx, tx, plan); err != nil {
		return false, fmt.Errorf("RunAutoSave: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("RunAutoSave: commit: %w", err)
	}

	logging.FromContext(ctx).Info("auto-save collected",
		"plan_id", plan.ID,
		"amount", plan.AutoSaveAmount,
	)
	return true, nil
}

// AccrueInterest credits one month of interest on the plan's current
// balance. A zero-balance plan accrues nothing and keeps its watermark, so
// it stays eligible until it actually earns.
func (s *Service) AccrueInterest(ctx context.Context, planID uuid.UUID, asOf time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("AccrueInterest: begin tx: %w", err)
	}
	defer tx.Rollback()

	plan, err := s.plans.GetPlanForUpdate(ctx, tx, planID)
	if err != nil {
		return 0, fmt.Errorf("AccrueInterest: %w", err)
	}
	if plan.Status != domain.PlanStatusActive {
		return 0, nil
	}

	product, err := s.plans.GetProduct(ctx, plan.ProductID)
	if err != nil {
		return 0, fmt.Errorf("AccrueInterest: %w", err)
	}

	acct, err := s.accounts.GetForUpdate(ctx, tx, plan.AccountID)
	if err != nil {
		return 0, fmt.Errorf("AccrueInterest: %w", err)
	}

	interest := decimal.NewFromInt(acct.Balance).
		Mul(product.InterestRate).
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(12)).
		Round(0).IntPart()
	if interest <= 0 {
		return 0, nil
	}

	_, err = s.ledger.RecordTx(ctx, tx, ledger.RecordParams{
		AccountID:   acct.ID,
		Type:        domain.TransactionTypeInterest,
		Amount:      interest,
		Description: fmt.Sprintf("Monthly interest for plan %s", plan.ID),
		Actor:       "system",
	})
	if err != nil {
		return 0, fmt.Errorf("AccrueInterest: %w", err)
	}

	plan.LastInterestAt = &asOf
	if err := s.plans.UpdatePlan(ctx, tx, plan); err != nil {
		return 0, fmt.Errorf("AccrueInterest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("AccrueInterest: commit: %w", err)
	}

	logging.FromContext(ctx).Info("interest accrued",
		"plan_id", plan.ID,
		"amount", interest,
	)
	return interest, nil
}

// MaturePlan sweeps a matured plan's balance back to the member's main
// account, completes the plan and closes its sub-account. Returns false
// when the plan is no longer active or not yet mature, which can happen
// when the row changed between listing and locking.
func (s *Service) MaturePlan(ctx context.Context, planID uuid.UUID, asOf time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("MaturePlan: begin tx: %w", err)
	}
	defer tx.Rollback()

	plan, err := s.plans.GetPlanForUpdate(ctx, tx, planID)
	if err != nil {
		return false, fmt.Errorf("MaturePlan: %w", err)
	}
	if plan.Status != domain.PlanStatusActive || !plan.Mature(asOf) {
		return false, nil
	}

	main, err := s.accounts.GetMain(ctx, plan.MemberID)
	if err != nil {
		return false, fmt.Errorf("MaturePlan: %w", err)
	}
	locked, err := s.ledger.LockAccountsTx(ctx, tx, plan.AccountID, main.ID)
	if err != nil {
		return false, fmt.Errorf("MaturePlan: %w", err)
	}
	acct := locked[plan.AccountID]
	if acct.Balance > 0 {
		_, _, err = s.ledger.TransferTx(ctx, tx, plan.AccountID, main.ID, acct.Balance,
			domain.TransactionTypeTransferOut, domain.TransactionTypeTransferIn,
			fmt.Sprintf("Maturity payout for plan %s", plan.ID), "system")
		if err != nil {
			return false, fmt.Errorf("MaturePlan: %w", err)
		}
	}

	plan.Status = domain.PlanStatusCompleted
	if err := s.plans.UpdatePlan(ctx, tx, plan); err != nil {
		return false, fmt.Errorf("MaturePlan: %w", err)
	}
	if err := s.ledger.CloseAccountTx(ctx, tx, plan.AccountID); err != nil {
		return false, fmt.Errorf("MaturePlan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("MaturePlan: commit: %w", err)
	}

	logging.FromContext(ctx).Info("savings plan matured",
		"plan_id", plan.ID,
		"amount", acct.Balance,
	)
	return true, nil
}
