package savings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/logging"
	"github.com/ajoflow/coop-core/internal/notify"
)

// safeboxDelay is the cooling-off window between a safebox withdrawal
// request and the actual release of funds.
const safeboxDelay = 24 * time.Hour

// WithdrawResult reports what a Withdraw call actually did. A safebox
// request returns Pending=true with no funds moved; a release or a
// fixed/target withdrawal returns the net amount credited to the member's
// main account and any penalty retained.
type WithdrawResult struct {
	Plan        *domain.SavingsPlan
	Pending     bool
	AvailableAt time.Time
	Amount      int64
	Penalty     int64
}

// Withdraw closes out a plan's balance into the member's main savings
// account. Safebox plans are two-phase: the first call only stamps the
// request, a second call after the 24h delay releases the funds. Fixed and
// target plans pay out immediately, with the product's penalty retained
// when the plan has not matured.
func (s *Service) Withdraw(ctx context.Context, planID uuid.UUID, actor string) (*WithdrawResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: begin tx: %w", err)
	}
	defer tx.Rollback()

	plan, err := s.plans.GetPlanForUpdate(ctx, tx, planID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if plan.Status != domain.PlanStatusActive {
		return nil, fmt.Errorf("Withdraw: plan is %s: %w", plan.Status, domain.ErrInvalidState)
	}

	product, err := s.plans.GetProduct(ctx, plan.ProductID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	now := s.now()
	if product.Type == domain.ProductTypeSafebox {
		return s.withdrawSafebox(ctx, tx, plan, now, actor)
	}

	mature := plan.Mature(now)
	if !mature && !product.AllowEarlyWithdrawal {
		return nil, fmt.Errorf("Withdraw: %w", domain.ErrEarlyWithdrawal)
	}

	main, err := s.accounts.GetMain(ctx, plan.MemberID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	locked, err := s.ledger.LockAccountsTx(ctx, tx, plan.AccountID, main.ID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	acct := locked[plan.AccountID]

	var penalty int64
	if !mature {
		penalty = decimal.NewFromInt(acct.Balance).
			Mul(product.PenaltyPct).
			Div(decimal.NewFromInt(100)).
			Round(0).IntPart()
		if penalty > acct.Balance {
			penalty = acct.Balance
		}
	}
	remainder := acct.Balance - penalty

	if penalty > 0 {
		_, err := s.ledger.RecordTx(ctx, tx, ledger.RecordParams{
			AccountID:   acct.ID,
			Type:        domain.TransactionTypeWithdrawal,
			Amount:      penalty,
			Description: fmt.Sprintf("Early withdrawal penalty for plan %s", plan.ID),
			Actor:       actor,
		})
		if err != nil {
			return nil, fmt.Errorf("Withdraw: penalty: %w", err)
		}
	}
	if err := s.payOut(ctx, tx, plan, main, remainder, actor); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	if mature {
		plan.Status = domain.PlanStatusCompleted
	} else {
		plan.Status = domain.PlanStatusLiquidated
	}
	if err := s.plans.UpdatePlan(ctx, tx, plan); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if err := s.ledger.CloseAccountTx(ctx, tx, plan.AccountID); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Withdraw: commit: %w", err)
	}

	s.audit.Record(ctx, actor, "savings.withdraw", map[string]any{
		"plan_id": plan.ID.String(),
		"status":  string(plan.Status),
		"amount":  remainder,
		"penalty": penalty,
	})
	if plan.Status == domain.PlanStatusLiquidated {
		s.notifier.Notify(ctx, notify.EventPlanLiquidated, map[string]any{
			"plan_id":   plan.ID.String(),
			"member_id": plan.MemberID.String(),
			"amount":    remainder,
			"penalty":   penalty,
		})
	}
	logging.FromContext(ctx).Info("savings plan withdrawn",
		"plan_id", plan.ID,
		"status", plan.Status,
		"amount", remainder,
		"penalty", penalty,
	)
	return &WithdrawResult{Plan: plan, Amount: remainder, Penalty: penalty}, nil
}

// withdrawSafebox runs both phases of the safebox flow against the already
// locked plan row. The caller's tx is committed here on success.
func (s *Service) withdrawSafebox(ctx context.Context, tx *sql.Tx, plan *domain.SavingsPlan, now time.Time, actor string) (*WithdrawResult, error) {
	if plan.WithdrawalRequestedAt == nil {
		plan.WithdrawalRequestedAt = &now
		if err := s.plans.UpdatePlan(ctx, tx, plan); err != nil {
			return nil, fmt.Errorf("Withdraw: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("Withdraw: commit: %w", err)
		}
		availableAt := now.Add(safeboxDelay)
		logging.FromContext(ctx).Info("safebox withdrawal requested",
			"plan_id", plan.ID,
			"available_at", availableAt,
		)
		return &WithdrawResult{Plan: plan, Pending: true, AvailableAt: availableAt}, nil
	}

	availableAt := plan.WithdrawalRequestedAt.Add(safeboxDelay)
	if now.Before(availableAt) {
		remaining := availableAt.Sub(now)
		return nil, fmt.Errorf("Withdraw: %.1f hours remaining: %w", remaining.Hours(), domain.ErrWithdrawalLocked)
	}

	main, err := s.accounts.GetMain(ctx, plan.MemberID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	locked, err := s.ledger.LockAccountsTx(ctx, tx, plan.AccountID, main.ID)
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	amount := locked[plan.AccountID].Balance
	if err := s.payOut(ctx, tx, plan, main, amount, actor); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	plan.Status = domain.PlanStatusCompleted
	plan.WithdrawalRequestedAt = nil
	if err := s.plans.UpdatePlan(ctx, tx, plan); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}
	if err := s.ledger.CloseAccountTx(ctx, tx, plan.AccountID); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Withdraw: commit: %w", err)
	}

	s.audit.Record(ctx, actor, "savings.withdraw", map[string]any{
		"plan_id": plan.ID.String(),
		"status":  string(plan.Status),
		"amount":  amount,
	})
	logging.FromContext(ctx).Info("safebox withdrawal released",
		"plan_id", plan.ID,
		"amount", amount,
	)
	return &WithdrawResult{Plan: plan, Amount: amount}, nil
}

// payOut moves the plan's remaining balance to the member's main savings
// account and queues the external payout notification. Both accounts are
// already locked by the caller. A zero remainder is a no-op so fully
// penalised plans still close cleanly.
func (s *Service) payOut(ctx context.Context, tx *sql.Tx, plan *domain.SavingsPlan, main *domain.Account, amount int64, actor string) error {
	if amount <= 0 {
		return nil
	}
	_, _, err := s.ledger.TransferTx(ctx, tx, plan.AccountID, main.ID, amount,
		domain.TransactionTypeTransferOut, domain.TransactionTypeTransferIn,
		fmt.Sprintf("Savings plan payout %s", plan.ID), actor)
	if err != nil {
		return err
	}
	now := s.now()
	intent := &domain.PayoutIntent{
		ID:            uuid.New(),
		Kind:          domain.PayoutKindPlanWithdrawal,
		Amount:        amount,
		Destination:   main.AccountNumber,
		Status:        domain.PayoutStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	return s.payouts.Enqueue(ctx, tx, intent)
}
