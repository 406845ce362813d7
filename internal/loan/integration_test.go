package loan_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajoflow/coop-core/internal/audit"
	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/loan"
	"github.com/ajoflow/coop-core/internal/repository"
	"github.com/ajoflow/coop-core/internal/testutil"
)

func setupLoanService(t *testing.T, db *sql.DB) *loan.Service {
	t.Helper()
	ledgerSvc := ledger.NewService(
		repository.NewMemberRepository(db),
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		db,
		nil,
	)
	return loan.NewService(
		repository.NewLoanRepository(db),
		repository.NewAccountRepository(db),
		ledgerSvc,
		repository.NewPayoutOutboxRepository(db),
		audit.NewLogSink(slog.Default()),
		db,
	)
}

func TestLoanLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLoanService(t, db)
	ctx := context.Background()

	member, main := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 0)

	l, err := svc.Apply(ctx, loan.ApplyRequest{
		MemberID:       member.ID,
		Principal:      100_000,
		InterestRate:   decimal.NewFromInt(10),
		DurationMonths: 12,
		RepaymentMode:  domain.RepaymentModeManual,
		Purpose:        "equipment",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusPending, l.Status)
	assert.Equal(t, int64(110_000), l.TotalRepayable)
	assert.Equal(t, int64(110_000), l.Outstanding)

	l, err = svc.Review(ctx, l.ID, true, "chair")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusApproved, l.Status)
	require.NotNil(t, l.DecidedBy)
	assert.Equal(t, "chair", *l.DecidedBy)

	l, err = svc.Disburse(ctx, l.ID, "treasurer")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDisbursed, l.Status)
	require.NotNil(t, l.DueDate)
	assert.Equal(t, int64(100_000), testutil.GetAccountBalance(t, db, main.ID))
	assert.Equal(t, 1, testutil.CountPendingPayouts(t, db))

	p, err := svc.Repay(ctx, l.ID, 60_000, "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(54_545), p.PrincipalPortion)
	assert.Equal(t, int64(5455), p.InterestPortion)

	l, err = svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusRepaying, l.Status)
	assert.Equal(t, int64(50_000), l.Outstanding)

	// Every repayment debit lands as a matching credit on the operations
	// account.
	assert.Equal(t, int64(40_000), testutil.GetAccountBalance(t, db, main.ID))
	assert.Equal(t, int64(60_000), testutil.GetAccountBalance(t, db, testutil.OperationsAccountID))

	_, err = svc.Repay(ctx, l.ID, 50_000, "ada")
	require.NoError(t, err)

	l, err = svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusCompleted, l.Status)
	assert.Equal(t, int64(0), l.Outstanding)
	assert.Equal(t, int64(110_000), testutil.GetAccountBalance(t, db, testutil.OperationsAccountID))

	testutil.AssertBalanceMatchesHistory(t, db, main.ID, 0)
	testutil.AssertBalanceMatchesHistory(t, db, testutil.OperationsAccountID, 0)

	history, err := svc.Repayments(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(60_000), history[0].Amount)
	assert.Equal(t, int64(50_000), history[1].Amount)
	for _, p := range history {
		assert.Equal(t, p.Amount, p.PrincipalPortion+p.InterestPortion)
	}

	// A completed loan takes no further payments.
	_, err = svc.Repay(ctx, l.ID, 100, "ada")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestApply_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLoanService(t, db)
	ctx := context.Background()

	member, _ := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 0)

	tests := []struct {
		name    string
		req     loan.ApplyRequest
		wantErr error
	}{
		{
			name:    "zero principal",
			req:     loan.ApplyRequest{MemberID: member.ID, Principal: 0, DurationMonths: 12, RepaymentMode: domain.RepaymentModeManual},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "zero duration",
			req:     loan.ApplyRequest{MemberID: member.ID, Principal: 1000, DurationMonths: 0, RepaymentMode: domain.RepaymentModeManual},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "missing mode",
			req:     loan.ApplyRequest{MemberID: member.ID, Principal: 1000, DurationMonths: 12},
			wantErr: domain.ErrMissingField,
		},
		{
			name: "automated deduction below minimum",
			req: loan.ApplyRequest{
				MemberID: member.ID, Principal: 100_000, InterestRate: decimal.NewFromInt(12),
				DurationMonths: 12, RepaymentMode: domain.RepaymentModeAutomated, MonthlyDeduction: 5000,
			},
			wantErr: domain.ErrPaymentTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReviewAndDisburse_StateGuards(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLoanService(t, db)
	ctx := context.Background()

	member, _ := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 0)

	l, err := svc.Apply(ctx, loan.ApplyRequest{
		MemberID: member.ID, Principal: 50_000, InterestRate: decimal.NewFromInt(10),
		DurationMonths: 6, RepaymentMode: domain.RepaymentModeManual,
	})
	require.NoError(t, err)

	// Pending loans cannot be disbursed.
	_, err = svc.Disburse(ctx, l.ID, "treasurer")
	require.ErrorIs(t, err, domain.ErrInvalidState)

	l, err = svc.Review(ctx, l.ID, false, "chair")
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusRejected, l.Status)

	// Rejected loans cannot be reviewed again or disbursed.
	_, err = svc.Review(ctx, l.ID, true, "chair")
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = svc.Disburse(ctx, l.ID, "treasurer")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestDeduct(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLoanService(t, db)
	ctx := context.Background()

	member, main := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 0)

	l, err := svc.Apply(ctx, loan.ApplyRequest{
		MemberID: member.ID, Principal: 100_000, InterestRate: decimal.NewFromInt(12),
		DurationMonths: 12, RepaymentMode: domain.RepaymentModeAutomated, MonthlyDeduction: 9000,
	})
	require.NoError(t, err)
	_, err = svc.Review(ctx, l.ID, true, "chair")
	require.NoError(t, err)
	_, err = svc.Disburse(ctx, l.ID, "treasurer")
	require.NoError(t, err)

	p, err := svc.Deduct(ctx, l.ID, "system")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), p.Amount)

	l, err = svc.Get(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, l.LastDeductionAt)
	assert.Equal(t, 0, l.FailedDeductions)
	assert.Equal(t, int64(91_000), testutil.GetAccountBalance(t, db, main.ID))
}

func TestDeduct_InsufficientFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLoanService(t, db)
	ctx := context.Background()

	member, main := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 500)
	l := testutil.SeedLoan(t, db, member.ID, 100_000, 110_000, 9000,
		domain.RepaymentModeAutomated, domain.LoanStatusRepaying, nil)

	_, err := svc.Deduct(ctx, l.ID, "system")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Watermark untouched, balance untouched, streak bumped by the caller.
	assert.Equal(t, int64(500), testutil.GetAccountBalance(t, db, main.ID))
	streak, err := svc.RecordFailedDeduction(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
	streak, err = svc.RecordFailedDeduction(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, streak)
}

func TestExtendDefault(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLoanService(t, db)
	ctx := context.Background()

	member, _ := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 0)
	due := time.Now().UTC().AddDate(0, 0, -10)
	l := testutil.SeedLoan(t, db, member.ID, 100_000, 110_000, 9000,
		domain.RepaymentModeAutomated, domain.LoanStatusRepaying, &due)

	extended, err := svc.ExtendDefault(ctx, l.ID)
	require.NoError(t, err)

	// Two months of simple interest at 10% on 110,000 outstanding.
	assert.Equal(t, int64(111_833), extended.Outstanding)
	assert.Equal(t, int64(111_833), extended.TotalRepayable)
	assert.Equal(t, domain.LoanStatusDefaulted, extended.Status)
	assert.Equal(t, 1, extended.Extensions)
	assert.Equal(t, 0, extended.FailedDeductions)
	require.NotNil(t, extended.DueDate)
	assert.WithinDuration(t, due.AddDate(0, 0, 60), *extended.DueDate, time.Second)

	// A payment on a defaulted loan pulls it back to repaying.
	_, aderr := db.Exec(`UPDATE accounts SET balance = 20000 WHERE member_id = $1 AND type = 'savings'`, member.ID)
	require.NoError(t, aderr)
	_, err = svc.Repay(ctx, l.ID, 10_000, "ada")
	require.NoError(t, err)
	l, err = svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusRepaying, l.Status)
}
