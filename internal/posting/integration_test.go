package posting_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajoflow/coop-core/internal/audit"
	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/posting"
	"github.com/ajoflow/coop-core/internal/repository"
	"github.com/ajoflow/coop-core/internal/testutil"
)

func setupPostingService(t *testing.T, db *sql.DB) *posting.Service {
	t.Helper()
	ledgerSvc := ledger.NewService(
		repository.NewMemberRepository(db),
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		db,
		nil,
	)
	return posting.NewService(
		repository.NewPostingRepository(db),
		repository.NewAccountRepository(db),
		ledgerSvc,
		audit.NewLogSink(slog.Default()),
		nil,
		db,
	)
}

func TestRun_InterestPosting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPostingService(t, db)
	ctx := context.Background()

	_, a := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 100_000)
	_, b := testutil.SeedMemberWithAccount(t, db, "Bayo", "bayo@coop.test", 50_000)
	// Zero-balance accounts earn nothing and are not beneficiaries.
	testutil.SeedMemberWithAccount(t, db, "Chidi", "chidi@coop.test", 0)

	log, err := svc.Run(ctx, posting.RunRequest{
		Type:   domain.PostingTypeInterest,
		Period: "2026-08",
		Rate:   decimal.NewFromInt(1),
		Actor:  "treasurer",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PostingStatusCompleted, log.Status)
	assert.Equal(t, int64(1500), log.TotalAmount)
	assert.Equal(t, 2, log.Beneficiaries)
	require.NotNil(t, log.CompletedAt)

	assert.Equal(t, int64(101_000), testutil.GetAccountBalance(t, db, a.ID))
	assert.Equal(t, int64(50_500), testutil.GetAccountBalance(t, db, b.ID))

	// Each beneficiary got exactly one interest transaction.
	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE type = 'interest'`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRun_DividendPosting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPostingService(t, db)
	ctx := context.Background()

	member, main := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 100_000)
	shares := testutil.SeedAccount(t, db, member.ID, domain.AccountTypeShareCapital, 40_000)

	log, err := svc.Run(ctx, posting.RunRequest{
		Type:   domain.PostingTypeDividend,
		Period: "2026-08",
		Rate:   decimal.NewFromInt(5),
		Actor:  "treasurer",
	})
	require.NoError(t, err)

	// Dividends land on share capital, never on the savings account.
	assert.Equal(t, int64(2000), log.TotalAmount)
	assert.Equal(t, 1, log.Beneficiaries)
	assert.Equal(t, int64(42_000), testutil.GetAccountBalance(t, db, shares.ID))
	assert.Equal(t, int64(100_000), testutil.GetAccountBalance(t, db, main.ID))
}

func TestRun_DuplicatePeriodRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPostingService(t, db)
	ctx := context.Background()

	_, a := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 100_000)

	req := posting.RunRequest{
		Type:   domain.PostingTypeInterest,
		Period: "2026-08",
		Rate:   decimal.NewFromInt(1),
		Actor:  "treasurer",
	}
	_, err := svc.Run(ctx, req)
	require.NoError(t, err)

	_, err = svc.Run(ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicatePosting)
	assert.Equal(t, int64(101_000), testutil.GetAccountBalance(t, db, a.ID))

	// A different period for the same type is fine.
	req.Period = "2026-09"
	_, err = svc.Run(ctx, req)
	require.NoError(t, err)
}

func TestRun_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPostingService(t, db)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     posting.RunRequest
		wantErr error
	}{
		{
			name:    "unknown type",
			req:     posting.RunRequest{Type: "bonus", Period: "2026-08", Rate: decimal.NewFromInt(1), Actor: "t"},
			wantErr: domain.ErrInvalidType,
		},
		{
			name:    "malformed period",
			req:     posting.RunRequest{Type: domain.PostingTypeInterest, Period: "August", Rate: decimal.NewFromInt(1), Actor: "t"},
			wantErr: domain.ErrMissingField,
		},
		{
			name:    "zero rate",
			req:     posting.RunRequest{Type: domain.PostingTypeInterest, Period: "2026-08", Rate: decimal.Zero, Actor: "t"},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "missing actor",
			req:     posting.RunRequest{Type: domain.PostingTypeInterest, Period: "2026-08", Rate: decimal.NewFromInt(1)},
			wantErr: domain.ErrMissingField,
		},
		{
			name:    "unknown account type",
			req:     posting.RunRequest{Type: domain.PostingTypeInterest, Period: "2026-08", Rate: decimal.NewFromInt(1), Actor: "t", AccountType: "checking"},
			wantErr: domain.ErrInvalidType,
		},
		{
			name:    "negative preview limit",
			req:     posting.RunRequest{Type: domain.PostingTypeInterest, Period: "2026-08", Rate: decimal.NewFromInt(1), Actor: "t", PreviewLimit: -1},
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			_, err = svc.DryRun(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDryRun_TouchesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPostingService(t, db)
	ctx := context.Background()

	_, a := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 100_000)
	_, b := testutil.SeedMemberWithAccount(t, db, "Bayo", "bayo@coop.test", 50_000)

	preview, err := svc.DryRun(ctx, posting.RunRequest{
		Type:   domain.PostingTypeInterest,
		Period: "2026-08",
		Rate:   decimal.NewFromInt(1),
		Actor:  "treasurer",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1500), preview.TotalAmount)
	assert.Equal(t, 2, preview.Beneficiaries)
	assert.Len(t, preview.Lines, 2)

	// No balances moved, no log written: the same period can still run.
	assert.Equal(t, int64(100_000), testutil.GetAccountBalance(t, db, a.ID))
	assert.Equal(t, int64(50_000), testutil.GetAccountBalance(t, db, b.ID))
	var logs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM posting_logs`).Scan(&logs))
	assert.Equal(t, 0, logs)
}

func TestDryRun_PreviewLimitAndAccountType(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPostingService(t, db)
	ctx := context.Background()

	member, _ := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 100_000)
	testutil.SeedMemberWithAccount(t, db, "Bayo", "bayo@coop.test", 50_000)
	testutil.SeedMemberWithAccount(t, db, "Chidi", "chidi@coop.test", 25_000)
	shares := testutil.SeedAccount(t, db, member.ID, domain.AccountTypeShareCapital, 40_000)

	// Lines truncate at the limit while totals still cover everyone.
	preview, err := svc.DryRun(ctx, posting.RunRequest{
		Type:         domain.PostingTypeInterest,
		Period:       "2026-08",
		Rate:         decimal.NewFromInt(1),
		Actor:        "treasurer",
		PreviewLimit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, preview.Beneficiaries)
	assert.Equal(t, int64(1750), preview.TotalAmount)
	assert.Len(t, preview.Lines, 2)

	// An explicit account type overrides the posting type's default class.
	preview, err = svc.DryRun(ctx, posting.RunRequest{
		Type:        domain.PostingTypeInterest,
		Period:      "2026-08",
		Rate:        decimal.NewFromInt(5),
		Actor:       "treasurer",
		AccountType: domain.AccountTypeShareCapital,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, preview.Beneficiaries)
	assert.Equal(t, int64(2000), preview.TotalAmount)
	require.Len(t, preview.Lines, 1)
	assert.Equal(t, shares.ID, preview.Lines[0].AccountID)
}
