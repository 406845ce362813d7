package ledger_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/repository"
	"github.com/ajoflow/coop-core/internal/testutil"
)

func setupLedger(t *testing.T, db *sql.DB) *ledger.Service {
	t.Helper()
	return ledger.NewService(
		repository.NewMemberRepository(db),
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		db,
		nil,
	)
}

func TestEnrollMember(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	enrolled, err := svc.EnrollMember(ctx, "Ada Obi", "ada@coop.test")
	require.NoError(t, err)

	assert.Equal(t, domain.MemberStatusActive, enrolled.Member.Status)
	assert.Equal(t, domain.AccountTypeSavings, enrolled.MainAccount.Type)
	assert.Equal(t, domain.AccountTypeShareCapital, enrolled.ShareCapital.Type)
	assert.Regexp(t, `^AJO\d{10}$`, enrolled.MainAccount.AccountNumber)
	assert.Equal(t, int64(0), testutil.GetAccountBalance(t, db, enrolled.MainAccount.ID))

	member, err := svc.GetMember(ctx, enrolled.Member.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@coop.test", member.Email)

	_, err = svc.GetMember(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.EnrollMember(ctx, "Ada Clone", "ada@coop.test")
	require.Error(t, err)
}

func TestRecord_DepositAndWithdrawal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, acct := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 0)

	dep, err := svc.Record(ctx, ledger.RecordParams{
		AccountID:   acct.ID,
		Type:        domain.TransactionTypeDeposit,
		Amount:      5000,
		Description: "cash deposit",
		Actor:       "teller-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), dep.BalanceAfter)
	assert.NotEmpty(t, dep.Reference)

	wd, err := svc.Record(ctx, ledger.RecordParams{
		AccountID: acct.ID,
		Type:      domain.TransactionTypeWithdrawal,
		Amount:    1500,
		Actor:     "teller-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3500), wd.BalanceAfter)
	assert.Equal(t, int64(3500), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, 2, testutil.CountTransactions(t, db, acct.ID))

	fetched, err := svc.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), fetched.Balance)
	assert.Equal(t, acct.AccountNumber, fetched.AccountNumber)
}

func TestRecord_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, acct := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 1000)

	tests := []struct {
		name    string
		params  ledger.RecordParams
		wantErr error
	}{
		{
			name:    "overdraft",
			params:  ledger.RecordParams{AccountID: acct.ID, Type: domain.TransactionTypeWithdrawal, Amount: 5000, Actor: "t"},
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name:    "zero amount",
			params:  ledger.RecordParams{AccountID: acct.ID, Type: domain.TransactionTypeDeposit, Amount: 0, Actor: "t"},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			params:  ledger.RecordParams{AccountID: acct.ID, Type: domain.TransactionTypeDeposit, Amount: -10, Actor: "t"},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "unknown type",
			params:  ledger.RecordParams{AccountID: acct.ID, Type: "chargeback", Amount: 100, Actor: "t"},
			wantErr: domain.ErrInvalidType,
		},
		{
			name:    "missing actor",
			params:  ledger.RecordParams{AccountID: acct.ID, Type: domain.TransactionTypeDeposit, Amount: 100},
			wantErr: domain.ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tt.params)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing above should have moved the balance.
	assert.Equal(t, int64(1000), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, acct.ID))
}

func TestRecord_ClosedAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, acct := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 1000)
	_, err := db.Exec(`UPDATE accounts SET status = 'closed' WHERE id = $1`, acct.ID)
	require.NoError(t, err)

	_, err = svc.Record(ctx, ledger.RecordParams{
		AccountID: acct.ID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    100,
		Actor:     "t",
	})
	require.ErrorIs(t, err, domain.ErrAccountClosed)
}

func TestRecord_ConcurrentMutations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, acct := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 1000)

	ops := []ledger.RecordParams{
		{AccountID: acct.ID, Type: domain.TransactionTypeDeposit, Amount: 100, Actor: "t"},
		{AccountID: acct.ID, Type: domain.TransactionTypeDeposit, Amount: 200, Actor: "t"},
		{AccountID: acct.ID, Type: domain.TransactionTypeWithdrawal, Amount: 50, Actor: "t"},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ops))
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op ledger.RecordParams) {
			defer wg.Done()
			_, errs[i] = svc.Record(ctx, op)
		}(i, op)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1250), testutil.GetAccountBalance(t, db, acct.ID))
	assert.Equal(t, 3, testutil.CountTransactions(t, db, acct.ID))
	testutil.AssertBalanceMatchesHistory(t, db, acct.ID, 1000)

	// Each mutation bumped the version exactly once.
	var version int64
	require.NoError(t, db.QueryRow(`SELECT version FROM accounts WHERE id = $1`, acct.ID).Scan(&version))
	assert.Equal(t, int64(3), version)
}

func TestTransfer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, from := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 10_000)
	_, to := testutil.SeedMemberWithAccount(t, db, "Bayo", "bayo@coop.test", 500)

	debit, credit, err := svc.Transfer(ctx, from.ID, to.AccountNumber, 3000, "rent split", "ada")
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeTransferOut, debit.Type)
	assert.Equal(t, int64(7000), debit.BalanceAfter)
	assert.Equal(t, domain.TransactionTypeTransferIn, credit.Type)
	assert.Equal(t, int64(3500), credit.BalanceAfter)

	assert.Equal(t, int64(7000), testutil.GetAccountBalance(t, db, from.ID))
	assert.Equal(t, int64(3500), testutil.GetAccountBalance(t, db, to.ID))
	testutil.AssertBalanceMatchesHistory(t, db, from.ID, 10_000)
	testutil.AssertBalanceMatchesHistory(t, db, to.ID, 500)
}

func TestTransfer_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, from := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 1000)
	_, to := testutil.SeedMemberWithAccount(t, db, "Bayo", "bayo@coop.test", 500)

	tests := []struct {
		name    string
		amount  int64
		actor   string
		wantErr error
	}{
		{name: "zero amount", amount: 0, actor: "ada", wantErr: domain.ErrInvalidAmount},
		{name: "negative amount", amount: -100, actor: "ada", wantErr: domain.ErrInvalidAmount},
		{name: "missing actor", amount: 100, actor: "", wantErr: domain.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Transfer(ctx, from.ID, to.AccountNumber, tt.amount, "", tt.actor)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Rejections never touch either account.
	assert.Equal(t, int64(1000), testutil.GetAccountBalance(t, db, from.ID))
	assert.Equal(t, int64(500), testutil.GetAccountBalance(t, db, to.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, from.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, to.ID))
}

func TestTransfer_Atomicity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, from := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 1000)
	_, to := testutil.SeedMemberWithAccount(t, db, "Bayo", "bayo@coop.test", 500)

	_, _, err := svc.Transfer(ctx, from.ID, to.AccountNumber, 5000, "too much", "ada")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Neither leg landed.
	assert.Equal(t, int64(1000), testutil.GetAccountBalance(t, db, from.ID))
	assert.Equal(t, int64(500), testutil.GetAccountBalance(t, db, to.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, from.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, to.ID))
}

func TestTransfer_Destinations(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, from := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 1000)

	_, _, err := svc.Transfer(ctx, from.ID, "AJO9999999999", 100, "", "ada")
	require.ErrorIs(t, err, domain.ErrUnknownDestination)

	_, _, err = svc.Transfer(ctx, from.ID, from.AccountNumber, 100, "", "ada")
	require.ErrorIs(t, err, domain.ErrSelfTransfer)
}

func TestStatement(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	_, acct := testutil.SeedMemberWithAccount(t, db, "Ada", "ada@coop.test", 0)

	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, ledger.RecordParams{
			AccountID: acct.ID,
			Type:      domain.TransactionTypeDeposit,
			Amount:    1000,
			Actor:     "t",
		})
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, ledger.RecordParams{
		AccountID: acct.ID,
		Type:      domain.TransactionTypeWithdrawal,
		Amount:    1200,
		Actor:     "t",
	})
	require.NoError(t, err)

	st, err := svc.Statement(ctx, ledger.StatementRequest{AccountID: acct.ID, Page: 1, Limit: 4})
	require.NoError(t, err)

	assert.Len(t, st.Transactions, 4)
	assert.Equal(t, 6, st.TotalRows)
	assert.Equal(t, int64(5000), st.TotalCredits)
	assert.Equal(t, int64(1200), st.TotalDebits)
	// Most recent first.
	assert.Equal(t, domain.TransactionTypeWithdrawal, st.Transactions[0].Type)

	st2, err := svc.Statement(ctx, ledger.StatementRequest{AccountID: acct.ID, Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, st2.Transactions, 2)
}
