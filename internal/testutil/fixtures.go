package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/repository"
)

// Seeded by the migrations; every test database has them.
var (
	SystemMemberID      = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	OperationsAccountID = uuid.MustParse("00000000-0000-0000-0001-000000000001")
)

func SeedMember(t *testing.T, db *sql.DB, name, email string) *domain.Member {
	t.Helper()

	m := &domain.Member{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Status:    domain.MemberStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO members (id, name, email, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.Email, m.Status, m.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed member %s: %v", email, err)
	}
	return m
}

func SeedAccount(t *testing.T, db *sql.DB, memberID uuid.UUID, accountType domain.AccountType, balance int64) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:            uuid.New(),
		MemberID:      memberID,
		AccountNumber: fmt.Sprintf("AJO%010d", rand.Int64N(10_000_000_000)),
		Type:          accountType,
		Balance:       balance,
		Version:       0,
		Status:        domain.AccountStatusActive,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO accounts (id, member_id, account_number, type, balance, version, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.MemberID, a.AccountNumber, a.Type, a.Balance, a.Version, a.Status, a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s/%s: %v", memberID, accountType, err)
	}
	return a
}

// SeedMemberWithAccount seeds a member plus a funded main savings account.
func SeedMemberWithAccount(t *testing.T, db *sql.DB, name, email string, balance int64) (*domain.Member, *domain.Account) {
	t.Helper()

	m := SeedMember(t, db, name, email)
	a := SeedAccount(t, db, m.ID, domain.AccountTypeSavings, balance)
	return m, a
}

func SeedSavingsProduct(t *testing.T, db *sql.DB, productType domain.ProductType, interestRate, penaltyPct float64, minDeposit int64, minDurationMonths int, allowEarly bool) *domain.SavingsProduct {
	t.Helper()

	p := &domain.SavingsProduct{
		ID:                   uuid.New(),
		Name:                 fmt.Sprintf("%s test product", productType),
		Type:                 productType,
		InterestRate:         decimal.NewFromFloat(interestRate),
		MinDurationMonths:    minDurationMonths,
		MinDeposit:           minDeposit,
		PenaltyPct:           decimal.NewFromFloat(penaltyPct),
		AllowEarlyWithdrawal: allowEarly,
		Active:               true,
		CreatedAt:            time.Now().UTC(),
	}
	if err := repository.NewSavingsRepository(db).CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("seed savings product %s: %v", productType, err)
	}
	return p
}

// SeedLoan seeds a loan directly in the given status, bypassing the
// application flow. TotalRepayable and Outstanding are set equal.
func SeedLoan(t *testing.T, db *sql.DB, memberID uuid.UUID, principal, totalRepayable, monthlyDeduction int64, mode domain.RepaymentMode, status domain.LoanStatus, dueDate *time.Time) *domain.Loan {
	t.Helper()

	l := &domain.Loan{
		ID:               uuid.New(),
		MemberID:         memberID,
		Principal:        principal,
		InterestRate:     decimal.NewFromInt(10),
		DurationMonths:   12,
		RepaymentMode:    mode,
		MonthlyDeduction: monthlyDeduction,
		TotalRepayable:   totalRepayable,
		Outstanding:      totalRepayable,
		Status:           status,
		DueDate:          dueDate,
		CreatedAt:        time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO loans (
			id, member_id, principal, interest_rate, duration_months, repayment_mode,
			monthly_deduction, total_repayable, outstanding, status, due_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		l.ID, l.MemberID, l.Principal, l.InterestRate, l.DurationMonths, l.RepaymentMode,
		l.MonthlyDeduction, l.TotalRepayable, l.Outstanding, l.Status, l.DueDate, l.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed loan for %s: %v", memberID, err)
	}
	return l
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func CountTransactions(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for %s: %v", accountID, err)
	}
	return count
}

// AssertBalanceMatchesHistory checks that an account's stored balance equals
// its opening balance plus the signed sum of its transactions. Seeded accounts
// carry opening balances with no transaction rows, so callers pass the balance
// the account was created with.
func AssertBalanceMatchesHistory(t *testing.T, db *sql.DB, accountID uuid.UUID, opening int64) {
	t.Helper()

	var signedSum int64
	err := db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN type IN ('withdrawal', 'transfer_out') THEN -amount ELSE amount END), 0)
		 FROM transactions WHERE account_id = $1`,
		accountID,
	).Scan(&signedSum)
	if err != nil {
		t.Fatalf("sum transactions for %s: %v", accountID, err)
	}
	if got, want := GetAccountBalance(t, db, accountID), opening+signedSum; got != want {
		t.Fatalf("account %s balance %d does not match opening %d plus history %d", accountID, got, opening, signedSum)
	}
}

func CountPendingPayouts(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM payout_outbox WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		t.Fatalf("count pending payouts: %v", err)
	}
	return count
}
