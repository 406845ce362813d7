package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/logging"
	"github.com/ajoflow/coop-core/internal/metrics"
	"github.com/ajoflow/coop-core/internal/repository"
)

type memberRepo interface {
	Create(ctx context.Context, tx *sql.Tx, m *domain.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
}

type accountRepo interface {
	Create(ctx context.Context, tx *sql.Tx, a *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance, newVersion int64) error
	Close(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int, from, to *time.Time) ([]domain.Transaction, int, error)
	Totals(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (int64, int64, error)
}

// Service is the only component allowed to mutate an account balance.
// Every mutation locks the account row, applies the delta, and appends
// exactly one Transaction carrying the post-mutation balance snapshot.
type Service struct {
	members  memberRepo
	accounts accountRepo
	txns     transactionRepo
	db       *sql.DB
	metrics  *metrics.Collector
	now      func() time.Time
}

func NewService(members memberRepo, accounts accountRepo, txns transactionRepo, db *sql.DB, collector *metrics.Collector) *Service {
	return &Service{
		members:  members,
		accounts: accounts,
		txns:     txns,
		db:       db,
		metrics:  collector,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock; tests use it to control time.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type RecordParams struct {
	AccountID   uuid.UUID
	Type        domain.TransactionType
	Amount      int64
	Description string
	Actor       string
}

func (p RecordParams) validate() error {
	if !p.Type.IsValid() {
		return fmt.Errorf("type %q: %w", p.Type, domain.ErrInvalidType)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w", domain.ErrInvalidAmount)
	}
	if p.Actor == "" {
		return fmt.Errorf("actor: %w", domain.ErrMissingField)
	}
	return nil
}

// Record applies a single mutation in its own transaction.
func (s *Service) Record(ctx context.Context, params RecordParams) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Record: begin tx: %w", err)
	}
	defer tx.Rollback()

	txn, err := s.RecordTx(ctx, tx, params)
	if err != nil {
		return nil, fmt.Errorf("Record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Record: commit: %w", err)
	}

	logging.FromContext(ctx).Info("transaction recorded",
		"account_id", params.AccountID,
		"type", params.Type,
		"amount", params.Amount,
		"reference", txn.Reference,
	)
	return txn, nil
}

// RecordTx applies a single mutation inside a caller-owned transaction.
// The loan, savings and posting engines compose multi-step atomic units
// out of it.
func (s *Service) RecordTx(ctx context.Context, tx *sql.Tx, params RecordParams) (*domain.Transaction, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("RecordTx: %w", err)
	}

	acct, err := s.accounts.GetForUpdate(ctx, tx, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("RecordTx: %w", err)
	}

	return s.apply(ctx, tx, acct, params)
}

// apply writes one leg against an already-locked account.
func (s *Service) apply(ctx context.Context, tx *sql.Tx, acct *domain.Account, params RecordParams) (*domain.Transaction, error) {
	if acct.Status != domain.AccountStatusActive {
		return nil, fmt.Errorf("apply: account %s: %w", acct.ID, domain.ErrAccountClosed)
	}

	if params.Type.IsDebit() && acct.Balance < params.Amount {
		return nil, fmt.Errorf("apply: account %s: %w", acct.ID, domain.ErrInsufficientFunds)
	}

	newBalance := acct.Balance + params.Type.SignedAmount(params.Amount)

	txn := &domain.Transaction{
		ID:           uuid.New(),
		AccountID:    acct.ID,
		Type:         params.Type,
		Amount:       params.Amount,
		BalanceAfter: newBalance,
		Reference:    newReference(),
		Description:  params.Description,
		Actor:        params.Actor,
		Status:       domain.TransactionStatusCompleted,
		CreatedAt:    s.now(),
	}
	if err := s.txns.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("apply: create transaction: %w", err)
	}

	if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, newBalance, acct.Version+1); err != nil {
		return nil, fmt.Errorf("apply: update balance: %w", err)
	}
	acct.Balance = newBalance
	acct.Version++

	s.metrics.TransactionRecorded(string(params.Type))
	return txn, nil
}

// OpenAccount creates a new account for a member. Account numbers are
// random; the insert is retried on a number collision.
func (s *Service) OpenAccount(ctx context.Context, memberID uuid.UUID, accountType domain.AccountType) (*domain.Account, error) {
	if !accountType.IsValid() {
		return nil, fmt.Errorf("OpenAccount: type %q: %w", accountType, domain.ErrInvalidType)
	}

	for attempt := 0; attempt < 3; attempt++ {
		acct := &domain.Account{
			ID:            uuid.New(),
			MemberID:      memberID,
			AccountNumber: newAccountNumber(),
			Type:          accountType,
			Balance:       0,
			Version:       0,
			Status:        domain.AccountStatusActive,
			CreatedAt:     s.now(),
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("OpenAccount: begin tx: %w", err)
		}

		err = s.accounts.Create(ctx, tx, acct)
		if err == nil {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("OpenAccount: commit: %w", err)
			}
			return acct, nil
		}

		tx.Rollback()
		if !repository.IsUniqueViolation(err, "accounts_account_number_key") {
			return nil, fmt.Errorf("OpenAccount: %w", err)
		}
	}
	return nil, fmt.Errorf("OpenAccount: exhausted account number attempts")
}

// openAccountTx creates the account inside a caller-owned transaction.
// Used by plan creation, where the sub-account and the funding transfer
// must commit together.
func (s *Service) openAccountTx(ctx context.Context, tx *sql.Tx, memberID uuid.UUID, accountType domain.AccountType) (*domain.Account, error) {
	acct := &domain.Account{
		ID:            uuid.New(),
		MemberID:      memberID,
		AccountNumber: newAccountNumber(),
		Type:          accountType,
		Balance:       0,
		Version:       0,
		Status:        domain.AccountStatusActive,
		CreatedAt:     s.now(),
	}
	if err := s.accounts.Create(ctx, tx, acct); err != nil {
		return nil, fmt.Errorf("openAccountTx: %w", err)
	}
	return acct, nil
}

// OpenAccountTx exposes in-transaction account creation to the savings engine.
func (s *Service) OpenAccountTx(ctx context.Context, tx *sql.Tx, memberID uuid.UUID, accountType domain.AccountType) (*domain.Account, error) {
	if !accountType.IsValid() {
		return nil, fmt.Errorf("OpenAccountTx: type %q: %w", accountType, domain.ErrInvalidType)
	}
	return s.openAccountTx(ctx, tx, memberID, accountType)
}

// CloseAccountTx marks an account closed inside the caller's transaction.
func (s *Service) CloseAccountTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	if err := s.accounts.Close(ctx, tx, id); err != nil {
		return fmt.Errorf("CloseAccountTx: %w", err)
	}
	return nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acct, nil
}

func newReference() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

const accountNumberDigits = 10

func newAccountNumber() string {
	var b strings.Builder
	b.WriteString("AJO")
	for range accountNumberDigits {
		b.WriteByte(byte('0' + rand.IntN(10)))
	}
	return b.String()
}
