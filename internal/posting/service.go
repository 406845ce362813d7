package posting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ajoflow/coop-core/internal/audit"
	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/logging"
	"github.com/ajoflow/coop-core/internal/metrics"
)

// defaultPreviewLimit bounds the per-account detail a dry run returns when
// the request does not set its own limit. Totals are still computed over
// every eligible account.
const defaultPreviewLimit = 50

type postingRepo interface {
	CreateLog(ctx context.Context, l *domain.PostingLog) error
	HasCompleted(ctx context.Context, postingType domain.PostingType, period string) (bool, error)
	Complete(ctx context.Context, tx *sql.Tx, id uuid.UUID, totalAmount int64, beneficiaries int, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	GetLog(ctx context.Context, id uuid.UUID) (*domain.PostingLog, error)
}

type accountRepo interface {
	ListEligibleForUpdate(ctx context.Context, tx *sql.Tx, accountType domain.AccountType) ([]domain.Account, error)
	ListEligible(ctx context.Context, accountType domain.AccountType) ([]domain.Account, error)
}

type ledgerService interface {
	RecordTx(ctx context.Context, tx *sql.Tx, params ledger.RecordParams) (*domain.Transaction, error)
}

type Service struct {
	logs     postingRepo
	accounts accountRepo
	ledger   ledgerService
	audit    audit.Sink
	metrics  *metrics.Collector
	db       *sql.DB
	now      func() time.Time
}

func NewService(logs postingRepo, accounts accountRepo, ledgerSvc ledgerService, auditSink audit.Sink, collector *metrics.Collector, db *sql.DB) *Service {
	return &Service{
		logs:     logs,
		accounts: accounts,
		ledger:   ledgerSvc,
		audit:    auditSink,
		metrics:  collector,
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type RunRequest struct {
	Type   domain.PostingType
	Period string // "2006-01"
	Rate   decimal.Decimal
	Actor  string

	// AccountType narrows the run to a specific account class. Empty means
	// the default class for the posting type.
	AccountType domain.AccountType

	// PreviewLimit caps the per-account lines a dry run returns. Zero means
	// defaultPreviewLimit. Runs ignore it.
	PreviewLimit int
}

func (r RunRequest) validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("type %q: %w", r.Type, domain.ErrInvalidType)
	}
	if _, err := time.Parse("2006-01", r.Period); err != nil {
		return fmt.Errorf("period %q: %w", r.Period, domain.ErrMissingField)
	}
	if r.Rate.IsNegative() || r.Rate.IsZero() {
		return fmt.Errorf("rate: %w", domain.ErrInvalidAmount)
	}
	if r.Actor == "" {
		return fmt.Errorf("actor: %w", domain.ErrMissingField)
	}
	if r.AccountType != "" && !r.AccountType.IsValid() {
		return fmt.Errorf("account type %q: %w", r.AccountType, domain.ErrInvalidType)
	}
	if r.PreviewLimit < 0 {
		return fmt.Errorf("preview limit: %w", domain.ErrInvalidAmount)
	}
	return nil
}

// accountType resolves the account class the run credits.
func (r RunRequest) accountType() domain.AccountType {
	if r.AccountType != "" {
		return r.AccountType
	}
	return eligibleType(r.Type)
}

func (r RunRequest) previewLimit() int {
	if r.PreviewLimit > 0 {
		return r.PreviewLimit
	}
	return defaultPreviewLimit
}

// eligibleType maps the posting type to the account class it credits.
// Interest goes to members' main savings accounts, dividends to share
// capital accounts.
func eligibleType(t domain.PostingType) domain.AccountType {
	if t == domain.PostingTypeDividend {
		return domain.AccountTypeShareCapital
	}
	return domain.AccountTypeSavings
}

// creditFor computes one account's share of the run: balance * rate / 100,
// rounded to the nearest minor unit.
func creditFor(balance int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(balance).
		Mul(rate).
		Div(decimal.NewFromInt(100)).
		Round(0).IntPart()
}

// PreviewLine is one account's would-be credit in a dry run.
type PreviewLine struct {
	AccountID     uuid.UUID
	AccountNumber string
	Balance       int64
	Credit        int64
}

// Preview is the outcome of a dry run. Lines is truncated to the request's
// preview limit; TotalAmount and Beneficiaries always cover the full
// eligible set.
type Preview struct {
	Type          domain.PostingType
	Period        string
	Rate          decimal.Decimal
	TotalAmount   int64
	Beneficiaries int
	Lines         []PreviewLine
}

// DryRun computes what a posting run would distribute without locking rows,
// writing a log or touching any balance.
func (s *Service) DryRun(ctx context.Context, req RunRequest) (*Preview, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("DryRun: %w", err)
	}

	accounts, err := s.accounts.ListEligible(ctx, req.accountType())
	if err != nil {
		return nil, fmt.Errorf("DryRun: %w", err)
	}

	limit := req.previewLimit()
	preview := &Preview{Type: req.Type, Period: req.Period, Rate: req.Rate}
	for _, acct := range accounts {
		credit := creditFor(acct.Balance, req.Rate)
		if credit <= 0 {
			continue
		}
		preview.TotalAmount += credit
		preview.Beneficiaries++
		if len(preview.Lines) < limit {
			preview.Lines = append(preview.Lines, PreviewLine{
				AccountID:     acct.ID,
				AccountNumber: acct.AccountNumber,
				Balance:       acct.Balance,
				Credit:        credit,
			})
		}
	}
	return preview, nil
}

// Run executes a bulk posting. The pending log is committed before the bulk
// transaction starts so a crash mid-run leaves a visible trace; on failure
// the whole distribution rolls back and the same log is marked failed.
func (s *Service) Run(ctx context.Context, req RunRequest) (*domain.PostingLog, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	done, err := s.logs.HasCompleted(ctx, req.Type, req.Period)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	if done {
		return nil, fmt.Errorf("Run: %s for %s: %w", req.Type, req.Period, domain.ErrDuplicatePosting)
	}

	now := s.now()
	log := &domain.PostingLog{
		ID:        uuid.New(),
		Type:      req.Type,
		Period:    req.Period,
		Rate:      req.Rate,
		Status:    domain.PostingStatusPending,
		CreatedAt: now,
	}
	if err := s.logs.CreateLog(ctx, log); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	total, beneficiaries, err := s.distribute(ctx, req, log.ID)
	if err != nil {
		if mfErr := s.logs.MarkFailed(ctx, log.ID, err.Error()); mfErr != nil {
			logging.FromContext(ctx).Error("mark posting failed", "log_id", log.ID, "error", mfErr)
		}
		return nil, fmt.Errorf("Run: %w", err)
	}

	log, err = s.logs.GetLog(ctx, log.ID)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	s.metrics.PostingDistributed(string(req.Type), total)
	s.audit.Record(ctx, req.Actor, "posting.run", map[string]any{
		"type":          string(req.Type),
		"period":        req.Period,
		"rate":          req.Rate.String(),
		"total_amount":  total,
		"beneficiaries": beneficiaries,
	})
	logging.FromContext(ctx).Info("posting run completed",
		"type", req.Type,
		"period", req.Period,
		"total_amount", total,
		"beneficiaries", beneficiaries,
	)
	return log, nil
}

// distribute credits every eligible account in a single transaction. Rows
// are locked in id order to keep concurrent runs and transfers deadlock
// free. The unique index on completed (type, period) makes two racing runs
// for the same pair fail on commit rather than double-post.
func (s *Service) distribute(ctx context.Context, req RunRequest, logID uuid.UUID) (int64, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	accounts, err := s.accounts.ListEligibleForUpdate(ctx, tx, req.accountType())
	if err != nil {
		return 0, 0, err
	}

	var (
		total         int64
		beneficiaries int
	)
	txnType := req.Type.TransactionType()
	for i := range accounts {
		credit := creditFor(accounts[i].Balance, req.Rate)
		if credit <= 0 {
			continue
		}
		_, err := s.ledger.RecordTx(ctx, tx, ledger.RecordParams{
			AccountID:   accounts[i].ID,
			Type:        txnType,
			Amount:      credit,
			Description: fmt.Sprintf("%s posting for %s", req.Type, req.Period),
			Actor:       req.Actor,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("account %s: %w", accounts[i].ID, err)
		}
		total += credit
		beneficiaries++
	}

	if err := s.logs.Complete(ctx, tx, logID, total, beneficiaries, s.now()); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return total, beneficiaries, nil
}
