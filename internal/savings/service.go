package savings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/audit"
	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/logging"
	"github.com/ajoflow/coop-core/internal/notify"
)

type savingsRepo interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.SavingsProduct, error)
	CreatePlan(ctx context.Context, tx *sql.Tx, p *domain.SavingsPlan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.SavingsPlan, error)
	GetPlanForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.SavingsPlan, error)
	UpdatePlan(ctx context.Context, tx *sql.Tx, p *domain.SavingsPlan) error
}

type accountRepo interface {
	GetMain(ctx context.Context, memberID uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
}

type ledgerService interface {
	RecordTx(ctx context.Context, tx *sql.Tx, params ledger.RecordParams) (*domain.Transaction, error)
	TransferTx(ctx context.Context, tx *sql.Tx, fromID, toID uuid.UUID, amount int64, debitType, creditType domain.TransactionType, description, actor string) (*domain.Transaction, *domain.Transaction, error)
	LockAccountsTx(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error)
	OpenAccountTx(ctx context.Context, tx *sql.Tx, memberID uuid.UUID, accountType domain.AccountType) (*domain.Account, error)
	CloseAccountTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type payoutOutbox interface {
	Enqueue(ctx context.Context, tx *sql.Tx, p *domain.PayoutIntent) error
}

type Service struct {
	plans    savingsRepo
	accounts accountRepo
	ledger   ledgerService
	payouts  payoutOutbox
	audit    audit.Sink
	notifier notify.Notifier
	db       *sql.DB
	now      func() time.Time
}

func NewService(plans savingsRepo, accounts accountRepo, ledgerSvc ledgerService, payouts payoutOutbox, auditSink audit.Sink, notifier notify.Notifier, db *sql.DB) *Service {
	return &Service{
		plans:    plans,
		accounts: accounts,
		ledger:   ledgerSvc,
		payouts:  payouts,
		audit:    auditSink,
		notifier: notifier,
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreatePlanRequest struct {
	MemberID          uuid.UUID
	ProductID         uuid.UUID
	Name              string
	InitialDeposit    int64
	DurationMonths    int
	AutoSaveAmount    int64
	AutoSaveFrequency domain.AutoSaveFrequency
}

// CreatePlan opens the dedicated sub-account and, when funded, debits the
// member's main savings account in the same transaction. Insufficient
// funds aborts plan creation entirely: no sub-account, no partial debit.
func (s *Service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*domain.SavingsPlan, error) {
	product, err := s.plans.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("CreatePlan: %w", err)
	}
	if !product.Active {
		return nil, fmt.Errorf("CreatePlan: %w", domain.ErrProductInactive)
	}
	if req.InitialDeposit < product.MinDeposit {
		return nil, fmt.Errorf("CreatePlan: %w", domain.ErrBelowMinimumDeposit)
	}
	if req.DurationMonths < product.MinDurationMonths {
		return nil, fmt.Errorf("CreatePlan: %w", domain.ErrBelowMinimumDuration)
	}
	if req.AutoSaveFrequency == "" {
		req.AutoSaveFrequency = domain.AutoSaveNone
	}

	main, err := s.accounts.GetMain(ctx, req.MemberID)
	if err != nil {
		return nil, fmt.Errorf("CreatePlan: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreatePlan: begin tx: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.ledger.OpenAccountTx(ctx, tx, req.MemberID, domain.AccountTypeSavingsPlan)
	if err != nil {
		return nil, fmt.Errorf("CreatePlan: %w", err)
	}

	now := s.now()
	plan := &domain.SavingsPlan{
		ID:                uuid.New(),
		MemberID:          req.MemberID,
		ProductID:         product.ID,
		AccountID:         acct.ID,
		Name:              req.Name,
		Status:            domain.PlanStatusActive,
		MaturityDate:      now.AddDate(0, req.DurationMonths, 0),
		AutoSaveAmount:    req.AutoSaveAmount,
		AutoSaveFrequency: req.AutoSaveFrequency,
		CreatedAt:         now,
	}
	if err := s.plans.CreatePlan(ctx, tx, plan); err != nil {
		return nil, fmt.Errorf("CreatePlan: %w", err)
	}

	if req.InitialDeposit > 0 {
		_, _, err := s.ledger.TransferTx(ctx, tx, main.ID, acct.ID, req.InitialDeposit,
			domain.TransactionTypeTransferOut, domain.TransactionTypeTransferIn,
			fmt.Sprintf("Savings plan funding %s", plan.ID), req.MemberID.String())
		if err != nil {
			return nil, fmt.Errorf("CreatePlan: funding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreatePlan: commit: %w", err)
	}

	logging.FromContext(ctx).Info("savings plan created",
		"plan_id", plan.ID,
		"member_id", plan.MemberID,
		"product", product.Name,
		"initial_deposit", req.InitialDeposit,
	)
	return plan, nil
}

func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*domain.SavingsPlan, error) {
	plan, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPlan: %w", err)
	}
	return plan, nil
}
