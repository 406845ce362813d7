package loan

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
)

// OperationsAccountID is the cooperative's own settlement account, seeded
// by migration. Loan repayments are credited to it.
var OperationsAccountID = uuid.MustParse("00000000-0000-0000-0001-000000000001")

const (
	extensionMonths = 2
	extensionDays   = 60
)

type loanRepo interface {
	Create(ctx context.Context, l *domain.Loan) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Loan, error)
	Update(ctx context.Context, tx *sql.Tx, l *domain.Loan) error
	CreateRepayment(ctx context.Context, tx *sql.Tx, p *domain.LoanRepayment) error
	ListRepayments(ctx context.Context, loanID uuid.UUID) ([]domain.LoanRepayment, error)
	IncrementFailedDeductions(ctx context.Context, id uuid.UUID) (int, error)
}

type accountRepo interface {
	GetMain(ctx context.Context, memberID uuid.UUID) (*domain.Account, error)
}

type ledgerService interface {
	RecordTx(ctx context.Context, tx *sql.Tx, params ledger.RecordParams) (*domain.Transaction, error)
	TransferTx(ctx context.Context, tx *sql.Tx, fromID, toID uuid.UUID, amount int64, debitType, creditType domain.TransactionType, description, actor string) (*domain.Transaction, *domain.Transaction, error)
}

type payoutOutbox interface {
	Enqueue(ctx context.Context, tx *sql.Tx, p *domain.PayoutIntent) error
}

type Service struct {
	loans    loanRepo
	accounts accountRepo
	ledger   ledgerService
	payouts  payoutOutbox
	audit    audit.Sink
	db       *sql.DB
	now      func() time.Time
}

func NewService(loans loanRepo, accounts accountRepo, ledgerSvc ledgerService, payouts payoutOutbox, auditSink audit.Sink, db *sql.DB) *Service {
	return &Service{
		loans:    loans,
		accounts: accounts,
		ledger:   ledgerSvc,
		payouts:  payouts,
		audit:    auditSink,
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type ApplyRequest struct {
	MemberID         uuid.UUID
	Principal        int64
	InterestRate     decimal.Decimal
	DurationMonths   int
	RepaymentMode    domain.RepaymentMode
	MonthlyDeduction int64
	Purpose          string
}

// Apply validates and files a loan application in pending status.
// Automated-mode applications must carry a deduction amount of at least
// the closed-form annuity payment.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*domain.Loan, error) {
	if req.Principal <= 0 {
		return nil, fmt.Errorf("Apply: principal: %w", domain.ErrInvalidAmount)
	}
	if req.DurationMonths <= 0 {
		return nil, fmt.Errorf("Apply: duration: %w", domain.ErrInvalidAmount)
	}
	if req.InterestRate.IsNegative() {
		return nil, fmt.Errorf("Apply: interest rate: %w", domain.ErrInvalidAmount)
	}
	if !req.RepaymentMode.IsValid() {
		return nil, fmt.Errorf("Apply: repayment mode: %w", domain.ErrMissingField)
	}

	if req.RepaymentMode == domain.RepaymentModeAutomated {
		minimum, err := MinimumPayment(req.Principal, req.InterestRate, req.DurationMonths)
		if err != nil {
			return nil, fmt.Errorf("Apply: %w", err)
		}
		if req.MonthlyDeduction < minimum {
			return nil, fmt.Errorf("Apply: deduction %d below minimum %d: %w",
				req.MonthlyDeduction, minimum, domain.ErrPaymentTooSmall)
		}
	}

	total := TotalRepayable(req.Principal, req.InterestRate, req.DurationMonths)
	l := &domain.Loan{
		ID:               uuid.New(),
		MemberID:         req.MemberID,
		Principal:        req.Principal,
		InterestRate:     req.InterestRate,
		DurationMonths:   req.DurationMonths,
		RepaymentMode:    req.RepaymentMode,
		MonthlyDeduction: req.MonthlyDeduction,
		TotalRepayable:   total,
		Outstanding:      total,
		Status:           domain.LoanStatusPending,
		Purpose:          req.Purpose,
		CreatedAt:        s.now(),
	}
	if err := s.loans.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	logging.FromContext(ctx).Info("loan application filed",
		"loan_id", l.ID, "member_id", l.MemberID, "principal", l.Principal)
	return l, nil
}

// Review approves or rejects a pending application. Only pending loans may
// be reviewed.
func (s *Service) Review(ctx context.Context, loanID uuid.UUID, approve bool, reviewer string) (*domain.Loan, error) {
	if reviewer == "" {
		return nil, fmt.Errorf("Review: reviewer: %w", domain.ErrMissingField)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Review: begin tx: %w", err)
	}
	defer tx.Rollback()

	l, err := s.loans.GetForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, fmt.Errorf("Review: %w", err)
	}
	if l.Status != domain.LoanStatusPending {
		return nil, fmt.Errorf("Review: loan is %s: %w", l.Status, domain.ErrInvalidState)
	}

	now := s.now()
	if approve {
		l.Status = domain.LoanStatusApproved
	} else {
		l.Status = domain.LoanStatusRejected
	}
	l.DecidedBy = &reviewer
	l.DecidedAt = &now

	if err := s.loans.Update(ctx, tx, l); err != nil {
		return nil, fmt.Errorf("Review: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Review: commit: %w", err)
	}

	s.audit.Record(ctx, reviewer, "loan.review", map[string]any{
		"loan_id": l.ID.String(), "status": string(l.Status),
	})
	return l, nil
}

// Disburse credits the approved principal to the member's main savings
// account, starts the repayment clock, and enqueues a payout intent in
// one atomic unit. Payout delivery happens after commit and never rolls
// the ledger back.
func (s *Service) Disburse(ctx context.Context, loanID uuid.UUID, actor string) (*domain.Loan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Disburse: begin tx: %w", err)
	}
	defer tx.Rollback()

	l, err := s.loans.GetForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, fmt.Errorf("Disburse: %w", err)
	}
	if l.Status != domain.LoanStatusApproved {
		return nil, fmt.Errorf("Disburse: loan is %s: %w", l.Status, domain.ErrInvalidState)
	}

	main, err := s.accounts.GetMain(ctx, l.MemberID)
	if err != nil {
		return nil, fmt.Errorf("Disburse: %w", err)
	}

	_, err = s.ledger.RecordTx(ctx, tx, ledger.RecordParams{
		AccountID:   main.ID,
		Type:        domain.TransactionTypeLoanDisbursement,
		Amount:      l.Principal,
		Description: fmt.Sprintf("Loan disbursement %s", l.ID),
		Actor:       actor,
	})
	if err != nil {
		return nil, fmt.Errorf("Disburse: %w", err)
	}

	now := s.now()
	due := now.AddDate(0, l.DurationMonths, 0)
	l.Status = domain.LoanStatusDisbursed
	l.DisbursedAt = &now
	l.DueDate = &due
	if err := s.loans.Update(ctx, tx, l); err != nil {
		return nil, fmt.Errorf("Disburse: %w", err)
	}

	intent := &domain.PayoutIntent{
		ID:            uuid.New(),
		Kind:          domain.PayoutKindLoanDisbursement,
		Amount:        l.Principal,
		Destination:   main.AccountNumber,
		Status:        domain.PayoutStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := s.payouts.Enqueue(ctx, tx, intent); err != nil {
		return nil, fmt.Errorf("Disburse: enqueue payout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Disburse: commit: %w", err)
	}

	s.audit.Record(ctx, actor, "loan.disburse", map[string]any{
		"loan_id": l.ID.String(), "amount": l.Principal,
	})
	logging.FromContext(ctx).Info("loan disbursed",
		"loan_id", l.ID, "member_id", l.MemberID, "amount", l.Principal)
	return l, nil
}

func (s *Service) Get(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	l, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return l, nil
}

// Repayments returns a loan's repayment history, oldest first.
func (s *Service) Repayments(ctx context.Context, loanID uuid.UUID) ([]domain.LoanRepayment, error) {
	if _, err := s.loans.GetByID(ctx, loanID); err != nil {
		return nil, fmt.Errorf("Repayments: %w", err)
	}
	rows, err := s.loans.ListRepayments(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("Repayments: %w", err)
	}
	return rows, nil
}
