package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusDisbursed LoanStatus = "disbursed"
	LoanStatusRepaying  LoanStatus = "repaying"
	LoanStatusDefaulted LoanStatus = "defaulted"
	LoanStatusCompleted LoanStatus = "completed"
)

type RepaymentMode string

const (
	RepaymentModeManual    RepaymentMode = "manual"
	RepaymentModeAutomated RepaymentMode = "automated"
)

func (m RepaymentMode) IsValid() bool {
	return m == RepaymentModeManual || m == RepaymentModeAutomated
}

type Loan struct {
	ID               uuid.UUID
	MemberID         uuid.UUID
	Principal        int64
	InterestRate     decimal.Decimal // annual, percent
	DurationMonths   int
	RepaymentMode    RepaymentMode
	MonthlyDeduction int64 // automated mode only
	TotalRepayable   int64
	Outstanding      int64
	Status           LoanStatus
	FailedDeductions int
	Extensions       int
	Purpose          string
	DueDate          *time.Time
	LastDeductionAt  *time.Time
	DecidedBy        *string
	DecidedAt        *time.Time
	DisbursedAt      *time.Time
	CreatedAt        time.Time
}

// Repayable reports whether a payment may be applied to the loan.
func (l *Loan) Repayable() bool {
	switch l.Status {
	case LoanStatusDisbursed, LoanStatusRepaying, LoanStatusDefaulted:
		return true
	}
	return false
}

// LoanRepayment records the principal/interest split of a single payment.
// It links 1:1 to the ledger Transaction that moved the money.
type LoanRepayment struct {
	ID               uuid.UUID
	LoanID           uuid.UUID
	TransactionID    uuid.UUID
	Amount           int64
	PrincipalPortion int64
	InterestPortion  int64
	CreatedAt        time.Time
}
