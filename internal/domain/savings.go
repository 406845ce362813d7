package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypeFixed   ProductType = "fixed"
	ProductTypeTarget  ProductType = "target"
	ProductTypeSafebox ProductType = "safebox"
)

func (t ProductType) IsValid() bool {
	switch t {
	case ProductTypeFixed, ProductTypeTarget, ProductTypeSafebox:
		return true
	}
	return false
}

// SavingsProduct is the template a plan is created from.
type SavingsProduct struct {
	ID                   uuid.UUID
	Name                 string
	Type                 ProductType
	InterestRate         decimal.Decimal // annual, percent
	MinDurationMonths    int
	MinDeposit           int64
	PenaltyPct           decimal.Decimal
	AllowEarlyWithdrawal bool
	Active               bool
	CreatedAt            time.Time
}

type PlanStatus string

const (
	PlanStatusActive     PlanStatus = "active"
	PlanStatusCompleted  PlanStatus = "completed"
	PlanStatusLiquidated PlanStatus = "liquidated"
)

type AutoSaveFrequency string

const (
	AutoSaveNone    AutoSaveFrequency = "none"
	AutoSaveMonthly AutoSaveFrequency = "monthly"
)

// SavingsPlan is a product instance bound to a dedicated sub-account.
// WithdrawalRequestedAt drives the safebox two-phase withdrawal: nil means
// no pending request, non-nil means the 24h delay clock is running.
type SavingsPlan struct {
	ID                    uuid.UUID
	MemberID              uuid.UUID
	ProductID             uuid.UUID
	AccountID             uuid.UUID
	Name                  string
	Status                PlanStatus
	MaturityDate          time.Time
	WithdrawalRequestedAt *time.Time
	AutoSaveAmount        int64
	AutoSaveFrequency     AutoSaveFrequency
	LastAutoSaveAt        *time.Time
	LastInterestAt        *time.Time
	CreatedAt             time.Time
}

// Mature reports whether the plan has reached its maturity date.
func (p *SavingsPlan) Mature(now time.Time) bool {
	return !now.Before(p.MaturityDate)
}
