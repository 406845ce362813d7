package domain

import (
	"time"

	"github.com/google/uuid"
)

type AccountType string

const (
	AccountTypeSavings      AccountType = "savings"
	AccountTypeShareCapital AccountType = "share_capital"
	AccountTypeSavingsPlan  AccountType = "savings_plan"
)

func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeSavings, AccountTypeShareCapital, AccountTypeSavingsPlan:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// Account holds a single-sided balance. The balance is only ever mutated
// through the ledger, which appends exactly one Transaction per mutation.
type Account struct {
	ID            uuid.UUID
	MemberID      uuid.UUID
	AccountNumber string
	Type          AccountType
	Balance       int64
	Version       int64
	Status        AccountStatus
	CreatedAt     time.Time
}
