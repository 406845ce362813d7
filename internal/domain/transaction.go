package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "deposit"
	TransactionTypeWithdrawal       TransactionType = "withdrawal"
	TransactionTypeTransferIn       TransactionType = "transfer_in"
	TransactionTypeTransferOut      TransactionType = "transfer_out"
	TransactionTypeLoanDisbursement TransactionType = "loan_disbursement"
	TransactionTypeLoanRepayment    TransactionType = "loan_repayment"
	TransactionTypeInterest         TransactionType = "interest"
	TransactionTypeDividend         TransactionType = "dividend"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal,
		TransactionTypeTransferIn, TransactionTypeTransferOut,
		TransactionTypeLoanDisbursement, TransactionTypeLoanRepayment,
		TransactionTypeInterest, TransactionTypeDividend:
		return true
	}
	return false
}

// IsDebit reports whether the type reduces the account balance. Debits are
// subject to the insufficient-funds check; every other valid type credits.
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeWithdrawal || t == TransactionTypeTransferOut
}

// SignedAmount returns amount with the sign the type applies to a balance.
func (t TransactionType) SignedAmount(amount int64) int64 {
	if t.IsDebit() {
		return -amount
	}
	return amount
}

type TransactionStatus string

const TransactionStatusCompleted TransactionStatus = "completed"

// Transaction is append-only: rows are inserted at commit time and never
// updated or deleted. BalanceAfter snapshots the account balance at commit.
type Transaction struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Type         TransactionType
	Amount       int64
	BalanceAfter int64
	Reference    string
	Description  string
	Actor        string
	Status       TransactionStatus
	CreatedAt    time.Time
}
