package domain

import (
	"time"

	"github.com/google/uuid"
)

type PayoutKind string

const (
	PayoutKindLoanDisbursement PayoutKind = "loan_disbursement"
	PayoutKindPlanWithdrawal   PayoutKind = "plan_withdrawal"
)

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusDelivered PayoutStatus = "delivered"
	PayoutStatusFailed    PayoutStatus = "failed"
)

// PayoutIntent is an outbox row. The ledger commit that created it is
// authoritative; delivery to the payment gateway is retried independently
// and its outcome never rolls the ledger back.
type PayoutIntent struct {
	ID            uuid.UUID
	Kind          PayoutKind
	Amount        int64
	Destination   string
	Status        PayoutStatus
	Attempts      int
	NextAttemptAt time.Time
	ProviderRef   *string
	LastError     *string
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}
