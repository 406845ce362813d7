package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PostingType string

const (
	PostingTypeInterest PostingType = "interest"
	PostingTypeDividend PostingType = "dividend"
)

func (t PostingType) IsValid() bool {
	return t == PostingTypeInterest || t == PostingTypeDividend
}

// TransactionType maps the posting type to the ledger credit it produces.
func (t PostingType) TransactionType() TransactionType {
	if t == PostingTypeDividend {
		return TransactionTypeDividend
	}
	return TransactionTypeInterest
}

type PostingStatus string

const (
	PostingStatusPending   PostingStatus = "pending"
	PostingStatusCompleted PostingStatus = "completed"
	PostingStatusFailed    PostingStatus = "failed"
)

// PostingLog records one bulk interest/dividend run. At most one completed
// log may exist per (type, period) pair.
type PostingLog struct {
	ID            uuid.UUID
	Type          PostingType
	Period        string // "2006-01"
	Rate          decimal.Decimal
	TotalAmount   int64
	Beneficiaries int
	Status        PostingStatus
	Error         *string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}
