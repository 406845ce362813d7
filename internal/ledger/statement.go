package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
)

const (
	defaultStatementLimit = 20
	maxStatementLimit     = 100
)

type StatementRequest struct {
	AccountID uuid.UUID
	Page      int
	Limit     int
	From      *time.Time
	To        *time.Time
}

type Statement struct {
	Account      *domain.Account
	Transactions []domain.Transaction
	TotalCredits int64
	TotalDebits  int64
	Page         int
	Limit        int
	TotalRows    int
}

// Statement is a read-only, time-descending projection of an account's
// transactions plus running totals for the requested range.
func (s *Service) Statement(ctx context.Context, req StatementRequest) (*Statement, error) {
	acct, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Statement: %w", err)
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = defaultStatementLimit
	}
	if req.Limit > maxStatementLimit {
		req.Limit = maxStatementLimit
	}
	offset := (req.Page - 1) * req.Limit

	txns, total, err := s.txns.ListByAccount(ctx, req.AccountID, req.Limit, offset, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("Statement: %w", err)
	}

	credits, debits, err := s.txns.Totals(ctx, req.AccountID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("Statement: %w", err)
	}

	return &Statement{
		Account:      acct,
		Transactions: txns,
		TotalCredits: credits,
		TotalDebits:  debits,
		Page:         req.Page,
		Limit:        req.Limit,
		TotalRows:    total,
	}, nil
}
