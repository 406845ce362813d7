package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/logging"
)

// Transfer composes a debit and a credit as one atomic unit. The debit leg
// rolls back with the credit leg: no single-sided posting is ever visible.
func (s *Service) Transfer(ctx context.Context, fromAccountID uuid.UUID, toAccountNumber string, amount int64, description, actor string) (*domain.Transaction, *domain.Transaction, error) {
	dest, err := s.accounts.GetByNumber(ctx, toAccountNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("Transfer: %w", domain.ErrUnknownDestination)
		}
		return nil, nil, fmt.Errorf("Transfer: %w", err)
	}
	if dest.ID == fromAccountID {
		return nil, nil, fmt.Errorf("Transfer: %w", domain.ErrSelfTransfer)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("Transfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	debit, credit, err := s.TransferTx(ctx, tx, fromAccountID, dest.ID, amount,
		domain.TransactionTypeTransferOut, domain.TransactionTypeTransferIn, description, actor)
	if err != nil {
		return nil, nil, fmt.Errorf("Transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("Transfer: commit: %w", err)
	}

	logging.FromContext(ctx).Info("transfer completed",
		"from_account", fromAccountID,
		"to_account", dest.ID,
		"amount", amount,
		"debit_reference", debit.Reference,
		"credit_reference", credit.Reference,
	)
	return debit, credit, nil
}

// TransferTx moves amount between two accounts inside a caller-owned
// transaction. Both rows are locked in sorted-id order before either leg
// is applied, so concurrent cross-account pairs cannot deadlock.
func (s *Service) TransferTx(ctx context.Context, tx *sql.Tx, fromID, toID uuid.UUID, amount int64, debitType, creditType domain.TransactionType, description, actor string) (*domain.Transaction, *domain.Transaction, error) {
	if amount <= 0 {
		return nil, nil, fmt.Errorf("TransferTx: %w", domain.ErrInvalidAmount)
	}
	if actor == "" {
		return nil, nil, fmt.Errorf("TransferTx: actor: %w", domain.ErrMissingField)
	}
	if fromID == toID {
		return nil, nil, fmt.Errorf("TransferTx: %w", domain.ErrSelfTransfer)
	}

	locked, err := s.lockAccountsInOrder(ctx, tx, fromID, toID)
	if err != nil {
		return nil, nil, fmt.Errorf("TransferTx: %w", err)
	}

	debit, err := s.apply(ctx, tx, locked[fromID], RecordParams{
		AccountID:   fromID,
		Type:        debitType,
		Amount:      amount,
		Description: description,
		Actor:       actor,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("TransferTx: debit leg: %w", err)
	}

	credit, err := s.apply(ctx, tx, locked[toID], RecordParams{
		AccountID:   toID,
		Type:        creditType,
		Amount:      amount,
		Description: description,
		Actor:       actor,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("TransferTx: credit leg: %w", err)
	}

	return debit, credit, nil
}

// LockAccountsTx locks the given accounts in sorted-id order inside the
// caller's transaction and returns them keyed by id. Engines that need an
// account's balance before composing TransferTx or RecordTx acquire their
// locks through here, so every path takes rows in the same order.
func (s *Service) LockAccountsTx(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	return s.lockAccountsInOrder(ctx, tx, ids...)
}

func (s *Service) lockAccountsInOrder(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := s.accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}
