package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/logging"
)

// EnrolledMember bundles a new member with the two accounts every member
// starts with.
type EnrolledMember struct {
	Member       *domain.Member
	MainAccount  *domain.Account
	ShareCapital *domain.Account
}

// EnrollMember registers a member and opens their main savings account and
// share capital account in one atomic unit.
func (s *Service) EnrollMember(ctx context.Context, name, email string) (*EnrolledMember, error) {
	if name == "" || email == "" {
		return nil, fmt.Errorf("EnrollMember: name, email: %w", domain.ErrMissingField)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("EnrollMember: begin tx: %w", err)
	}
	defer tx.Rollback()

	m := &domain.Member{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Status:    domain.MemberStatusActive,
		CreatedAt: s.now(),
	}
	if err := s.members.Create(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("EnrollMember: %w", err)
	}

	main, err := s.openAccountTx(ctx, tx, m.ID, domain.AccountTypeSavings)
	if err != nil {
		return nil, fmt.Errorf("EnrollMember: %w", err)
	}
	shares, err := s.openAccountTx(ctx, tx, m.ID, domain.AccountTypeShareCapital)
	if err != nil {
		return nil, fmt.Errorf("EnrollMember: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("EnrollMember: commit: %w", err)
	}

	logging.FromContext(ctx).Info("member enrolled",
		"member_id", m.ID,
		"main_account", main.AccountNumber,
		"share_account", shares.AccountNumber,
	)
	return &EnrolledMember{Member: m, MainAccount: main, ShareCapital: shares}, nil
}

func (s *Service) GetMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetMember: %w", err)
	}
	return m, nil
}
