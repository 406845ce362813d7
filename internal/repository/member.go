package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
)

const memberColumns = `id, name, email, status, created_at`

type MemberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, tx *sql.Tx, m *domain.Member) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO members (id, name, email, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.Email, m.Status, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id,
	)
	var m domain.Member
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &m, nil
}
