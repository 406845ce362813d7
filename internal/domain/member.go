package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

type Member struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Status    MemberStatus
	CreatedAt time.Time
}
