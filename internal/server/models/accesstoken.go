package models

import (
	"time"

	"github.com/google/uuid"
)

// PersonalAccessToken is the durable trace of a session. Only the token hash
// is stored, which is enough to evict the cached session on revocation.
type PersonalAccessToken struct {
	ID         int64
	UserID     uuid.UUID
	TokenHash  string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}
