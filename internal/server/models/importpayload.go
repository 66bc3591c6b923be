package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportPayload is a queued, KEM-encrypted import addressed to one user. The
// ciphertext lives in object storage under StorageKey.
type ImportPayload struct {
	ID         int64
	UserID     uuid.UUID
	StorageKey string
	CreatedAt  time.Time
}
