package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the server-side record of an issued remember-me token,
// looked up by the JWT id.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Expires   time.Time
	CreatedAt time.Time
}
