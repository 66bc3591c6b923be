// Package accesstokens persists the durable side of sessions: one row per
// issued token, storing only the token hash.
package accesstokens

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create records a new token and returns its row id.
	Create(ctx context.Context, userID uuid.UUID, tokenHash string) (int64, error)

	// Touch updates last_used_at.
	Touch(ctx context.Context, id int64) error

	// Delete removes one token. Missing rows are not an error.
	Delete(ctx context.Context, id int64) error

	// ListHashesByUser returns every token hash of the user.
	ListHashesByUser(ctx context.Context, userID uuid.UUID) ([]string, error)

	// DeleteByUser removes every token of the user.
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}
