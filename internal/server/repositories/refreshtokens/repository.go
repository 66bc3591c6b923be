// Package refreshtokens declares the server-side repository contract for
// remember-me refresh tokens. The token itself is a signed JWT; only its id
// is stored so it can be rotated and revoked.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/google/uuid"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores token id for userID with an expiry of now+validity.
	Create(ctx context.Context, id, userID uuid.UUID, validity time.Duration) error

	// Find returns common.ErrorNotFound when the id is absent.
	Find(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error)

	// Delete removes one token. Deleting a non-existent token is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByUser revokes every refresh token of the user.
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}
