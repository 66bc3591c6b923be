// Package importpayloads stores the queue of encrypted imports waiting for
// their user. Rows point at ciphertext blobs in object storage.
package importpayloads

import (
	"context"

	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *models.ImportPayload) (*models.ImportPayload, error)

	// Latest returns the most recently queued payload of the user, or
	// common.ErrorNotFound.
	Latest(ctx context.Context, userID uuid.UUID) (*models.ImportPayload, error)

	// DeleteByUser drops the whole queue of the user and returns the storage
	// keys that were referenced.
	DeleteByUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}
