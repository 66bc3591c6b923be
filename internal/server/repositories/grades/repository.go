// Package grades persists imported grade line items.
package grades

import (
	"context"

	"github.com/dinicsek/LovassyApp/internal/server/models"
)

type Repository interface {
	// Upsert inserts g or overwrites the row with the same UID.
	Upsert(ctx context.Context, g *models.Grade) error
}
