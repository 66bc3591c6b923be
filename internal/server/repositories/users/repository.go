// Package users declares and implements persistence for user accounts and
// their protected key material.
package users

import (
	"context"

	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByOmCodeHashed(ctx context.Context, omCodeHashed string) (bool, error)

	// UpdateCredentials replaces the password hash and the password-wrapped
	// master key after a password change or an escrow reset.
	UpdateCredentials(ctx context.Context, id uuid.UUID, passwordHashed string, masterKeyEncrypted, masterKeySalt []byte) error

	SetImportAvailable(ctx context.Context, id uuid.UUID, available bool) error

	// ApplyImport stores profile fields from an import and clears
	// import_available.
	ApplyImport(ctx context.Context, id uuid.UUID, realName, class string) error
}
