package models

import (
	"time"

	"github.com/google/uuid"
)

// User holds only protected forms of a user's secrets. Nothing here is
// usable without the user's password or the operator reset key password.
type User struct {
	ID    uuid.UUID
	Email string
	Name  string

	PasswordHashed string

	// MasterKeyEncrypted is a cryptox.WrappedKey under the password,
	// ResetKeyEncrypted the same master key under the reset key password.
	MasterKeyEncrypted []byte
	MasterKeySalt      []byte
	ResetKeyEncrypted  []byte

	PublicKey           []byte
	PrivateKeyEncrypted []byte

	HasherSaltEncrypted []byte
	HasherSaltHashed    string

	OmCodeEncrypted []byte
	OmCodeHashed    string

	RealName        *string
	Class           *string
	ImportAvailable bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
