package keyringctl

import (
	"context"
	"io"

	"github.com/dinicsek/LovassyApp/internal/server"
	"github.com/dinicsek/LovassyApp/internal/server/config"
	"github.com/dinicsek/LovassyApp/internal/server/services"
	"github.com/google/uuid"
)

// Backend is the part of the server the account commands drive.
type Backend interface {
	EscrowSet() bool
	SetResetKeyPassword(secret string)
	CreateUser(ctx context.Context, in services.NewUser) (uuid.UUID, error)
	KickUser(ctx context.Context, userID uuid.UUID) error
	ResetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error
	EnqueueImport(ctx context.Context, userID uuid.UUID, ciphertext []byte) error
	Close()
}

var newApp = server.NewApp

type appBackend struct {
	app *server.App
}

// OpenServerBackend loads the server configuration the way the server does
// and connects to its database, blob store and cache. Logs go to logOut.
func OpenServerBackend(ctx context.Context, configPath string, environ []string, logOut io.Writer) (Backend, error) {
	var args []string
	if configPath != "" {
		args = []string{"-c", configPath}
	}
	cfg, err := config.Load(args, environ)
	if err != nil {
		return nil, err
	}
	app, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return nil, err
	}
	return &appBackend{app: app}, nil
}

func (b *appBackend) EscrowSet() bool { return b.app.Escrow.IsSet() }

func (b *appBackend) SetResetKeyPassword(secret string) { b.app.Escrow.SetSecret(secret) }

func (b *appBackend) CreateUser(ctx context.Context, in services.NewUser) (uuid.UUID, error) {
	user, err := b.app.Users.CreateUser(ctx, in)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

func (b *appBackend) KickUser(ctx context.Context, userID uuid.UUID) error {
	return b.app.Users.KickUser(ctx, userID)
}

func (b *appBackend) ResetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	return b.app.Users.ResetPassword(ctx, userID, newPassword)
}

func (b *appBackend) EnqueueImport(ctx context.Context, userID uuid.UUID, ciphertext []byte) error {
	return b.app.Queue.Enqueue(ctx, userID, ciphertext)
}

func (b *appBackend) Close() { b.app.Close() }
