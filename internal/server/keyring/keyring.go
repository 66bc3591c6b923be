// Package keyring moves an unlocked master key to where it is needed without
// caching it: in the request context for synchronous work, and through a
// single-use Grant for background jobs.
package keyring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
)

// ErrGrantUsed is returned by Take on a grant that was already taken or
// revoked.
var ErrGrantUsed = errors.New("grant already used")

type ctxKey struct{}

// WithMasterKey returns a context carrying key for the rest of the request.
func WithMasterKey(ctx context.Context, key []byte) context.Context {
	return context.WithValue(ctx, ctxKey{}, key)
}

// MasterKey returns the key stored by WithMasterKey.
func MasterKey(ctx context.Context) ([]byte, bool) {
	key, ok := ctx.Value(ctxKey{}).([]byte)
	return key, ok && len(key) == cryptox.KeySize
}

// Encrypt seals plaintext under the request's master key.
func Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	key, ok := MasterKey(ctx)
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return cryptox.Seal(key, plaintext, nil)
}

// Decrypt opens a value sealed by Encrypt.
func Decrypt(ctx context.Context, sealed []byte) ([]byte, error) {
	key, ok := MasterKey(ctx)
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	plaintext, err := cryptox.Open(key, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Grant hands a master key to exactly one consumer.
type Grant struct {
	mu  sync.Mutex
	key []byte
}

// NewGrant copies key, so the caller may wipe its own copy right away.
func NewGrant(key []byte) *Grant {
	return &Grant{key: append([]byte(nil), key...)}
}

// Take returns the key and empties the grant. The caller owns the returned
// slice and should wipe it when done.
func (g *Grant) Take() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.key == nil {
		return nil, ErrGrantUsed
	}
	key := g.key
	g.key = nil
	return key, nil
}

// Revoke wipes an untaken key. It is a no-op after Take.
func (g *Grant) Revoke() {
	g.mu.Lock()
	defer g.mu.Unlock()

	common.WipeByteArray(g.key)
	g.key = nil
}
