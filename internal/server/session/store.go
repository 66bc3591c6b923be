// Package session keeps an unlocked user's state between requests. The cached
// record only holds values sealed under a key derived from the bearer token,
// so the cache on its own never reveals anything.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/dinicsek/LovassyApp/internal/cache"
	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/dinicsek/LovassyApp/internal/logging"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/accesstokens"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// TokenSize is the number of random bytes in a bearer token.
const TokenSize = 64

const keyPrefix = "session:"

type record struct {
	TokenHash     string            `cbor:"h"`
	Salt          []byte            `cbor:"s"`
	AccessTokenID int64             `cbor:"t"`
	UserID        string            `cbor:"u"`
	Expires       int64             `cbor:"e"`
	Attributes    map[string][]byte `cbor:"a"`
}

// Store is shared by all requests. Use NewManager to get a per-request handle.
type Store struct {
	cache  cache.Cache
	tokens accesstokens.Repository
	expiry time.Duration
	now    cache.Clock
	log    logging.Logger
}

// NewStore returns a Store whose sessions live for expiry after their last
// write. now may be nil.
func NewStore(c cache.Cache, tokens accesstokens.Repository, expiry time.Duration, now cache.Clock, log logging.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Store{
		cache:  c,
		tokens: tokens,
		expiry: expiry,
		now:    now,
		log:    log.With("module", "session"),
	}
}

func (s *Store) NewManager() *Manager {
	return &Manager{store: s}
}

// RevokeUser evicts every live session of userID and drops its durable
// tokens.
func (s *Store) RevokeUser(ctx context.Context, userID uuid.UUID) error {
	hashes, err := s.tokens.ListHashesByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	for _, h := range hashes {
		if err := s.cache.Remove(ctx, keyPrefix+h); err != nil {
			return fmt.Errorf("evict session: %w", err)
		}
	}
	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}

	s.log.Info(ctx, "sessions revoked", "user_id", userID, "count", len(hashes))
	return nil
}

func (s *Store) load(ctx context.Context, tokenHash string) (*record, error) {
	raw, ok, err := s.cache.Get(ctx, keyPrefix+tokenHash)
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if !ok {
		return nil, common.ErrSessionNotFound
	}

	var rec record
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		s.log.Warn(ctx, "dropping unreadable session record", "error", err)
		_ = s.cache.Remove(ctx, keyPrefix+tokenHash)
		return nil, common.ErrSessionNotFound
	}
	if s.now().Unix() >= rec.Expires {
		return nil, common.ErrSessionNotFound
	}
	return &rec, nil
}

func (s *Store) save(ctx context.Context, rec *record) error {
	rec.Expires = s.now().Add(s.expiry).Unix()

	raw, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.Set(ctx, keyPrefix+rec.TokenHash, raw, s.expiry); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Manager is the session of a single request. It is not safe for concurrent
// use.
type Manager struct {
	store *Store
	rec   *record
	key   []byte
}

// StartSession creates a session for userID and returns its bearer token,
// URL-encoded. The raw token is not kept anywhere.
func (m *Manager) StartSession(ctx context.Context, userID uuid.UUID) (string, error) {
	token := base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(TokenSize))
	tokenHash := cryptox.Hash(token)

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return "", err
	}

	id, err := m.store.tokens.Create(ctx, userID, tokenHash)
	if err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	rec := &record{
		TokenHash:     tokenHash,
		Salt:          salt,
		AccessTokenID: id,
		UserID:        userID.String(),
		Attributes:    map[string][]byte{},
	}
	if err := m.store.save(ctx, rec); err != nil {
		return "", err
	}

	m.clear()
	m.rec = rec
	m.key = cryptox.GenerateBasicKey([]byte(token), salt)

	return url.QueryEscape(token), nil
}

// ResumeSession binds the handle to the session of token, which must already
// be URL-decoded.
func (m *Manager) ResumeSession(ctx context.Context, token string) error {
	rec, err := m.store.load(ctx, cryptox.Hash(token))
	if err != nil {
		return err
	}

	m.clear()
	m.rec = rec
	m.key = cryptox.GenerateBasicKey([]byte(token), rec.Salt)

	if err := m.store.tokens.Touch(ctx, rec.AccessTokenID); err != nil {
		m.store.log.Warn(ctx, "touch access token failed", "error", err)
	}
	return nil
}

// StopSession ends the session everywhere. The handle is unusable afterwards.
func (m *Manager) StopSession(ctx context.Context) error {
	if m.rec == nil {
		return common.ErrSessionNotFound
	}
	rec := m.rec
	m.clear()

	if err := m.store.cache.Remove(ctx, keyPrefix+rec.TokenHash); err != nil {
		return fmt.Errorf("cache remove: %w", err)
	}
	if err := m.store.tokens.Delete(ctx, rec.AccessTokenID); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// Active reports whether the handle is bound to a session.
func (m *Manager) Active() bool { return m.rec != nil }

func (m *Manager) UserID() (uuid.UUID, error) {
	if m.rec == nil {
		return uuid.Nil, common.ErrSessionNotFound
	}
	return uuid.Parse(m.rec.UserID)
}

// SetEncrypted seals value under the session key and republishes the record,
// which also pushes its expiry out. Concurrent requests of the same session
// overwrite each other; the last write wins.
func (m *Manager) SetEncrypted(ctx context.Context, key string, value []byte) error {
	if m.rec == nil {
		return common.ErrSessionNotFound
	}

	sealed, err := cryptox.Seal(m.key, value, []byte(key))
	if err != nil {
		return err
	}
	m.rec.Attributes[key] = sealed
	return m.store.save(ctx, m.rec)
}

// GetEncrypted returns the attribute stored under key as of the last
// Start/Resume/Set on this handle.
func (m *Manager) GetEncrypted(key string) ([]byte, bool, error) {
	if m.rec == nil {
		return nil, false, common.ErrSessionNotFound
	}

	sealed, ok := m.rec.Attributes[key]
	if !ok {
		return nil, false, nil
	}
	value, err := cryptox.Open(m.key, sealed, []byte(key))
	if err != nil {
		return nil, false, fmt.Errorf("open attribute %s: %w", key, err)
	}
	return value, true, nil
}

func (m *Manager) clear() {
	common.WipeByteArray(m.key)
	m.key = nil
	m.rec = nil
}
