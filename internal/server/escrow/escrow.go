// Package escrow holds the operator reset key password and the second copy of
// every master key that is locked under it.
package escrow

import (
	"sync"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
)

// Service is safe for concurrent use. The secret can be set from
// configuration at startup or later through SetSecret.
type Service struct {
	mu     sync.RWMutex
	secret string
	params cryptox.KDFParams
}

// NewService returns a Service locking with params. An empty secret leaves
// the service unset.
func NewService(secret string, params cryptox.KDFParams) *Service {
	return &Service{secret: secret, params: params}
}

// SetSecret replaces the reset key password. Containers locked under the
// previous secret stop unlocking.
func (s *Service) SetSecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
}

func (s *Service) IsSet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret != ""
}

// Lock wraps masterKey under the reset key password.
func (s *Service) Lock(masterKey, salt []byte) (*cryptox.WrappedKey, error) {
	s.mu.RLock()
	secret := s.secret
	s.mu.RUnlock()

	if secret == "" {
		return nil, common.ErrResetKeyPasswordNotSet
	}
	return s.params.Lock(masterKey, secret, salt)
}

// Unlock recovers the master key from an escrow container.
func (s *Service) Unlock(container []byte) ([]byte, error) {
	s.mu.RLock()
	secret := s.secret
	s.mu.RUnlock()

	if secret == "" {
		return nil, common.ErrResetKeyPasswordNotSet
	}

	w, err := cryptox.UnmarshalWrappedKey(container)
	if err != nil {
		return nil, err
	}
	return w.Unlock(secret)
}

// Rewrap re-locks an escrow container under newSecret, keeping its salt.
// It is used when the operator rotates the reset key password.
func Rewrap(container []byte, oldSecret, newSecret string, params cryptox.KDFParams) ([]byte, error) {
	if oldSecret == "" || newSecret == "" {
		return nil, common.ErrResetKeyPasswordNotSet
	}

	w, err := cryptox.UnmarshalWrappedKey(container)
	if err != nil {
		return nil, err
	}
	masterKey, err := w.Unlock(oldSecret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(masterKey)

	rewrapped, err := params.Lock(masterKey, newSecret, w.Salt)
	if err != nil {
		return nil, err
	}
	return rewrapped.Marshal()
}
