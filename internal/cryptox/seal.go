package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const sealVersion byte = 0x01

// KeySize is the size of master keys and every other symmetric key here.
const KeySize = 32

var errSealedTooShort = errors.New("sealed value too short")

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under key with AES-GCM. The result is
// version || nonce || ciphertext || tag. It is how secondary secrets (the
// private key, hasher salt, session attributes) are wrapped directly under a
// key that is already high-entropy.
//
// aad is authenticated but not stored; Open must be given the same value.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = sealVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("seal: nonce: %w", err)
	}

	return aead.Seal(out, out[1:1+aead.NonceSize()], plaintext, aad), nil
}

// Open reverses Seal. Any tampering, a wrong key or a wrong aad fails.
func Open(key, sealed, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if len(sealed) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, errSealedTooShort
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("open: unknown version %d", sealed[0])
	}

	nonce := sealed[1 : 1+aead.NonceSize()]
	return aead.Open(nil, nonce, sealed[1+aead.NonceSize():], aad)
}

// NewKey returns a fresh random 256-bit key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
