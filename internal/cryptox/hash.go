// Package cryptox implements the key hierarchy primitives: digests, password
// hashing, key wrapping, symmetric sealing and the hybrid KEM used for
// externally encrypted imports.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the default length of random salts.
	SaltSize = 16

	// BasicKeyIterations is deliberately low. GenerateBasicKey only ever sees
	// 64-byte session tokens.
	BasicKeyIterations = 1000
	BasicKeySize       = 32
)

// Hash returns the base64 SHA-256 digest of data. It is unsalted so the
// result can be used as a lookup key (token hashes, code hashes).
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HashWithSalt returns the base64 SHA-512 digest of data and an
// application-chosen salt. Identical inputs give identical output, which keeps
// equality search possible on salted identifiers.
func HashWithSalt(data, salt string) string {
	sum := sha512.Sum512([]byte(data + ";" + salt))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// GenerateBasicKey derives a 256-bit key from a high-entropy secret and a salt
// with PBKDF2-HMAC-SHA512. Never use it for passwords.
func GenerateBasicKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, BasicKeyIterations, BasicKeySize, sha512.New)
}

// GenerateSalt returns SaltSize bytes from crypto/rand.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
