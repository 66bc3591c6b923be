package cryptox

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/dinicsek/LovassyApp/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// PRF identifies the HMAC used inside PBKDF2. The numeric values are part of
// the stored record and must not change.
type PRF uint32

const (
	PRFHMACSHA1   PRF = 0
	PRFHMACSHA256 PRF = 1
	PRFHMACSHA512 PRF = 2
)

const (
	passwordHashVersion byte = 0x01
	passwordHeaderSize       = 13

	// maxPasswordIterations caps the iteration count read from a record so a
	// forged record cannot pin a CPU.
	maxPasswordIterations = 10_000_000
)

func (p PRF) hashFunc() (func() hash.Hash, bool) {
	switch p {
	case PRFHMACSHA1:
		return sha1.New, true
	case PRFHMACSHA256:
		return sha256.New, true
	case PRFHMACSHA512:
		return sha512.New, true
	default:
		return nil, false
	}
}

// HasherOptions configures new password hash records. Existing records keep
// verifying after these change because every parameter is stored inline.
type HasherOptions struct {
	Iterations     int
	SaltLength     int
	BytesRequested int
}

// DefaultHasherOptions are used when nothing is configured.
func DefaultHasherOptions() HasherOptions {
	return HasherOptions{Iterations: 100_000, SaltLength: 16, BytesRequested: 32}
}

// Hasher produces and verifies versioned PBKDF2 password hash records:
//
//	[0x01][prf id, 4B BE][iterations, 4B BE][salt length, 4B BE][salt][subkey]
//
// base64 encoded.
type Hasher struct {
	opts HasherOptions
	prf  PRF
}

// NewHasher validates opts and returns a Hasher using HMAC-SHA512.
func NewHasher(opts HasherOptions) (*Hasher, error) {
	if opts.Iterations < 1 {
		return nil, fmt.Errorf("%w: password iterations must be positive, got %d", common.ErrConfigurationInvalid, opts.Iterations)
	}
	if opts.SaltLength < 1 {
		return nil, fmt.Errorf("%w: password salt length must be positive, got %d", common.ErrConfigurationInvalid, opts.SaltLength)
	}
	if opts.BytesRequested < 1 {
		return nil, fmt.Errorf("%w: password hash length must be positive, got %d", common.ErrConfigurationInvalid, opts.BytesRequested)
	}
	return &Hasher{opts: opts, prf: PRFHMACSHA512}, nil
}

// HashPassword hashes password under a fresh random salt.
func (h *Hasher) HashPassword(password string) (string, error) {
	salt := make([]byte, h.opts.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	newHash, _ := h.prf.hashFunc()
	subkey := pbkdf2.Key([]byte(password), salt, h.opts.Iterations, h.opts.BytesRequested, newHash)

	out := make([]byte, passwordHeaderSize+len(salt)+len(subkey))
	out[0] = passwordHashVersion
	binary.BigEndian.PutUint32(out[1:5], uint32(h.prf))
	binary.BigEndian.PutUint32(out[5:9], uint32(h.opts.Iterations))
	binary.BigEndian.PutUint32(out[9:13], uint32(len(salt)))
	copy(out[passwordHeaderSize:], salt)
	copy(out[passwordHeaderSize+len(salt):], subkey)

	return base64.StdEncoding.EncodeToString(out), nil
}

// VerifyPassword reports whether password matches record. Any malformed record
// yields false.
func (h *Hasher) VerifyPassword(password, record string) bool {
	raw, err := base64.StdEncoding.DecodeString(record)
	if err != nil || len(raw) < passwordHeaderSize {
		return false
	}
	if raw[0] != passwordHashVersion {
		return false
	}

	newHash, ok := PRF(binary.BigEndian.Uint32(raw[1:5])).hashFunc()
	if !ok {
		return false
	}

	iterations := binary.BigEndian.Uint32(raw[5:9])
	if iterations < 1 || iterations > maxPasswordIterations {
		return false
	}

	saltLength := binary.BigEndian.Uint32(raw[9:13])
	body := raw[passwordHeaderSize:]
	if saltLength < 1 || uint64(saltLength) >= uint64(len(body)) {
		return false
	}

	salt := body[:saltLength]
	expected := body[saltLength:]

	actual := pbkdf2.Key([]byte(password), salt, int(iterations), len(expected), newHash)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
