package cryptox

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KDF identifies the slow password derivation used to build a wrapping key.
type KDF uint8

const (
	KDFArgon2id     KDF = 1
	KDFPBKDF2SHA512 KDF = 2
)

// AlgAES256GCM is the only wrapping cipher so far.
const AlgAES256GCM uint8 = 1

const wrapVersion uint8 = 1

// Upper bounds for parameters read back from a container.
const (
	maxArgonTime      = 16
	maxArgonMemoryKiB = 1 << 20
	maxArgonThreads   = 64
	maxPBKDF2Rounds   = maxPasswordIterations
)

// KDFParams are the parameters recorded into new containers.
type KDFParams struct {
	KDF        KDF
	Iterations uint32
	MemoryKiB  uint32
	Threads    uint8
}

// DefaultKDFParams is argon2id with the memory and parallelism cost used for
// vault master keys.
func DefaultKDFParams() KDFParams {
	return KDFParams{KDF: KDFArgon2id, Iterations: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

// WrappedKey is a self-describing, password-locked key. Everything needed to
// unlock it except the password is stored inline, so containers written with
// older defaults stay readable.
type WrappedKey struct {
	Version    uint8  `cbor:"v"`
	Algorithm  uint8  `cbor:"alg"`
	KDF        KDF    `cbor:"kdf"`
	Iterations uint32 `cbor:"it"`
	MemoryKiB  uint32 `cbor:"mem,omitempty"`
	Threads    uint8  `cbor:"par,omitempty"`
	Salt       []byte `cbor:"salt"`
	Nonce      []byte `cbor:"nonce"`
	Ciphertext []byte `cbor:"ct"`
	Tag        []byte `cbor:"tag"`
}

// Lock wraps rawKey under a key derived from password and salt.
func (p KDFParams) Lock(rawKey []byte, password string, salt []byte) (*WrappedKey, error) {
	w := &WrappedKey{
		Version:    wrapVersion,
		Algorithm:  AlgAES256GCM,
		KDF:        p.KDF,
		Iterations: p.Iterations,
		MemoryKiB:  p.MemoryKiB,
		Threads:    p.Threads,
		Salt:       append([]byte(nil), salt...),
	}
	if err := w.checkParams(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigurationInvalid, err)
	}

	wrappingKey := w.deriveKey(password)
	defer common.WipeByteArray(wrappingKey)

	sealed, err := Seal(wrappingKey, rawKey, w.header())
	if err != nil {
		return nil, err
	}

	aead, _ := newGCM(wrappingKey)
	body := sealed[1:]
	w.Nonce = body[:aead.NonceSize()]
	w.Ciphertext = body[aead.NonceSize() : len(body)-aead.Overhead()]
	w.Tag = body[len(body)-aead.Overhead():]

	return w, nil
}

// Unlock recovers the raw key. A wrong password or any modification of the
// container yields common.ErrKeyUnlockFailed and no key material.
func (w *WrappedKey) Unlock(password string) ([]byte, error) {
	if w == nil || w.Version != wrapVersion || w.Algorithm != AlgAES256GCM {
		return nil, common.ErrKeyUnlockFailed
	}
	if err := w.checkParams(); err != nil {
		return nil, common.ErrKeyUnlockFailed
	}

	wrappingKey := w.deriveKey(password)
	defer common.WipeByteArray(wrappingKey)

	sealed := make([]byte, 0, 1+len(w.Nonce)+len(w.Ciphertext)+len(w.Tag))
	sealed = append(sealed, sealVersion)
	sealed = append(sealed, w.Nonce...)
	sealed = append(sealed, w.Ciphertext...)
	sealed = append(sealed, w.Tag...)

	aead, err := newGCM(wrappingKey)
	if err != nil || len(w.Nonce) != aead.NonceSize() || len(w.Tag) != aead.Overhead() {
		return nil, common.ErrKeyUnlockFailed
	}

	rawKey, err := Open(wrappingKey, sealed, w.header())
	if err != nil {
		return nil, common.ErrKeyUnlockFailed
	}
	return rawKey, nil
}

// Marshal encodes the container for storage.
func (w *WrappedKey) Marshal() ([]byte, error) {
	return cbor.Marshal(w)
}

// UnmarshalWrappedKey decodes a stored container. Decoding errors are reported
// as common.ErrKeyUnlockFailed since the caller cannot do anything else with
// a broken container.
func UnmarshalWrappedKey(data []byte) (*WrappedKey, error) {
	var w WrappedKey
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrKeyUnlockFailed, err)
	}
	return &w, nil
}

func (w *WrappedKey) checkParams() error {
	if len(w.Salt) == 0 {
		return fmt.Errorf("empty salt")
	}
	switch w.KDF {
	case KDFArgon2id:
		if w.Iterations < 1 || w.Iterations > maxArgonTime {
			return fmt.Errorf("argon2 time %d out of range", w.Iterations)
		}
		if w.MemoryKiB < 8*uint32(w.Threads) || w.MemoryKiB > maxArgonMemoryKiB {
			return fmt.Errorf("argon2 memory %d out of range", w.MemoryKiB)
		}
		if w.Threads < 1 || w.Threads > maxArgonThreads {
			return fmt.Errorf("argon2 threads %d out of range", w.Threads)
		}
	case KDFPBKDF2SHA512:
		if w.Iterations < 1 || w.Iterations > maxPBKDF2Rounds {
			return fmt.Errorf("pbkdf2 iterations %d out of range", w.Iterations)
		}
	default:
		return fmt.Errorf("unknown kdf %d", w.KDF)
	}
	return nil
}

func (w *WrappedKey) deriveKey(password string) []byte {
	switch w.KDF {
	case KDFPBKDF2SHA512:
		return pbkdf2.Key([]byte(password), w.Salt, int(w.Iterations), KeySize, sha512.New)
	default:
		return argon2.IDKey([]byte(password), w.Salt, w.Iterations, w.MemoryKiB, w.Threads, KeySize)
	}
}

// header is bound into the AEAD so that parameter fields cannot be swapped
// between containers.
func (w *WrappedKey) header() []byte {
	h := make([]byte, 12)
	h[0] = w.Version
	h[1] = w.Algorithm
	h[2] = uint8(w.KDF)
	h[3] = w.Threads
	binary.BigEndian.PutUint32(h[4:8], w.Iterations)
	binary.BigEndian.PutUint32(h[8:12], w.MemoryKiB)
	return h
}
