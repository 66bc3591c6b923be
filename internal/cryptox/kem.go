package cryptox

import (
	"crypto/mlkem"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dinicsek/LovassyApp/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Hybrid X25519 + ML-KEM-768 layout.
//
//	public key:  x25519 public (32) || ML-KEM-768 encapsulation key (1184)
//	private key: x25519 scalar (32) || ML-KEM-768 seed (64)
//	ciphertext:  version (1) || ephemeral x25519 public (32) ||
//	             ML-KEM-768 ciphertext (1088) || nonce (24) || sealed payload
const (
	kemVersion byte = 0x01

	x25519Size = curve25519.PointSize

	PublicKeySize  = x25519Size + mlkem.EncapsulationKeySize768
	PrivateKeySize = x25519Size + mlkem.SeedSize

	kemHeaderSize = 1 + x25519Size + mlkem.CiphertextSize768 + chacha20poly1305.NonceSizeX
)

var kemInfo = []byte("lovassyapp import kem v1")

// Keypair is a user's import keypair. PrivateKey must be sealed under the
// master key before it is stored and wiped after use.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKeypair creates a hybrid keypair that stays secure as long as
// either X25519 or ML-KEM-768 holds.
func GenerateKeypair() (*Keypair, error) {
	scalar := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(scalar); err != nil {
		return nil, err
	}
	xPub, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	dk, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, err
	}

	pub := make([]byte, 0, PublicKeySize)
	pub = append(pub, xPub...)
	pub = append(pub, dk.EncapsulationKey().Bytes()...)

	priv := make([]byte, 0, PrivateKeySize)
	priv = append(priv, scalar...)
	priv = append(priv, dk.Bytes()...)
	common.WipeByteArray(scalar)

	return &Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

// EncryptFor addresses plaintext at publicKey. This is what the external
// importer runs; the server only ever calls DecryptWith.
func EncryptFor(publicKey, plaintext []byte) ([]byte, error) {
	if len(publicKey) != PublicKeySize {
		return nil, fmt.Errorf("public key: want %d bytes, got %d", PublicKeySize, len(publicKey))
	}
	ek, err := mlkem.NewEncapsulationKey768(publicKey[x25519Size:])
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}

	ephScalar := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephScalar); err != nil {
		return nil, err
	}
	defer common.WipeByteArray(ephScalar)

	ephPub, err := curve25519.X25519(ephScalar, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	classical, err := curve25519.X25519(ephScalar, publicKey[:x25519Size])
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	defer common.WipeByteArray(classical)

	postQuantum, kemCiphertext := ek.Encapsulate()
	defer common.WipeByteArray(postQuantum)

	out := make([]byte, 0, kemHeaderSize+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, kemVersion)
	out = append(out, ephPub...)
	out = append(out, kemCiphertext...)

	key, err := combineSecrets(classical, postQuantum, out[1:])
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out = append(out, nonce...)

	return aead.Seal(out, nonce, plaintext, out[:1+x25519Size+mlkem.CiphertextSize768]), nil
}

// DecryptWith opens a payload produced by EncryptFor. Malformed input, any
// tampering and a non-matching private key all give
// common.ErrDecapsulationFailed.
func DecryptWith(privateKey, ciphertext []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, common.ErrDecapsulationFailed
	}
	if len(ciphertext) < kemHeaderSize+chacha20poly1305.Overhead || ciphertext[0] != kemVersion {
		return nil, common.ErrDecapsulationFailed
	}

	dk, err := mlkem.NewDecapsulationKey768(privateKey[x25519Size:])
	if err != nil {
		return nil, common.ErrDecapsulationFailed
	}

	ephPub := ciphertext[1 : 1+x25519Size]
	kemCiphertext := ciphertext[1+x25519Size : 1+x25519Size+mlkem.CiphertextSize768]
	nonce := ciphertext[1+x25519Size+mlkem.CiphertextSize768 : kemHeaderSize]

	classical, err := curve25519.X25519(privateKey[:x25519Size], ephPub)
	if err != nil {
		return nil, common.ErrDecapsulationFailed
	}
	defer common.WipeByteArray(classical)

	postQuantum, err := dk.Decapsulate(kemCiphertext)
	if err != nil {
		return nil, common.ErrDecapsulationFailed
	}
	defer common.WipeByteArray(postQuantum)

	key, err := combineSecrets(classical, postQuantum, ciphertext[1:1+x25519Size+mlkem.CiphertextSize768])
	if err != nil {
		return nil, common.ErrDecapsulationFailed
	}
	defer common.WipeByteArray(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, common.ErrDecapsulationFailed
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext[kemHeaderSize:], ciphertext[:1+x25519Size+mlkem.CiphertextSize768])
	if err != nil {
		return nil, common.ErrDecapsulationFailed
	}
	return plaintext, nil
}

// combineSecrets feeds both shared secrets through HKDF, salted with the
// transcript so every ciphertext byte influences the payload key.
func combineSecrets(classical, postQuantum, transcript []byte) ([]byte, error) {
	ikm := make([]byte, 0, len(classical)+len(postQuantum))
	ikm = append(ikm, classical...)
	ikm = append(ikm, postQuantum...)
	defer common.WipeByteArray(ikm)

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, transcript, kemInfo), key); err != nil {
		return nil, err
	}
	return key, nil
}
