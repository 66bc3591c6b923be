// Package auth issues and verifies remember-me refresh tokens. A refresh
// token carries the user's password sealed under a key derived from the
// server secret, because the master key can only be unlocked with the
// password and a refresh must produce a fully unlocked session.
package auth

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var passwordKeySalt = []byte("lovassyapp refresh token password")

// Claims are the JWT claims of a refresh token. ID is the server-side row id,
// Subject the user id.
type Claims struct {
	jwt.RegisteredClaims
	Password string `json:"pwd"`
}

// RefreshToken is a verified refresh token.
type RefreshToken struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Password string
}

// GenerateRefreshToken signs a token for userID that expires after validity.
func GenerateRefreshToken(id, userID uuid.UUID, password string, secretKey []byte, validity time.Duration) (string, error) {
	key := cryptox.GenerateBasicKey(secretKey, passwordKeySalt)
	defer common.WipeByteArray(key)

	sealed, err := cryptox.Seal(key, []byte(password), []byte(id.String()))
	if err != nil {
		return "", err
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Password: base64.RawURLEncoding.EncodeToString(sealed),
	})

	return token.SignedString(secretKey)
}

// ParseRefreshToken verifies tokenString. Expired tokens give
// common.ErrRefreshTokenExpired, anything else wrong common.ErrInvalidToken.
func ParseRefreshToken(tokenString string, secretKey []byte) (*RefreshToken, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrRefreshTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	sealed, err := base64.RawURLEncoding.DecodeString(claims.Password)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	key := cryptox.GenerateBasicKey(secretKey, passwordKeySalt)
	defer common.WipeByteArray(key)

	password, err := cryptox.Open(key, sealed, []byte(claims.ID))
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	return &RefreshToken{ID: id, UserID: userID, Password: string(password)}, nil
}
