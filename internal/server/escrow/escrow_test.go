package escrow

import (
	"errors"
	"testing"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = cryptox.KDFParams{KDF: cryptox.KDFArgon2id, Iterations: 1, MemoryKiB: 1024, Threads: 1}

func TestService_UnlockMatchesPasswordUnlock(t *testing.T) {
	s := NewService("operator-secret", testParams)
	require.True(t, s.IsSet())

	master, err := cryptox.NewKey()
	require.NoError(t, err)
	salt, err := cryptox.GenerateSalt()
	require.NoError(t, err)

	userBox, err := testParams.Lock(master, "Abcd1234", salt)
	require.NoError(t, err)
	escrowBox, err := s.Lock(master, salt)
	require.NoError(t, err)

	escrowBytes, err := escrowBox.Marshal()
	require.NoError(t, err)

	fromPassword, err := userBox.Unlock("Abcd1234")
	require.NoError(t, err)
	fromEscrow, err := s.Unlock(escrowBytes)
	require.NoError(t, err)

	assert.Equal(t, fromPassword, fromEscrow)
	assert.Equal(t, master, fromEscrow)
}

func TestService_NotSet(t *testing.T) {
	s := NewService("", testParams)
	assert.False(t, s.IsSet())

	_, err := s.Lock(make([]byte, cryptox.KeySize), []byte("salt"))
	assert.True(t, errors.Is(err, common.ErrResetKeyPasswordNotSet))

	_, err = s.Unlock([]byte{0xa0})
	assert.True(t, errors.Is(err, common.ErrResetKeyPasswordNotSet))
}

func TestService_SetSecretRotates(t *testing.T) {
	s := NewService("", testParams)
	s.SetSecret("first")

	master, _ := cryptox.NewKey()
	box, err := s.Lock(master, []byte("0123456789abcdef"))
	require.NoError(t, err)
	raw, err := box.Marshal()
	require.NoError(t, err)

	s.SetSecret("second")
	_, err = s.Unlock(raw)
	assert.True(t, errors.Is(err, common.ErrKeyUnlockFailed))
}

func TestService_UnlockGarbage(t *testing.T) {
	s := NewService("operator-secret", testParams)
	_, err := s.Unlock([]byte("not cbor"))
	assert.True(t, errors.Is(err, common.ErrKeyUnlockFailed))
}

func TestRewrap(t *testing.T) {
	old := NewService("old-secret", testParams)
	master, _ := cryptox.NewKey()
	box, err := old.Lock(master, []byte("0123456789abcdef"))
	require.NoError(t, err)
	raw, err := box.Marshal()
	require.NoError(t, err)

	rewrapped, err := Rewrap(raw, "old-secret", "new-secret", testParams)
	require.NoError(t, err)

	_, err = old.Unlock(rewrapped)
	assert.ErrorIs(t, err, common.ErrKeyUnlockFailed)

	got, err := NewService("new-secret", testParams).Unlock(rewrapped)
	require.NoError(t, err)
	assert.Equal(t, master, got)

	_, err = Rewrap(raw, "wrong", "new-secret", testParams)
	assert.ErrorIs(t, err, common.ErrKeyUnlockFailed)

	_, err = Rewrap(raw, "old-secret", "", testParams)
	assert.ErrorIs(t, err, common.ErrResetKeyPasswordNotSet)
}
