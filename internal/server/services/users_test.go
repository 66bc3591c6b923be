package services

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dinicsek/LovassyApp/internal/cache"
	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/dinicsek/LovassyApp/internal/server/config"
	"github.com/dinicsek/LovassyApp/internal/server/escrow"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/repotest"
	"github.com/dinicsek/LovassyApp/internal/server/session"
	"github.com/dinicsek/LovassyApp/internal/server/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKDF = cryptox.KDFParams{KDF: cryptox.KDFArgon2id, Iterations: 1, MemoryKiB: 1024, Threads: 1}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []worker.ImportJob
	full bool
}

func (f *fakeDispatcher) Submit(job worker.ImportJob) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		job.Grant.Revoke()
		return false
	}
	f.jobs = append(f.jobs, job)
	return true
}

type env struct {
	svc      *UserService
	rm       *repotest.Manager
	sessions *session.Store
	escrow   *escrow.Service
	imports  *fakeDispatcher
	mock     sqlmock.Sqlmock
	db       *sql.DB
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rm := repotest.NewManager()
	hasher, err := cryptox.NewHasher(cryptox.HasherOptions{Iterations: 10, SaltLength: 16, BytesRequested: 32})
	require.NoError(t, err)

	es := escrow.NewService("reset-key-password", testKDF)
	sessions := session.NewStore(cache.NewMemory(nil), rm.AccessTokens(db), time.Hour, nil, nil)
	imports := &fakeDispatcher{}

	cfg := &config.Config{SecretKey: "jwt-secret", RefreshTokenValidityDuration: time.Hour}
	svc := NewUserService(db, rm, cfg, hasher, testKDF, es, sessions, imports, nil)

	return &env{svc: svc, rm: rm, sessions: sessions, escrow: es, imports: imports, mock: mock, db: db}
}

func (e *env) createUser(t *testing.T, email, password string) uuid.UUID {
	t.Helper()
	u, err := e.svc.CreateUser(context.Background(), NewUser{
		Email: email, Name: "Test", Password: password, OmCode: "om-" + email,
	})
	require.NoError(t, err)
	return u.ID
}

func (e *env) resume(t *testing.T, token string) (*session.Manager, error) {
	t.Helper()
	raw, err := url.QueryUnescape(token)
	require.NoError(t, err)
	m := e.sessions.NewManager()
	return m, m.ResumeSession(context.Background(), raw)
}

func TestCreateUser_KeyHierarchy(t *testing.T) {
	e := newEnv(t)
	id := e.createUser(t, "a@example.com", "Abcd1234")
	u := e.rm.User(id)
	require.NotNil(t, u)

	box, err := cryptox.UnmarshalWrappedKey(u.MasterKeyEncrypted)
	require.NoError(t, err)
	master, err := box.Unlock("Abcd1234")
	require.NoError(t, err)

	fromEscrow, err := e.escrow.Unlock(u.ResetKeyEncrypted)
	require.NoError(t, err)
	assert.Equal(t, master, fromEscrow)

	priv, err := cryptox.Open(master, u.PrivateKeyEncrypted, nil)
	require.NoError(t, err)
	ct, err := cryptox.EncryptFor(u.PublicKey, []byte("hello"))
	require.NoError(t, err)
	pt, err := cryptox.DecryptWith(priv, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	om, err := cryptox.Open(master, u.OmCodeEncrypted, nil)
	require.NoError(t, err)
	assert.Equal(t, "om-a@example.com", string(om))
	assert.Equal(t, cryptox.Hash("om-a@example.com"), u.OmCodeHashed)

	hasherSalt, err := cryptox.Open(master, u.HasherSaltEncrypted, nil)
	require.NoError(t, err)
	assert.Equal(t, cryptox.Hash(string(hasherSalt)), u.HasherSaltHashed)

	assert.NotContains(t, u.PasswordHashed, "Abcd1234")
}

func TestCreateUser_Refusals(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.createUser(t, "a@example.com", "pw")

	_, err := e.svc.CreateUser(ctx, NewUser{Email: "b@example.com", Password: "pw", OmCode: "om-a@example.com"})
	assert.True(t, errors.Is(err, common.ErrorAlreadyExists))

	_, err = e.svc.CreateUser(ctx, NewUser{Email: "a@example.com", Password: "pw", OmCode: "other"})
	assert.True(t, errors.Is(err, common.ErrorAlreadyExists))

	e.escrow.SetSecret("")
	_, err = e.svc.CreateUser(ctx, NewUser{Email: "c@example.com", Password: "pw", OmCode: "c"})
	assert.True(t, errors.Is(err, common.ErrResetKeyPasswordNotSet))
}

func TestLogin_UnlocksIntoSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.createUser(t, "a@example.com", "Abcd1234")

	res, err := e.svc.Login(ctx, "a@example.com", "Abcd1234", false)
	require.NoError(t, err)
	assert.Equal(t, id, res.UserID)
	assert.Empty(t, res.RefreshToken)

	m, err := e.resume(t, res.Token)
	require.NoError(t, err)

	master, ok, err := session.MasterKey.Get(m)
	require.NoError(t, err)
	require.True(t, ok)

	box, _ := cryptox.UnmarshalWrappedKey(e.rm.User(id).MasterKeyEncrypted)
	want, err := box.Unlock("Abcd1234")
	require.NoError(t, err)
	assert.Equal(t, want, master)
	assert.Empty(t, e.imports.jobs)
}

func TestLogin_Rejects(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.createUser(t, "a@example.com", "Abcd1234")

	_, err := e.svc.Login(ctx, "a@example.com", "abcd1234", false)
	assert.True(t, errors.Is(err, common.ErrorUnauthorized))

	_, err = e.svc.Login(ctx, "nobody@example.com", "Abcd1234", false)
	assert.True(t, errors.Is(err, common.ErrorUnauthorized))
}

func TestLogin_DispatchesImport(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.createUser(t, "a@example.com", "pw")
	require.NoError(t, e.rm.Users(nil).SetImportAvailable(ctx, id, true))

	res, err := e.svc.Login(ctx, "a@example.com", "pw", false)
	require.NoError(t, err)

	require.Len(t, e.imports.jobs, 1)
	job := e.imports.jobs[0]
	assert.Equal(t, id, job.UserID)

	key, err := job.Grant.Take()
	require.NoError(t, err)
	m, err := e.resume(t, res.Token)
	require.NoError(t, err)
	master, _, _ := session.MasterKey.Get(m)
	assert.Equal(t, master, key)

	_, ok, err := session.LastImportCheck.Get(m)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLogin_FullImportQueueStillLogsIn(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.imports.full = true
	id := e.createUser(t, "a@example.com", "pw")
	require.NoError(t, e.rm.Users(nil).SetImportAvailable(ctx, id, true))

	_, err := e.svc.Login(ctx, "a@example.com", "pw", false)
	require.NoError(t, err)
}

func TestRefresh_RotatesToken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.createUser(t, "a@example.com", "pw")

	first, err := e.svc.Login(ctx, "a@example.com", "pw", true)
	require.NoError(t, err)
	require.NotEmpty(t, first.RefreshToken)

	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	second, err := e.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, second.RefreshToken)
	assert.NotEqual(t, first.Token, second.Token)

	m, err := e.resume(t, second.Token)
	require.NoError(t, err)
	_, ok, err := session.MasterKey.Get(m)
	require.NoError(t, err)
	assert.True(t, ok)

	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
	_, err = e.svc.Refresh(ctx, first.RefreshToken)
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestRefresh_Garbage(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Refresh(context.Background(), "not-a-token")
	assert.True(t, errors.Is(err, common.ErrInvalidToken))
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.createUser(t, "a@example.com", "pw")
	res, err := e.svc.Login(ctx, "a@example.com", "pw", false)
	require.NoError(t, err)

	assert.True(t, errors.Is(e.svc.Logout(ctx), common.ErrSessionNotFound))

	m, err := e.resume(t, res.Token)
	require.NoError(t, err)
	require.NoError(t, e.svc.Logout(session.WithManager(ctx, m)))

	_, err = e.resume(t, res.Token)
	assert.True(t, errors.Is(err, common.ErrSessionNotFound))
}

func TestKickUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.createUser(t, "a@example.com", "pw")

	r1, err := e.svc.Login(ctx, "a@example.com", "pw", true)
	require.NoError(t, err)
	r2, err := e.svc.Login(ctx, "a@example.com", "pw", false)
	require.NoError(t, err)

	require.NoError(t, e.svc.KickUser(ctx, id))

	for _, tok := range []string{r1.Token, r2.Token} {
		_, err := e.resume(t, tok)
		assert.True(t, errors.Is(err, common.ErrSessionNotFound))
	}
	assert.Empty(t, e.rm.RefreshTokenMap)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.createUser(t, "a@example.com", "old-pw")

	res, err := e.svc.Login(ctx, "a@example.com", "old-pw", true)
	require.NoError(t, err)
	m, err := e.resume(t, res.Token)
	require.NoError(t, err)
	ctx = session.WithManager(ctx, m)

	before, _ := cryptox.UnmarshalWrappedKey(e.rm.User(id).MasterKeyEncrypted)
	masterBefore, err := before.Unlock("old-pw")
	require.NoError(t, err)

	assert.True(t, errors.Is(e.svc.ChangePassword(ctx, "wrong", "new-pw"), common.ErrorUnauthorized))
	require.NoError(t, e.svc.ChangePassword(ctx, "old-pw", "new-pw"))

	after, _ := cryptox.UnmarshalWrappedKey(e.rm.User(id).MasterKeyEncrypted)
	masterAfter, err := after.Unlock("new-pw")
	require.NoError(t, err)
	assert.Equal(t, masterBefore, masterAfter)

	_, err = e.svc.Login(context.Background(), "a@example.com", "old-pw", false)
	assert.True(t, errors.Is(err, common.ErrorUnauthorized))
	_, err = e.svc.Login(context.Background(), "a@example.com", "new-pw", false)
	require.NoError(t, err)

	assert.Empty(t, e.rm.RefreshTokenMap)
	assert.True(t, m.Active())
}

func TestChangePassword_NoSession(t *testing.T) {
	e := newEnv(t)
	err := e.svc.ChangePassword(context.Background(), "a", "b")
	assert.True(t, errors.Is(err, common.ErrSessionNotFound))
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.createUser(t, "a@example.com", "forgotten")
	res, err := e.svc.Login(ctx, "a@example.com", "forgotten", false)
	require.NoError(t, err)

	box, _ := cryptox.UnmarshalWrappedKey(e.rm.User(id).MasterKeyEncrypted)
	masterBefore, err := box.Unlock("forgotten")
	require.NoError(t, err)

	require.NoError(t, e.svc.ResetPassword(ctx, id, "fresh"))

	_, err = e.resume(t, res.Token)
	assert.True(t, errors.Is(err, common.ErrSessionNotFound))

	after, _ := cryptox.UnmarshalWrappedKey(e.rm.User(id).MasterKeyEncrypted)
	masterAfter, err := after.Unlock("fresh")
	require.NoError(t, err)
	assert.Equal(t, masterBefore, masterAfter)

	e.escrow.SetSecret("")
	err = e.svc.ResetPassword(ctx, id, "again")
	assert.True(t, errors.Is(err, common.ErrResetKeyPasswordNotSet))
}
