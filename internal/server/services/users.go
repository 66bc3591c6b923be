// Package services contains server-side business logic. UserService owns the
// account lifecycle: creation, login, remember-me refresh, logout, kicking
// and both password change paths.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/logging"
	"github.com/dinicsek/LovassyApp/internal/server/auth"
	"github.com/dinicsek/LovassyApp/internal/server/config"
	"github.com/dinicsek/LovassyApp/internal/server/escrow"
	"github.com/dinicsek/LovassyApp/internal/server/keyring"
	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/repomanager"
	"github.com/dinicsek/LovassyApp/internal/server/session"
	"github.com/dinicsek/LovassyApp/internal/server/worker"
	"github.com/google/uuid"
)

// ImportDispatcher is implemented by worker.Pool.
type ImportDispatcher interface {
	Submit(job worker.ImportJob) bool
}

// LoginResult is returned by Login and Refresh. RefreshToken is empty unless
// a remember-me token was requested.
type LoginResult struct {
	UserID       uuid.UUID
	Token        string
	RefreshToken string
}

// NewUser carries what an account is created from.
type NewUser struct {
	Email    string
	Name     string
	Password string
	OmCode   string
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.Hasher
	kdf         cryptox.KDFParams
	escrow      *escrow.Service
	sessions    *session.Store
	imports     ImportDispatcher
	log         logging.Logger

	jwtSecret                    []byte
	refreshTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, hasher *cryptox.Hasher,
	kdf cryptox.KDFParams, es *escrow.Service, sessions *session.Store, imports ImportDispatcher, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Nop{}
	}
	return &UserService{
		db:                           db,
		repomanager:                  m,
		hasher:                       hasher,
		kdf:                          kdf,
		escrow:                       es,
		sessions:                     sessions,
		imports:                      imports,
		log:                          log.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// CreateUser builds a user's whole key hierarchy. It refuses to run without
// the reset key password so every account has an escrow copy.
func (s *UserService) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	if !s.escrow.IsSet() {
		return nil, common.ErrResetKeyPasswordNotSet
	}

	users := s.repomanager.Users(s.db)

	omCodeHashed := cryptox.Hash(in.OmCode)
	exists, err := users.ExistsByOmCodeHashed(ctx, omCodeHashed)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, common.ErrorAlreadyExists
	}

	masterKey, err := cryptox.NewKey()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(masterKey)

	masterKeySalt, err := cryptox.GenerateSalt()
	if err != nil {
		return nil, err
	}
	userBox, err := s.kdf.Lock(masterKey, in.Password, masterKeySalt)
	if err != nil {
		return nil, err
	}
	escrowBox, err := s.escrow.Lock(masterKey, masterKeySalt)
	if err != nil {
		return nil, err
	}
	masterKeyEncrypted, err := userBox.Marshal()
	if err != nil {
		return nil, err
	}
	resetKeyEncrypted, err := escrowBox.Marshal()
	if err != nil {
		return nil, err
	}

	keypair, err := cryptox.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(keypair.PrivateKey)

	hasherSalt, err := common.MakeRandHexString(cryptox.SaltSize)
	if err != nil {
		return nil, err
	}

	passwordHashed, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:                 uuid.New(),
		Email:              in.Email,
		Name:               in.Name,
		PasswordHashed:     passwordHashed,
		MasterKeyEncrypted: masterKeyEncrypted,
		MasterKeySalt:      masterKeySalt,
		ResetKeyEncrypted:  resetKeyEncrypted,
		PublicKey:          keypair.PublicKey,
		HasherSaltHashed:   cryptox.Hash(hasherSalt),
		OmCodeHashed:       omCodeHashed,
	}

	sealed := []struct {
		dst   *[]byte
		value []byte
	}{
		{&user.PrivateKeyEncrypted, keypair.PrivateKey},
		{&user.HasherSaltEncrypted, []byte(hasherSalt)},
		{&user.OmCodeEncrypted, []byte(in.OmCode)},
	}
	for _, v := range sealed {
		if *v.dst, err = cryptox.Seal(masterKey, v.value, nil); err != nil {
			return nil, err
		}
	}

	user, err = users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user created", "user_id", user.ID)
	return user, nil
}

// Login checks the password and starts an unlocked session. Unknown emails
// and wrong passwords both give common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string, remember bool) (*LoginResult, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if !s.hasher.VerifyPassword(password, user.PasswordHashed) {
		return nil, common.ErrorUnauthorized
	}

	return s.startSession(ctx, user, password, remember)
}

// Refresh exchanges a refresh token for a new session and a new refresh
// token. Each refresh token works once.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := auth.ParseRefreshToken(refreshToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		token, err := repo.Find(ctx, claims.ID)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if token.UserID != claims.UserID {
			return common.ErrInvalidToken
		}
		if token.Expires.Before(time.Now()) {
			return common.ErrRefreshTokenExpired
		}
		return repo.Delete(ctx, claims.ID)
	})
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if !s.hasher.VerifyPassword(claims.Password, user.PasswordHashed) {
		return nil, common.ErrorUnauthorized
	}

	return s.startSession(ctx, user, claims.Password, true)
}

func (s *UserService) startSession(ctx context.Context, user *models.User, password string, remember bool) (*LoginResult, error) {
	box, err := cryptox.UnmarshalWrappedKey(user.MasterKeyEncrypted)
	if err != nil {
		return nil, err
	}
	masterKey, err := box.Unlock(password)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(masterKey)

	m := s.sessions.NewManager()
	token, err := m.StartSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := session.MasterKey.Set(ctx, m, masterKey); err != nil {
		return nil, err
	}

	if user.ImportAvailable {
		if s.imports.Submit(worker.ImportJob{UserID: user.ID, Grant: keyring.NewGrant(masterKey)}) {
			if err := session.LastImportCheck.Set(ctx, m, time.Now()); err != nil {
				return nil, err
			}
		} else {
			s.log.Warn(ctx, "import queue full, import deferred", "user_id", user.ID)
		}
	}

	result := &LoginResult{UserID: user.ID, Token: token}
	if remember {
		id := uuid.New()
		if err := s.repomanager.RefreshTokens(s.db).Create(ctx, id, user.ID, s.refreshTokenValidityDuration); err != nil {
			return nil, err
		}
		result.RefreshToken, err = auth.GenerateRefreshToken(id, user.ID, password, s.jwtSecret, s.refreshTokenValidityDuration)
		if err != nil {
			return nil, err
		}
	}

	s.log.Info(ctx, "session started", "user_id", user.ID, "remember", remember)
	return result, nil
}

// Logout ends the session attached to ctx.
func (s *UserService) Logout(ctx context.Context) error {
	m, ok := session.FromContext(ctx)
	if !ok {
		return common.ErrSessionNotFound
	}
	return m.StopSession(ctx)
}

// KickUser ends every session of userID and voids their refresh tokens.
func (s *UserService) KickUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.RevokeUser(ctx, userID); err != nil {
		return err
	}
	if err := s.repomanager.RefreshTokens(s.db).DeleteByUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info(ctx, "user kicked", "user_id", userID)
	return nil
}

// ChangePassword re-locks the master key of the session's user under
// newPassword. The current session survives; refresh tokens, which carry the
// old password, are voided.
func (s *UserService) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	m, ok := session.FromContext(ctx)
	if !ok {
		return common.ErrSessionNotFound
	}
	userID, err := m.UserID()
	if err != nil {
		return err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.VerifyPassword(oldPassword, user.PasswordHashed) {
		return common.ErrorUnauthorized
	}

	box, err := cryptox.UnmarshalWrappedKey(user.MasterKeyEncrypted)
	if err != nil {
		return err
	}
	masterKey, err := box.Unlock(oldPassword)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(masterKey)

	if err := s.relock(ctx, user.ID, masterKey, newPassword); err != nil {
		return err
	}
	return s.repomanager.RefreshTokens(s.db).DeleteByUser(ctx, user.ID)
}

// ResetPassword recovers the master key through the escrow copy and locks it
// under newPassword. All sessions of the user end.
func (s *UserService) ResetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return err
	}

	masterKey, err := s.escrow.Unlock(user.ResetKeyEncrypted)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(masterKey)

	if err := s.relock(ctx, user.ID, masterKey, newPassword); err != nil {
		return err
	}

	s.log.Info(ctx, "password reset through escrow", "user_id", user.ID)
	return s.KickUser(ctx, user.ID)
}

func (s *UserService) relock(ctx context.Context, userID uuid.UUID, masterKey []byte, password string) error {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	box, err := s.kdf.Lock(masterKey, password, salt)
	if err != nil {
		return err
	}
	encoded, err := box.Marshal()
	if err != nil {
		return err
	}
	passwordHashed, err := s.hasher.HashPassword(password)
	if err != nil {
		return err
	}

	if err := s.repomanager.Users(s.db).UpdateCredentials(ctx, userID, passwordHashed, encoded, salt); err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	return nil
}
