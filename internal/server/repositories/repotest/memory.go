// Package repotest provides in-memory repositories for service tests. All
// repositories of one Manager share state and ignore the DBTX they are
// handed, so transactions in tests only need sqlmock Begin/Commit
// expectations.
package repotest

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/accesstokens"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/grades"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/importpayloads"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/refreshtokens"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/repomanager"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/users"
	"github.com/google/uuid"
)

// Manager implements repomanager.RepositoryManager in memory. Set the *Err
// fields to make the matching repository fail.
type Manager struct {
	mu sync.Mutex

	UsersByID       map[uuid.UUID]*models.User
	AccessTokenMap  map[int64]*models.PersonalAccessToken
	RefreshTokenMap map[uuid.UUID]*models.RefreshToken
	Payloads        []*models.ImportPayload
	GradesByUID     map[string]*models.Grade

	UsersErr    error
	GradesErr   error
	PayloadsErr error

	nextID int64
}

var _ repomanager.RepositoryManager = (*Manager)(nil)

func NewManager() *Manager {
	return &Manager{
		UsersByID:       map[uuid.UUID]*models.User{},
		AccessTokenMap:  map[int64]*models.PersonalAccessToken{},
		RefreshTokenMap: map[uuid.UUID]*models.RefreshToken{},
		GradesByUID:     map[string]*models.Grade{},
	}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository                   { return (*usersRepo)(m) }
func (m *Manager) AccessTokens(dbx.DBTX) accesstokens.Repository     { return (*accessTokensRepo)(m) }
func (m *Manager) RefreshTokens(dbx.DBTX) refreshtokens.Repository   { return (*refreshTokensRepo)(m) }
func (m *Manager) ImportPayloads(dbx.DBTX) importpayloads.Repository { return (*payloadsRepo)(m) }
func (m *Manager) Grades(dbx.DBTX) grades.Repository                 { return (*gradesRepo)(m) }

// User returns a copy of the stored user, or nil.
func (m *Manager) User(id uuid.UUID) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.UsersByID[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// PutUser stores a copy of u.
func (m *Manager) PutUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.UsersByID[u.ID] = &cp
}

// GradeCount returns the number of stored grades.
func (m *Manager) GradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GradesByUID)
}

// PayloadCount returns the number of queued payloads.
func (m *Manager) PayloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Payloads)
}

type usersRepo Manager

func (r *usersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsersErr != nil {
		return nil, m.UsersErr
	}
	for _, existing := range m.UsersByID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.UsersByID[u.ID] = &cp
	return u, nil
}

func (r *usersRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsersErr != nil {
		return nil, m.UsersErr
	}
	u, ok := m.UsersByID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *usersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsersErr != nil {
		return nil, m.UsersErr
	}
	for _, u := range m.UsersByID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *usersRepo) ExistsByOmCodeHashed(_ context.Context, omCodeHashed string) (bool, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsersErr != nil {
		return false, m.UsersErr
	}
	for _, u := range m.UsersByID {
		if u.OmCodeHashed == omCodeHashed {
			return true, nil
		}
	}
	return false, nil
}

func (r *usersRepo) update(id uuid.UUID, fn func(u *models.User)) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsersErr != nil {
		return m.UsersErr
	}
	u, ok := m.UsersByID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *usersRepo) UpdateCredentials(_ context.Context, id uuid.UUID, passwordHashed string, masterKeyEncrypted, masterKeySalt []byte) error {
	return r.update(id, func(u *models.User) {
		u.PasswordHashed = passwordHashed
		u.MasterKeyEncrypted = masterKeyEncrypted
		u.MasterKeySalt = masterKeySalt
	})
}

func (r *usersRepo) SetImportAvailable(_ context.Context, id uuid.UUID, available bool) error {
	return r.update(id, func(u *models.User) { u.ImportAvailable = available })
}

func (r *usersRepo) ApplyImport(_ context.Context, id uuid.UUID, realName, class string) error {
	return r.update(id, func(u *models.User) {
		u.RealName = &realName
		u.Class = &class
		u.ImportAvailable = false
	})
}

type accessTokensRepo Manager

func (r *accessTokensRepo) Create(_ context.Context, userID uuid.UUID, tokenHash string) (int64, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.AccessTokenMap[m.nextID] = &models.PersonalAccessToken{
		ID: m.nextID, UserID: userID, TokenHash: tokenHash, CreatedAt: time.Now(),
	}
	return m.nextID, nil
}

func (r *accessTokensRepo) Touch(_ context.Context, id int64) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.AccessTokenMap[id]; ok {
		now := time.Now()
		t.LastUsedAt = &now
	}
	return nil
}

func (r *accessTokensRepo) Delete(_ context.Context, id int64) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.AccessTokenMap, id)
	return nil
}

func (r *accessTokensRepo) ListHashesByUser(_ context.Context, userID uuid.UUID) ([]string, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, t := range m.AccessTokenMap {
		if t.UserID == userID {
			out = append(out, t.TokenHash)
		}
	}
	return out, nil
}

func (r *accessTokensRepo) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.AccessTokenMap {
		if t.UserID == userID {
			delete(m.AccessTokenMap, id)
		}
	}
	return nil
}

type refreshTokensRepo Manager

func (r *refreshTokensRepo) Create(_ context.Context, id, userID uuid.UUID, validity time.Duration) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.RefreshTokenMap[id] = &models.RefreshToken{ID: id, UserID: userID, Expires: now.Add(validity), CreatedAt: now}
	return nil
}

func (r *refreshTokensRepo) Find(_ context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.RefreshTokenMap[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *refreshTokensRepo) Delete(_ context.Context, id uuid.UUID) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.RefreshTokenMap, id)
	return nil
}

func (r *refreshTokensRepo) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.RefreshTokenMap {
		if t.UserID == userID {
			delete(m.RefreshTokenMap, id)
		}
	}
	return nil
}

type payloadsRepo Manager

func (r *payloadsRepo) Create(_ context.Context, p *models.ImportPayload) (*models.ImportPayload, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PayloadsErr != nil {
		return nil, m.PayloadsErr
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	cp := *p
	m.Payloads = append(m.Payloads, &cp)
	return p, nil
}

func (r *payloadsRepo) Latest(_ context.Context, userID uuid.UUID) (*models.ImportPayload, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PayloadsErr != nil {
		return nil, m.PayloadsErr
	}
	var mine []*models.ImportPayload
	for _, p := range m.Payloads {
		if p.UserID == userID {
			mine = append(mine, p)
		}
	}
	if len(mine) == 0 {
		return nil, common.ErrorNotFound
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].ID > mine[j].ID })
	cp := *mine[0]
	return &cp, nil
}

func (r *payloadsRepo) DeleteByUser(_ context.Context, userID uuid.UUID) ([]string, error) {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PayloadsErr != nil {
		return nil, m.PayloadsErr
	}
	var keys []string
	kept := m.Payloads[:0]
	for _, p := range m.Payloads {
		if p.UserID == userID {
			keys = append(keys, p.StorageKey)
			continue
		}
		kept = append(kept, p)
	}
	m.Payloads = kept
	return keys, nil
}

type gradesRepo Manager

func (r *gradesRepo) Upsert(_ context.Context, g *models.Grade) error {
	m := (*Manager)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GradesErr != nil {
		return m.GradesErr
	}
	cp := *g
	m.GradesByUID[g.UID] = &cp
	return nil
}
