package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var userRowColumns = []string{
	"id", "email", "name", "password_hashed", "master_key_encrypted", "master_key_salt",
	"reset_key_encrypted", "public_key", "private_key_encrypted", "hasher_salt_encrypted",
	"hasher_salt_hashed", "om_code_encrypted", "om_code_hashed", "real_name", "class",
	"import_available", "created_at", "updated_at",
}

func sampleUser() *models.User {
	return &models.User{
		ID:                  uuid.MustParse("5d6e2c1a-3f41-4a57-9a3e-0d8f2b7c6a11"),
		Email:               "diak@lovassy.hu",
		Name:                "Diák",
		PasswordHashed:      "AQAAAA==",
		MasterKeyEncrypted:  []byte("mk"),
		MasterKeySalt:       []byte("mks"),
		ResetKeyEncrypted:   []byte("rk"),
		PublicKey:           []byte("pub"),
		PrivateKeyEncrypted: []byte("priv"),
		HasherSaltEncrypted: []byte("hs"),
		HasherSaltHashed:    "hsh",
		OmCodeEncrypted:     []byte("om"),
		OmCodeHashed:        "omh",
	}
}

const insertQuery = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,.*om_code_hashed\)\s*VALUES\s*\(\$1,.*\$13\)\s*RETURNING\s+created_at,\s*updated_at$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	now := time.Now()
	mock.ExpectQuery(insertQuery).
		WithArgs(u.ID.String(), u.Email, u.Name, u.PasswordHashed, u.MasterKeyEncrypted, u.MasterKeySalt,
			u.ResetKeyEncrypted, u.PublicKey, u.PrivateKeyEncrypted, u.HasherSaltEncrypted,
			u.HasherSaltHashed, u.OmCodeEncrypted, u.OmCodeHashed).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	got, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, now, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), sampleUser())
	assert.True(t, errors.Is(err, common.ErrorAlreadyExists))
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), sampleUser())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u := sampleUser()
	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).AddRow(
		u.ID.String(), u.Email, u.Name, u.PasswordHashed, u.MasterKeyEncrypted, u.MasterKeySalt,
		u.ResetKeyEncrypted, u.PublicKey, u.PrivateKeyEncrypted, u.HasherSaltEncrypted,
		u.HasherSaltHashed, u.OmCodeEncrypted, u.OmCodeHashed, "Teszt Elek", nil,
		true, now, now,
	)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*email,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs(u.Email).
		WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.MasterKeyEncrypted, got.MasterKeyEncrypted)
	require.NotNil(t, got.RealName)
	assert.Equal(t, "Teszt Elek", *got.RealName)
	assert.Nil(t, got.Class)
	assert.True(t, got.ImportAvailable)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(id.String()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestExistsByOmCodeHashed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+EXISTS\s*\(SELECT\s+1\s+FROM\s+users\s+WHERE\s+om_code_hashed\s*=\s*\$1\)$`).
		WithArgs("omh").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsByOmCodeHashed(context.Background(), "omh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateCredentials(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	q := `(?s)^UPDATE\s+users\s+SET\s+password_hashed\s*=\s*\$2,\s*master_key_encrypted\s*=\s*\$3,\s*master_key_salt\s*=\s*\$4,.*WHERE\s+id\s*=\s*\$1$`

	mock.ExpectExec(q).
		WithArgs(id.String(), "hash", []byte("mk"), []byte("salt")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateCredentials(context.Background(), id, "hash", []byte("mk"), []byte("salt")))

	mock.ExpectExec(q).
		WithArgs(id.String(), "hash", []byte("mk"), []byte("salt")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateCredentials(context.Background(), id, "hash", []byte("mk"), []byte("salt"))
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestApplyImport(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+real_name\s*=\s*\$2,\s*class\s*=\s*\$3,\s*import_available\s*=\s*FALSE.*WHERE\s+id\s*=\s*\$1$`).
		WithArgs(id.String(), "Teszt Elek", "12.C").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ApplyImport(context.Background(), id, "Teszt Elek", "12.C"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetImportAvailable_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+import_available\s*=\s*\$2`).
		WithArgs(id.String(), true).
		WillReturnError(errors.New("db err"))

	err := repo.SetImportAvailable(context.Background(), id, true)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
