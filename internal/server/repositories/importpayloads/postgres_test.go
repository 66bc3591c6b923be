package importpayloads

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

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	userID := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+import_payloads\s*\(user_id,\s*storage_key\)\s*VALUES\s*\(\$1,\s*\$2\)\s*RETURNING\s+id,\s*created_at$`).
		WithArgs(userID.String(), "imports/k").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), now))

	got, err := repo.Create(context.Background(), &models.ImportPayload{UserID: userID, StorageKey: "imports/k"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, now, got.CreatedAt)
}

const latestQuery = `(?s)^SELECT\s+id,\s*user_id,\s*storage_key,\s*created_at\s+FROM\s+import_payloads\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC\s+LIMIT\s+1$`

func TestLatest(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	userID := uuid.New()
	mock.ExpectQuery(latestQuery).
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "storage_key", "created_at"}).
			AddRow(int64(9), userID.String(), "imports/newest", time.Now()))

	got, err := repo.Latest(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "imports/newest", got.StorageKey)
	assert.Equal(t, userID, got.UserID)
}

func TestLatest_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	userID := uuid.New()
	mock.ExpectQuery(latestQuery).WithArgs(userID.String()).WillReturnError(sql.ErrNoRows)

	_, err := repo.Latest(context.Background(), userID)
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestDeleteByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	userID := uuid.New()
	mock.ExpectQuery(`(?s)^DELETE\s+FROM\s+import_payloads\s+WHERE\s+user_id\s*=\s*\$1\s+RETURNING\s+storage_key$`).
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("a").AddRow("b"))

	keys, err := repo.DeleteByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestDeleteByUser_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^DELETE\s+FROM\s+import_payloads`).WillReturnError(errors.New("db err"))

	_, err := repo.DeleteByUser(context.Background(), uuid.New())
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
