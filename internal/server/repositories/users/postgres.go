package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, email, name, password_hashed, master_key_encrypted, master_key_salt,
		reset_key_encrypted, public_key, private_key_encrypted, hasher_salt_encrypted,
		hasher_salt_hashed, om_code_encrypted, om_code_hashed, real_name, class,
		import_available, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (id, email, name, password_hashed, master_key_encrypted, master_key_salt,
			reset_key_encrypted, public_key, private_key_encrypted, hasher_salt_encrypted,
			hasher_salt_hashed, om_code_encrypted, om_code_hashed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHashed, user.MasterKeyEncrypted, user.MasterKeySalt,
		user.ResetKeyEncrypted, user.PublicKey, user.PrivateKeyEncrypted, user.HasherSaltEncrypted,
		user.HasherSaltHashed, user.OmCodeEncrypted, user.OmCodeHashed,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHashed, &u.MasterKeyEncrypted, &u.MasterKeySalt,
		&u.ResetKeyEncrypted, &u.PublicKey, &u.PrivateKeyEncrypted, &u.HasherSaltEncrypted,
		&u.HasherSaltHashed, &u.OmCodeEncrypted, &u.OmCodeHashed, &u.RealName, &u.Class,
		&u.ImportAvailable, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) ExistsByOmCodeHashed(ctx context.Context, omCodeHashed string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE om_code_hashed = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, omCodeHashed).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, passwordHashed string, masterKeyEncrypted, masterKeySalt []byte) error {
	query :=
		`UPDATE users
		 SET password_hashed = $2, master_key_encrypted = $3, master_key_salt = $4, updated_at = NOW()
		 WHERE id = $1`

	return r.execOne(ctx, query, id, passwordHashed, masterKeyEncrypted, masterKeySalt)
}

func (r *PostgresRepository) SetImportAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	query := `UPDATE users SET import_available = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, available)
}

func (r *PostgresRepository) ApplyImport(ctx context.Context, id uuid.UUID, realName, class string) error {
	query :=
		`UPDATE users
		 SET real_name = $2, class = $3, import_available = FALSE, updated_at = NOW()
		 WHERE id = $1`

	return r.execOne(ctx, query, id, realName, class)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
