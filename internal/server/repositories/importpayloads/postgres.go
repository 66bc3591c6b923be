package importpayloads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.ImportPayload) (*models.ImportPayload, error) {
	query :=
		`INSERT INTO import_payloads (user_id, storage_key)
		 VALUES ($1, $2)
		 RETURNING id, created_at`

	if err := r.db.QueryRowContext(ctx, query, p.UserID, p.StorageKey).Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Latest(ctx context.Context, userID uuid.UUID) (*models.ImportPayload, error) {
	query :=
		`SELECT id, user_id, storage_key, created_at FROM import_payloads
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`

	p := &models.ImportPayload{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.ID, &p.UserID, &p.StorageKey, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query :=
		`DELETE FROM import_payloads
		 WHERE user_id = $1
		 RETURNING storage_key`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}
