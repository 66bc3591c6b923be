package imports

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/logging"
	"github.com/dinicsek/LovassyApp/internal/server/blobstore"
	"github.com/dinicsek/LovassyApp/internal/server/models"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Queue accepts payloads from the external importer. It never sees
// plaintext.
type Queue struct {
	db    *sql.DB
	rm    repomanager.RepositoryManager
	blobs blobstore.Store
	log   logging.Logger
}

func NewQueue(db *sql.DB, rm repomanager.RepositoryManager, blobs blobstore.Store, log logging.Logger) *Queue {
	if log == nil {
		log = logging.Nop{}
	}
	return &Queue{db: db, rm: rm, blobs: blobs, log: log.With("module", "imports")}
}

// Enqueue stores ciphertext for userID and flags the user so the next
// session picks it up.
func (q *Queue) Enqueue(ctx context.Context, userID uuid.UUID, ciphertext []byte) error {
	key := blobstore.NewImportKey(userID)
	if err := q.blobs.Put(ctx, key, ciphertext); err != nil {
		return fmt.Errorf("store payload: %w", err)
	}

	err := dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := q.rm.ImportPayloads(tx).Create(ctx, &models.ImportPayload{UserID: userID, StorageKey: key}); err != nil {
			return err
		}
		return q.rm.Users(tx).SetImportAvailable(ctx, userID, true)
	})
	if err != nil {
		if delErr := q.blobs.Delete(ctx, key); delErr != nil {
			q.log.Warn(ctx, "orphaned import blob", "storage_key", key, "error", delErr)
		}
		return fmt.Errorf("queue payload: %w", err)
	}

	q.log.Info(ctx, "import queued", "user_id", userID)
	return nil
}
