package imports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dinicsek/LovassyApp/internal/cache"
	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/logging"
	"github.com/dinicsek/LovassyApp/internal/server/blobstore"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const lockPrefix = "import-lock:"

// DefaultLockTTL bounds how long one import may run.
const DefaultLockTTL = 10 * time.Second

// Importer applies a user's queued import.
type Importer struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	blobs   blobstore.Store
	cache   cache.Cache
	lockTTL time.Duration
	log     logging.Logger

	group singleflight.Group
}

func NewImporter(db *sql.DB, rm repomanager.RepositoryManager, blobs blobstore.Store, c cache.Cache, lockTTL time.Duration, log logging.Logger) *Importer {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Importer{
		db:      db,
		rm:      rm,
		blobs:   blobs,
		cache:   c,
		lockTTL: lockTTL,
		log:     log.With("module", "imports"),
	}
}

// Update applies the newest queued payload of userID, if any. Concurrent
// calls for one user share a single run inside this process; the cache marker
// keeps other processes out for up to the lock TTL. A payload that cannot be
// read yields common.ErrInvalidImport and stays queued.
func (i *Importer) Update(ctx context.Context, userID uuid.UUID, masterKey []byte) error {
	_, err, _ := i.group.Do(userID.String(), func() (any, error) {
		return nil, i.update(ctx, userID, masterKey)
	})
	return err
}

func (i *Importer) update(ctx context.Context, userID uuid.UUID, masterKey []byte) error {
	lockKey := lockPrefix + userID.String()

	_, held, err := i.cache.Get(ctx, lockKey)
	if err != nil {
		return fmt.Errorf("import lock: %w", err)
	}
	if held {
		i.log.Debug(ctx, "import already running", "user_id", userID)
		return nil
	}
	if err := i.cache.Set(ctx, lockKey, []byte{1}, i.lockTTL); err != nil {
		return fmt.Errorf("import lock: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, i.lockTTL)
	defer cancel()

	applied, err := i.apply(ctx, userID, masterKey)
	if err != nil {
		// The marker stays until it expires so a broken payload is not
		// retried on every request.
		return err
	}

	if err := i.cache.Remove(ctx, lockKey); err != nil {
		i.log.Warn(ctx, "import lock release failed", "user_id", userID, "error", err)
	}
	if applied {
		i.log.Info(ctx, "import applied", "user_id", userID)
	}
	return nil
}

func (i *Importer) apply(ctx context.Context, userID uuid.UUID, masterKey []byte) (bool, error) {
	user, err := i.rm.Users(i.db).GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if !user.ImportAvailable {
		return false, nil
	}

	payload, err := i.rm.ImportPayloads(i.db).Latest(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		// Flag raised without a payload behind it.
		return false, i.rm.Users(i.db).SetImportAvailable(ctx, userID, false)
	}
	if err != nil {
		return false, fmt.Errorf("latest payload: %w", err)
	}

	blob, err := i.blobs.Get(ctx, payload.StorageKey)
	if err != nil {
		return false, invalid("fetch payload", err)
	}

	privateKey, err := cryptox.Open(masterKey, user.PrivateKeyEncrypted, nil)
	if err != nil {
		return false, invalid("open private key", err)
	}
	plaintext, err := cryptox.DecryptWith(privateKey, blob)
	common.WipeByteArray(privateKey)
	if err != nil {
		return false, invalid("decrypt payload", err)
	}

	collection, err := ParseCollection(plaintext)
	if err != nil {
		return false, invalid("decode payload", err)
	}

	hasherSalt, err := cryptox.Open(masterKey, user.HasherSaltEncrypted, nil)
	if err != nil {
		return false, invalid("open hasher salt", err)
	}
	userIDHashed := cryptox.HashWithSalt(userID.String(), string(hasherSalt))
	common.WipeByteArray(hasherSalt)

	var storageKeys []string
	err = dbx.WithTx(ctx, i.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := i.rm.Users(tx).ApplyImport(ctx, userID, collection.StudentName, collection.SchoolClass); err != nil {
			return err
		}
		for _, g := range collection.Transform(userIDHashed) {
			if err := i.rm.Grades(tx).Upsert(ctx, g); err != nil {
				return err
			}
		}
		storageKeys, err = i.rm.ImportPayloads(tx).DeleteByUser(ctx, userID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("store import: %w", err)
	}

	for _, key := range storageKeys {
		if err := i.blobs.Delete(ctx, key); err != nil {
			i.log.Warn(ctx, "stale import blob left behind", "storage_key", key, "error", err)
		}
	}
	return true, nil
}

func invalid(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrInvalidImport, step, err)
}
