// Package worker runs background import jobs. A job gets the user's master
// key only through a keyring.Grant, so the key is never stored in the queue
// in a form more than one goroutine can use.
package worker

import (
	"context"
	"errors"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/logging"
	"github.com/dinicsek/LovassyApp/internal/server/keyring"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Updater is implemented by imports.Importer.
type Updater interface {
	Update(ctx context.Context, userID uuid.UUID, masterKey []byte) error
}

type ImportJob struct {
	UserID uuid.UUID
	Grant  *keyring.Grant
}

// Pool is a fixed set of goroutines draining a bounded job channel.
type Pool struct {
	jobs    chan ImportJob
	workers int
	updater Updater
	log     logging.Logger
}

func NewPool(updater Updater, workers, queueSize int, log logging.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Pool{
		jobs:    make(chan ImportJob, queueSize),
		workers: workers,
		updater: updater,
		log:     log.With("module", "worker"),
	}
}

// Submit enqueues job without blocking. When the queue is full the grant is
// revoked and false is returned; the import will be picked up on a later
// login.
func (p *Pool) Submit(job ImportJob) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		job.Grant.Revoke()
		return false
	}
}

// Run processes jobs until ctx is cancelled. Jobs still queued at that point
// have their grants revoked.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for range p.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-p.jobs:
					p.handle(ctx, job)
				}
			}
		})
	}

	err := g.Wait()
	p.drain()
	return err
}

func (p *Pool) handle(ctx context.Context, job ImportJob) {
	key, err := job.Grant.Take()
	if err != nil {
		p.log.Warn(ctx, "import job without a usable grant", "user_id", job.UserID)
		return
	}
	defer common.WipeByteArray(key)

	err = p.updater.Update(ctx, job.UserID, key)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrInvalidImport):
		p.log.Warn(ctx, "queued import is unreadable", "user_id", job.UserID, "error", err)
	default:
		p.log.Error(ctx, "background import failed", "user_id", job.UserID, "error", err)
	}
}

func (p *Pool) drain() {
	for {
		select {
		case job := <-p.jobs:
			job.Grant.Revoke()
		default:
			return
		}
	}
}
