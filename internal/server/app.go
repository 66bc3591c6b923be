// Package server wires the keyring server together: storage, cache, key
// services, the background import pool and the gRPC endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dinicsek/LovassyApp/internal/cache"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/dinicsek/LovassyApp/internal/logging"
	"github.com/dinicsek/LovassyApp/internal/server/blobstore"
	"github.com/dinicsek/LovassyApp/internal/server/config"
	"github.com/dinicsek/LovassyApp/internal/server/escrow"
	"github.com/dinicsek/LovassyApp/internal/server/imports"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/repomanager"
	"github.com/dinicsek/LovassyApp/internal/server/services"
	"github.com/dinicsek/LovassyApp/internal/server/session"
	"github.com/dinicsek/LovassyApp/internal/server/worker"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	gs "github.com/dinicsek/LovassyApp/internal/server/grpc"
)

// Seams for tests.
var (
	sqlOpen     = sql.Open
	natsConnect = nats.Connect
	newS3Store  = func(ctx context.Context, opts blobstore.Options) (blobstore.Store, error) {
		return blobstore.NewS3Store(ctx, opts)
	}
)

// App holds the wired services. The exported fields are what the operator
// CLI uses without starting the server.
type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	pool    *worker.Pool
	grpc    *gs.GRPCServer
	closers []func()

	Users    *services.UserService
	Sessions *session.Store
	Escrow   *escrow.Service
	Importer *imports.Importer
	Queue    *imports.Queue
}

// NewLogger builds the logger selected by cfg.LogFormat.
func NewLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	switch cfg.LogFormat {
	case config.LogFormatZerolog:
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		return logging.NewZerologLogger(w, level), nil
	default:
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		return logging.NewJSONSlogLogger(w, level), nil
	}
}

// newCache returns the configured cache backend and a function releasing it.
func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	if cfg.CacheBackend != config.CacheNATS {
		return cache.NewMemory(nil), func() {}, nil
	}

	nc, err := natsConnect(cfg.NATSURL, nats.Name("blueboard-keyring"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	maxTTL := max(cfg.SessionExpiry, cfg.ImportLockTTL)
	c, err := cache.NewNATS(ctx, js, cfg.NATSBucket, maxTTL)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return c, func() { _ = nc.Drain() }, nil
}

// NewApp connects every backend and wires the services, logging to logOut.
// Close must be called when NewApp succeeds.
func NewApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger, err := NewLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg, logger: logger}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	cfg := app.config

	db, err := sqlOpen("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, func() { _ = db.Close() })

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	blobs, err := newS3Store(ctx, blobstore.Options{
		User:         cfg.S3RootUser,
		Password:     cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return err
	}

	c, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, closeCache)

	hasher, err := cryptox.NewHasher(cfg.HasherOptions())
	if err != nil {
		return err
	}
	kdf := cryptox.DefaultKDFParams()

	app.Escrow = escrow.NewService(cfg.ResetKeyPassword, kdf)
	app.Sessions = session.NewStore(c, rm.AccessTokens(db), cfg.SessionExpiry, nil, app.logger)
	app.Importer = imports.NewImporter(db, rm, blobs, c, cfg.ImportLockTTL, app.logger)
	app.Queue = imports.NewQueue(db, rm, blobs, app.logger)
	app.pool = worker.NewPool(app.Importer, cfg.ImportWorkers, cfg.ImportQueueSize, app.logger)
	app.Users = services.NewUserService(db, rm, cfg, hasher, kdf, app.Escrow, app.Sessions, app.pool, app.logger)
	app.grpc = gs.NewGRPCServer(cfg.EndpointAddrGRPC, app.logger, app.Sessions, nil)

	if !app.Escrow.IsSet() {
		app.logger.Warn(ctx, "reset key password is not set, account creation is disabled")
	}
	return nil
}

// Close releases backends in reverse order of acquisition.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.pool.Run(ctx) })
	g.Go(func() error { return app.grpc.Run(ctx) })

	err := g.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}
