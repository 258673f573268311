package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/datastore"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/services"
	"github.com/vidtube/backend/internal/storage"
)

// Run bootstraps the VidTube backend core.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: indexes or check")
	}

	switch args[0] {
	case "indexes":
		return runIndexes(ctx)
	case "check":
		return runCheck(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// runIndexes provisions the unique indexes the services rely on for their
// conflict semantics. Safe to run repeatedly.
func runIndexes(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	ctx = logging.WithLogger(ctx, logger)

	mongo, err := datastore.NewMongo(ctx, cfg.Datastore)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongo.Close(closeCtx); err != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	if err := mongo.EnsureIndexes(ctx); err != nil {
		return err
	}
	logger.Info("unique indexes ensured", "database", cfg.Datastore.Database)
	return nil
}

// runCheck verifies that the configured datastore and object store are
// reachable, then exits. Used as a deploy-time smoke test.
func runCheck(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	ctx = logging.WithLogger(ctx, logger)

	mongo, err := datastore.NewMongo(ctx, cfg.Datastore)
	if err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	defer mongo.Close(ctx)

	if _, err := storage.NewS3Store(ctx, cfg.ObjectStore); err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	logger.Info("configuration check passed", "database", cfg.Datastore.Database, "bucket", cfg.ObjectStore.Bucket)
	return nil
}

// Services bundles the wired service layer for an outer transport to mount.
type Services struct {
	Identity     *services.Identity
	Relationship *services.Relationship
	Content      *services.Content
	History      *services.History
}

// BuildServices wires the full service graph from configuration. The caller
// owns the returned closer and must invoke it on shutdown.
func BuildServices(ctx context.Context, cfg config.Config) (Services, func(context.Context) error, error) {
	mongo, err := datastore.NewMongo(ctx, cfg.Datastore)
	if err != nil {
		return Services{}, nil, err
	}

	blobs, err := storage.NewS3Store(ctx, cfg.ObjectStore)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongo.Close(closeCtx)
		return Services{}, nil, err
	}

	tokens := auth.NewTokenManager(cfg.Auth)
	hasher := auth.NewBcryptHasher(0)
	throttle := auth.NewLoginThrottle(cfg.Auth.LoginAttempts, cfg.Auth.LoginWindow, cfg.Auth.LoginBurst, time.Hour)

	svcs := Services{
		Identity:     services.NewIdentity(mongo, blobs, tokens, hasher, throttle),
		Relationship: services.NewRelationship(mongo),
		Content:      services.NewContent(mongo, blobs),
		History:      services.NewHistory(mongo),
	}
	return svcs, mongo.Close, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
