package main

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/cognitive-core/internal/api"
	"github.com/nidhogg/cognitive-core/internal/config"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/persist"
	"github.com/nidhogg/cognitive-core/internal/rpc"
	"github.com/nidhogg/cognitive-core/internal/service"
	"github.com/nidhogg/cognitive-core/internal/state"
	pgstore "github.com/nidhogg/cognitive-core/internal/store"
	"github.com/nidhogg/cognitive-core/migrations"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/cored.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting cognitive core", zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load persisted state; any problem yields a fresh core.
	file := persist.NewFile(cfg.State.Path, logger)
	store := state.New(file.Load(), file, logger)

	notifier := notify.NewManager(cfg.Stream.Buffer, logger)
	store.SetPublisher(notifier)

	// Optional snapshot archive
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without snapshot archive", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, migrationSource(cfg.Database.Postgres.Migrations)); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store.SetArchiver(ps)
			pgStore = ps
		}
	}

	// Optional Redis mirror of the update feed
	var mirror *notify.RedisMirror
	if cfg.Database.Redis.URL != "" {
		m, rErr := notify.NewRedisMirror(cfg.Database.Redis.URL, cfg.Database.Redis.Stream, cfg.Database.Redis.MaxLen, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, running without update mirror", zap.Error(rErr))
		} else {
			notifier.AddMirror(m)
			mirror = m
		}
	}
	go notifier.Run(ctx)

	svc := service.New(store, notifier, time.Duration(cfg.Stream.Keepalive), logger)

	grpcServer, err := rpc.NewServer(cfg.Server.GRPCAddr, svc, rpc.Options{
		MaxConcurrentStreams: cfg.Server.MaxConcurrentStreams,
	}, logger)
	if err != nil {
		logger.Fatal("failed to start gRPC server", zap.Error(err))
	}
	grpcDone := make(chan error, 1)
	go func() { grpcDone <- grpcServer.Serve(ctx) }()

	var snapshots api.SnapshotLister
	if pgStore != nil {
		snapshots = pgStore
	}
	handler := api.NewHandler(svc, snapshots, logger)
	srv := &http.Server{
		Addr:        cfg.Server.HTTPAddr,
		Handler:     handler.Router(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	grpcStopped := false
	select {
	case <-ctx.Done():
	case err := <-grpcDone:
		logger.Error("gRPC server stopped", zap.Error(err))
		grpcStopped = true
		stop()
	}

	logger.Info("Shutting down cognitive core...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	if !grpcStopped {
		select {
		case <-grpcDone:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}
	if mirror != nil {
		mirror.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
}

// migrationSource returns dir when set, else the migrations built into the binary.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		if lvl, lvlErr := zap.ParseAtomicLevel(level); lvlErr == nil {
			cfg.Level = lvl
		}
		logger, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
