package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/monatype-server/internal/config"
	"github.com/DoyleJ11/monatype-server/internal/httpapi"
	"github.com/DoyleJ11/monatype-server/internal/hub"
	"github.com/DoyleJ11/monatype-server/internal/lobby"
	"github.com/DoyleJ11/monatype-server/internal/store"
	"github.com/DoyleJ11/monatype-server/internal/ws"
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		// Sync fails on terminals; nothing useful to report.
		_ = log.Sync()
	}()

	log.Info("starting monatype server",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.GetAddr()),
	)

	results, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, results.Close()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, hub.Options{
		Logger:      log,
		IdleTimeout: cfg.Game.RoomIdleTimeout,
		Lobby: lobby.Options{
			Logger:    log,
			Results:   results,
			Countdown: cfg.Game.Countdown,
		},
	})

	srv := &http.Server{
		Addr: cfg.GetAddr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:          h,
			Store:        results,
			Logger:       log,
			PublicURL:    cfg.Server.PublicURL,
			CodeLength:   cfg.Game.RoomCodeLength,
			ResultsLimit: cfg.Game.ResultsLimit,
			WS:           ws.Options{OriginPatterns: cfg.Server.AllowedOrigins},
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		h.Send(hub.ShutdownHub{})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// openStore uses Postgres when DATABASE_URL is set, memory otherwise.
func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, results are kept in memory")
		return store.NewMemory(), nil
	}
	db, err := store.OpenPostgres(cfg.Database.URL, log)
	if err != nil {
		return nil, err
	}
	return db, nil
}
