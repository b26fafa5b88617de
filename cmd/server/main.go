package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"photo-guess/internal/config"
	"photo-guess/internal/db"
	"photo-guess/internal/game"
	"photo-guess/internal/logging"
	"photo-guess/internal/media"
	"photo-guess/internal/server"
	"photo-guess/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(newCmd(&flags{}).ExecuteContext(ctx))
}

func serve(ctx context.Context, cfg config.Config, autoMigrate bool) error {
	log := logging.New(cfg.Env)
	if cfg.Env == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	st, closeStore, err := openStore(ctx, cfg, autoMigrate, log)
	if err != nil {
		return err
	}
	defer closeStore()

	files, err := media.NewLocalStorage(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		return err
	}
	svc := game.New(st, files, cfg.Game, log, game.WithMaxUpload(cfg.Media.MaxUploadBytes))
	srv := server.New(svc, cfg, log)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Str("env", cfg.Env).Msg("photo-guess listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		srv.Close()
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	// Websocket peers are hijacked and ignored by Shutdown.
	srv.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore picks the in-memory store when no database is configured.
func openStore(ctx context.Context, cfg config.Config, autoMigrate bool, log zerolog.Logger) (store.Store, func(), error) {
	feed := store.NewBroker(0)
	if cfg.Database.URL == "" {
		log.Warn().Msg("DATABASE_URL is not set, state is kept in memory")
		return store.NewMemoryStore(feed), func() {}, nil
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, nil, err
	}
	if autoMigrate {
		if err := db.Migrate(conn); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	listenCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	publish := cfg.Database.ChangeFeed == config.FeedLocal
	if publish {
		close(done)
	} else {
		listener := store.NewPGListener(cfg.Database.URL, feed, log)
		go func() {
			defer close(done)
			if err := listener.Run(listenCtx); err != nil {
				log.Error().Err(err).Msg("change listener stopped")
			}
		}()
	}

	closeStore := func() {
		cancel()
		<-done
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
	return store.NewGormStore(conn, feed, publish), closeStore, nil
}
