package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/paperledger/internal/api"
	"github.com/fastprodman/paperledger/internal/events"
	"github.com/fastprodman/paperledger/internal/infra/logging"
	"github.com/fastprodman/paperledger/internal/infra/pgutils"
	"github.com/fastprodman/paperledger/internal/infra/rediscache"
	"github.com/fastprodman/paperledger/internal/services/paper"
	"github.com/fastprodman/paperledger/pkg/envconf"
	"github.com/fastprodman/paperledger/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)
	log := slog.Default()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add("postgres", func(context.Context) error {
		return db.Close()
	})

	opts := []paper.Option{
		paper.WithStartingBalance(int64(cfg.Bankroll.StartingBalance)),
		paper.WithLogger(log),
	}

	if cfg.Redis.URL != "" {
		rdb, err := rediscache.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}

		shutdownqueue.Add("redis", func(context.Context) error {
			return rdb.Close()
		})

		opts = append(opts, paper.WithAccountCache(rediscache.New(rdb, cfg.Redis.CacheTTL, log)))
		log.Info("account cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	hub := events.NewHub(log, cfg.WSAllowedOrigins...)
	opts = append(opts, paper.WithPublisher(hub))

	svc := paper.New(db, opts...)

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.NewRouter(svc, hub, log))

	// Registered after the stores so it drains first.
	shutdownqueue.Add("http server", func(c context.Context) error {
		log.Info("shut down server")
		hub.Close()

		return srv.Shutdown(c)
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	log.Info("API started", "port", cfg.Port, "starting_balance", cfg.Bankroll.StartingBalance.String())

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
