package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"creative-dispatch/internal/api"
	"creative-dispatch/internal/config"
	"creative-dispatch/internal/dispatch"
	"creative-dispatch/internal/listener"
	"creative-dispatch/internal/status"
	"creative-dispatch/internal/storage"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := OpenStore(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("init storage")
	}
	defer store.Close()

	// Dispatch + summaries
	summaries := status.NewCache(store)
	pg, notifies := store.(*storage.PostgresStore)
	if !notifies {
		summaries.WithTTL(cfg.CacheTTL())
	}
	h, err := NewHandler(cfg, store, summaries)
	if err != nil {
		log.Fatal().Err(err).Msg("init dispatch")
	}

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     h,
		ReadTimeout: 5 * time.Second,
		// no WriteTimeout: a dispatch lasts as long as its worker calls
		IdleTimeout: 60 * time.Second,
	}

	// Listener (LISTEN/NOTIFY)
	if notifies {
		go listener.ListenAndRefresh(rootCtx, pg, summaries, cfg.Listener.Channel, cfg.Backoff())
	}

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("backend", cfg.Storage.Backend).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

// NewHandler wires the dispatcher and the API router over a store. It fails
// when the worker endpoint is not usable.
func NewHandler(cfg config.Config, store storage.Store, summaries *status.Cache) (http.Handler, error) {
	if err := cfg.RequireWorker(); err != nil {
		return nil, err
	}
	worker := dispatch.NewWorkerClient(cfg.WorkerURL(), cfg.WorkerTimeout())
	d := dispatch.NewDispatcher(store, worker)
	return api.Router(api.NewDispatchHandler(store, d, summaries)), nil
}

// OpenStore builds the configured backend.
func OpenStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		st, err := storage.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case config.BackendDynamoDB:
		st, err := storage.NewDynamoFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendMemory:
		if cfg.Storage.Fixture == "" {
			return storage.NewMemoryStore(), nil
		}
		st, err := storage.LoadFixture(cfg.Storage.Fixture)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
