// Package main implements a read-only HTTP status server for shard WAL
// instances.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dsjohal14/shardwal/internal/libs/config"
	"github.com/dsjohal14/shardwal/internal/libs/obs"
	"github.com/dsjohal14/shardwal/internal/wal"
)

// shardRegistry tracks the open WAL instances this process serves status
// for, keyed by shard id.
type shardRegistry struct {
	mu     sync.RWMutex
	shards map[string]*wal.WAL
}

func newShardRegistry() *shardRegistry {
	return &shardRegistry{shards: make(map[string]*wal.WAL)}
}

func (r *shardRegistry) get(id string) (*wal.WAL, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.shards[id]
	return w, ok
}

func (r *shardRegistry) put(id string, w *wal.WAL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shards[id] = w
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	obs.InitLogger(cfg.LogLevel)
	logger := obs.Logger("walapi")

	level, err := wal.ParseLevel(cfg.WAL.Level)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid WAL_LEVEL")
	}

	registry := newShardRegistry()
	shardId := "default"
	w, err := wal.Open(shardId, cfg.WAL.Dir, level, wal.WithLogger(logger), wal.WithFileNum(cfg.WAL.FileNum))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open wal")
	}
	w.SetRestore(0, 0)
	if err := w.Restore(context.Background(), wal.ApplyFunc(noopApply)); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore wal")
	}
	registry.put(shardId, w)

	r := setupRouter(registry)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info().Str("addr", addr).Msg("starting walapi server")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func noopApply(_ context.Context, _ wal.Header, _ []byte, _ wal.Source) error {
	return nil
}

func setupRouter(registry *shardRegistry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/healthz", handleHealthz)
	r.Get("/shards/{id}/status", handleShardStatus(registry))

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleShardStatus(registry *shardRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		instance, ok := registry.get(id)
		if !ok {
			http.Error(w, "unknown shard", http.StatusNotFound)
			return
		}

		version, offset := instance.GetVersion()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"shard_id":%q,"version":%d,"offset":%d}`, id, version, offset)
	}
}
