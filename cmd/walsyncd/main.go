// Package main implements walsyncd, a background daemon that drives a
// shard WAL's periodic fsync and lifecycle-check tickers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dsjohal14/shardwal/internal/libs/config"
	"github.com/dsjohal14/shardwal/internal/libs/obs"
	"github.com/dsjohal14/shardwal/internal/wal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	obs.InitLogger(cfg.LogLevel)
	logger := obs.Logger("walsyncd")

	level, err := wal.ParseLevel(cfg.WAL.Level)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid WAL_LEVEL")
	}

	w, err := wal.Open("default", cfg.WAL.Dir, level,
		wal.WithLogger(logger),
		wal.WithFsyncPeriod(cfg.WAL.FsyncPeriodMs),
		wal.WithFileNum(cfg.WAL.FileNum),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open wal")
	}

	w.SetRestore(0, 0)
	if err := w.Restore(context.Background(), wal.ApplyFunc(func(context.Context, wal.Header, []byte, wal.Source) error {
		return nil
	})); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore wal")
	}
	defer w.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fsyncPeriod := time.Duration(cfg.WAL.FsyncPeriodMs) * time.Millisecond
	if fsyncPeriod <= 0 {
		fsyncPeriod = time.Second
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(fsyncPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := w.Fsync(level == wal.Fsync); err != nil {
					logger.Error().Err(err).Msg("periodic fsync failed")
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := w.LifecycleCheck(wal.ActionPrune); err != nil {
					logger.Error().Err(err).Msg("periodic prune failed")
				}
			}
		}
	})

	logger.Info().Str("wal_dir", cfg.WAL.Dir).Msg("walsyncd started")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("walsyncd stopped with error")
	}
}
