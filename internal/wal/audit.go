package wal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// AuditSink is an optional, best-effort record of segment lifecycle events
// (renew/prune), used for operator observability only. It is never consulted
// by Restore or any segment-file query: the directory listing remains the
// sole source of truth (§4.2). A nil *AuditSink disables auditing entirely,
// so WAL has no hard dependency on Postgres being reachable.
type AuditSink struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewAuditSink wraps an already-connected pool. EnsureSchema should be
// called once at startup to create the backing table if it doesn't exist.
func NewAuditSink(pool *pgxpool.Pool, logger zerolog.Logger) *AuditSink {
	return &AuditSink{pool: pool, logger: logger}
}

// EnsureSchema creates the wal_segment_events table if absent.
func (a *AuditSink) EnsureSchema(ctx context.Context) error {
	if a == nil || a.pool == nil {
		return nil
	}
	_, err := a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wal_segment_events (
			id BIGSERIAL PRIMARY KEY,
			shard_id TEXT NOT NULL,
			file_id BIGINT NOT NULL,
			event TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (a *AuditSink) record(shardId string, fileId int64, event string) {
	if a == nil || a.pool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := a.pool.Exec(ctx, `
		INSERT INTO wal_segment_events (shard_id, file_id, event)
		VALUES ($1, $2, $3)
	`, shardId, fileId, event)
	if err != nil {
		a.logger.Warn().Err(err).Str("shard_id", shardId).Int64("file_id", fileId).
			Str("event", event).Msg("wal audit: write failed, continuing")
	}
}

// recordRenew and recordPrune are nil-receiver-safe so WAL.Renew/
// RemoveOneOldFile can call them unconditionally whether or not an
// AuditSink was configured via WithAuditSink.
func (a *AuditSink) recordRenew(shardId string, fileId int64) { a.record(shardId, fileId, "renew") }
func (a *AuditSink) recordPrune(shardId string, fileId int64) { a.record(shardId, fileId, "prune") }

// Close releases the underlying pool.
func (a *AuditSink) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}
