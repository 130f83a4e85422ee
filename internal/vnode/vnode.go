// Package vnode is a minimal worked example of a WAL caller: a toy
// time-series shard that appends (metric, ts, value) rows through the WAL
// and rebuilds an in-memory last-value table from it at startup. It is not
// part of the WAL core — the WAL treats its payloads as opaque bytes — and
// exists only to exercise wal.Write/wal.Restore end to end from something
// other than the package's own unit tests.
package vnode

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dsjohal14/shardwal/internal/wal"
)

// Row is one (metric, ts, value) sample.
type Row struct {
	Metric string
	Ts     int64
	Value  float64
}

// Shard owns one WAL instance and an in-memory last-value index keyed by
// metric name.
type Shard struct {
	mu      sync.RWMutex
	w       *wal.WAL
	last    map[string]Row
	version uint64
	logger  zerolog.Logger
}

// Open opens the WAL at dir for shardId, restores it into a fresh last-value
// table, and returns a ready-to-use Shard.
func Open(ctx context.Context, shardId, dir string, opts ...wal.Option) (*Shard, error) {
	w, err := wal.Open(shardId, dir, wal.Fsync, opts...)
	if err != nil {
		return nil, fmt.Errorf("vnode: open wal: %w", err)
	}

	s := &Shard{
		w:      w,
		last:   make(map[string]Row),
		logger: zerolog.Nop(),
	}

	w.SetRestore(0, 0)
	if err := w.Restore(ctx, wal.ApplyFunc(s.applyRecord)); err != nil {
		return nil, fmt.Errorf("vnode: restore: %w", err)
	}
	s.version, _ = w.GetVersion()

	return s, nil
}

// Append durably records a row and applies it to the in-memory index.
func (s *Shard) Append(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	payload := encodeRow(row)
	if _, err := s.w.Write(s.version, wal.MsgSubmit, payload); err != nil {
		s.version--
		return fmt.Errorf("vnode: append: %w", err)
	}
	if err := s.w.Fsync(true); err != nil {
		return fmt.Errorf("vnode: append fsync: %w", err)
	}

	s.last[row.Metric] = row
	return nil
}

// LastValue returns the most recently observed row for metric.
func (s *Shard) LastValue(metric string) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.last[metric]
	return row, ok
}

// Checkpoint rolls the WAL to a new segment and prunes old ones, the vnode's
// analogue of the database's periodic checkpoint boundary (§4.5).
func (s *Shard) Checkpoint() error {
	if err := s.w.LifecycleCheck(wal.ActionRenew); err != nil {
		return fmt.Errorf("vnode: checkpoint renew: %w", err)
	}
	if err := s.w.LifecycleCheck(wal.ActionPrune); err != nil {
		return fmt.Errorf("vnode: checkpoint prune: %w", err)
	}
	return nil
}

// Close releases the underlying WAL's file handle.
func (s *Shard) Close() error {
	return s.w.Close()
}

func (s *Shard) applyRecord(_ context.Context, _ wal.Header, payload []byte, _ wal.Source) error {
	row, err := decodeRow(payload)
	if err != nil {
		return err
	}
	s.last[row.Metric] = row
	return nil
}

// encodeRow/decodeRow are this package's own small payload codec, distinct
// from the WAL's SubmitMsg layout (§4.4) it happens to be tagged with: a
// metric name length-prefixed string, an 8-byte timestamp, and an 8-byte
// IEEE-754 value, all big-endian.
func encodeRow(row Row) []byte {
	buf := make([]byte, 2+len(row.Metric)+8+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(row.Metric)))
	copy(buf[2:2+len(row.Metric)], row.Metric)
	off := 2 + len(row.Metric)
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(row.Ts))
	binary.BigEndian.PutUint64(buf[off+8:off+16], math.Float64bits(row.Value))
	return buf
}

func decodeRow(buf []byte) (Row, error) {
	if len(buf) < 2 {
		return Row{}, fmt.Errorf("vnode: payload too short for metric length")
	}
	nameLen := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf) < 2+nameLen+16 {
		return Row{}, fmt.Errorf("vnode: payload too short for row body")
	}
	metric := string(buf[2 : 2+nameLen])
	off := 2 + nameLen
	ts := int64(binary.BigEndian.Uint64(buf[off : off+8]))
	value := math.Float64frombits(binary.BigEndian.Uint64(buf[off+8 : off+16]))
	return Row{Metric: metric, Ts: ts, Value: value}, nil
}
