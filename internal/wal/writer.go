package wal

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Level controls how aggressively a WAL instance persists writes to stable
// storage.
type Level int

const (
	// NoLog disables persistence entirely; write is always a no-op.
	NoLog Level = iota
	// WriteOnly persists via the OS write() call but never forces fsync.
	WriteOnly
	// Fsync additionally forces a sync, per fsyncPeriod (§4.3).
	Fsync
)

// ParseLevel maps the WAL_LEVEL config value to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "nolog":
		return NoLog, nil
	case "writeonly":
		return WriteOnly, nil
	case "fsync":
		return Fsync, nil
	default:
		return NoLog, fmt.Errorf("wal: unknown level %q", s)
	}
}

// Action selects which half of LifecycleCheck runs at a checkpoint boundary.
type Action int

const (
	ActionRenew Action = iota
	ActionPrune
)

// fileNum is the default segment retention used by prune (WAL_FILE_NUM, §6)
// when the caller does not override it via WithFileNum.
const fileNum = 3

// WAL is one per-shard instance: an append-only, segmented, checksummed log.
// All mutating entry points (Write, Renew, RemoveOneOldFile,
// RemoveAllOldFiles, GetWalFile) are serialized by mu; Fsync is lock-free
// against the current fd (§5).
type WAL struct {
	mu sync.Mutex

	shardId string
	path    string
	level   Level

	fsyncPeriodMs int64
	fileNum       int64

	currentFd   *os.File
	currentName string

	writeFileId   int64
	restoreFileId int64
	startFileId   int64

	offset  int64
	fOffset int64

	version uint64
	stopped bool

	audit  *AuditSink
	logger zerolog.Logger
}

// Option configures a WAL at construction time.
type Option func(*WAL)

// WithFsyncPeriod sets the millisecond period passed to the caller's fsync
// ticker; it does not itself schedule anything (§4.3: the timer is driven
// externally).
func WithFsyncPeriod(ms int64) Option {
	return func(w *WAL) { w.fsyncPeriodMs = ms }
}

// WithFileNum overrides the prune retention window (WAL_FILE_NUM).
func WithFileNum(n int64) Option {
	return func(w *WAL) { w.fileNum = n }
}

// WithLogger attaches a structured logger; every line carries shardId.
func WithLogger(l zerolog.Logger) Option {
	return func(w *WAL) { w.logger = l.With().Str("shard_id", w.shardId).Logger() }
}

// WithAuditSink attaches an optional, best-effort segment-lifecycle audit
// sink (§12/DESIGN.md). A nil sink (the default) disables auditing.
func WithAuditSink(a *AuditSink) Option {
	return func(w *WAL) { w.audit = a }
}

// Open constructs a WAL instance rooted at path for shardId. The directory
// must already exist; Open does not create it. The caller must call
// SetRestore and Restore before any Write (§6).
func Open(shardId, path string, level Level, opts ...Option) (*WAL, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: wal dir %s: %v", ErrIO, path, err)
	}

	w := &WAL{
		shardId:       shardId,
		path:          path,
		level:         level,
		fileNum:       fileNum,
		writeFileId:   -1,
		restoreFileId: -1,
		startFileId:   -1,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("shard_id", shardId).Logger()

	ids, err := listSegmentIDs(path)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		w.startFileId = ids[0]
	}

	return w, nil
}

// SetRestore records the starting offset and segment id for the next
// Restore call. Must be called before Restore.
func (w *WAL) SetRestore(fOffset, restoreFileId int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fOffset = fOffset
	w.restoreFileId = restoreFileId
}

// GetVersion returns the highest version durably observed and the current
// append offset.
func (w *WAL) GetVersion() (version uint64, offset int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version, w.offset
}

// Write appends header+payload as a single record (§4.3). It returns contLen,
// the total number of bytes written (header plus payload) — 0 on any of the
// documented silent-no-op conditions: disabled, no current fd, or a
// non-increasing version — this makes Write idempotent against replayed
// records.
func (w *WAL) Write(version uint64, msgType MsgType, payload []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.level == NoLog || w.currentFd == nil || version <= w.version {
		return 0, nil
	}

	buf, err := Encode(version, msgType, payload)
	if err != nil {
		return 0, err
	}

	n, err := w.currentFd.Write(buf)
	if err != nil {
		w.offset += int64(n)
		w.logger.Error().Err(err).Int64("offset", w.offset).Msg("wal write failed")
		return n, fmt.Errorf("%w: write %s: %v", ErrIO, w.currentName, err)
	}

	w.version = version
	w.offset += int64(len(buf))
	return len(buf), nil
}

// Fsync flushes the current segment when force is true, or when level is
// Fsync and fsyncPeriod is configured as zero (sync on every write). A
// non-zero period is expected to be driven by an external ticker calling
// Fsync(true) periodically: with a non-zero period, Fsync(false) does not
// sync.
func (w *WAL) Fsync(force bool) error {
	w.mu.Lock()
	fd := w.currentFd
	w.mu.Unlock()

	if fd == nil {
		return nil
	}
	if !force && !(w.level == Fsync && w.fsyncPeriodMs == 0) {
		return nil
	}
	if err := fd.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", ErrIO, err)
	}
	return nil
}

// Renew rolls to a new segment: closes the current fd (if any), opens
// wal{max(newest id on disk, writeFileId)+1} (never below wal0) for
// create|write-only, and resets offset to 0. A no-op once the instance has
// been Stopped.
func (w *WAL) Renew() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.renewLocked()
}

func (w *WAL) renewLocked() error {
	if w.stopped {
		return nil
	}

	if w.currentFd != nil {
		_ = w.currentFd.Close()
		w.currentFd = nil
	}

	newest, err := getNewFile(w.path)
	if err != nil {
		return err
	}
	next := w.writeFileId + 1
	if newest+1 > next {
		next = newest + 1
	}
	if next < 0 {
		next = 0
	}

	name := segmentPath(w.path, next)
	fd, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.logger.Error().Err(err).Str("file", name).Msg("renew: open failed")
		return fmt.Errorf("%w: renew open %s: %v", ErrIO, name, err)
	}

	w.currentFd = fd
	w.currentName = name
	w.writeFileId = next
	w.offset = 0
	if w.startFileId < 0 {
		w.startFileId = next
	}

	w.logger.Info().Str("file", name).Msg("wal renewed")
	w.audit.recordRenew(w.shardId, next)
	return nil
}

// Stop marks the instance stopped; subsequent Renew calls become no-ops.
// In-flight writes already holding the mutex complete normally.
func (w *WAL) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

// Close releases the current segment's file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFd == nil {
		return nil
	}
	err := w.currentFd.Close()
	w.currentFd = nil
	return err
}

// LifecycleCheck runs one of the two checkpoint-boundary hooks: ActionRenew
// rolls to a new segment; ActionPrune advances restoreFileId by one and
// deletes every segment that falls outside the retention window.
func (w *WAL) LifecycleCheck(action Action) error {
	switch action {
	case ActionRenew:
		return w.Renew()
	case ActionPrune:
		return w.RemoveOneOldFile()
	default:
		return fmt.Errorf("wal: unknown lifecycle action %d", action)
	}
}

// GetWalFile implements the walGetWalFile iteration contract (§12): fileId
// is read as the starting point (use -1 to mean "start before the
// beginning") and, on success, set to the file found. isCurrent reports
// whether the returned segment is the one currently open for append.
func (w *WAL) GetWalFile(fileId *int64) (name string, isCurrent bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	from := *fileId
	next, err := getNextFile(w.path, from)
	if err != nil {
		return "", false, err
	}
	if next < 0 {
		return "", false, fmt.Errorf("%w: no wal file after %d", ErrIO, from)
	}

	*fileId = next
	return segmentPath(w.path, next), next == w.writeFileId, nil
}

// ResetVersion forces the instance's view of the highest durable version and
// offset backward. Needed when a replica's local segments were restored
// from a peer's copy: the peer's version counter may sit behind what this
// replica last wrote locally, and without rewinding, Write's idempotence
// guard (version <= instance.version) would silently drop records replayed
// from the peer's log even though they were never durable here.
func (w *WAL) ResetVersion(newVer uint64, newOffset int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.version = newVer
	w.offset = newOffset
}
