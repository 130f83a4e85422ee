package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestWAL(t *testing.T, dir string, opts ...Option) *WAL {
	t.Helper()
	w, err := Open("shard-test", dir, Fsync, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := w.Renew(); err != nil {
		t.Fatalf("Renew() failed: %v", err)
	}
	return w
}

func TestWriteAppendsAndAdvancesVersion(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	n, err := w.Write(1, MsgSubmit, []byte("payload-1"))
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	wantN := HeaderSize + len("payload-1")
	if n != wantN {
		t.Errorf("expected %d bytes written (header+payload), got %d", wantN, n)
	}

	version, offset := w.GetVersion()
	if version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}
	if offset != int64(wantN) {
		t.Errorf("expected offset %d to equal bytes written, got %d", wantN, offset)
	}
}

func TestWriteVersionRegressionIsNoOp(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	if _, err := w.Write(10, MsgSubmit, []byte("v10")); err != nil {
		t.Fatalf("Write(10) failed: %v", err)
	}
	info, err := os.Stat(w.currentName)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	sizeAfterFirst := info.Size()

	n, err := w.Write(10, MsgSubmit, []byte("v10-again"))
	if err != nil {
		t.Fatalf("duplicate Write(10) returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected duplicate version write to return 0, got %d", n)
	}

	info, err = os.Stat(w.currentName)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() != sizeAfterFirst {
		t.Errorf("expected file size unchanged after no-op write, got %d want %d", info.Size(), sizeAfterFirst)
	}
}

func TestWriteWithNoLogLevelIsNoOp(t *testing.T) {
	dir := t.TempDir()
	w, err := Open("shard-test", dir, NoLog)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := w.Renew(); err != nil {
		t.Fatalf("Renew() failed: %v", err)
	}
	defer w.Close()

	n, err := w.Write(1, MsgSubmit, []byte("x"))
	if err != nil || n != 0 {
		t.Fatalf("Write() under NoLog = (%d, %v), want (0, nil)", n, err)
	}
}

func TestRenewProducesStrictlyIncreasingFileIds(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	first := w.writeFileId
	if _, err := w.Write(1, MsgSubmit, []byte("a")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := w.Renew(); err != nil {
		t.Fatalf("second Renew() failed: %v", err)
	}
	second := w.writeFileId

	if second <= first {
		t.Errorf("expected renewed file id %d to exceed previous %d", second, first)
	}
}

func TestResetVersionAllowsReacceptingEarlierVersion(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	for v := uint64(1); v <= 10; v++ {
		if _, err := w.Write(v, MsgSubmit, []byte("row")); err != nil {
			t.Fatalf("Write(%d) failed: %v", v, err)
		}
	}

	w.ResetVersion(5, 0)

	n, err := w.Write(6, MsgSubmit, []byte("replayed-row"))
	if err != nil {
		t.Fatalf("Write(6) after ResetVersion failed: %v", err)
	}
	if n == 0 {
		t.Errorf("expected write of version 6 to be accepted after ResetVersion(5, ...)")
	}
}

func TestRemoveAllOldFilesClearsDirectory(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	if _, err := w.Write(1, MsgSubmit, []byte("a")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := w.Renew(); err != nil {
		t.Fatalf("Renew() failed: %v", err)
	}
	if _, err := w.Write(2, MsgSubmit, []byte("b")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	if err := w.RemoveAllOldFiles(); err != nil {
		t.Fatalf("RemoveAllOldFiles() failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	for _, e := range entries {
		if _, ok := parseSegmentID(e.Name()); ok {
			t.Errorf("expected no wal* files after RemoveAllOldFiles, found %s", filepath.Join(dir, e.Name()))
		}
	}
}

func TestLifecycleCheckPrune(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, WithFileNum(1))

	for i := 0; i < 4; i++ {
		if _, err := w.Write(uint64(i+1), MsgSubmit, []byte("x")); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
		if err := w.LifecycleCheck(ActionRenew); err != nil {
			t.Fatalf("LifecycleCheck(Renew) failed: %v", err)
		}
	}
	if err := w.LifecycleCheck(ActionPrune); err != nil {
		t.Fatalf("LifecycleCheck(Prune) failed: %v", err)
	}

	ids, err := listSegmentIDs(dir)
	if err != nil {
		t.Fatalf("listSegmentIDs() failed: %v", err)
	}
	if len(ids) == 0 {
		t.Fatalf("expected at least the current segment to remain after prune")
	}
}
