package wal

import (
	"os"
	"testing"
)

func TestRemoveOneOldFileRespectsRetentionWindow(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, WithFileNum(2))

	// Produce segments wal0..wal5 (openTestWAL already created wal0).
	for i := 0; i < 5; i++ {
		if err := w.Renew(); err != nil {
			t.Fatalf("Renew() failed: %v", err)
		}
	}
	ids, err := listSegmentIDs(dir)
	if err != nil || len(ids) != 6 {
		t.Fatalf("expected 6 segments before prune, got %v (err=%v)", ids, err)
	}

	if err := w.RemoveOneOldFile(); err != nil {
		t.Fatalf("RemoveOneOldFile() failed: %v", err)
	}

	ids, err = listSegmentIDs(dir)
	if err != nil {
		t.Fatalf("listSegmentIDs() failed: %v", err)
	}
	// Open left restoreFileId at -1, so it advances to 0; threshold = 0 - 2 =
	// -2, so getOldFile(0,2) finds nothing (no id < -2) and nothing is
	// removed this round.
	if len(ids) != 6 {
		t.Errorf("expected no deletions when restoreFileId - keep is negative, got %d segments left", len(ids))
	}
}

func TestGetWalFileReportsCurrentSegment(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	if err := w.Renew(); err != nil {
		t.Fatalf("Renew() failed: %v", err)
	}

	fileId := int64(-1)
	name, isCurrent, err := w.GetWalFile(&fileId)
	if err != nil {
		t.Fatalf("GetWalFile() failed: %v", err)
	}
	if fileId != 0 {
		t.Errorf("expected first GetWalFile call to land on segment 0, got %d", fileId)
	}
	if isCurrent {
		t.Errorf("expected segment 0 to not be current after a second Renew")
	}
	if _, err := os.Stat(name); err != nil {
		t.Errorf("expected returned segment name to exist on disk: %v", err)
	}

	name, isCurrent, err = w.GetWalFile(&fileId)
	if err != nil {
		t.Fatalf("second GetWalFile() failed: %v", err)
	}
	if fileId != 1 || !isCurrent {
		t.Errorf("expected second call to land on current segment 1, got id=%d isCurrent=%v name=%s", fileId, isCurrent, name)
	}
}

func TestGetWalFileErrorsWhenNoFilesRemain(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	defer w.Close()

	if err := w.RemoveAllOldFiles(); err != nil {
		t.Fatalf("RemoveAllOldFiles() failed: %v", err)
	}

	fileId := int64(-1)
	if _, _, err := w.GetWalFile(&fileId); err == nil {
		t.Errorf("expected GetWalFile() to error when no segments exist")
	}
}
