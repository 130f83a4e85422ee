package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func touchSegments(t *testing.T, dir string, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		f, err := os.Create(segmentPath(dir, id))
		if err != nil {
			t.Fatalf("create segment %d: %v", id, err)
		}
		f.Close()
	}
}

func TestParseSegmentID(t *testing.T) {
	cases := []struct {
		name   string
		wantID int64
		wantOk bool
	}{
		{"wal0", 0, true},
		{"wal42", 42, true},
		{"wal", 0, false},
		{"wal-1", 0, false},
		{"walx", 0, false},
		{"other0", 0, false},
	}

	for _, c := range cases {
		id, ok := parseSegmentID(c.name)
		if ok != c.wantOk || (ok && id != c.wantID) {
			t.Errorf("parseSegmentID(%q) = (%d, %v), want (%d, %v)", c.name, id, ok, c.wantID, c.wantOk)
		}
	}
}

func TestGetNextFile(t *testing.T) {
	dir := t.TempDir()
	touchSegments(t, dir, 1, 3, 5)

	next, err := getNextFile(dir, 0)
	if err != nil || next != 1 {
		t.Fatalf("getNextFile(0) = (%d, %v), want (1, nil)", next, err)
	}
	next, err = getNextFile(dir, 3)
	if err != nil || next != 5 {
		t.Fatalf("getNextFile(3) = (%d, %v), want (5, nil)", next, err)
	}
	next, err = getNextFile(dir, 5)
	if err != nil || next != -1 {
		t.Fatalf("getNextFile(5) = (%d, %v), want (-1, nil)", next, err)
	}
}

func TestGetNewFile(t *testing.T) {
	dir := t.TempDir()

	newest, err := getNewFile(dir)
	if err != nil || newest != -1 {
		t.Fatalf("getNewFile on empty dir = (%d, %v), want (-1, nil)", newest, err)
	}

	touchSegments(t, dir, 2, 7, 4)
	newest, err = getNewFile(dir)
	if err != nil || newest != 7 {
		t.Fatalf("getNewFile() = (%d, %v), want (7, nil)", newest, err)
	}
}

func TestGetOldFile(t *testing.T) {
	dir := t.TempDir()
	touchSegments(t, dir, 1, 2, 3, 4, 5)

	// fromId=5, keep=2 -> threshold 3 -> oldest id < 3 is 1.
	old, err := getOldFile(dir, 5, 2)
	if err != nil || old != 1 {
		t.Fatalf("getOldFile(5,2) = (%d, %v), want (1, nil)", old, err)
	}

	// Nothing qualifies when keep covers everything.
	old, err = getOldFile(dir, 5, 10)
	if err != nil || old != -1 {
		t.Fatalf("getOldFile(5,10) = (%d, %v), want (-1, nil)", old, err)
	}
}

func TestSegmentPathUsesDecimalUnpaddedName(t *testing.T) {
	got := segmentPath("/data/shard0", 12)
	want := filepath.Join("/data/shard0", "wal12")
	if got != want {
		t.Errorf("segmentPath() = %q, want %q", got, want)
	}
}
