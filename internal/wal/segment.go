package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// segmentPrefix is the fixed on-disk filename prefix (§3): a segment with id
// fileId is named "wal{fileId}", decimal, unpadded.
const segmentPrefix = "wal"

// segmentName returns the filename (not a full path) for fileId.
func segmentName(fileId int64) string {
	return fmt.Sprintf("%s%d", segmentPrefix, fileId)
}

// segmentPath joins dir and the segment filename for fileId.
func segmentPath(dir string, fileId int64) string {
	return filepath.Join(dir, segmentName(fileId))
}

// parseSegmentID extracts the file id from a bare filename, returning ok=false
// for anything that isn't exactly "wal" followed by a non-negative decimal
// integer (directories, swap files, unrelated entries are all ignored this
// way during enumeration).
func parseSegmentID(name string) (id int64, ok bool) {
	suffix, found := strings.CutPrefix(name, segmentPrefix)
	if !found || suffix == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// listSegmentIDs enumerates dir for wal{fileId} entries and returns their ids
// sorted ascending. No index file backs this: the directory listing is the
// source of truth (§4.2).
func listSegmentIDs(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read segment dir %s: %v", ErrIO, dir, err)
	}

	var ids []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := parseSegmentID(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// getNextFile returns the smallest segment id strictly greater than fromId,
// or -1 if none exists.
func getNextFile(dir string, fromId int64) (int64, error) {
	ids, err := listSegmentIDs(dir)
	if err != nil {
		return -1, err
	}
	for _, id := range ids {
		if id > fromId {
			return id, nil
		}
	}
	return -1, nil
}

// getNewFile returns the largest segment id present, or -1 if none exists.
func getNewFile(dir string) (int64, error) {
	ids, err := listSegmentIDs(dir)
	if err != nil {
		return -1, err
	}
	if len(ids) == 0 {
		return -1, nil
	}
	return ids[len(ids)-1], nil
}

// getOldFile returns the oldest segment id strictly less than fromId-keep,
// the segment prune uses to pick deletion candidates, or -1 if none qualify.
func getOldFile(dir string, fromId, keep int64) (int64, error) {
	ids, err := listSegmentIDs(dir)
	if err != nil {
		return -1, err
	}
	threshold := fromId - keep
	for _, id := range ids {
		if id < threshold {
			return id, nil
		}
	}
	return -1, nil
}
