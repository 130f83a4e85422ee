package wal

import (
	"fmt"
	"os"
)

// RemoveOneOldFile implements prune-one (§4.5): advance restoreFileId by
// one, then repeatedly query getOldFile(restoreFileId, fileNum) and delete
// matching segments. Remove errors are logged and do not fail the
// operation — a segment left behind by a failed delete is retried on the
// next prune.
func (w *WAL) RemoveOneOldFile() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.restoreFileId++

	for {
		oldId, err := getOldFile(w.path, w.restoreFileId, w.fileNum)
		if err != nil {
			return err
		}
		if oldId < 0 {
			return nil
		}

		name := segmentPath(w.path, oldId)
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("file", name).Msg("prune: remove failed")
			return nil
		} else {
			w.logger.Info().Str("file", name).Msg("wal segment pruned")
			w.audit.recordPrune(w.shardId, oldId)
		}
	}
}

// RemoveAllOldFiles closes the current fd, removes every wal{id} segment in
// the directory, and resets startFileId/restoreFileId/writeFileId to -1.
func (w *WAL) RemoveAllOldFiles() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFd != nil {
		_ = w.currentFd.Close()
		w.currentFd = nil
	}

	var fromId int64 = -1
	for {
		next, err := getNextFile(w.path, fromId)
		if err != nil {
			return err
		}
		if next < 0 {
			break
		}
		fromId = next

		name := segmentPath(w.path, next)
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str("file", name).Msg("remove-all: remove failed")
			return fmt.Errorf("%w: remove %s: %v", ErrIO, name, err)
		}
	}

	w.startFileId = -1
	w.restoreFileId = -1
	w.writeFileId = -1
	return nil
}
