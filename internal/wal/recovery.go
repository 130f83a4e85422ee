package wal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Source identifies where a replayed record came from, passed to Apply.
type Source int

const WalSource Source = 0

// Apply is the caller-supplied per-record callback invoked during Restore.
// It is treated as opaque: its own failure is not distinguished by the WAL
// (§9 "opaque handles").
type Apply interface {
	ApplyRecord(ctx context.Context, header Header, payload []byte, source Source) error
}

// ApplyFunc adapts a plain function to Apply.
type ApplyFunc func(ctx context.Context, header Header, payload []byte, source Source) error

func (f ApplyFunc) ApplyRecord(ctx context.Context, h Header, payload []byte, s Source) error {
	return f(ctx, h, payload, s)
}

// Restore replays every segment in ascending file-id order (§4.4). It must
// be called once at startup, after SetRestore, before any Write. On return,
// a current fd is open for append: either the pre-existing writeFileId
// segment, or a freshly renewed one if the directory held no segments.
func (w *WAL) Restore(ctx context.Context, apply Apply) error {
	w.mu.Lock()
	fOffset := w.fOffset
	restoreFileId := w.restoreFileId
	w.mu.Unlock()

	fileId := restoreFileId - 1
	found := false

	for {
		next, err := getNextFile(w.path, fileId)
		if err != nil {
			return err
		}
		if next < 0 {
			break
		}
		fileId = next
		found = true

		offsetForThisFile := int64(0)
		if fileId == restoreFileId {
			offsetForThisFile = fOffset
		}

		if err := w.restoreOneFile(ctx, fileId, offsetForThisFile, apply); err != nil {
			w.logger.Warn().Err(err).Int64("file_id", fileId).
				Msg("restore: segment failed, continuing with next segment")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !found {
		return w.renewLocked()
	}

	if w.currentFd != nil {
		_ = w.currentFd.Close()
		w.currentFd = nil
	}

	name := segmentPath(w.path, w.writeFileId)
	fd, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: restore: open current segment %s: %v", ErrIO, name, err)
	}
	w.currentFd = fd
	w.currentName = name
	return nil
}

// restoreOneFile replays a single segment (§4.4 restoreOneFile). It updates
// w.version/w.writeFileId as a side effect of successfully replayed records,
// and calls apply.ApplyRecord for each.
func (w *WAL) restoreOneFile(ctx context.Context, fileId, fOffset int64, apply Apply) error {
	name := segmentPath(w.path, fileId)

	f, err := os.OpenFile(name, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: restore open %s: %v", ErrIO, name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrIO, name, err)
	}
	fileSize := info.Size()

	if fOffset > fileSize && fileSize > 0 {
		w.mu.Lock()
		if fileId > w.writeFileId {
			w.writeFileId = fileId
		}
		w.mu.Unlock()
		return nil
	}

	if fOffset != 0 {
		if _, err := f.Seek(fOffset, io.SeekStart); err != nil {
			if _, err2 := f.Seek(0, io.SeekStart); err2 != nil {
				return fmt.Errorf("%w: seek %s: %v", ErrIO, name, err2)
			}
			fOffset = 0
		}
	}

	offset := fOffset

	for {
		header, payload, newOffset, err := readOneRecord(f, offset)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, errShortRead) {
				if truncErr := f.Truncate(offset); truncErr != nil {
					w.logger.Warn().Err(truncErr).Str("file", name).Msg("restore: truncate after short read failed")
				}
				break
			}
			if errors.Is(err, ErrCorrupted) {
				resynced, serr := skipCorrupted(f, offset, fileSize)
				if serr != nil {
					if truncErr := f.Truncate(offset); truncErr != nil {
						w.logger.Warn().Err(truncErr).Str("file", name).Msg("restore: truncate after corruption failed")
					}
					break
				}
				offset = resynced
				w.logger.Warn().Str("file", name).Int64("offset", offset).
					Msg("restore: resynced past corrupted record")
				continue
			}
			if truncErr := f.Truncate(offset); truncErr != nil {
				w.logger.Warn().Err(truncErr).Str("file", name).Msg("restore: truncate after short read failed")
			}
			break
		}

		migrated := payload
		migratedHeader := header
		if header.Sver < SverChecksumMigrated && header.MsgType == MsgSubmit {
			if out, ok, merr := migrateSubmitPayload(payload); merr != nil {
				return merr
			} else if ok {
				migrated = out
				migratedHeader.Len = uint32(len(out))
			}
		}

		offset = newOffset

		w.mu.Lock()
		w.version = header.Version
		w.offset = offset
		if fileId > w.writeFileId {
			w.writeFileId = fileId
		}
		w.mu.Unlock()

		if err := apply.ApplyRecord(ctx, migratedHeader, migrated, WalSource); err != nil {
			return fmt.Errorf("apply record at %s:%d: %w", name, offset, err)
		}
	}

	return nil
}

// readOneRecord reads and validates the record starting at byte offset in
// f, returning its header, payload, and the offset immediately following it.
// io.EOF means a clean end of segment; errShortRead means the header or
// payload was cut short; ErrCorrupted means the header or checksum failed
// validation; any other error is an Io failure on the read path.
// restoreOneFile truncates the file to offset on a short read or an Io
// failure; DumpSegment reports the error and stops.
var errShortRead = errors.New("wal: short read")

func readOneRecord(f *os.File, offset int64) (Header, []byte, int64, error) {
	headerBuf := make([]byte, HeaderSize)
	n, err := f.ReadAt(headerBuf, offset)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return Header{}, nil, offset, fmt.Errorf("%w: read header at %d: %v", ErrIO, offset, err)
		}
		return Header{}, nil, offset, io.EOF
	}
	if n < HeaderSize {
		return Header{}, nil, offset, errShortRead
	}

	header, err := ParseHeader(headerBuf)
	if err != nil {
		return Header{}, nil, offset, err
	}

	payload := make([]byte, header.Len)
	if header.Len > 0 {
		pn, err := f.ReadAt(payload, offset+HeaderSize)
		if err != nil || pn < int(header.Len) {
			return Header{}, nil, offset, errShortRead
		}
	}

	if err := VerifyChecksum(header, payload); err != nil {
		return Header{}, nil, offset, err
	}

	return header, payload, offset + HeaderSize + int64(header.Len), nil
}

// skipCorrupted advances byte-by-byte from offset+1 looking for the next
// valid header, per §4.1. It returns ErrCorrupted if EOF is reached first.
func skipCorrupted(f *os.File, offset, fileSize int64) (int64, error) {
	for pos := offset + 1; pos+HeaderSize <= fileSize; pos++ {
		headerBuf := make([]byte, HeaderSize)
		if _, err := f.ReadAt(headerBuf, pos); err != nil {
			break
		}
		header, err := ParseHeader(headerBuf)
		if err != nil {
			continue
		}
		if pos+HeaderSize+int64(header.Len) > fileSize {
			continue
		}
		payload := make([]byte, header.Len)
		if header.Len > 0 {
			if _, err := f.ReadAt(payload, pos+HeaderSize); err != nil {
				continue
			}
		}
		if VerifyChecksum(header, payload) != nil {
			continue
		}
		return pos, nil
	}
	return 0, fmt.Errorf("%w: no valid record found past offset %d", ErrCorrupted, offset)
}
