package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DumpSegment prints a one-line summary of every record in the segment
// wal{fileId} under dir, without applying them to any caller state.
// Corruption stops the dump at the point restore would have truncated or
// resynced; DumpSegment reports where rather than recovering.
func DumpSegment(dir string, fileId int64, out io.Writer) error {
	name := segmentPath(dir, fileId)
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%w: dump open %s: %v", ErrIO, name, err)
	}
	defer f.Close()

	var offset int64
	var n int
	for {
		header, payload, next, err := readOneRecord(f, offset)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(out, "record %d: stopped at offset %d: %v\n", n, offset, err)
			return nil
		}
		fmt.Fprintf(out, "record %d: offset=%d version=%d sver=%d msgType=%d len=%d\n",
			n, offset, header.Version, header.Sver, header.MsgType, len(payload))
		offset = next
		n++
	}

	fmt.Fprintf(out, "%d records, %d bytes\n", n, offset)
	return nil
}
