package wal

import (
	"encoding/binary"
)

// Payload migration (§4.4, §12). A record with sver<2 and msgType==Submit
// carries a SubmitMsg: a count of blocks, each block a small header
// (numOfRows, dataLen) followed by dataLen bytes of row data in the legacy
// DataRow layout. The current (sver=2) writer instead prefixes every row
// with a one-byte type tag. migrateSubmitPayload performs that forward
// conversion in memory during restore; the record on disk is never
// rewritten.
//
// All multi-byte integers inside the payload are network byte order,
// independent of the WAL header's own host-order integers (§6).

const (
	submitMsgHeaderSize = 4 // numOfBlocks
	submitBlkHeaderSize = 6 // numOfRows(2) + dataLen(4)
	legacyRowLenSize    = 4 // length prefix on a legacy DataRow
	dataRowTag          = 1 // new-layout row type tag for a migrated DataRow

	// kvRowCollisionLen is the one documented legacy row length that can
	// also be parsed as a KVRow and must be disambiguated (§12).
	kvRowCollisionLen = 257
	kvRowHeadSize     = 2 // nCols
	kvRowColIdxEntry  = 4 // colId(2) + offset(2), per column
)

// migrateSubmitPayload attempts the forward conversion. ok is false when the
// payload does not verify as legacy DataRow blocks (it was already
// migrated, or is otherwise not recognizable) — per spec, an unverified
// payload is left unchanged rather than treated as an error.
func migrateSubmitPayload(payload []byte) (out []byte, ok bool, err error) {
	if len(payload) < submitMsgHeaderSize {
		return nil, false, nil
	}

	numOfBlocks := int32(binary.BigEndian.Uint32(payload[0:4]))
	if numOfBlocks <= 0 {
		return nil, false, nil
	}

	type block struct {
		numOfRows uint16
		dataLen   int32
		dataOff   int
	}
	blocks := make([]block, 0, numOfBlocks)

	off := submitMsgHeaderSize
	totalRows := 0
	for i := int32(0); i < numOfBlocks; i++ {
		if off+submitBlkHeaderSize > len(payload) {
			return nil, false, nil
		}
		numOfRows := binary.BigEndian.Uint16(payload[off : off+2])
		dataLen := int32(binary.BigEndian.Uint32(payload[off+2 : off+6]))
		dataOff := off + submitBlkHeaderSize
		if dataLen < 0 || dataOff+int(dataLen) > len(payload) {
			return nil, false, nil
		}

		if !isLegacyDataRowBlock(payload[dataOff:dataOff+int(dataLen)], int(numOfRows), dataLen) {
			return nil, false, nil
		}

		blocks = append(blocks, block{numOfRows, dataLen, dataOff})
		totalRows += int(numOfRows)
		off = dataOff + int(dataLen)
	}

	// One extra byte per row: the new type tag (§4.4 step 2-3).
	out = make([]byte, len(payload)+totalRows)
	copy(out[0:submitMsgHeaderSize], payload[0:submitMsgHeaderSize])

	dstOff := submitMsgHeaderSize
	for _, b := range blocks {
		binary.BigEndian.PutUint16(out[dstOff:dstOff+2], b.numOfRows)
		lenExpand := int32(b.numOfRows)
		binary.BigEndian.PutUint32(out[dstOff+2:dstOff+6], b.dataLen+lenExpand)
		dstDataOff := dstOff + submitBlkHeaderSize

		rowSrc := b.dataOff
		rowDst := dstDataOff
		for r := uint16(0); r < b.numOfRows; r++ {
			rowLen := int(binary.BigEndian.Uint32(payload[rowSrc : rowSrc+legacyRowLenSize]))
			out[rowDst] = dataRowTag
			copy(out[rowDst+1:rowDst+1+rowLen], payload[rowSrc:rowSrc+rowLen])
			rowSrc += rowLen
			rowDst += 1 + rowLen
		}

		dstOff = dstDataOff + int(b.dataLen) + int(lenExpand)
	}

	return out, true, nil
}

// isLegacyDataRowBlock verifies a block's row data is laid out as
// concatenated legacy DataRows (lengths sum exactly to dataLen), with the
// 257-byte collision disambiguated against the alternate KVRow
// interpretation (§12, walIsSDataRow/walSMemRowCheck).
func isLegacyDataRowBlock(data []byte, numOfRows int, dataLen int32) bool {
	if numOfRows <= 0 || dataLen <= 0 {
		return true
	}

	var sumLen int32
	var kvLen int32
	pos := 0
	for i := 0; i < numOfRows; i++ {
		if pos+legacyRowLenSize > len(data) {
			return false
		}
		rowLen := int32(binary.BigEndian.Uint32(data[pos : pos+legacyRowLenSize]))
		if rowLen <= 0 || pos+int(rowLen) > len(data) {
			return false
		}
		sumLen += rowLen
		if sumLen > dataLen {
			return false
		}

		if rowLen == kvRowCollisionLen {
			if kvTotalLen, isKV := kvRowLooksValid(data[pos : pos+int(rowLen)]); isKV {
				kvLen += kvTotalLen
			}
		}

		pos += int(rowLen)
	}

	if sumLen != dataLen {
		return false
	}
	if kvLen == dataLen {
		// The block is equally consistent with an all-KVRow interpretation;
		// treat it as already-migrated/KV data, not legacy DataRow.
		return false
	}
	return true
}

// kvRowLooksValid recomputes the expected first-column timestamp offset
// from the row's declared column count and compares it against the offset
// actually stored in the row's first column index entry. A match means this
// 257-byte row parses equally well as a KVRow, the one documented collision
// with the legacy DataRow layout. The KVRow reinterpretation starts after
// the 4-byte length prefix shared with the legacy DataRow layout.
func kvRowLooksValid(row []byte) (totalLen int32, isKV bool) {
	body := row[legacyRowLenSize:]
	if len(body) < kvRowHeadSize+kvRowColIdxEntry {
		return 0, false
	}
	nCols := int(binary.BigEndian.Uint16(body[0:2]))
	if nCols <= 0 {
		return 0, false
	}
	calcTsOffset := uint16(kvRowHeadSize + kvRowColIdxEntry*nCols)
	realTsOffset := binary.BigEndian.Uint16(body[kvRowHeadSize+2 : kvRowHeadSize+4])
	if calcTsOffset != realTsOffset {
		return 0, false
	}
	return int32(len(row)), true
}
