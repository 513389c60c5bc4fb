package membuf

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/buf"
)

// TableHeader is the metadata block at the start of a hash-table buffer's
// data region. The magic lives inside the data rather than in the buffer
// tag so that tables can also sit over raw byte regions with no registry
// involvement. Layout (little-endian):
//
//	Offset  Size  Field
//	0x00    4     'M' 'K' 'T' 'B'
//	0x04    8     Cell capacity
//	0x0C    8     Used cell count
//	0x14    8     Deleted (tombstone) cell count
//	0x1C    8     Miss tolerance
//	0x24    1     Rehash-in-progress flag
//	0x25    3     Reserved, zero
//
// Cells follow at offset 0x28, which keeps them 8-byte aligned.
type TableHeader struct {
	Capacity         uint64
	Count            uint64
	InvalidCount     uint64
	MissTolerance    uint64
	RehashInProgress bool
}

// TableMagic is the signature of an initialized table ("MKTB" in the raw
// bytes). Stable for the process lifetime by construction.
const TableMagic uint32 = 0x42544B4D

const (
	tableMagicOffset     = 0x00
	tableCapacityOffset  = 0x04
	tableCountOffset     = 0x0C
	tableInvalidOffset   = 0x14
	tableToleranceOffset = 0x1C
	tableRehashOffset    = 0x24

	// TableHeaderSize is the byte length of the serialized TableHeader.
	TableHeaderSize = 0x28
)

// TableMagicOf reads the signature field. Returns 0 when b is too short.
func TableMagicOf(b []byte) uint32 {
	if len(b) < tableMagicOffset+4 {
		return 0
	}
	return buf.U32LE(b[tableMagicOffset:])
}

// ParseTableHeader validates and extracts the table metadata from the start
// of a data region.
func ParseTableHeader(b []byte) (TableHeader, error) {
	if len(b) < TableHeaderSize {
		return TableHeader{}, fmt.Errorf("table header: %d bytes, need %d: %w",
			len(b), TableHeaderSize, ErrInsufficientMemory)
	}
	if TableMagicOf(b) != TableMagic {
		return TableHeader{}, fmt.Errorf("table header: magic 0x%08x, want 0x%08x: %w",
			TableMagicOf(b), TableMagic, ErrInvalidMemory)
	}
	return TableHeader{
		Capacity:         buf.U64LE(b[tableCapacityOffset:]),
		Count:            buf.U64LE(b[tableCountOffset:]),
		InvalidCount:     buf.U64LE(b[tableInvalidOffset:]),
		MissTolerance:    buf.U64LE(b[tableToleranceOffset:]),
		RehashInProgress: b[tableRehashOffset] != 0,
	}, nil
}

// Put serializes the header, including the magic, into the start of b.
// b must hold at least TableHeaderSize bytes.
func (h TableHeader) Put(b []byte) {
	buf.PutU32(b, tableMagicOffset, TableMagic)
	buf.PutU64(b, tableCapacityOffset, h.Capacity)
	buf.PutU64(b, tableCountOffset, h.Count)
	buf.PutU64(b, tableInvalidOffset, h.InvalidCount)
	buf.PutU64(b, tableToleranceOffset, h.MissTolerance)
	if h.RehashInProgress {
		b[tableRehashOffset] = 1
	} else {
		b[tableRehashOffset] = 0
	}
}
