package view

import (
	"fmt"
	"iter"
	"math"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/membuf"
)

// Cell states. Empty must be zero so that a zeroed data region reads as a
// valid, empty table.
const (
	cellEmpty   uint8 = 0
	cellDeleted uint8 = 1
	cellUsed    uint8 = 2
)

// Cell is one slot of the open-addressed map region.
type Cell[K comparable, V any] struct {
	Key   K
	Value V
	State uint8
}

// DefaultMissTolerance bounds the probe distance of a lookup before the
// table tries to rehash itself larger.
const DefaultMissTolerance = 8

// tableGrowth is the capacity factor applied when a probe exceeds the miss
// tolerance or finds no slot.
const tableGrowth = 1.2

// TableConfig parameterizes a hash-table view.
type TableConfig[K comparable] struct {
	// Hash maps a key to 64 bits. Required; Shift64 suits integer keys.
	Hash func(K) uint64
	// MissTolerance overrides DefaultMissTolerance when non-zero. Only
	// consulted when the table is first initialized; a reused table keeps
	// its persisted tolerance.
	MissTolerance uint64
	// NoResize pins the capacity: probes never trigger growth and a full
	// table rejects new keys instead of rehashing.
	NoResize bool
}

// HashTable presents a buffer as an open-addressed, linear-probing map
// from K to V. All state lives in the buffer: a TableHeader at offset 0
// followed by capacity cells. Tombstones left by Destroy are traversed by
// probes and reclaimed only by rehash.
type HashTable[K comparable, V any] struct {
	reg      *membuf.Registry
	buf      *membuf.Buffer
	hash     func(K) uint64
	cellSize int
	noResize bool
}

// NewHashTable attaches a table view to b. A region already carrying the
// table magic is reused idempotently; a zeroed region is initialized
// fresh; any other magic is treated as corruption, logged, and reset.
func NewHashTable[K comparable, V any](reg *membuf.Registry, b *membuf.Buffer, cfg TableConfig[K]) (*HashTable[K, V], error) {
	if err := checkElement[K](); err != nil {
		return nil, err
	}
	if err := checkElement[V](); err != nil {
		return nil, err
	}
	if cfg.Hash == nil {
		return nil, fmt.Errorf("hashtable %q: hash function required", b.Name())
	}
	h := &HashTable[K, V]{
		reg:      reg,
		buf:      b,
		hash:     cfg.Hash,
		cellSize: sizeOf[Cell[K, V]](),
		noResize: cfg.NoResize,
	}
	if b.Size() < membuf.TableHeaderSize+h.cellSize {
		return nil, fmt.Errorf("hashtable %q (%s): %d bytes below header plus one cell: %w",
			b.Name(), b.Addr(), b.Size(), membuf.ErrInsufficientMemory)
	}
	if _, err := b.Claim(membuf.TypeHashTable); err != nil {
		if reg != nil {
			reg.Logger().Error("hashtable: corrupt buffer",
				"name", b.Name(), "addr", b.Addr(), "tag", b.Type().String())
		}
		return nil, err
	}

	tolerance := cfg.MissTolerance
	if tolerance == 0 {
		tolerance = DefaultMissTolerance
	}

	switch magic := membuf.TableMagicOf(b.Bytes()); magic {
	case membuf.TableMagic:
		hdr, err := membuf.ParseTableHeader(b.Bytes())
		if err == nil {
			err = h.checkGeometry(hdr)
		}
		if err != nil {
			h.logReset("inconsistent table state", err)
			h.reset(tolerance)
			return h, nil
		}
		if hdr.RehashInProgress {
			// A rehash cannot outlive an operation; a persisted flag means
			// the previous owner died mid-rehash.
			h.logReset("rehash flag stuck", nil)
			h.reset(tolerance)
		}
	case 0:
		h.reset(tolerance)
	default:
		h.logReset(fmt.Sprintf("magic 0x%08x", magic), nil)
		h.reset(tolerance)
	}
	return h, nil
}

// NewHashTableNamed finds or allocates the named buffer sized for at least
// capacity cells, attaching a table view. An existing smaller table is
// rehashed up to the requested capacity.
func NewHashTableNamed[K comparable, V any](reg *membuf.Registry, name string, capacity int, cfg TableConfig[K]) (*HashTable[K, V], error) {
	if reg == nil {
		return nil, fmt.Errorf("hashtable %q: no registry: %w", name, membuf.ErrNullResize)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("hashtable %q: capacity %d: %w", name, capacity, membuf.ErrInsufficientMemory)
	}
	cellBytes, ok := buf.MulOverflowSafe(capacity, sizeOf[Cell[K, V]]())
	if !ok {
		return nil, fmt.Errorf("hashtable %q: capacity %d: %w", name, capacity, membuf.ErrInsufficientMemory)
	}
	b, err := reg.Allocate(name, membuf.TableHeaderSize+cellBytes)
	if err != nil {
		return nil, err
	}
	h, err := NewHashTable[K, V](reg, b, cfg)
	if err != nil {
		return nil, err
	}
	if h.Cap() < capacity {
		if err := h.ResizeTo(capacity); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *HashTable[K, V]) logReset(reason string, err error) {
	if h.reg == nil {
		return
	}
	h.reg.Logger().Error("hashtable: resetting corrupt table",
		"name", h.buf.Name(), "addr", h.buf.Addr(), "reason", reason, "err", err)
}

// reset zeroes the map region and installs a fresh header sized to the
// current storage.
func (h *HashTable[K, V]) reset(tolerance uint64) {
	capacity := (h.buf.Size() - membuf.TableHeaderSize) / h.cellSize
	clear(h.buf.Bytes()[membuf.TableHeaderSize:])
	membuf.TableHeader{
		Capacity:      uint64(capacity),
		MissTolerance: tolerance,
	}.Put(h.buf.Bytes())
}

// checkGeometry validates a persisted header against the storage size and
// this view's cell layout.
func (h *HashTable[K, V]) checkGeometry(hdr membuf.TableHeader) error {
	if hdr.Capacity == 0 {
		return fmt.Errorf("capacity 0: %w", membuf.ErrReinitializedMemory)
	}
	if _, err := buf.CheckCellBounds(h.buf.Size(), membuf.TableHeaderSize, int(hdr.Capacity), h.cellSize); err != nil {
		return fmt.Errorf("cell region: %v: %w", err, membuf.ErrReinitializedMemory)
	}
	if hdr.Count+hdr.InvalidCount > hdr.Capacity {
		return fmt.Errorf("count %d + deleted %d over capacity %d: %w",
			hdr.Count, hdr.InvalidCount, hdr.Capacity, membuf.ErrReinitializedMemory)
	}
	return nil
}

// header re-reads the metadata. After a successful init the header is an
// invariant; losing it mid-operation is unrecoverable.
func (h *HashTable[K, V]) header() membuf.TableHeader {
	hdr, err := membuf.ParseTableHeader(h.buf.Bytes())
	if err != nil {
		panic(fmt.Sprintf("membuf: hashtable %q (%s): header lost mid-operation: %v",
			h.buf.Name(), h.buf.Addr(), err))
	}
	return hdr
}

func (h *HashTable[K, V]) putHeader(hdr membuf.TableHeader) {
	hdr.Put(h.buf.Bytes())
}

func (h *HashTable[K, V]) cells(capacity uint64) []Cell[K, V] {
	return sliceOf[Cell[K, V]](h.buf.Bytes()[membuf.TableHeaderSize:], int(capacity))
}

// Len returns the number of used cells.
func (h *HashTable[K, V]) Len() int { return int(h.header().Count) }

// InvalidLen returns the number of tombstones awaiting reclaim.
func (h *HashTable[K, V]) InvalidLen() int { return int(h.header().InvalidCount) }

// Cap returns the cell capacity.
func (h *HashTable[K, V]) Cap() int { return int(h.header().Capacity) }

// Buffer returns the underlying buffer.
func (h *HashTable[K, V]) Buffer() *membuf.Buffer { return h.buf }

// locate runs the probe state machine for k. It returns the target cell
// index, whether that cell holds k, and whether any cell was secured at
// all. A probe that exceeds the miss tolerance, or exhausts a full table,
// triggers one rehash per attempt when growth is possible.
func (h *HashTable[K, V]) locate(k K) (idx int, matched bool, ok bool) {
	for {
		hdr := h.header()
		capacity := int(hdr.Capacity)
		cells := h.cells(hdr.Capacity)

		i := int(h.hash(k) % hdr.Capacity)
		misses := uint64(0)
		found := false
		matched = false
		for n := 0; n < capacity; n++ {
			c := &cells[i]
			if c.State == cellUsed && c.Key == k {
				idx, found, matched = i, true, true
				break
			}
			if c.State == cellEmpty {
				idx, found = i, true
				break
			}
			// Tombstones and mismatched keys are traversed, never terminal.
			i++
			if i == capacity {
				i = 0
			}
			misses++
		}

		if found && misses < min(hdr.MissTolerance, hdr.Capacity) {
			return idx, matched, true
		}
		if !h.noResize && h.reg != nil && !hdr.RehashInProgress {
			if err := h.ResizeBy(tableGrowth); err == nil {
				continue
			}
			// Growth refused by the allocator; fall back to what the probe
			// secured, if anything.
		}
		if found {
			return idx, matched, true
		}
		if hdr.RehashInProgress {
			panic(fmt.Sprintf("membuf: hashtable %q (%s): no slot for key during rehash (cap=%d count=%d deleted=%d)",
				h.buf.Name(), h.buf.Addr(), hdr.Capacity, hdr.Count, hdr.InvalidCount))
		}
		return 0, false, false
	}
}

// Get returns the value stored under k.
func (h *HashTable[K, V]) Get(k K) (V, bool) {
	idx, matched, ok := h.locate(k)
	if !ok || !matched {
		var zero V
		return zero, false
	}
	return h.cells(h.header().Capacity)[idx].Value, true
}

// Contains reports whether k is present.
func (h *HashTable[K, V]) Contains(k K) bool {
	_, matched, ok := h.locate(k)
	return ok && matched
}

// Set stores v under k, inserting or overwriting. It reports false only
// when the table is full and cannot grow.
func (h *HashTable[K, V]) Set(k K, v V) bool {
	idx, matched, ok := h.locate(k)
	if !ok {
		return false
	}
	hdr := h.header()
	c := &h.cells(hdr.Capacity)[idx]
	if !matched {
		c.State = cellUsed
		hdr.Count++
		h.putHeader(hdr)
	}
	c.Key = k
	c.Value = v
	return true
}

// Create stores v under k only when k is absent. It reports false when k
// already exists or no slot is available.
func (h *HashTable[K, V]) Create(k K, v V) bool {
	idx, matched, ok := h.locate(k)
	if !ok || matched {
		return false
	}
	hdr := h.header()
	c := &h.cells(hdr.Capacity)[idx]
	c.State = cellUsed
	c.Key = k
	c.Value = v
	hdr.Count++
	h.putHeader(hdr)
	return true
}

// Destroy removes k, leaving a tombstone. Missing keys are a no-op.
func (h *HashTable[K, V]) Destroy(k K) bool {
	idx, matched, ok := h.locate(k)
	if !ok || !matched {
		return false
	}
	hdr := h.header()
	h.cells(hdr.Capacity)[idx].State = cellDeleted
	hdr.Count--
	hdr.InvalidCount++
	h.putHeader(hdr)
	return true
}

// Drop zeroes the map region and the counters, keeping capacity, magic
// and miss tolerance.
func (h *HashTable[K, V]) Drop() {
	hdr := h.header()
	clear(h.buf.Bytes()[membuf.TableHeaderSize:])
	hdr.Count = 0
	hdr.InvalidCount = 0
	hdr.RehashInProgress = false
	h.putHeader(hdr)
}

// ResizeBy rehashes into a capacity scaled by factor, rounded up, growing
// by at least one cell when factor exceeds 1.
func (h *HashTable[K, V]) ResizeBy(factor float64) error {
	hdr := h.header()
	newCap := int(math.Ceil(float64(hdr.Capacity) * factor))
	if factor > 1 && newCap <= int(hdr.Capacity) {
		newCap = int(hdr.Capacity) + 1
	}
	return h.ResizeTo(newCap)
}

// ResizeTo rehashes the table into exactly capacity cells: used cells are
// copied aside, the storage resized, the map region zeroed, and every key
// reinserted. The rehash flag in the header suppresses nested growth from
// the inner inserts and is cleared on every exit path.
func (h *HashTable[K, V]) ResizeTo(capacity int) error {
	if h.reg == nil {
		return fmt.Errorf("hashtable %q: %w", h.buf.Name(), membuf.ErrNullResize)
	}
	hdr := h.header()
	if capacity < 1 || uint64(capacity) < hdr.Count {
		return fmt.Errorf("hashtable %q: capacity %d below count %d: %w",
			h.buf.Name(), capacity, hdr.Count, membuf.ErrInsufficientMemory)
	}
	cellBytes, ok := buf.MulOverflowSafe(capacity, h.cellSize)
	if !ok {
		return fmt.Errorf("hashtable %q: capacity %d: %w", h.buf.Name(), capacity, membuf.ErrInsufficientMemory)
	}
	newBytes, ok := buf.AddOverflowSafe(membuf.TableHeaderSize, cellBytes)
	if !ok {
		return fmt.Errorf("hashtable %q: capacity %d: %w", h.buf.Name(), capacity, membuf.ErrInsufficientMemory)
	}

	old := h.cells(hdr.Capacity)
	scratch := make([]Cell[K, V], 0, hdr.Count)
	for i := range old {
		if old[i].State == cellUsed {
			scratch = append(scratch, old[i])
		}
	}

	hdr.RehashInProgress = true
	h.putHeader(hdr)
	defer func() {
		done := h.header()
		done.RehashInProgress = false
		h.putHeader(done)
	}()

	if err := h.reg.Resize(h.buf, newBytes); err != nil {
		return err
	}

	fresh := h.header()
	fresh.Capacity = uint64(capacity)
	fresh.Count = 0
	fresh.InvalidCount = 0
	h.putHeader(fresh)
	clear(h.buf.Bytes()[membuf.TableHeaderSize:])

	for _, c := range scratch {
		if !h.Set(c.Key, c.Value) {
			panic(fmt.Sprintf("membuf: hashtable %q (%s): key lost during rehash to %d cells",
				h.buf.Name(), h.buf.Addr(), capacity))
		}
	}
	return nil
}

// All iterates the used cells. Insertion order is not preserved.
func (h *HashTable[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		cells := h.cells(h.header().Capacity)
		for i := range cells {
			if cells[i].State == cellUsed {
				if !yield(cells[i].Key, cells[i].Value) {
					return
				}
			}
		}
	}
}

// Keys iterates the keys of the used cells.
func (h *HashTable[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range h.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values iterates the values of the used cells.
func (h *HashTable[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range h.All() {
			if !yield(v) {
				return
			}
		}
	}
}
