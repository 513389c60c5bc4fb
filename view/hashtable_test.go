package view

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/membuf"
)

// identity hashing makes probe positions explicit in the tests below.
func identity(k uint64) uint64 { return k }

func newTestTable(t *testing.T, reg *membuf.Registry, name string, capacity int, cfg TableConfig[uint64]) *HashTable[uint64, uint64] {
	t.Helper()
	h, err := NewHashTableNamed[uint64, uint64](reg, name, capacity, cfg)
	require.NoError(t, err)
	require.Equal(t, capacity, h.Cap())
	return h
}

func TestHashTable_RequiresHash(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()

	_, err := NewHashTableNamed[uint64, uint64](reg, "nohash", 4, TableConfig[uint64]{})
	require.Error(t, err)
}

func TestHashTable_SetGetRoundTrip(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "rt", 8, TableConfig[uint64]{Hash: Shift64})

	require.True(t, h.Set(1, 100))
	v, ok := h.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(100), v)

	// Overwrite does not change the count.
	require.True(t, h.Set(1, 200))
	assert.Equal(t, 1, h.Len())
	v, _ = h.Get(1)
	assert.Equal(t, uint64(200), v)

	_, ok = h.Get(2)
	assert.False(t, ok)
	assert.False(t, h.Contains(2))
	assert.True(t, h.Contains(1))
}

func TestHashTable_CreateOnlyInsertsOnce(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "create", 8, TableConfig[uint64]{Hash: Shift64})

	require.True(t, h.Create(7, 70))
	assert.False(t, h.Create(7, 71), "second create must report absent")

	v, ok := h.Get(7)
	require.True(t, ok)
	assert.Equal(t, uint64(70), v, "create must not overwrite")
	assert.Equal(t, 1, h.Len())
}

// Scenario: three colliding keys, one destroyed; the probe for the third
// must traverse the tombstone.
func TestHashTable_TombstoneTraversal(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "D", 8, TableConfig[uint64]{Hash: identity, MissTolerance: 4})

	// 0, 8 and 16 all land on slot 0.
	k1, k2, k3 := uint64(0), uint64(8), uint64(16)
	require.True(t, h.Set(k1, 1))
	require.True(t, h.Set(k2, 2))
	require.True(t, h.Set(k3, 3))

	require.True(t, h.Destroy(k2))
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 1, h.InvalidLen())

	v, ok := h.Get(k3)
	require.True(t, ok, "probe must pass through the tombstone")
	assert.Equal(t, uint64(3), v)
	assert.False(t, h.Contains(k2))
}

// Scenario: probe exceeding the miss tolerance triggers exactly one
// rehash at 1.2x capacity.
func TestHashTable_MissToleranceRehash(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "E", 4, TableConfig[uint64]{Hash: identity, MissTolerance: 2})

	// 0, 4 and 8 all land on slot 0 in a 4-cell table, but spread out
	// over 5 cells (0, 4, 3).
	require.True(t, h.Set(0, 10))
	require.True(t, h.Set(4, 20))
	require.True(t, h.Set(8, 30))

	assert.Equal(t, 5, h.Cap(), "one rehash at ceil(4 * 1.2)")
	assert.False(t, h.header().RehashInProgress)
	for k, want := range map[uint64]uint64{0: 10, 4: 20, 8: 30} {
		v, ok := h.Get(k)
		require.True(t, ok, "key %d lost by rehash", k)
		assert.Equal(t, want, v)
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 0, h.InvalidLen())
}

func TestHashTable_NoResizeFullTable(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "full", 4, TableConfig[uint64]{Hash: identity, NoResize: true})

	for k := uint64(0); k < 4; k++ {
		require.True(t, h.Set(k, k*10))
	}
	assert.Equal(t, 4, h.Cap(), "NoResize must pin the capacity")

	assert.False(t, h.Set(99, 1), "full table must reject new keys")

	// Existing keys stay retrievable and updatable.
	for k := uint64(0); k < 4; k++ {
		v, ok := h.Get(k)
		require.True(t, ok)
		assert.Equal(t, k*10, v)
	}
	require.True(t, h.Set(2, 222))
	v, _ := h.Get(2)
	assert.Equal(t, uint64(222), v)
}

func TestHashTable_DestroyIdempotence(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "destroy", 8, TableConfig[uint64]{Hash: Shift64})

	require.True(t, h.Set(5, 50))
	require.True(t, h.Destroy(5))
	assert.False(t, h.Contains(5))
	assert.False(t, h.Destroy(5), "destroying a missing key is a no-op")
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 1, h.InvalidLen())

	// Re-setting after destroy works and keeps the tombstone accounting.
	require.True(t, h.Set(5, 51))
	assert.True(t, h.Contains(5))
}

func TestHashTable_DropPreservesGeometry(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "drop", 8, TableConfig[uint64]{Hash: Shift64, MissTolerance: 3})

	require.True(t, h.Set(1, 1))
	require.True(t, h.Set(2, 2))
	require.True(t, h.Destroy(1))

	h.Drop()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.InvalidLen())
	assert.Equal(t, 8, h.Cap())
	assert.Equal(t, uint64(3), h.header().MissTolerance)
	assert.False(t, h.Contains(2))
}

func TestHashTable_PersistsAcrossReconstruction(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "persist", 8, TableConfig[uint64]{Hash: Shift64})

	require.True(t, h.Set(3, 33))
	require.True(t, h.Set(4, 44))

	again, err := NewHashTable[uint64, uint64](reg, reg.Find("persist"),
		TableConfig[uint64]{Hash: Shift64})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())
	v, ok := again.Get(3)
	require.True(t, ok)
	assert.Equal(t, uint64(33), v)
}

func TestHashTable_CorruptMagicResets(t *testing.T) {
	var log strings.Builder
	reg := membuf.NewRegistry(membuf.WithLogger(
		slog.New(slog.NewTextHandler(&log, nil))))
	defer reg.Close()

	h := newTestTable(t, reg, "corrupt", 8, TableConfig[uint64]{Hash: Shift64})
	require.True(t, h.Set(1, 1))

	// Stamp a foreign magic over the header.
	copy(h.Buffer().Bytes(), []byte{0xDE, 0xAD, 0xBE, 0xEF})

	again, err := NewHashTable[uint64, uint64](reg, reg.Find("corrupt"),
		TableConfig[uint64]{Hash: Shift64})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Len(), "corrupt table must reset empty")
	assert.False(t, again.Contains(1))
	assert.Contains(t, log.String(), "corrupt")
	assert.Contains(t, log.String(), "name=corrupt")
}

func TestHashTable_ResizeToBelowCount(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "shrinkfail", 8, TableConfig[uint64]{Hash: Shift64})

	for k := uint64(0); k < 4; k++ {
		require.True(t, h.Set(k, k))
	}
	require.ErrorIs(t, h.ResizeTo(3), membuf.ErrInsufficientMemory)
	assert.Equal(t, 8, h.Cap(), "failed shrink must leave the table intact")
	assert.Equal(t, 4, h.Len())
}

func TestHashTable_ShrinkReclaimsTombstones(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "shrink", 16, TableConfig[uint64]{Hash: Shift64})

	for k := uint64(0); k < 6; k++ {
		require.True(t, h.Set(k, k*2))
	}
	for k := uint64(0); k < 3; k++ {
		require.True(t, h.Destroy(k))
	}
	assert.Equal(t, 3, h.InvalidLen())

	require.NoError(t, h.ResizeTo(6))
	assert.Equal(t, 6, h.Cap())
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 0, h.InvalidLen(), "rehash reclaims tombstones")
	assert.False(t, h.header().RehashInProgress)
	for k := uint64(3); k < 6; k++ {
		v, ok := h.Get(k)
		require.True(t, ok)
		assert.Equal(t, k*2, v)
	}
}

func TestHashTable_TooSmallBuffer(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()

	b, err := reg.Allocate("small", membuf.TableHeaderSize)
	require.NoError(t, err)
	_, err = NewHashTable[uint64, uint64](reg, b, TableConfig[uint64]{Hash: Shift64})
	require.ErrorIs(t, err, membuf.ErrInsufficientMemory)
}

func TestHashTable_Iterators(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "iter", 16, TableConfig[uint64]{Hash: Shift64})

	want := map[uint64]uint64{1: 10, 2: 20, 3: 30}
	for k, v := range want {
		require.True(t, h.Set(k, v))
	}
	require.True(t, h.Set(4, 40))
	require.True(t, h.Destroy(4))

	got := map[uint64]uint64{}
	for k, v := range h.All() {
		got[k] = v
	}
	assert.Equal(t, want, got, "iteration must skip tombstones")

	var keys, values int
	for range h.Keys() {
		keys++
	}
	for range h.Values() {
		values++
	}
	assert.Equal(t, 3, keys)
	assert.Equal(t, 3, values)
}

func TestHashTable_ZeroedRegionIsValidEmptyTable(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()

	h := newTestTable(t, reg, "zeroed", 4, TableConfig[uint64]{Hash: Shift64})
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.InvalidLen())
	_, ok := h.Get(123)
	assert.False(t, ok)
}

// Invariant 3: every used cell is reachable from its home slot without an
// intervening empty cell.
func TestHashTable_ProbeInvariant(t *testing.T) {
	reg := membuf.NewRegistry()
	defer reg.Close()
	h := newTestTable(t, reg, "inv", 8, TableConfig[uint64]{Hash: identity, MissTolerance: 6})

	keys := []uint64{0, 8, 16, 1, 9, 2}
	for _, k := range keys {
		require.True(t, h.Set(k, k))
	}
	h.Destroy(8)

	hdr := h.header()
	cells := h.cells(hdr.Capacity)
	capacity := int(hdr.Capacity)
	for i := range cells {
		if cells[i].State != cellUsed {
			continue
		}
		j := int(identity(cells[i].Key) % hdr.Capacity)
		for n := 0; n < capacity; n++ {
			require.NotEqual(t, cellEmpty, cells[j].State,
				"empty cell before used key %d", cells[i].Key)
			if j == i {
				break
			}
			j = (j + 1) % capacity
		}
	}
}
