// Package storage provides the raw-byte allocator backends used by the
// buffer registry. An Allocator hands out zeroed regions and reallocates
// them in place of the registry's resize operation; callers must assume the
// returned slice is a different region after every Realloc.
package storage

import "fmt"

func errNegativeSize(n int) error {
	return fmt.Errorf("storage: negative size %d", n)
}

// Allocator owns raw byte regions on behalf of the registry.
type Allocator interface {
	// Alloc returns a zeroed region of exactly n bytes.
	Alloc(n int) ([]byte, error)

	// Realloc returns a region of exactly n bytes carrying the low
	// min(len(b), n) bytes of b. Extension bytes are zeroed. The returned
	// slice may alias b or be a fresh region; b must not be used afterwards.
	Realloc(b []byte, n int) ([]byte, error)

	// Free releases a region obtained from Alloc or Realloc.
	Free(b []byte) error
}

// Heap is the default Allocator, backed by the Go heap. Free is a no-op;
// regions are reclaimed by the garbage collector.
type Heap struct{}

// NewHeap returns the heap-backed allocator.
func NewHeap() Heap { return Heap{} }

func (Heap) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, errNegativeSize(n)
	}
	return make([]byte, n), nil
}

func (Heap) Realloc(b []byte, n int) ([]byte, error) {
	if n < 0 {
		return nil, errNegativeSize(n)
	}
	if n <= cap(b) {
		grown := b[:n]
		// Reused capacity may hold stale bytes from a previous larger size.
		for i := len(b); i < n; i++ {
			grown[i] = 0
		}
		return grown, nil
	}
	fresh := make([]byte, n)
	copy(fresh, b)
	return fresh, nil
}

func (Heap) Free([]byte) error { return nil }
