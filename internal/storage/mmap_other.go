//go:build !unix

package storage

// Mmap falls back to the heap allocator on platforms without anonymous
// mappings. The registry behaves identically either way.
type Mmap struct{ Heap }

// NewMmap returns the fallback allocator.
func NewMmap() Mmap { return Mmap{} }
