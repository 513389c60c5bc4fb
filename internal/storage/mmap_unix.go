//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mmap is an Allocator backed by anonymous memory mappings. Regions are
// page-granular; the slice handed to callers is trimmed to the requested
// size and keeps the full mapping as its capacity, so Free can recover the
// exact mapped extent from cap(b).
type Mmap struct{}

// NewMmap returns the mmap-backed allocator.
func NewMmap() Mmap { return Mmap{} }

func pageRound(n int) int {
	page := unix.Getpagesize()
	if n == 0 {
		return page
	}
	return ((n + page - 1) / page) * page
}

func (Mmap) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, errNegativeSize(n)
	}
	data, err := unix.Mmap(-1, 0, pageRound(n),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("storage: mmap %d bytes: %w", n, err)
	}
	return data[:n], nil
}

func (m Mmap) Realloc(b []byte, n int) ([]byte, error) {
	if n < 0 {
		return nil, errNegativeSize(n)
	}
	if n <= cap(b) {
		// Stays within the pages already mapped. Fresh kernel pages are
		// zeroed, but a shrink followed by a grow would expose stale
		// bytes, so clear the tail explicitly.
		grown := b[:n]
		for i := len(b); i < n; i++ {
			grown[i] = 0
		}
		return grown, nil
	}
	fresh, err := m.Alloc(n)
	if err != nil {
		return nil, err
	}
	copy(fresh, b)
	if err := m.Free(b); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (Mmap) Free(b []byte) error {
	if cap(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b[:cap(b)]); err != nil {
		return fmt.Errorf("storage: munmap: %w", err)
	}
	return nil
}
