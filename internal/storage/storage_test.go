package storage

import (
	"testing"
)

func allocators(t *testing.T) map[string]Allocator {
	t.Helper()
	return map[string]Allocator{
		"heap": NewHeap(),
		"mmap": NewMmap(),
	}
}

func TestAllocZeroed(t *testing.T) {
	for name, a := range allocators(t) {
		t.Run(name, func(t *testing.T) {
			b, err := a.Alloc(257)
			if err != nil {
				t.Fatalf("Alloc: %v", err)
			}
			defer func() {
				if err := a.Free(b); err != nil {
					t.Fatalf("Free: %v", err)
				}
			}()
			if len(b) != 257 {
				t.Fatalf("len = %d, want 257", len(b))
			}
			for i, v := range b {
				if v != 0 {
					t.Fatalf("byte %d not zeroed: %d", i, v)
				}
			}
		})
	}
}

func TestReallocPreservesLowBytes(t *testing.T) {
	for name, a := range allocators(t) {
		t.Run(name, func(t *testing.T) {
			b, err := a.Alloc(16)
			if err != nil {
				t.Fatalf("Alloc: %v", err)
			}
			for i := range b {
				b[i] = byte(i + 1)
			}

			b, err = a.Realloc(b, 64)
			if err != nil {
				t.Fatalf("Realloc grow: %v", err)
			}
			defer func() {
				if err := a.Free(b); err != nil {
					t.Fatalf("Free: %v", err)
				}
			}()
			if len(b) != 64 {
				t.Fatalf("len = %d, want 64", len(b))
			}
			for i := 0; i < 16; i++ {
				if b[i] != byte(i+1) {
					t.Fatalf("byte %d lost: %d", i, b[i])
				}
			}
			for i := 16; i < 64; i++ {
				if b[i] != 0 {
					t.Fatalf("extension byte %d not zeroed: %d", i, b[i])
				}
			}
		})
	}
}

func TestReallocShrinkThenGrowZeroesTail(t *testing.T) {
	for name, a := range allocators(t) {
		t.Run(name, func(t *testing.T) {
			b, err := a.Alloc(32)
			if err != nil {
				t.Fatalf("Alloc: %v", err)
			}
			for i := range b {
				b[i] = 0xFF
			}

			b, err = a.Realloc(b, 8)
			if err != nil {
				t.Fatalf("Realloc shrink: %v", err)
			}
			b, err = a.Realloc(b, 32)
			if err != nil {
				t.Fatalf("Realloc regrow: %v", err)
			}
			defer func() {
				if err := a.Free(b); err != nil {
					t.Fatalf("Free: %v", err)
				}
			}()

			for i := 0; i < 8; i++ {
				if b[i] != 0xFF {
					t.Fatalf("retained byte %d lost: %d", i, b[i])
				}
			}
			for i := 8; i < 32; i++ {
				if b[i] != 0 {
					t.Fatalf("regrown byte %d not zeroed: %d", i, b[i])
				}
			}
		})
	}
}

func TestAllocNegative(t *testing.T) {
	for name, a := range allocators(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := a.Alloc(-1); err == nil {
				t.Fatalf("Alloc(-1) should fail")
			}
			if _, err := a.Realloc(nil, -1); err == nil {
				t.Fatalf("Realloc(-1) should fail")
			}
		})
	}
}
