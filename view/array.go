package view

import (
	"fmt"
	"iter"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/membuf"
)

// Array presents a buffer as a growable sequence of T. The write index
// persists in the buffer's first userdata slot; capacity is derived from
// the buffer size on every operation.
type Array[T any] struct {
	reg      *membuf.Registry
	buf      *membuf.Buffer
	elemSize int
}

// NewArray attaches an array view to b. A raw buffer is claimed as an
// array; a buffer already tagged as an array is reused with its write
// index intact. Any other tag fails with ErrInvalidMemory.
func NewArray[T any](reg *membuf.Registry, b *membuf.Buffer) (*Array[T], error) {
	if err := checkElement[T](); err != nil {
		return nil, err
	}
	if _, err := b.Claim(membuf.TypeArray); err != nil {
		if reg != nil {
			reg.Logger().Error("array: corrupt buffer",
				"name", b.Name(), "addr", b.Addr(), "tag", b.Type().String())
		}
		return nil, err
	}
	a := &Array[T]{reg: reg, buf: b, elemSize: sizeOf[T]()}
	if int(b.Userdata1) > a.Cap() {
		return nil, fmt.Errorf("array %q (%s): write index %d exceeds capacity %d: %w",
			b.Name(), b.Addr(), b.Userdata1, a.Cap(), membuf.ErrReinitializedMemory)
	}
	return a, nil
}

// NewArrayNamed finds or allocates the named buffer sized for at least
// minCap elements, attaches an array view, and grows the buffer when an
// existing one is below the minimum.
func NewArrayNamed[T any](reg *membuf.Registry, name string, minCap int) (*Array[T], error) {
	if reg == nil {
		return nil, fmt.Errorf("array %q: no registry: %w", name, membuf.ErrNullResize)
	}
	if minCap < 0 {
		return nil, fmt.Errorf("array %q: capacity %d: %w", name, minCap, membuf.ErrOutOfBounds)
	}
	bytes, ok := buf.MulOverflowSafe(minCap, sizeOf[T]())
	if !ok {
		return nil, fmt.Errorf("array %q: capacity %d: %w", name, minCap, membuf.ErrInsufficientMemory)
	}
	b, err := reg.Allocate(name, bytes)
	if err != nil {
		return nil, err
	}
	a, err := NewArray[T](reg, b)
	if err != nil {
		return nil, err
	}
	if a.Cap() < minCap {
		if err := a.Resize(minCap); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Len returns the number of live elements.
func (a *Array[T]) Len() int { return int(a.buf.Userdata1) }

// Cap returns how many elements fit in the current storage.
func (a *Array[T]) Cap() int { return a.buf.Size() / a.elemSize }

// Buffer returns the underlying buffer.
func (a *Array[T]) Buffer() *membuf.Buffer { return a.buf }

func (a *Array[T]) slice() []T {
	return sliceOf[T](a.buf.Bytes(), a.Cap())
}

// grownCapacity implements the growth rule: at least 1.2x the needed
// element count, and strictly more than needed.
func grownCapacity(needed int) int {
	byFactor := (needed*6 + 4) / 5 // ceil(1.2 * needed)
	if byFactor < needed+1 {
		byFactor = needed + 1
	}
	return byFactor
}

func (a *Array[T]) ensure(total int) error {
	if total <= a.Cap() {
		return nil
	}
	return a.Resize(grownCapacity(total))
}

// Push appends one element, growing the buffer when full. Growth
// invalidates previously obtained slices.
func (a *Array[T]) Push(v T) error {
	w := a.Len()
	if err := a.ensure(w + 1); err != nil {
		return err
	}
	a.slice()[w] = v
	a.buf.Userdata1++
	return nil
}

// Consume reserves n contiguous slots without initializing them and
// returns them. The slice is valid until the next operation that may
// resize.
func (a *Array[T]) Consume(n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("array %q: consume %d: %w", a.buf.Name(), n, membuf.ErrOutOfBounds)
	}
	w := a.Len()
	if err := a.ensure(w + n); err != nil {
		return nil, err
	}
	a.buf.Userdata1 += uint64(n)
	return a.slice()[w : w+n], nil
}

// At returns the i'th element with a bounds check against Len.
func (a *Array[T]) At(i int) (T, error) {
	if i < 0 || i >= a.Len() {
		var zero T
		return zero, fmt.Errorf("array %q: index %d of %d: %w",
			a.buf.Name(), i, a.Len(), membuf.ErrOutOfBounds)
	}
	return a.slice()[i], nil
}

// Get returns the i'th element without checking against Len.
func (a *Array[T]) Get(i int) T { return a.slice()[i] }

// Set overwrites the i'th element without checking against Len.
func (a *Array[T]) Set(i int, v T) { a.slice()[i] = v }

// Erase removes the half-open index range [i, j), shifting everything
// above it down. j == 0 is shorthand for erasing the single element i.
func (a *Array[T]) Erase(i, j int) error {
	if j == 0 {
		j = i + 1
	}
	w := a.Len()
	if i < 0 || j < i || j > w {
		return fmt.Errorf("array %q: erase [%d, %d) of %d: %w",
			a.buf.Name(), i, j, w, membuf.ErrOutOfBounds)
	}
	s := a.slice()
	copy(s[i:], s[j:w])
	a.buf.Userdata1 -= uint64(j - i)
	return nil
}

// Drop resets the write index. Storage is not re-zeroed; logically dead
// elements remain in the buffer.
func (a *Array[T]) Drop() { a.buf.Userdata1 = 0 }

// Resize grows or shrinks the storage to newCap elements. The write index
// never shrinks: a capacity below Len fails with ErrOutOfBounds.
func (a *Array[T]) Resize(newCap int) error {
	if newCap < a.Len() {
		return fmt.Errorf("array %q: capacity %d below count %d: %w",
			a.buf.Name(), newCap, a.Len(), membuf.ErrOutOfBounds)
	}
	if a.reg == nil {
		return fmt.Errorf("array %q: %w", a.buf.Name(), membuf.ErrNullResize)
	}
	bytes, ok := buf.MulOverflowSafe(newCap, a.elemSize)
	if !ok {
		return fmt.Errorf("array %q: capacity %d: %w", a.buf.Name(), newCap, membuf.ErrInsufficientMemory)
	}
	return a.reg.Resize(a.buf, bytes)
}

// Slice returns the live elements in insertion order. Invalidated by any
// operation that may grow.
func (a *Array[T]) Slice() []T { return a.slice()[:a.Len()] }

// All iterates the live elements in insertion order.
func (a *Array[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range a.Slice() {
			if !yield(i, v) {
				return
			}
		}
	}
}
