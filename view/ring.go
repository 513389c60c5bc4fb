package view

import (
	"fmt"
	"iter"

	"github.com/joshuapare/memkit/internal/buf"
	"github.com/joshuapare/memkit/membuf"
)

// Ring presents a buffer as a fixed-capacity overwriting ring of T. Every
// slot is logically valid: iteration always yields capacity elements, and
// slots are zero until written. The write index persists in the buffer's
// first userdata slot and names the slot that receives the next push.
//
// Indexing is relative to the write head: At(0) is the logical oldest
// element (the slot about to be overwritten), At(-1) the most recently
// written.
type Ring[T any] struct {
	reg      *membuf.Registry
	buf      *membuf.Buffer
	elemSize int
}

// NewRing attaches a ring view to b. A raw buffer is claimed and zeroed; a
// buffer already tagged as a ring is reused with its write index intact.
// Buffers smaller than one element fail with ErrInsufficientMemory.
func NewRing[T any](reg *membuf.Registry, b *membuf.Buffer) (*Ring[T], error) {
	if err := checkElement[T](); err != nil {
		return nil, err
	}
	r := &Ring[T]{reg: reg, buf: b, elemSize: sizeOf[T]()}
	if b.Size() < r.elemSize {
		return nil, fmt.Errorf("ring %q (%s): %d bytes below one %d-byte element: %w",
			b.Name(), b.Addr(), b.Size(), r.elemSize, membuf.ErrInsufficientMemory)
	}
	reused, err := b.Claim(membuf.TypeRing)
	if err != nil {
		if reg != nil {
			reg.Logger().Error("ring: corrupt buffer",
				"name", b.Name(), "addr", b.Addr(), "tag", b.Type().String())
		}
		return nil, err
	}
	if !reused {
		clear(b.Bytes())
		b.Userdata1 = 0
		return r, nil
	}
	if int(b.Userdata1) >= r.Cap() {
		return nil, fmt.Errorf("ring %q (%s): write index %d outside capacity %d: %w",
			b.Name(), b.Addr(), b.Userdata1, r.Cap(), membuf.ErrReinitializedMemory)
	}
	return r, nil
}

// NewRingNamed finds or allocates the named buffer sized for capacity
// elements, attaching a ring view. An existing smaller ring is grown with
// the default shift-left resize.
func NewRingNamed[T any](reg *membuf.Registry, name string, capacity int) (*Ring[T], error) {
	if reg == nil {
		return nil, fmt.Errorf("ring %q: no registry: %w", name, membuf.ErrNullResize)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("ring %q: capacity %d: %w", name, capacity, membuf.ErrInsufficientMemory)
	}
	bytes, ok := buf.MulOverflowSafe(capacity, sizeOf[T]())
	if !ok {
		return nil, fmt.Errorf("ring %q: capacity %d: %w", name, capacity, membuf.ErrInsufficientMemory)
	}
	b, err := reg.Allocate(name, bytes)
	if err != nil {
		return nil, err
	}
	r, err := NewRing[T](reg, b)
	if err != nil {
		return nil, err
	}
	if r.Cap() < capacity {
		if err := r.Resize(capacity); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Cap returns the slot count.
func (r *Ring[T]) Cap() int { return r.buf.Size() / r.elemSize }

// Buffer returns the underlying buffer.
func (r *Ring[T]) Buffer() *membuf.Buffer { return r.buf }

func (r *Ring[T]) slice() []T {
	return sliceOf[T](r.buf.Bytes(), r.Cap())
}

func mod(i, n int) int {
	m := i % n
	if m < 0 {
		m += n
	}
	return m
}

// Push writes v at the write head and advances it, silently overwriting
// the oldest element when the ring is full. Push never fails.
func (r *Ring[T]) Push(v T) {
	w := int(r.buf.Userdata1)
	r.slice()[w] = v
	r.buf.Userdata1 = uint64(mod(w+1, r.Cap()))
}

// At returns the element i slots forward of the write head. Negative
// indices walk backward: At(-1) is the most recently written element.
func (r *Ring[T]) At(i int) T {
	return r.slice()[mod(int(r.buf.Userdata1)+i, r.Cap())]
}

// Oldest returns the element the next push will overwrite.
func (r *Ring[T]) Oldest() T { return r.At(0) }

// Last returns the most recently written element.
func (r *Ring[T]) Last() T { return r.At(-1) }

// Drop zeroes every slot and resets the write head.
func (r *Ring[T]) Drop() {
	clear(r.buf.Bytes())
	r.buf.Userdata1 = 0
}

// Snapshot returns the elements in logical order, oldest first.
func (r *Ring[T]) Snapshot() []T {
	s := r.slice()
	w := int(r.buf.Userdata1)
	out := make([]T, 0, len(s))
	out = append(out, s[w:]...)
	out = append(out, s[:w]...)
	return out
}

// All iterates all capacity slots in logical order, oldest first.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		n := r.Cap()
		for i := 0; i < n; i++ {
			if !yield(r.At(i)) {
				return
			}
		}
	}
}

// Resize is the default, shift-left resize: the logical prefix that fits
// the new capacity is kept, normalized to physical index 0. On growth the
// write head lands on the first of the fresh zero slots, so pushes fill
// the extension before overwriting retained elements; on shrink the head
// returns to 0.
func (r *Ring[T]) Resize(newCap int) error {
	return r.resize(newCap, false)
}

// ResizeShiftRight keeps the logical suffix instead: on growth the
// retained elements move to the tail and the fresh zero slots become the
// logical oldest; on shrink only the newest elements survive.
func (r *Ring[T]) ResizeShiftRight(newCap int) error {
	return r.resize(newCap, true)
}

// ResizeDrop abandons all contents: the storage is resized and fully
// zeroed, and the write head reset.
func (r *Ring[T]) ResizeDrop(newCap int) error {
	if err := r.checkResize(newCap); err != nil {
		return err
	}
	bytes, _ := buf.MulOverflowSafe(newCap, r.elemSize)
	if err := r.reg.Resize(r.buf, bytes); err != nil {
		return err
	}
	clear(r.buf.Bytes())
	r.buf.Userdata1 = 0
	return nil
}

func (r *Ring[T]) checkResize(newCap int) error {
	if newCap < 1 {
		return fmt.Errorf("ring %q: capacity %d: %w", r.buf.Name(), newCap, membuf.ErrInsufficientMemory)
	}
	if r.reg == nil {
		return fmt.Errorf("ring %q: %w", r.buf.Name(), membuf.ErrNullResize)
	}
	if _, ok := buf.MulOverflowSafe(newCap, r.elemSize); !ok {
		return fmt.Errorf("ring %q: capacity %d: %w", r.buf.Name(), newCap, membuf.ErrInsufficientMemory)
	}
	return nil
}

// resize rearranges through scratch: take the logical order, keep the
// window the variant calls for, resize the storage, lay the window down
// and zero the fresh slots. Retained order is always preserved.
func (r *Ring[T]) resize(newCap int, shiftRight bool) error {
	if err := r.checkResize(newCap); err != nil {
		return err
	}
	oldCap := r.Cap()
	retained := min(oldCap, newCap)
	logical := r.Snapshot()
	scratch := logical[:retained]
	if shiftRight {
		scratch = logical[len(logical)-retained:]
	}

	bytes, _ := buf.MulOverflowSafe(newCap, r.elemSize)
	if err := r.reg.Resize(r.buf, bytes); err != nil {
		return err
	}

	s := r.slice()
	if shiftRight && newCap > oldCap {
		// Growth moves the retained elements to the tail; the fresh zero
		// slots at the head become the logical oldest.
		copy(s[newCap-retained:], scratch)
		clear(r.buf.Bytes()[:(newCap-retained)*r.elemSize])
		r.buf.Userdata1 = 0
		return nil
	}
	copy(s, scratch)
	clear(r.buf.Bytes()[retained*r.elemSize:])
	r.buf.Userdata1 = uint64(mod(retained, newCap))
	return nil
}
