package membuf

import "fmt"

// Type tags the view family currently interpreting a buffer's contents.
// The tag gates which in-band state layout is valid; safe transitions are
// raw → any view tag, and X → X (idempotent re-initialization). Any other
// transition is corruption.
type Type uint8

const (
	// TypeRaw marks a buffer never initialized as a view.
	TypeRaw Type = iota
	// TypeArray marks a buffer holding array-view state.
	TypeArray
	// TypeRing marks a buffer holding ring-view state.
	TypeRing
	// TypeHashTable marks a buffer holding hash-table state.
	TypeHashTable
)

func (t Type) String() string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeArray:
		return "array"
	case TypeRing:
		return "ring"
	case TypeHashTable:
		return "hashtable"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Buffer is a named, resizable byte region owned by a Registry. Views hold
// non-owning references and re-derive the byte slice on every operation,
// because a resize may relocate the storage.
type Buffer struct {
	name string
	data []byte
	typ  Type

	// Userdata1 and Userdata2 are in-band state slots interpreted by
	// whichever view matches the buffer's type tag. While the tag is
	// TypeRaw both slots are zero.
	Userdata1 uint64
	Userdata2 uint64
}

// Name returns the registry name of the buffer.
func (b *Buffer) Name() string { return b.name }

// Bytes returns the current storage. The slice is invalidated by any
// operation that may resize the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Size returns the current byte length of the storage.
func (b *Buffer) Size() int { return len(b.data) }

// Type returns the current view tag.
func (b *Buffer) Type() Type { return b.typ }

// Addr formats the address of the storage for diagnostics.
func (b *Buffer) Addr() string {
	if len(b.data) == 0 {
		return "<empty>"
	}
	return fmt.Sprintf("%p", &b.data[0])
}

// Claim transitions the buffer's tag to t. A raw buffer accepts any view
// tag; claiming the tag already installed reports reused = true and leaves
// all state untouched. Any other combination fails with ErrInvalidMemory.
func (b *Buffer) Claim(t Type) (reused bool, err error) {
	switch {
	case b.typ == t && t != TypeRaw:
		return true, nil
	case b.typ == TypeRaw && t != TypeRaw:
		b.typ = t
		return false, nil
	default:
		return false, fmt.Errorf("buffer %q (%s): tagged %s, want %s: %w",
			b.name, b.Addr(), b.typ, t, ErrInvalidMemory)
	}
}
