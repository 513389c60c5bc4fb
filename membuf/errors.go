package membuf

import "errors"

var (
	// ErrInsufficientMemory indicates the backing allocator refused a
	// request, or a buffer is too small to hold the structure asked of it.
	ErrInsufficientMemory = errors.New("membuf: insufficient memory")
	// ErrInvalidMemory indicates a buffer was used with a type tag
	// incompatible with the requested view.
	ErrInvalidMemory = errors.New("membuf: invalid memory")
	// ErrReinitializedMemory indicates a view was re-initialized over state
	// that is inconsistent with the requested element geometry.
	ErrReinitializedMemory = errors.New("membuf: reinitialized memory")
	// ErrOutOfBounds indicates an index or range outside the live contents.
	ErrOutOfBounds = errors.New("membuf: out of bounds")
	// ErrNullResize indicates a resize was required but no registry is
	// wired to the view.
	ErrNullResize = errors.New("membuf: resize not wired")
)
