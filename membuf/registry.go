package membuf

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/joshuapare/memkit/internal/storage"
)

// Registry owns every Buffer by name and is the sole performer of
// allocation and resize. Callers that want process-wide access pass a
// singleton they manage; the package introduces no hidden globals.
//
// The name map is guarded internally, so Allocate/Find from multiple
// goroutines is safe. Buffer contents are not: views assume exclusive
// caller-provided synchronization per buffer.
type Registry struct {
	mu    sync.Mutex
	alloc storage.Allocator
	log   *slog.Logger
	bufs  map[string]*Buffer
}

// Option configures a Registry.
type Option func(*Registry)

// WithAllocator selects the storage backend. Default is the heap allocator;
// storage.NewMmap gives page-granular anonymous mappings on unix.
func WithAllocator(a storage.Allocator) Option {
	return func(r *Registry) { r.alloc = a }
}

// WithLogger installs a logger for corruption diagnostics. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		alloc: storage.NewHeap(),
		log:   slog.New(slog.DiscardHandler),
		bufs:  make(map[string]*Buffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Logger returns the diagnostics logger views should report through.
func (r *Registry) Logger() *slog.Logger { return r.log }

// Allocate returns the buffer registered under name, creating one of size
// minBytes when absent. The created region is zeroed and tagged raw. An
// existing buffer is returned unchanged regardless of minBytes: meeting a
// capacity floor is the view's job, not the registry's.
func (r *Registry) Allocate(name string, minBytes int) (*Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bufs[name]; ok {
		return b, nil
	}
	data, err := r.alloc.Alloc(minBytes)
	if err != nil {
		return nil, fmt.Errorf("allocate %q (%d bytes): %w: %v",
			name, minBytes, ErrInsufficientMemory, err)
	}
	b := &Buffer{name: name, data: data, typ: TypeRaw}
	r.bufs[name] = b
	return b, nil
}

// Find returns the buffer registered under name, or nil. Pure lookup.
func (r *Registry) Find(name string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bufs[name]
}

// Resize changes the buffer's storage to exactly newBytes. The low
// min(old, new) bytes are preserved and extension bytes are zeroed. The
// storage may relocate: all pointers and slices previously derived from the
// buffer are invalid afterwards.
func (r *Registry) Resize(b *Buffer, newBytes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.alloc.Realloc(b.data, newBytes)
	if err != nil {
		return fmt.Errorf("resize %q (%s) to %d bytes: %w: %v",
			b.name, b.Addr(), newBytes, ErrInsufficientMemory, err)
	}
	b.data = data
	return nil
}

// Free releases the buffer's storage and removes it from the registry.
// Intended for teardown; there is no named delete in normal operation.
func (r *Registry) Free(b *Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freeLocked(b)
}

func (r *Registry) freeLocked(b *Buffer) error {
	if err := r.alloc.Free(b.data); err != nil {
		return fmt.Errorf("free %q: %w", b.name, err)
	}
	b.data = nil
	b.typ = TypeRaw
	b.Userdata1, b.Userdata2 = 0, 0
	delete(r.bufs, b.name)
	return nil
}

// Close releases every buffer. The registry is unusable afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, b := range r.bufs {
		if err := r.freeLocked(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Names returns the registered buffer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.bufs))
	for name := range r.bufs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats summarizes the registry's holdings.
type Stats struct {
	Buffers int `json:"buffers"`
	Bytes   int `json:"bytes"`
}

// Stats returns buffer count and total byte size.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Buffers: len(r.bufs)}
	for _, b := range r.bufs {
		s.Bytes += len(b.data)
	}
	return s
}
