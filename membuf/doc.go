// Package membuf provides named, registry-owned byte buffers that typed
// views cooperatively interpret as persistent containers.
//
// # Overview
//
// A Buffer is a named byte region carrying a small type tag and two in-band
// userdata slots. The Registry owns all buffers, hands them out by name
// (creating on first request), and is the only component allowed to
// allocate or resize storage. Views in the view package layer typed
// interpretations (array, ring, hash table) over a buffer and keep their
// persistent state inside it, so a later view constructed over the same
// name observes the state exactly as the previous one left it.
//
// # Key Types
//
//   - Buffer: a named byte region with a view tag and userdata slots
//   - Registry: the owner of all buffers; allocate / find / resize / free
//   - TableHeader: the metadata block at the head of hash-table buffers
//
// # Resize Semantics
//
// Resizing preserves the low min(old, new) bytes and zeroes any extension.
// Storage may relocate during a resize, so any pointer or slice previously
// derived from a buffer is invalid afterwards; indices remain valid. Views
// re-derive the byte slice from the buffer reference on every operation.
//
// # Concurrency
//
// The registry's name map is internally guarded. Buffer contents are not:
// callers provide exclusive synchronization per buffer.
package membuf
