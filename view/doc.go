// Package view layers typed containers over membuf buffers.
//
// # Overview
//
// Each view is a non-owning, typed interpretation of a registry-owned
// buffer. Array is a growable sequence, Ring a fixed-capacity overwriting
// ring, and HashTable an open-addressed linear-probing map. A view keeps
// its persistent state inside the buffer (the write index in the userdata
// slots, the table metadata in a data-region header), so constructing the
// same view type over the same buffer later observes the state exactly as
// it was left.
//
// # Element Contract
//
// Views handle plain-data element types only: fixed-size values with no
// pointers, slices, maps, strings, channels, functions or interfaces,
// recursively. This is what makes byte-copy erase, zeroing drop and
// raw-byte resize correct. Constructors reject anything else.
//
// # Pointer Invalidation
//
// Any operation that may resize the owning buffer invalidates every slice
// or pointer previously obtained from the view. Indices remain valid.
// Views re-derive the data region from the buffer on every operation.
package view
