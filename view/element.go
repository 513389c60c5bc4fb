package view

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/joshuapare/memkit/membuf"
)

// sizeOf returns the in-memory byte size of T, padding included.
func sizeOf[T any]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

// checkElement rejects types that cannot live in raw buffer bytes.
func checkElement[T any]() error {
	var z T
	t := reflect.TypeOf(z)
	if t == nil || !plainData(t) {
		return fmt.Errorf("view: element type %T is not plain data: %w", z, membuf.ErrInvalidMemory)
	}
	if t.Size() == 0 {
		return fmt.Errorf("view: element type %T is zero-sized: %w", z, membuf.ErrInvalidMemory)
	}
	return nil
}

func plainData(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return plainData(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !plainData(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// sliceOf projects b as n elements of T starting at b[0]. The caller has
// validated that n*sizeof(T) bytes are in bounds.
func sliceOf[T any](b []byte, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// Shift64 is the stock mixer for integer-like keys: an invertible
// xor-shift-multiply chain with full 64-bit avalanche.
func Shift64(x uint64) uint64 {
	x ^= x >> 31
	x *= 0x7fb5d329728ea185
	x ^= x >> 27
	x *= 0x81dadef4bc2dd44d
	x ^= x >> 33
	return x
}
