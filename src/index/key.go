package index

import (
	"bytes"
	"encoding/binary"
)

// Key is a fixed-width byte slice, the Go rendering of the original
// C++ template parameter GenericKey<N>: the width (4/8/16/32/64) is
// chosen per tree at construction instead of at compile time.
type Key []byte

// Comparator is a total order over Keys supplied by the caller's
// schema, used for every comparison inside the tree.
type Comparator func(a, b Key) int

// NewInt64Key encodes v as an 8-byte key, little-endian, zero-padded
// or truncated to width bytes.
func NewInt64Key(v int64, width int) Key {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	k := make(Key, width)
	n := width
	if n > 8 {
		n = 8
	}
	copy(k, buf[:n])
	return k
}

// Int64Value decodes the first 8 bytes of k as a little-endian int64.
// Keys narrower than 8 bytes are zero-extended.
func Int64Value(k Key) int64 {
	buf := make([]byte, 8)
	copy(buf, k)
	return int64(binary.LittleEndian.Uint64(buf))
}

// CompareInt64Keys is the Comparator for keys built with NewInt64Key.
func CompareInt64Keys(a, b Key) int {
	av, bv := Int64Value(a), Int64Value(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// CompareBytesKeys orders keys lexicographically by their raw bytes,
// for schemas that don't want the integer interpretation.
func CompareBytesKeys(a, b Key) int {
	return bytes.Compare(a, b)
}
