package primitives

import (
	"bytes"
	"fmt"
)

// Key is a fixed-width byte string used as an index key. Keys are compared
// as raw bytes; callers needing numeric ordering must encode keys so that
// byte-lexicographic order matches.
type Key []byte

// DefaultKeyWidth matches a 16-byte digest hex-encoded to 32 bytes, the
// width every stock index definition uses.
const DefaultKeyWidth = 32

// PadKey canonicalizes a raw key to the given fixed width. Keys shorter
// than the width are right-padded with zero bytes; longer keys are an
// error. Padding is applied identically on the insert and lookup paths so
// the two can never disagree.
func PadKey(raw []byte, width int) (Key, error) {
	if len(raw) > width {
		return nil, fmt.Errorf("key length %d exceeds index key width %d", len(raw), width)
	}
	if len(raw) == width {
		return Key(bytes.Clone(raw)), nil
	}
	padded := make([]byte, width)
	copy(padded, raw)
	return Key(padded), nil
}

// Compare orders two keys byte-lexicographically.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k, other)
}

// Equal reports whether two keys are byte-identical.
func (k Key) Equal(other Key) bool {
	return bytes.Equal(k, other)
}

// IsZero reports whether the key is all zero bytes (an unset slot).
func (k Key) IsZero() bool {
	for _, b := range k {
		if b != 0 {
			return false
		}
	}
	return true
}
