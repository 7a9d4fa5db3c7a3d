// Fixed-width trace and span ids for wire formats
package export

import (
	"encoding/hex"
	"hash/fnv"
	"strings"
)

// traceID converts a Jaeger trace id into 16 bytes. Hex ids up to 32 digits
// are left-padded with zeros; anything else is hashed.
func traceID(id string) [16]byte {
	var out [16]byte
	if decodePadded(out[:], id) {
		return out
	}
	h := fnv.New128a()
	_, _ = h.Write([]byte(id))
	copy(out[:], h.Sum(nil))
	return out
}

// spanID converts a Jaeger span id into 8 bytes, hashing ids that are not
// hex, such as the "<id>_<n>" names given to duplicates.
func spanID(id string) [8]byte {
	var out [8]byte
	if decodePadded(out[:], id) {
		return out
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	copy(out[:], h.Sum(nil))
	return out
}

func decodePadded(dst []byte, id string) bool {
	width := 2 * len(dst)
	if id == "" || len(id) > width {
		return false
	}
	b, err := hex.DecodeString(strings.Repeat("0", width-len(id)) + id)
	if err != nil {
		return false
	}
	copy(dst, b)
	return true
}
