// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// HashAddress hashes a (region, key) pair with 64-bit FNV-1a. A 0xff byte,
// which never occurs in UTF-8, separates the parts so ("ab", "c") and
// ("a", "bc") hash differently in practice.
func HashAddress(region, key string) uint64 {
	h := uint64(fnvOffset64)
	h = fnvString(h, region)
	h ^= 0xff
	h *= fnvPrime64
	return fnvString(h, key)
}

func fnvString(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}
