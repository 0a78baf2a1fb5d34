package partition

import "hash/fnv"

// DefaultCount is the partition fan-out used by transports that have no
// native partitioning.
const DefaultCount = 16

// For returns the partition for a tenant key in [0, count).
// Stable and deterministic: the same key always maps to the same partition,
// which is what keeps one tenant's events ordered.
func For(key string, count int) int {
	if count <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(count))
}
