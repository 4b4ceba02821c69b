// Package hash provides the single 32-bit hash family used across the
// engine: SST block/meta integrity checksums and the bloom filter's k
// probe functions both derive from murmur3, so one deterministic hash
// underlies every on-disk guarantee the engine makes.
package hash

import "github.com/spaolacci/murmur3"

// Sum32 hashes b with the given seed. Seed varies the bloom filter's k
// probes; integrity checksums always use seed 0.
func Sum32(seed uint32, b []byte) uint32 {
	h := murmur3.New32WithSeed(seed)
	_, _ = h.Write(b)
	return h.Sum32()
}

// Checksum returns the integrity hash covering b, as stored in SST block
// footers and the meta section trailer.
func Checksum(b []byte) uint32 {
	return Sum32(0, b)
}
