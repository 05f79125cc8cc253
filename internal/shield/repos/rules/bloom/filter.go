package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// filter wraps bits-and-blooms BloomFilter with a mutex for writes.
// Reads (MightContain) are safe concurrently; Add is serialized. In practice
// all Adds happen during index construction before any reads.
type filter struct {
	mu sync.Mutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	return f.bf.Test(key)
}
