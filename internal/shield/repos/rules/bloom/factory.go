package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/libreshield/shieldd/internal/shield/repos/rules"
)

// factory implements rules.BloomFactory using internal sizing formulas.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() rules.BloomFactory { return factory{} }

// New constructs a BloomFilter sized for the given dataset capacity and
// target false-positive rate.
func (factory) New(capacity uint64, fpRate float64) rules.BloomFilter {
	m, k := size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
