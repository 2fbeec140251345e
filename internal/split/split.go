// Package split assigns a stream of items to two buckets so that the running
// occupancy converges to a configured ratio without knowing the stream length.
package split

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned when the two fractions do not sum to 1.
var ErrInvalidConfiguration = errors.New("split fractions must sum to 1")

// Bucket names one of the two partitions a Splitter routes items into.
type Bucket string

const (
	BucketA Bucket = "set_a"
	BucketB Bucket = "set_b"
)

// Counts is a snapshot of a Splitter's allocation state.
type Counts struct {
	A     int
	B     int
	Total int
}

// Splitter is a greedy online allocator. Each call to Allocate puts the item
// into bucket A while A's share is below its target, and into B otherwise.
//
// A Splitter is not safe for concurrent use; its ratio guarantee depends on
// strictly ordered calls.
type Splitter struct {
	splitA float64
	splitB float64
	counts Counts
}

// New returns a Splitter targeting splitA/splitB. The sum is compared exactly.
func New(splitA, splitB float64) (*Splitter, error) {
	if splitA+splitB != 1 {
		return nil, fmt.Errorf("%w: got %v + %v", ErrInvalidConfiguration, splitA, splitB)
	}
	if splitA < 0 || splitB < 0 {
		return nil, fmt.Errorf("%w: fractions must not be negative (%v, %v)", ErrInvalidConfiguration, splitA, splitB)
	}

	return &Splitter{splitA: splitA, splitB: splitB}, nil
}

// Allocate decides the bucket for the next item and records the decision.
func (s *Splitter) Allocate() Bucket {
	total := s.counts.Total + 1

	target := BucketB
	if float64(s.counts.A)/float64(total) < s.splitA {
		target = BucketA
	}

	if target == BucketA {
		s.counts.A++
	} else {
		s.counts.B++
	}
	s.counts.Total = total

	return target
}

// Counts returns the current allocation counters.
func (s *Splitter) Counts() Counts { return s.counts }

// Fractions returns the configured target fractions.
func (s *Splitter) Fractions() (a, b float64) { return s.splitA, s.splitB }
