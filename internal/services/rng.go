package services

import (
	"math/rand"
	"sync"
)

// RNG yields uniform floats in [0,1). Every outcome generator draws from one.
type RNG interface {
	Float64() float64
}

type defaultRNG struct{}

// NewRNG returns the process-wide pseudo-random source. It is safe for concurrent use.
func NewRNG() RNG {
	return defaultRNG{}
}

func (defaultRNG) Float64() float64 {
	return rand.Float64()
}

// SequenceRNG replays a fixed list of values, wrapping around at the end.
// Tests use it to force outcomes.
type SequenceRNG struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func NewSequenceRNG(values ...float64) *SequenceRNG {
	return &SequenceRNG{values: values}
}

func (s *SequenceRNG) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}
