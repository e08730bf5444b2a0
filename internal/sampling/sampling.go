// Package sampling provides the random primitives shared by the optimizers.
package sampling

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInvalidRange is returned by Uniform when low > high.
	ErrInvalidRange = errors.New("sampling: invalid range")

	// ErrInvalidParameter is returned by Gaussian when stddev < 0.
	ErrInvalidParameter = errors.New("sampling: invalid parameter")
)

// Sampler draws uniform and normal variates from one source.
// It is not safe for concurrent use.
type Sampler struct {
	src rand.Source
	rng *rand.Rand
}

// New returns a sampler with a fixed seed, for reproducible runs.
func New(seed uint64) *Sampler {
	src := rand.NewSource(seed)
	return &Sampler{src: src, rng: rand.New(src)}
}

// NewRandom returns a sampler seeded from the clock.
func NewRandom() *Sampler {
	return New(uint64(time.Now().UnixNano()))
}

// Uniform draws from [low, high]. low == high always yields low.
func (s *Sampler) Uniform(low, high float64) (float64, error) {
	if low > high {
		return 0, fmt.Errorf("%w: low %g > high %g", ErrInvalidRange, low, high)
	}
	if low == high {
		return low, nil
	}
	return distuv.Uniform{Min: low, Max: high, Src: s.src}.Rand(), nil
}

// Gaussian draws from N(mean, stddev^2). stddev == 0 always yields mean.
func (s *Sampler) Gaussian(mean, stddev float64) (float64, error) {
	if stddev < 0 {
		return 0, fmt.Errorf("%w: stddev %g < 0", ErrInvalidParameter, stddev)
	}
	if stddev == 0 {
		return mean, nil
	}
	return distuv.Normal{Mu: mean, Sigma: stddev, Src: s.src}.Rand(), nil
}

// Intn draws an index in [0, n). It panics if n <= 0, like math/rand.
func (s *Sampler) Intn(n int) int {
	return s.rng.Intn(n)
}

// Float64 draws from [0, 1).
func (s *Sampler) Float64() float64 {
	return s.rng.Float64()
}
