// Package noise perturbs raw sample bytes with the Laplace mechanism.
package noise

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultEpsilon     = 1.0
	DefaultSensitivity = 1.0
)

// ErrInvalidParameter is returned for a non-positive or non-finite epsilon or sensitivity.
var ErrInvalidParameter = errors.New("invalid parameter")

// Source yields uniform variates on [0, 1).
type Source interface {
	Float64() float64
}

// lockedSource guards a *rand.Rand so the default source can be shared.
type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

var defaultSource Source = &lockedSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

// Calibrate adds one independent Laplace draw with scale sensitivity/epsilon
// to every byte of sample. The result has the same length and order and is
// not clamped back into the byte range. A nil src uses a clock-seeded source.
func Calibrate(sample []byte, epsilon, sensitivity float64, src Source) ([]float64, error) {
	if err := checkParams(epsilon, sensitivity); err != nil {
		return nil, err
	}
	if src == nil {
		src = defaultSource
	}

	scale := sensitivity / epsilon
	out := make([]float64, len(sample))
	for i, v := range sample {
		out[i] = float64(v) + Laplace(scale, src)
	}
	return out, nil
}

// Laplace draws a zero-centred Laplace variate with the given scale by
// inverting the CDF at u, uniform on the open interval (-0.5, 0.5).
func Laplace(scale float64, src Source) float64 {
	u := src.Float64() - 0.5
	for u == -0.5 {
		u = src.Float64() - 0.5
	}
	sign := 1.0
	if u < 0 {
		sign = -1.0
	} else if u == 0 {
		return 0
	}
	return -scale * sign * math.Log(1-2*math.Abs(u))
}

func checkParams(epsilon, sensitivity float64) error {
	if math.IsNaN(epsilon) || math.IsInf(epsilon, 0) || epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be positive, got %v", ErrInvalidParameter, epsilon)
	}
	if math.IsNaN(sensitivity) || math.IsInf(sensitivity, 0) || sensitivity <= 0 {
		return fmt.Errorf("%w: sensitivity must be positive, got %v", ErrInvalidParameter, sensitivity)
	}
	return nil
}
