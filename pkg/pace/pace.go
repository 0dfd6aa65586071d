// Package pace provides small cooperative-courtesy delays for outbound
// network calls. The delays are jittered so repeated runs do not hit the
// upstream with a fixed cadence. Pacing is not a correctness mechanism;
// removing it only makes the process less polite.
package pace

import (
	"context"
	"math/rand"
	"time"
)

// Sleeper waits a random duration within [Min, Max] each time Wait is called.
// The zero value never sleeps, which is what tests want.
type Sleeper struct {
	min time.Duration
	max time.Duration
	rng *rand.Rand
}

// New builds a Sleeper for the given bounds. Bounds are normalized: negative
// values are clamped to zero and min/max are swapped if reversed.
func New(min, max time.Duration) *Sleeper {
	if min < 0 {
		min = 0
	}
	if max < 0 {
		max = 0
	}
	if max < min {
		min, max = max, min
	}
	return &Sleeper{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// None returns a Sleeper that never waits.
func None() *Sleeper { return &Sleeper{} }

// Wait blocks for a jittered duration or until ctx is cancelled.
// It returns ctx.Err() when cancelled, nil otherwise.
func (s *Sleeper) Wait(ctx context.Context) error {
	d := s.next()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Sleeper) next() time.Duration {
	if s == nil || s.max <= 0 {
		return 0
	}
	if s.max == s.min {
		return s.min
	}
	return s.min + time.Duration(s.rng.Int63n(int64(s.max-s.min)+1))
}
