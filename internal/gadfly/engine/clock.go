package engine

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock abstracts wall time so gate timers, cooldowns and silence thresholds
// can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Rand is the random source injected into the engine. Two independent
// instances are used: a gating RNG for control-flow probability draws
// (interject chance, dialog exit, moderator escalation) and a content RNG
// for variety (canned-line choice, line-count selection, jitter delays).
// Splitting them keeps gating tests reproducible regardless of how much
// content randomness a scenario consumes.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n). Panics if n <= 0.
	IntN(n int) int
}

// lockedRand wraps a math/rand/v2 PCG source with a mutex; the engine's
// background processes draw from the same instance concurrently.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a seedable Rand safe for concurrent use.
func NewRand(seed uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
