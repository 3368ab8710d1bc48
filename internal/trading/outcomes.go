package trading

import (
	"math/rand"
	"sync"
	"time"
)

// OutcomeSource supplies the uniform draw that decides whether a trade
// executes. Injected so tests can force deterministic outcomes.
type OutcomeSource interface {
	// Draw returns a uniform value in [0,1).
	Draw() float64
}

// randomOutcomes is the production source, backed by its own seeded
// generator. rand.Rand is not safe for concurrent use, so draws are
// serialized.
type randomOutcomes struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomOutcomes returns an OutcomeSource backed by a time-seeded
// random generator.
func NewRandomOutcomes() OutcomeSource {
	return &randomOutcomes{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *randomOutcomes) Draw() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}
