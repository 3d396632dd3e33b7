// Package sequence provides process-wide monotonic id generators for trade
// and order identifiers. Identifiers are never reused; exhaustion of the
// counter space is treated as fatal rather than wrapping around.
package sequence

import (
	"math"
	"sync"

	"github.com/thxForu/perp-futures/pkg/errors"
)

// Generator hands out strictly increasing uint64 identifiers.
type Generator struct {
	mu   sync.Mutex
	next uint64
}

// New creates a generator whose first issued id is start.
func New(start uint64) *Generator {
	return &Generator{next: start}
}

// Next returns the next identifier. Once the counter space is exhausted every
// subsequent call fails with ErrSequenceExhausted; the generator never wraps.
func (g *Generator) Next() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next == math.MaxUint64 {
		return 0, errors.ErrSequenceExhausted
	}
	id := g.next
	g.next++
	return id, nil
}

// Current returns the next id that would be issued, without consuming it.
func (g *Generator) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}
