// Package pricing defines the reference-price interface the core consumes.
// The feed is treated as synchronous and authoritative; staleness is the
// producer's problem.
package pricing

import (
	"context"
	"sync"

	"github.com/thxForu/perp-futures/pkg/errors"
)

// Source yields the current reference price for a trading pair as a positive
// fixed-point integer.
type Source interface {
	// CurrentPrice fails with ErrPriceUnavailable when the pair is
	// unconfigured or its price is non-positive.
	CurrentPrice(ctx context.Context, pairIndex uint32) (int64, error)
}

// StaticSource is an in-memory price table, set by hand. Used in tests and
// single-process deployments without an external feed.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[uint32]int64
}

// NewStaticSource creates an empty static price table.
func NewStaticSource() *StaticSource {
	return &StaticSource{prices: make(map[uint32]int64)}
}

// Set stores the price for a pair. Non-positive prices mark the pair
// unavailable.
func (s *StaticSource) Set(pairIndex uint32, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[pairIndex] = price
}

// CurrentPrice implements Source.
func (s *StaticSource) CurrentPrice(_ context.Context, pairIndex uint32) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[pairIndex]
	if !ok || price <= 0 {
		return 0, errors.Wrapf(errors.ErrPriceUnavailable, "pair %d", pairIndex)
	}
	return price, nil
}
