package monitor

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/michaelpento.lv/solarb/types"
)

// DefaultHistorySize is the number of opportunities kept when no size is configured
const DefaultHistorySize = 10

// History is a bounded rolling window of detected opportunities. Reporting
// the same cycle twice (same fingerprint) refreshes it instead of adding a
// second entry.
type History struct {
	cache *lru.Cache
	total atomic.Uint64
}

// NewHistory creates a history holding at most size opportunities
func NewHistory(size int) (*History, error) {
	if size <= 0 {
		size = DefaultHistorySize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &History{cache: cache}, nil
}

// Add records opp, evicting the oldest entry when full
func (h *History) Add(opp *types.ArbitrageOpportunity) {
	if opp == nil {
		return
	}
	h.total.Add(1)
	h.cache.Add(opp.Fingerprint(), opp)
}

// Recent returns the retained opportunities, newest first
func (h *History) Recent() []*types.ArbitrageOpportunity {
	keys := h.cache.Keys()
	out := make([]*types.ArbitrageOpportunity, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if v, ok := h.cache.Peek(keys[i]); ok {
			out = append(out, v.(*types.ArbitrageOpportunity))
		}
	}
	return out
}

// Len is the number of retained opportunities
func (h *History) Len() int {
	return h.cache.Len()
}

// Total is the number of opportunities ever added, including evicted ones
func (h *History) Total() uint64 {
	return h.total.Load()
}
