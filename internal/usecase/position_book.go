package usecase

import (
	"sort"
	"sync"

	"github.com/vitos/crypto_spread_arb/internal/domain"
)

// PositionBook is the in-memory open-position ledger. The monitoring
// loop is the single writer; the lock is for the status handlers that
// read concurrently.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*domain.OpenPosition
}

func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]*domain.OpenPosition)}
}

func (b *PositionBook) Get(symbol string) (*domain.OpenPosition, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[symbol]
	return pos, ok
}

func (b *PositionBook) Put(pos *domain.OpenPosition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[pos.Symbol] = pos
}

func (b *PositionBook) Delete(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

func (b *PositionBook) List() []*domain.OpenPosition {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*domain.OpenPosition, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (b *PositionBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
