package match

import "sync"

// PublishTrade receives the ordered trade batch of every successful add,
// including one re-run internally by a priority-losing modify. One call
// carries all trades generated by a single intent.
type PublishTrade interface {
	PublishTrades(...*Trade)
}

// MemoryPublishTrade stores trades in memory, useful for testing.
type MemoryPublishTrade struct {
	mu      sync.RWMutex
	trades  []*Trade
	batches int
}

func NewMemoryPublishTrade() *MemoryPublishTrade {
	return &MemoryPublishTrade{
		trades: make([]*Trade, 0),
	}
}

func (m *MemoryPublishTrade) PublishTrades(trades ...*Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trades...)
	m.batches++
}

func (m *MemoryPublishTrade) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trades)
}

// Batches returns how many intents produced at least one trade.
func (m *MemoryPublishTrade) Batches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batches
}

func (m *MemoryPublishTrade) Get(index int) *Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trades[index]
}

// DiscardPublishTrade drops all trades, useful for benchmarking.
type DiscardPublishTrade struct{}

func NewDiscardPublishTrade() *DiscardPublishTrade {
	return &DiscardPublishTrade{}
}

func (p *DiscardPublishTrade) PublishTrades(...*Trade) {}
