package match

import (
	"sync/atomic"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"
)

// AggregatedBook maintains a depth-only view of one instrument's book,
// tracking price levels and aggregated sizes. It is designed for
// downstream services that rebuild book state from the BookLog feed.
type AggregatedBook struct {
	seqID atomic.Uint64 // last applied SequenceID, for dedup and gap detection
	ask   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
	bid   *treemap.TreeMap[decimal.Decimal, decimal.Decimal]
}

// NewAggregatedBook creates an empty aggregated book.
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		ask: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
			return a.LessThan(b)
		}),
		bid: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
			return a.LessThan(b)
		}),
	}
}

// SequenceID returns the last applied event sequence id.
func (ab *AggregatedBook) SequenceID() uint64 {
	return ab.seqID.Load()
}

// Reset clears both sides and rewinds the sequence cursor; call before
// replaying a feed from a known position.
func (ab *AggregatedBook) Reset(seqID uint64) {
	ab.ask.Clear()
	ab.bid.Clear()
	ab.seqID.Store(seqID)
}

// Replay applies one book event. Events at or below the current sequence
// id are duplicates and are ignored; a jump past the next expected id
// returns ErrSequenceGap and applies nothing.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	last := ab.seqID.Load()
	if log.SequenceID <= last {
		return nil
	}
	if log.SequenceID != last+1 {
		return ErrSequenceGap
	}

	change := CalculateDepthChange(log)
	if !change.SizeDiff.IsZero() {
		ab.apply(change)
	}

	ab.seqID.Store(log.SequenceID)
	return nil
}

func (ab *AggregatedBook) apply(change DepthChange) {
	tree := ab.tree(change.Side)

	size, _ := tree.Get(change.Price)
	size = size.Add(change.SizeDiff)
	if size.IsZero() {
		tree.Del(change.Price)
		return
	}
	tree.Set(change.Price, size)
}

// Depth returns the aggregated size at a price level, or zero if the level
// does not exist.
func (ab *AggregatedBook) Depth(side Side, price decimal.Decimal) decimal.Decimal {
	size, ok := ab.tree(side).Get(price)
	if !ok {
		return decimal.Zero
	}
	return size
}

// Levels returns up to limit levels for one side, best-first.
func (ab *AggregatedBook) Levels(side Side, limit int) []*DepthItem {
	result := make([]*DepthItem, 0, limit)

	if side == Buy {
		// Bids iterate highest price first.
		for it := ab.bid.Reverse(); it.Valid() && len(result) < limit; it.Next() {
			result = append(result, &DepthItem{Price: it.Key(), Size: it.Value()})
		}
		return result
	}

	for it := ab.ask.Iterator(); it.Valid() && len(result) < limit; it.Next() {
		result = append(result, &DepthItem{Price: it.Key(), Size: it.Value()})
	}
	return result
}

func (ab *AggregatedBook) tree(side Side) *treemap.TreeMap[decimal.Decimal, decimal.Decimal] {
	if side == Buy {
		return ab.bid
	}
	return ab.ask
}
