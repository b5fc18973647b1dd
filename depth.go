package match

import (
	"github.com/shopspring/decimal"
)

// DepthItem is one aggregated price level of a depth view.
type DepthItem struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Depth is a point-in-time aggregated view of one instrument's book.
// Empty placeholder levels are excluded.
type Depth struct {
	InstrumentID uint64       `json:"instrument_id"`
	SequenceID   uint64       `json:"seq_id"`
	Bids         []*DepthItem `json:"bids"`
	Asks         []*DepthItem `json:"asks"`
}

// BookStats contains order and level counts for one instrument.
type BookStats struct {
	BidOrderCount int64
	AskOrderCount int64
	BidDepthCount int64
	AskDepthCount int64
}

// Depth returns the aggregated depth of an instrument's book up to limit
// levels per side, best-first.
func (m *Matcher) Depth(instrumentID uint64, limit uint32) *Depth {
	d := &Depth{
		InstrumentID: instrumentID,
		SequenceID:   m.seqID,
		Bids:         []*DepthItem{},
		Asks:         []*DepthItem{},
	}

	book, ok := m.books[instrumentID]
	if !ok {
		return d
	}

	d.Bids = book.bid.depth(limit)
	d.Asks = book.ask.depth(limit)
	return d
}

// Stats returns resting order and non-empty level counts for an instrument.
func (m *Matcher) Stats(instrumentID uint64) *BookStats {
	stats := &BookStats{}

	book, ok := m.books[instrumentID]
	if !ok {
		return stats
	}

	stats.BidOrderCount = book.bid.orderCount
	stats.AskOrderCount = book.ask.orderCount
	stats.BidDepthCount = book.bid.depthCount
	stats.AskDepthCount = book.ask.depthCount
	return stats
}
