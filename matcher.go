package match

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// instrumentBook pairs the two side indexes of one instrument.
type instrumentBook struct {
	bid *sideBook
	ask *sideBook
}

func newInstrumentBook() *instrumentBook {
	return &instrumentBook{
		bid: newSideBook(Buy),
		ask: newSideBook(Sell),
	}
}

func (b *instrumentBook) side(s Side) *sideBook {
	if s == Buy {
		return b.bid
	}
	return b.ask
}

// Matcher is a price-time-priority limit order matching engine. It keeps
// one book per instrument (created lazily on first order) plus a global
// registry of resting orders for O(1) modify and cancel.
//
// The matcher is single-threaded: every Add, Modify and Cancel runs to
// completion before the next is accepted, and it performs no locking. A
// host needing concurrent submission must serialize calls, e.g. through an
// Engine.
type Matcher struct {
	books   map[uint64]*instrumentBook
	orders  map[uint64]*Order
	tradeID uint64
	seqID   uint64
	trades  PublishTrade
	logs    PublishLog
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithPublishLog attaches a sink for the book event feed.
func WithPublishLog(logs PublishLog) MatcherOption {
	return func(m *Matcher) {
		if logs != nil {
			m.logs = logs
		}
	}
}

// NewMatcher creates a matcher publishing trade batches to trades.
func NewMatcher(trades PublishTrade, opts ...MatcherOption) *Matcher {
	if trades == nil {
		trades = NewDiscardPublishTrade()
	}

	m := &Matcher{
		books:  make(map[uint64]*instrumentBook),
		orders: make(map[uint64]*Order),
		trades: trades,
		logs:   NewDiscardPublishLog(),
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Matcher) book(instrumentID uint64) *instrumentBook {
	book, ok := m.books[instrumentID]
	if !ok {
		book = newInstrumentBook()
		m.books[instrumentID] = book
	}
	return book
}

func (m *Matcher) nextSeqID() uint64 {
	m.seqID++
	return m.seqID
}

// Add submits a new order and returns the trades generated by this call,
// in execution order, or nil if none. The order's Filled field is updated
// to reflect any immediate execution; if a remainder is allowed to rest it
// is registered and inserted at its own price.
func (m *Matcher) Add(order *Order) []*Trade {
	book := m.book(order.InstrumentID)
	own := book.side(order.Side)
	opp := book.side(order.Side.Opposite())

	lvl := opp.bestCrossing(order.Price, nil)
	if lvl == nil {
		m.addNoCross(own, opp, order)
		return nil
	}

	// PostOnly orders never trade. A crossing PostOnly is dropped whole.
	if order.Type == PostOnly {
		m.publishLogs(newRejectLog(m.nextSeqID(), order, RejectReasonWouldCrossSpread))
		return nil
	}

	// Walk the opposite side in price-then-time order. The walk itself
	// mutates nothing: fully consumed orders are queued for removal and
	// applied afterwards, which keeps the FOK rejection path trivially
	// atomic.
	entryLeaves := order.Leaves()
	remaining := entryLeaves
	examined := decimal.Zero
	lastVolume := decimal.Zero

	trades := make([]*Trade, 0, 4)
	removals := make([]*Order, 0, 4)
	var opposite *Order

	idx, n := 0, lvl.count
walk:
	for idx < n {
		opposite = lvl.orders[idx]
		oppLeaves := opposite.Leaves()
		examined = examined.Add(oppLeaves)

		lastVolume = decimal.Min(remaining, oppLeaves)
		trades = append(trades, newTrade(order, opposite, lastVolume))
		remaining = remaining.Sub(lastVolume)
		idx++

		switch examined.Cmp(entryLeaves) {
		case -1:
			// Opposite fully consumed, incoming still hungry.
			removals = append(removals, opposite)
			if idx == n && !opposite.Price.Equal(order.Price) {
				if next := opp.bestCrossing(order.Price, &lvl.price); next != nil {
					lvl = next
					idx, n = 0, lvl.count
				}
			}
		case 0:
			// Perfect two-sided fill.
			removals = append(removals, opposite)
			break walk
		default:
			// Incoming fully filled, opposite only partially consumed.
			break walk
		}
	}

	shortfall := examined.LessThan(entryLeaves)
	if order.TIF == FOK && shortfall {
		// Nothing queued is applied; the book is left exactly as found.
		m.publishLogs(newRejectLog(m.nextSeqID(), order, RejectReasonInsufficientSize))
		return nil
	}

	for _, o := range removals {
		opp.remove(o)
		delete(m.orders, o.ID)
	}

	order.Filled = order.Filled.Add(decimal.Min(examined, entryLeaves))

	logs := make([]*BookLog, 0, len(trades)+1)
	for _, t := range trades {
		m.tradeID++
		t.ID = m.tradeID
		logs = append(logs, newMatchLog(m.nextSeqID(), order, t))
	}

	switch {
	case shortfall:
		if order.TIF.Resting() {
			m.post(own, order, &logs)
		}
	case examined.GreaterThan(entryLeaves):
		// The last order touched keeps resting with its remainder.
		opposite.Filled = opposite.Filled.Add(lastVolume)
		lvl.reduce(lastVolume)
	}

	m.trades.PublishTrades(trades...)
	m.publishLogs(logs...)
	return trades
}

// addNoCross handles an order arriving against a book with no crossing
// liquidity: resting-eligible orders post unchanged, everything else is
// dropped without a trade.
func (m *Matcher) addNoCross(own, opp *sideBook, order *Order) {
	if order.TIF.Resting() && !order.Price.IsZero() {
		logs := make([]*BookLog, 0, 1)
		m.post(own, order, &logs)
		m.publishLogs(logs...)
		return
	}

	reason := RejectReasonPriceMismatch
	if !opp.hasLiquidity() {
		reason = RejectReasonNoLiquidity
	}
	m.publishLogs(newRejectLog(m.nextSeqID(), order, reason))
}

// post registers an order and inserts it at the back of the time queue of
// its own price level. Marketable zero-price remainders never rest.
func (m *Matcher) post(own *sideBook, order *Order, logs *[]*BookLog) {
	if order.Price.IsZero() || !order.TIF.Resting() {
		return
	}

	own.insert(order)
	m.orders[order.ID] = order
	*logs = append(*logs, newOpenLog(m.nextSeqID(), order))
}

// Modify applies a price/quantity/filled change to a resting order.
// Unknown order ids are ignored.
//
// A priority-losing modify is cancel-then-resubmit: the order is removed,
// its fields overwritten, and it re-enters through Add, where it may match
// immediately; trades from that re-match reach the trade publisher like
// any fresh add. A priority-retaining modify updates in place, keeping
// queue position; since that is only sound at an unchanged price, a
// retained modify that moves the price is redirected to the losing path.
func (m *Matcher) Modify(req *OrderModify) {
	order, ok := m.orders[req.OrderID]
	if !ok {
		return
	}

	oldPrice := order.Price
	oldLeaves := order.Leaves()
	side := m.sideOf(order)

	if req.Priority == PriorityLost || !order.Price.Equal(req.Price) {
		side.remove(order)
		delete(m.orders, order.ID)

		order.Price = req.Price
		order.Quantity = req.Quantity
		order.Filled = req.Filled

		m.publishLogs(newAmendLog(m.nextSeqID(), order, oldPrice, oldLeaves, PriorityLost))
		m.Add(order)
		return
	}

	b := side.level(order.Price)
	order.Quantity = req.Quantity
	order.Filled = req.Filled
	b.adjust(order.Leaves().Sub(oldLeaves))

	m.publishLogs(newAmendLog(m.nextSeqID(), order, oldPrice, oldLeaves, PriorityRetained))
}

// Cancel removes a resting order from its level's time queue and the
// registry. Unknown order ids are ignored.
func (m *Matcher) Cancel(orderID uint64) {
	order, ok := m.orders[orderID]
	if !ok {
		return
	}

	m.sideOf(order).remove(order)
	delete(m.orders, orderID)
	m.publishLogs(newCancelLog(m.nextSeqID(), order))
}

// GetOrder returns the live resting order for an id, or nil once the order
// no longer rests.
func (m *Matcher) GetOrder(orderID uint64) *Order {
	return m.orders[orderID]
}

// SequenceID returns the id of the last published book event.
func (m *Matcher) SequenceID() uint64 {
	return m.seqID
}

func (m *Matcher) sideOf(order *Order) *sideBook {
	return m.books[order.InstrumentID].side(order.Side)
}

func (m *Matcher) publishLogs(logs ...*BookLog) {
	if len(logs) == 0 {
		return
	}

	m.logs.Publish(logs...)
	for _, log := range logs {
		releaseBookLog(log)
	}
}

// checkConsistency recomputes every level aggregate from its queue and
// cross-checks the registry against the levels. Intended for tests and
// debug assertions.
func (m *Matcher) checkConsistency() error {
	resting := 0
	for instrumentID, book := range m.books {
		for _, side := range []*sideBook{book.bid, book.ask} {
			for el := side.levels.Front(); el != nil; el = el.Next() {
				b := el.Value.(*bucket)
				sum := decimal.Zero
				for i, o := range b.orders {
					if o.slot != i {
						logger.Error("slot index out of sync",
							zap.Uint64("instrument_id", instrumentID),
							zap.Uint64("order_id", o.ID))
						return ErrInconsistentBook
					}
					if m.orders[o.ID] != o {
						return ErrInconsistentBook
					}
					sum = sum.Add(o.Leaves())
					resting++
				}
				if !sum.Equal(b.quantity) {
					logger.Error("level aggregate out of sync",
						zap.Uint64("instrument_id", instrumentID),
						zap.String("price", b.price.String()))
					return ErrInconsistentBook
				}
			}
		}
	}
	if resting != len(m.orders) {
		return ErrInconsistentBook
	}
	return nil
}
