package match

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type LogType string

const (
	LogTypeOpen   LogType = "open"
	LogTypeMatch  LogType = "match"
	LogTypeCancel LogType = "cancel"
	LogTypeAmend  LogType = "amend"
	LogTypeReject LogType = "reject"
)

// RejectReason explains why an order left no trace on the book.
type RejectReason string

const (
	RejectReasonNone             RejectReason = ""
	RejectReasonNoLiquidity      RejectReason = "no_liquidity"       // IOC/FOK: no orders available to match
	RejectReasonPriceMismatch    RejectReason = "price_mismatch"     // IOC/FOK: best opposing price does not cross
	RejectReasonInsufficientSize RejectReason = "insufficient_size"  // FOK: cannot be fully filled
	RejectReasonWouldCrossSpread RejectReason = "would_cross_spread" // PostOnly: would match immediately
)

// BookLog is one event on the book's outbound feed. SequenceID increases by
// one for every event of an instrument's matcher, which lets downstream
// consumers order, deduplicate and gap-check the stream.
// Reject events do not affect book state; all other types do.
type BookLog struct {
	SequenceID   uint64          `json:"seq_id"`
	TradeID      uint64          `json:"trade_id,omitempty"` // only set for match events
	Type         LogType         `json:"type"`
	InstrumentID uint64          `json:"instrument_id"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	OldPrice     decimal.Decimal `json:"old_price,omitempty"` // amend only
	OldSize      decimal.Decimal `json:"old_size,omitempty"`  // amend only
	OrderID      uint64          `json:"order_id"`
	MakerOrderID uint64          `json:"maker_order_id,omitempty"`
	TIF          TimeInForce     `json:"tif,omitempty"`
	OrderType    OrderType       `json:"order_type,omitempty"`
	Priority     PriorityFlag    `json:"priority,omitempty"` // amend only
	RejectReason RejectReason    `json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

var bookLogPool = sync.Pool{
	New: func() any {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	// Reset to zero values. The decimal zero value is a valid 0.
	*log = BookLog{}
	bookLogPool.Put(log)
}

func newOpenLog(seqID uint64, order *Order) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeOpen
	log.InstrumentID = order.InstrumentID
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Leaves()
	log.OrderID = order.ID
	log.TIF = order.TIF
	log.OrderType = order.Type
	log.CreatedAt = time.Now().UTC()
	return log
}

func newMatchLog(seqID uint64, taker *Order, trade *Trade) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.TradeID = trade.ID
	log.Type = LogTypeMatch
	log.InstrumentID = taker.InstrumentID
	log.Side = taker.Side
	log.Price = trade.Price
	log.Size = trade.Volume
	log.OrderID = taker.ID
	if taker.Side == Buy {
		log.MakerOrderID = trade.SellOrderID
	} else {
		log.MakerOrderID = trade.BuyOrderID
	}
	log.TIF = taker.TIF
	log.OrderType = taker.Type
	log.CreatedAt = time.Now().UTC()
	return log
}

func newCancelLog(seqID uint64, order *Order) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeCancel
	log.InstrumentID = order.InstrumentID
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Leaves()
	log.OrderID = order.ID
	log.TIF = order.TIF
	log.OrderType = order.Type
	log.CreatedAt = time.Now().UTC()
	return log
}

func newAmendLog(seqID uint64, order *Order, oldPrice, oldLeaves decimal.Decimal, priority PriorityFlag) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeAmend
	log.InstrumentID = order.InstrumentID
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Leaves()
	log.OldPrice = oldPrice
	log.OldSize = oldLeaves
	log.OrderID = order.ID
	log.TIF = order.TIF
	log.OrderType = order.Type
	log.Priority = priority
	log.CreatedAt = time.Now().UTC()
	return log
}

func newRejectLog(seqID uint64, order *Order, reason RejectReason) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeReject
	log.InstrumentID = order.InstrumentID
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Leaves()
	log.OrderID = order.ID
	log.TIF = order.TIF
	log.OrderType = order.Type
	log.RejectReason = reason
	log.CreatedAt = time.Now().UTC()
	return log
}

// PublishLog is the sink for the book's outbound event feed.
//
// IMPORTANT: implementations must either process logs synchronously before
// returning, or clone them. The matcher recycles BookLog objects to a
// sync.Pool after Publish returns.
type PublishLog interface {
	Publish(...*BookLog)
}

// MemoryPublishLog stores cloned logs in memory, useful for testing.
type MemoryPublishLog struct {
	mu   sync.RWMutex
	logs []*BookLog
}

func NewMemoryPublishLog() *MemoryPublishLog {
	return &MemoryPublishLog{
		logs: make([]*BookLog, 0),
	}
}

// Publish appends clones of the logs to the in-memory slice.
func (m *MemoryPublishLog) Publish(logs ...*BookLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, log := range logs {
		cpy := new(BookLog)
		*cpy = *log
		m.logs = append(m.logs, cpy)
	}
}

// Count returns the number of logs stored.
func (m *MemoryPublishLog) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// Get returns the log at the specified index.
func (m *MemoryPublishLog) Get(index int) *BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logs[index]
}

// Logs returns a copy of all logs stored.
func (m *MemoryPublishLog) Logs() []*BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := make([]*BookLog, len(m.logs))
	copy(logs, m.logs)
	return logs
}

// DiscardPublishLog drops all logs, useful for benchmarking.
type DiscardPublishLog struct{}

func NewDiscardPublishLog() *DiscardPublishLog {
	return &DiscardPublishLog{}
}

func (p *DiscardPublishLog) Publish(...*BookLog) {}
