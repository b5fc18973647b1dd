package match

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

type commandType uint8

const (
	cmdPlaceOrder commandType = iota + 1
	cmdModifyOrder
	cmdCancelOrder
	cmdGetOrder
	cmdDepth
	cmdStats
)

type command struct {
	typ          commandType
	order        *Order
	modify       *OrderModify
	orderID      uint64
	instrumentID uint64
	limit        uint32
	resp         chan any // only set for synchronous queries
}

// Engine hosts a Matcher behind an MPSC ring buffer so that multiple
// producers can submit intents concurrently while the matcher still sees
// one operation at a time. Place/modify/cancel are asynchronous; trades
// flow to the matcher's publishers. Queries are synchronous and answered
// from the same serialized loop, so they observe a consistent book.
type Engine struct {
	id         string
	matcher    *Matcher
	ring       *ring[command]
	isShutdown atomic.Bool
}

const engineRingCapacity = 32768

// NewEngine creates an engine publishing trade batches to trades.
func NewEngine(trades PublishTrade, opts ...MatcherOption) *Engine {
	e := &Engine{
		id:      xid.New().String(),
		matcher: NewMatcher(trades, opts...),
	}
	e.ring = newRing[command](engineRingCapacity, e.apply)
	return e
}

// Start launches the engine's consumer loop.
func (e *Engine) Start() {
	e.ring.start()
	logger.Info("engine started", zap.String("engine_id", e.id))
}

// Shutdown stops accepting intents and blocks until every submitted intent
// has been applied, or the context expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.isShutdown.Store(true)
	err := e.ring.shutdown(ctx)
	logger.Info("engine stopped", zap.String("engine_id", e.id), zap.Error(err))
	return err
}

// PlaceOrder submits a new order asynchronously. Trades generated by the
// order are delivered through the trade publisher.
func (e *Engine) PlaceOrder(order *Order) error {
	if e.isShutdown.Load() {
		return ErrShutdown
	}
	if order == nil || order.ID == 0 || order.TIF == 0 || order.Type == 0 ||
		!order.Quantity.IsPositive() || order.Price.IsNegative() {
		return ErrInvalidParam
	}

	e.ring.publish(command{typ: cmdPlaceOrder, order: order})
	return nil
}

// ModifyOrder submits a modify request asynchronously.
func (e *Engine) ModifyOrder(req *OrderModify) error {
	if e.isShutdown.Load() {
		return ErrShutdown
	}
	if req == nil || req.OrderID == 0 || req.Quantity.IsNegative() || req.Price.IsNegative() {
		return ErrInvalidParam
	}

	e.ring.publish(command{typ: cmdModifyOrder, modify: req})
	return nil
}

// CancelOrder submits a cancellation asynchronously. Unknown ids are
// ignored by the matcher.
func (e *Engine) CancelOrder(orderID uint64) error {
	if e.isShutdown.Load() {
		return ErrShutdown
	}
	if orderID == 0 {
		return nil
	}

	e.ring.publish(command{typ: cmdCancelOrder, orderID: orderID})
	return nil
}

// GetOrder returns a copy of a resting order's current state, or
// ErrNotFound once the order no longer rests.
func (e *Engine) GetOrder(orderID uint64) (*Order, error) {
	res, err := e.query(command{typ: cmdGetOrder, orderID: orderID})
	if err != nil {
		return nil, err
	}

	order, ok := res.(*Order)
	if !ok || order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// Depth returns the aggregated depth of an instrument up to limit levels
// per side.
func (e *Engine) Depth(instrumentID uint64, limit uint32) (*Depth, error) {
	if limit == 0 {
		return nil, ErrInvalidParam
	}

	res, err := e.query(command{typ: cmdDepth, instrumentID: instrumentID, limit: limit})
	if err != nil {
		return nil, err
	}

	depth, _ := res.(*Depth)
	return depth, nil
}

// Stats returns order book statistics for an instrument.
func (e *Engine) Stats(instrumentID uint64) (*BookStats, error) {
	res, err := e.query(command{typ: cmdStats, instrumentID: instrumentID})
	if err != nil {
		return nil, err
	}

	stats, _ := res.(*BookStats)
	return stats, nil
}

func (e *Engine) query(cmd command) (any, error) {
	if e.isShutdown.Load() {
		return nil, ErrShutdown
	}

	cmd.resp = make(chan any, 1)
	e.ring.publish(cmd)

	select {
	case res := <-cmd.resp:
		return res, nil
	case <-time.After(time.Second):
		return nil, ErrTimeout
	}
}

// apply runs on the ring's consumer goroutine and is the only caller of
// the matcher.
func (e *Engine) apply(cmd command) {
	switch cmd.typ {
	case cmdPlaceOrder:
		e.matcher.Add(cmd.order)
	case cmdModifyOrder:
		e.matcher.Modify(cmd.modify)
	case cmdCancelOrder:
		e.matcher.Cancel(cmd.orderID)
	case cmdGetOrder:
		var res *Order
		if order := e.matcher.GetOrder(cmd.orderID); order != nil {
			cpy := *order
			res = &cpy
		}
		e.respond(cmd, res)
	case cmdDepth:
		e.respond(cmd, e.matcher.Depth(cmd.instrumentID, cmd.limit))
	case cmdStats:
		e.respond(cmd, e.matcher.Stats(cmd.instrumentID))
	}
}

func (e *Engine) respond(cmd command, res any) {
	if cmd.resp == nil {
		return
	}
	select {
	case cmd.resp <- res:
	default:
		// Nobody is listening anymore, drop it.
	}
}
