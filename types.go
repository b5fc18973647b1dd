package match

import (
	"github.com/shopspring/decimal"
)

// Side identifies which half of the book an order belongs to.
type Side int8

const (
	Sell Side = 0
	Buy  Side = 1
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// TimeInForce governs whether and how long an unfilled order may rest.
type TimeInForce uint8

const (
	Day TimeInForce = iota + 1
	GTC
	IOC // Immediate Or Cancel
	FOK // Fill Or Kill
	VFA
	GTD
	VFC
	GTT
)

// Resting reports whether an unfilled remainder of this order may be
// posted to the book. IOC and FOK orders never rest.
func (t TimeInForce) Resting() bool {
	return t != IOC && t != FOK
}

// OrderType identifies the execution style of an order.
// Only Limit and PostOnly are active; the remaining values are reserved.
type OrderType uint8

const (
	Limit         OrderType = 0x01
	Market        OrderType = 0x02
	MarketToLimit OrderType = 0x03
	Iceberg       OrderType = 0x04
	PostOnly      OrderType = 0x09
)

// PriorityFlag selects the queue-position semantics of a modify.
type PriorityFlag uint8

const (
	// PriorityLost treats the modify as cancel-then-resubmit: the order may
	// re-match immediately and joins the back of the time queue if it rests.
	PriorityLost PriorityFlag = 0x01
	// PriorityRetained updates quantity in place, keeping queue position.
	// Only valid while the price is unchanged.
	PriorityRetained PriorityFlag = 0x02
)

// Order is a market participant's intent to trade. Quantity is the total
// declared size and never changes once the order rests; Filled accumulates
// executed volume, so the quantity still eligible to trade or rest is
// always Quantity minus Filled.
//
// Price and Quantity are exact integer ticks carried as decimals; a zero
// price marks a marketable intent that never rests.
type Order struct {
	ID           uint64
	InstrumentID uint64
	Side         Side
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Filled       decimal.Decimal
	TIF          TimeInForce
	Type         OrderType

	// slot is the order's position within its price level, valid only
	// while resting.
	slot int
}

// Leaves returns the unfilled remainder of the order's declared size.
func (o *Order) Leaves() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// OrderModify is a request to change a resting order's price, quantity and
// cumulative filled volume. The priority flag decides whether the order
// keeps its place in the time queue.
type OrderModify struct {
	OrderID  uint64
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Filled   decimal.Decimal
	Priority PriorityFlag
}

// Trade is one execution between a resting order and an aggressor.
// The price is always the resting order's price, so the aggressor receives
// any price improvement.
type Trade struct {
	ID          uint64
	BuyOrderID  uint64
	SellOrderID uint64
	Volume      decimal.Decimal
	Price       decimal.Decimal
}

func newTrade(taker, maker *Order, volume decimal.Decimal) *Trade {
	t := &Trade{
		Volume: volume,
		Price:  maker.Price,
	}
	if taker.Side == Buy {
		t.BuyOrderID = taker.ID
		t.SellOrderID = maker.ID
	} else {
		t.BuyOrderID = maker.ID
		t.SellOrderID = taker.ID
	}
	return t
}
