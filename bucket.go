package match

import (
	"github.com/shopspring/decimal"
)

// bucket is one price level: a FIFO queue of resting orders at an exact
// price, plus the aggregate leaves quantity of those orders. The aggregate
// always equals the sum of leaves over the queue, except transiently while
// a single intent is being applied.
type bucket struct {
	price    decimal.Decimal
	orders   []*Order
	quantity decimal.Decimal
	count    int
}

func newBucket(price decimal.Decimal) *bucket {
	return &bucket{
		price:    price,
		quantity: decimal.Zero,
	}
}

// push appends an order at the back of the time queue.
func (b *bucket) push(order *Order) {
	order.slot = b.count
	b.orders = append(b.orders, order)
	b.count++
	b.quantity = b.quantity.Add(order.Leaves())
}

// remove drops an order from the queue, shifting later arrivals down one
// slot and updating their stored positions.
func (b *bucket) remove(order *Order) {
	idx := order.slot
	if idx < 0 || idx >= b.count || b.orders[idx] != order {
		return
	}

	b.count--
	b.quantity = b.quantity.Sub(order.Leaves())

	copy(b.orders[idx:], b.orders[idx+1:b.count+1])
	b.orders[b.count] = nil
	b.orders = b.orders[:b.count]
	for i := idx; i < b.count; i++ {
		b.orders[i].slot = i
	}
	order.slot = -1
}

// reduce subtracts volume from the aggregate after a partial fill of one of
// the bucket's orders.
func (b *bucket) reduce(volume decimal.Decimal) {
	b.quantity = b.quantity.Sub(volume)
}

// adjust applies a leaves delta after an in-place modify.
func (b *bucket) adjust(delta decimal.Decimal) {
	b.quantity = b.quantity.Add(delta)
}

func (b *bucket) empty() bool {
	return b.count == 0
}
