package match

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// sideBook holds every price level for one side of one instrument. Levels
// live in a skip list sorted best-first (descending for bids, ascending for
// asks) and in a map for O(1) lookup by exact price. A level is created on
// first use and kept as a placeholder once empty; matching and depth views
// skip empty levels.
type sideBook struct {
	side       Side
	levels     *skiplist.SkipList
	priceIndex map[string]*skiplist.Element
	orderCount int64
	depthCount int64
}

func newSideBook(side Side) *sideBook {
	cmp := skiplist.GreaterThanFunc(func(lhs, rhs any) int {
		d1, _ := lhs.(decimal.Decimal)
		d2, _ := rhs.(decimal.Decimal)
		c := d1.Cmp(d2)
		if side == Buy {
			// Bids iterate highest price first.
			return -c
		}
		return c
	})

	return &sideBook{
		side:       side,
		levels:     skiplist.New(cmp),
		priceIndex: make(map[string]*skiplist.Element),
	}
}

// resolveLevel returns the level for an exact price, creating it in sorted
// position on first use.
func (s *sideBook) resolveLevel(price decimal.Decimal) *bucket {
	key := price.String()
	if el, ok := s.priceIndex[key]; ok {
		return el.Value.(*bucket)
	}

	b := newBucket(price)
	el := s.levels.Set(price, b)
	s.priceIndex[key] = el
	return b
}

// level returns the existing level for an exact price, or nil.
func (s *sideBook) level(price decimal.Decimal) *bucket {
	el, ok := s.priceIndex[price.String()]
	if !ok {
		return nil
	}
	return el.Value.(*bucket)
}

// insert rests an order at the back of the time queue of its price level.
func (s *sideBook) insert(order *Order) {
	b := s.resolveLevel(order.Price)
	if b.empty() {
		s.depthCount++
	}
	b.push(order)
	s.orderCount++
}

// remove takes a resting order out of its level's time queue. The emptied
// level stays behind as a placeholder.
func (s *sideBook) remove(order *Order) {
	b := s.level(order.Price)
	if b == nil {
		return
	}
	b.remove(order)
	s.orderCount--
	if b.empty() {
		s.depthCount--
	}
}

// crosses reports whether a resting level at price can trade against an
// incoming opposite-side order limited at limit. A zero limit is a
// marketable intent and crosses any level.
func (s *sideBook) crosses(price, limit decimal.Decimal) bool {
	if limit.IsZero() {
		return true
	}
	if s.side == Buy {
		return price.GreaterThanOrEqual(limit)
	}
	return price.LessThanOrEqual(limit)
}

// worse reports whether price a is strictly less favorable to this side's
// resting orders than price b.
func (s *sideBook) worse(a, b decimal.Decimal) bool {
	if s.side == Buy {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

// bestCrossing finds the crossing candidate for an incoming opposite-side
// order limited at limit. Without exclude it returns the best non-empty
// level if its price crosses, or nil. With exclude set it scans forward for
// the first level that still crosses and is strictly less favorable than
// exclude, so a multi-level walk can advance past a fully consumed level.
func (s *sideBook) bestCrossing(limit decimal.Decimal, exclude *decimal.Decimal) *bucket {
	for el := s.levels.Front(); el != nil; el = el.Next() {
		b := el.Value.(*bucket)
		if b.empty() {
			continue
		}
		if !s.crosses(b.price, limit) {
			// Levels are sorted best-first, so nothing further crosses.
			return nil
		}
		if exclude != nil && !s.worse(b.price, *exclude) {
			continue
		}
		return b
	}
	return nil
}

// hasLiquidity reports whether any order rests on this side.
func (s *sideBook) hasLiquidity() bool {
	return s.orderCount > 0
}

// depth collects the side's non-empty levels best-first, up to limit.
func (s *sideBook) depth(limit uint32) []*DepthItem {
	result := make([]*DepthItem, 0, limit)

	var n uint32
	for el := s.levels.Front(); el != nil && n < limit; el = el.Next() {
		b := el.Value.(*bucket)
		if b.empty() {
			continue
		}
		result = append(result, &DepthItem{
			Price: b.price,
			Size:  b.quantity,
		})
		n++
	}

	return result
}
