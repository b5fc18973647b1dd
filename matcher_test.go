package match

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInstrument uint64 = 7

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newTestMatcher() (*Matcher, *MemoryPublishTrade, *MemoryPublishLog) {
	trades := NewMemoryPublishTrade()
	logs := NewMemoryPublishLog()
	return NewMatcher(trades, WithPublishLog(logs)), trades, logs
}

func limitOrder(id uint64, side Side, price, quantity int64) *Order {
	return &Order{
		ID:           id,
		InstrumentID: testInstrument,
		Side:         side,
		Price:        d(price),
		Quantity:     d(quantity),
		TIF:          Day,
		Type:         Limit,
	}
}

func TestAddRestsOnEmptyBook(t *testing.T) {
	m, trades, _ := newTestMatcher()

	ret := m.Add(limitOrder(1, Buy, 100, 10))
	assert.Empty(t, ret)
	assert.Equal(t, 0, trades.Count())

	order := m.GetOrder(1)
	require.NotNil(t, order)
	assert.True(t, order.Leaves().Equal(d(10)))

	depth := m.Depth(testInstrument, 10)
	require.Len(t, depth.Bids, 1)
	assert.Empty(t, depth.Asks)
	assert.True(t, depth.Bids[0].Price.Equal(d(100)))
	assert.True(t, depth.Bids[0].Size.Equal(d(10)))

	assert.NoError(t, m.checkConsistency())
}

func TestCrossTradesAtRestingPrice(t *testing.T) {
	m, trades, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 5))
	ret := m.Add(limitOrder(2, Buy, 101, 5))

	require.Len(t, ret, 1)
	assert.True(t, ret[0].Price.Equal(d(100)), "aggressor gets price improvement")
	assert.True(t, ret[0].Volume.Equal(d(5)))
	assert.Equal(t, uint64(2), ret[0].BuyOrderID)
	assert.Equal(t, uint64(1), ret[0].SellOrderID)

	assert.Nil(t, m.GetOrder(1))
	assert.Nil(t, m.GetOrder(2))
	assert.Equal(t, 1, trades.Count())
	assert.NoError(t, m.checkConsistency())
}

func TestMultiLevelCross(t *testing.T) {
	m, trades, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 10))
	m.Add(limitOrder(2, Sell, 101, 15))
	m.Add(limitOrder(3, Sell, 102, 20))

	ret := m.Add(limitOrder(4, Buy, 105, 40))
	require.Len(t, ret, 3)

	assert.True(t, ret[0].Volume.Equal(d(10)))
	assert.True(t, ret[0].Price.Equal(d(100)))
	assert.True(t, ret[1].Volume.Equal(d(15)))
	assert.True(t, ret[1].Price.Equal(d(101)))
	assert.True(t, ret[2].Volume.Equal(d(15)))
	assert.True(t, ret[2].Price.Equal(d(102)))

	// Trade ids are monotonically increasing.
	assert.Equal(t, ret[0].ID+1, ret[1].ID)
	assert.Equal(t, ret[1].ID+1, ret[2].ID)

	// The 102 level keeps the partially consumed order.
	survivor := m.GetOrder(3)
	require.NotNil(t, survivor)
	assert.True(t, survivor.Leaves().Equal(d(5)))

	// Fully filled aggressor is not posted.
	assert.Nil(t, m.GetOrder(4))

	// All three trades arrive in a single batch.
	assert.Equal(t, 3, trades.Count())
	assert.Equal(t, 1, trades.Batches())
	assert.NoError(t, m.checkConsistency())
}

func TestAggressorFilledUpdated(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 4))
	incoming := limitOrder(2, Buy, 100, 10)
	m.Add(incoming)

	assert.True(t, incoming.Filled.Equal(d(4)))
	assert.True(t, incoming.Leaves().Equal(d(6)))

	posted := m.GetOrder(2)
	require.NotNil(t, posted)
	assert.True(t, posted.Leaves().Equal(d(6)))
	assert.NoError(t, m.checkConsistency())
}

func TestFOKRejectLeavesBookUntouched(t *testing.T) {
	m, trades, logs := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 3))
	before := m.Depth(testInstrument, 10)

	fok := limitOrder(2, Buy, 100, 5)
	fok.TIF = FOK
	ret := m.Add(fok)

	assert.Empty(t, ret)
	assert.Equal(t, 0, trades.Count())

	resting := m.GetOrder(1)
	require.NotNil(t, resting)
	assert.True(t, resting.Leaves().Equal(d(3)))
	assert.True(t, resting.Filled.IsZero())

	after := m.Depth(testInstrument, 10)
	require.Len(t, after.Asks, 1)
	assert.True(t, after.Asks[0].Size.Equal(before.Asks[0].Size))

	last := logs.Get(logs.Count() - 1)
	assert.Equal(t, LogTypeReject, last.Type)
	assert.Equal(t, RejectReasonInsufficientSize, last.RejectReason)
	assert.NoError(t, m.checkConsistency())
}

func TestFOKFullFillAcrossLevels(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 3))
	m.Add(limitOrder(2, Sell, 101, 2))

	fok := limitOrder(3, Buy, 101, 5)
	fok.TIF = FOK
	ret := m.Add(fok)

	require.Len(t, ret, 2)
	assert.True(t, ret[0].Volume.Equal(d(3)))
	assert.True(t, ret[1].Volume.Equal(d(2)))
	assert.Nil(t, m.GetOrder(1))
	assert.Nil(t, m.GetOrder(2))
	assert.Nil(t, m.GetOrder(3))
	assert.NoError(t, m.checkConsistency())
}

func TestIOCPartialNotPosted(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Buy, 100, 5))

	ioc := limitOrder(2, Sell, 100, 10)
	ioc.TIF = IOC
	ret := m.Add(ioc)

	require.Len(t, ret, 1)
	assert.True(t, ret[0].Volume.Equal(d(5)))
	assert.True(t, ioc.Filled.Equal(d(5)))

	// The unfilled remainder is dropped, never registered.
	assert.Nil(t, m.GetOrder(2))
	assert.Nil(t, m.GetOrder(1))
	assert.NoError(t, m.checkConsistency())
}

func TestIOCNoCrossRejected(t *testing.T) {
	m, trades, logs := newTestMatcher()

	ioc := limitOrder(1, Sell, 100, 10)
	ioc.TIF = IOC
	ret := m.Add(ioc)

	assert.Empty(t, ret)
	assert.Equal(t, 0, trades.Count())
	assert.Nil(t, m.GetOrder(1))

	last := logs.Get(logs.Count() - 1)
	assert.Equal(t, LogTypeReject, last.Type)
	assert.Equal(t, RejectReasonNoLiquidity, last.RejectReason)
}

func TestPostOnlyWouldCrossRejected(t *testing.T) {
	m, trades, logs := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 10))

	po := limitOrder(2, Buy, 100, 5)
	po.Type = PostOnly
	ret := m.Add(po)

	assert.Empty(t, ret)
	assert.Equal(t, 0, trades.Count())
	assert.Nil(t, m.GetOrder(2))

	resting := m.GetOrder(1)
	require.NotNil(t, resting)
	assert.True(t, resting.Leaves().Equal(d(10)))

	last := logs.Get(logs.Count() - 1)
	assert.Equal(t, LogTypeReject, last.Type)
	assert.Equal(t, RejectReasonWouldCrossSpread, last.RejectReason)
}

func TestPostOnlyRestsWhenNotCrossing(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 101, 10))

	po := limitOrder(2, Buy, 100, 5)
	po.Type = PostOnly
	ret := m.Add(po)

	assert.Empty(t, ret)
	require.NotNil(t, m.GetOrder(2))
	assert.NoError(t, m.checkConsistency())
}

func TestPriceTimePriority(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 5))
	m.Add(limitOrder(2, Sell, 100, 5))

	ret := m.Add(limitOrder(3, Buy, 100, 5))
	require.Len(t, ret, 1)
	assert.Equal(t, uint64(1), ret[0].SellOrderID, "earlier arrival matches first")

	assert.Nil(t, m.GetOrder(1))
	require.NotNil(t, m.GetOrder(2))
	assert.NoError(t, m.checkConsistency())
}

func TestCancel(t *testing.T) {
	m, _, logs := newTestMatcher()

	m.Add(limitOrder(1, Buy, 100, 10))
	m.Add(limitOrder(2, Buy, 100, 5))

	m.Cancel(1)
	assert.Nil(t, m.GetOrder(1))

	depth := m.Depth(testInstrument, 10)
	require.Len(t, depth.Bids, 1)
	assert.True(t, depth.Bids[0].Size.Equal(d(5)))

	last := logs.Get(logs.Count() - 1)
	assert.Equal(t, LogTypeCancel, last.Type)

	// Cancelling again is a no-op.
	count := logs.Count()
	m.Cancel(1)
	assert.Equal(t, count, logs.Count())
	assert.NoError(t, m.checkConsistency())
}

func TestModifyUnknownIgnored(t *testing.T) {
	m, _, logs := newTestMatcher()

	m.Modify(&OrderModify{
		OrderID:  42,
		Price:    d(100),
		Quantity: d(10),
		Priority: PriorityLost,
	})
	assert.Equal(t, 0, logs.Count())
}

func TestModifyLostMovesLevel(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Buy, 100, 10))
	m.Modify(&OrderModify{
		OrderID:  1,
		Price:    d(90),
		Quantity: d(10),
		Filled:   decimal.Zero,
		Priority: PriorityLost,
	})

	order := m.GetOrder(1)
	require.NotNil(t, order)
	assert.True(t, order.Price.Equal(d(90)))

	depth := m.Depth(testInstrument, 10)
	require.Len(t, depth.Bids, 1, "the emptied level is an invisible placeholder")
	assert.True(t, depth.Bids[0].Price.Equal(d(90)))
	assert.NoError(t, m.checkConsistency())
}

func TestModifyLostJoinsBackOfQueue(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 5))
	m.Add(limitOrder(2, Sell, 100, 5))

	// Order 1 resubmits at the same price and forfeits its spot.
	m.Modify(&OrderModify{
		OrderID:  1,
		Price:    d(100),
		Quantity: d(5),
		Filled:   decimal.Zero,
		Priority: PriorityLost,
	})

	ret := m.Add(limitOrder(3, Buy, 100, 5))
	require.Len(t, ret, 1)
	assert.Equal(t, uint64(2), ret[0].SellOrderID)
	assert.NoError(t, m.checkConsistency())
}

func TestModifyLostRematches(t *testing.T) {
	m, trades, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 5))
	m.Add(limitOrder(2, Buy, 90, 10))
	assert.Equal(t, 0, trades.Count())

	// Repricing the bid through the offer triggers an immediate re-match.
	m.Modify(&OrderModify{
		OrderID:  2,
		Price:    d(100),
		Quantity: d(10),
		Filled:   decimal.Zero,
		Priority: PriorityLost,
	})

	assert.Equal(t, 1, trades.Count())
	assert.True(t, trades.Get(0).Volume.Equal(d(5)))
	assert.True(t, trades.Get(0).Price.Equal(d(100)))

	remainder := m.GetOrder(2)
	require.NotNil(t, remainder)
	assert.True(t, remainder.Leaves().Equal(d(5)))
	assert.Nil(t, m.GetOrder(1))
	assert.NoError(t, m.checkConsistency())
}

func TestModifyRetainedKeepsPriority(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Sell, 100, 5))
	m.Add(limitOrder(2, Sell, 100, 5))

	m.Modify(&OrderModify{
		OrderID:  1,
		Price:    d(100),
		Quantity: d(3),
		Filled:   decimal.Zero,
		Priority: PriorityRetained,
	})

	depth := m.Depth(testInstrument, 10)
	require.Len(t, depth.Asks, 1)
	assert.True(t, depth.Asks[0].Size.Equal(d(8)))

	ret := m.Add(limitOrder(3, Buy, 100, 3))
	require.Len(t, ret, 1)
	assert.Equal(t, uint64(1), ret[0].SellOrderID, "queue position preserved")
	assert.NoError(t, m.checkConsistency())
}

func TestModifyRetainedPriceChangeLosesPriority(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Buy, 100, 10))
	m.Add(limitOrder(2, Buy, 100, 5))

	// A retained modify that moves the price is redirected to the losing
	// path: in-place update would desync the order from its old level.
	m.Modify(&OrderModify{
		OrderID:  1,
		Price:    d(101),
		Quantity: d(10),
		Filled:   decimal.Zero,
		Priority: PriorityRetained,
	})

	order := m.GetOrder(1)
	require.NotNil(t, order)
	assert.True(t, order.Price.Equal(d(101)))

	depth := m.Depth(testInstrument, 10)
	require.Len(t, depth.Bids, 2)
	assert.True(t, depth.Bids[0].Price.Equal(d(101)))
	assert.True(t, depth.Bids[0].Size.Equal(d(10)))
	assert.True(t, depth.Bids[1].Size.Equal(d(5)))
	assert.NoError(t, m.checkConsistency())
}

func TestZeroPriceMarketableSell(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Buy, 100, 5))
	m.Add(limitOrder(2, Buy, 99, 5))

	mkt := limitOrder(3, Sell, 0, 8)
	ret := m.Add(mkt)

	require.Len(t, ret, 2)
	assert.True(t, ret[0].Volume.Equal(d(5)))
	assert.True(t, ret[0].Price.Equal(d(100)))
	assert.True(t, ret[1].Volume.Equal(d(3)))
	assert.True(t, ret[1].Price.Equal(d(99)))

	assert.Nil(t, m.GetOrder(1))
	survivor := m.GetOrder(2)
	require.NotNil(t, survivor)
	assert.True(t, survivor.Leaves().Equal(d(2)))
	assert.Nil(t, m.GetOrder(3))
	assert.NoError(t, m.checkConsistency())
}

func TestZeroPriceRemainderNeverRests(t *testing.T) {
	m, _, _ := newTestMatcher()

	m.Add(limitOrder(1, Buy, 100, 5))

	mkt := limitOrder(2, Sell, 0, 8)
	ret := m.Add(mkt)

	require.Len(t, ret, 1)
	assert.True(t, mkt.Filled.Equal(d(5)))
	assert.Nil(t, m.GetOrder(2), "marketable remainder is dropped")
	assert.NoError(t, m.checkConsistency())
}

func TestTimeInForceResting(t *testing.T) {
	resting := []TimeInForce{Day, GTC, VFA, GTD, VFC, GTT}
	for _, tif := range resting {
		m, _, _ := newTestMatcher()
		o := limitOrder(1, Buy, 100, 10)
		o.TIF = tif
		m.Add(o)
		assert.NotNil(t, m.GetOrder(1), "tif %d should rest", tif)
	}

	for _, tif := range []TimeInForce{IOC, FOK} {
		m, _, _ := newTestMatcher()
		o := limitOrder(1, Buy, 100, 10)
		o.TIF = tif
		m.Add(o)
		assert.Nil(t, m.GetOrder(1), "tif %d must not rest", tif)
	}
}

func TestInstrumentsAreIsolated(t *testing.T) {
	m, trades, _ := newTestMatcher()

	a := limitOrder(1, Sell, 100, 5)
	b := limitOrder(2, Buy, 100, 5)
	b.InstrumentID = testInstrument + 1

	m.Add(a)
	ret := m.Add(b)

	assert.Empty(t, ret)
	assert.Equal(t, 0, trades.Count())
	require.NotNil(t, m.GetOrder(1))
	require.NotNil(t, m.GetOrder(2))
	assert.NoError(t, m.checkConsistency())
}

func TestRandomizedFlowStaysConsistent(t *testing.T) {
	m, _, _ := newTestMatcher()
	rnd := rand.New(rand.NewSource(1))

	var nextID uint64 = 1
	live := make([]uint64, 0, 256)

	for i := 0; i < 5000; i++ {
		switch op := rnd.Float64(); {
		case op < 0.6 || len(live) == 0:
			side := Sell
			if rnd.Intn(2) == 0 {
				side = Buy
			}
			o := limitOrder(nextID, side, int64(90+rnd.Intn(21)), int64(1+rnd.Intn(50)))
			o.InstrumentID = uint64(rnd.Intn(3))
			nextID++
			m.Add(o)
			if m.GetOrder(o.ID) != nil {
				live = append(live, o.ID)
			}
		case op < 0.8:
			id := live[rnd.Intn(len(live))]
			if o := m.GetOrder(id); o != nil {
				flag := PriorityRetained
				if rnd.Intn(2) == 0 {
					flag = PriorityLost
				}
				m.Modify(&OrderModify{
					OrderID:  id,
					Price:    d(int64(90 + rnd.Intn(21))),
					Quantity: o.Filled.Add(d(int64(1 + rnd.Intn(50)))),
					Filled:   o.Filled,
					Priority: flag,
				})
			}
		default:
			m.Cancel(live[rnd.Intn(len(live))])
		}

		if i%97 == 0 {
			require.NoError(t, m.checkConsistency())
		}
	}

	require.NoError(t, m.checkConsistency())
}
