package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	match "github.com/quantrail/matching-engine"
)

const (
	minPrice = 100
	maxPrice = 10000
)

// mulberry32 is a small seeded RNG so runs with the same seed generate the
// same order flow.
type mulberry32 struct {
	state uint32
}

func (r *mulberry32) next() float64 {
	r.state += 0x6D2B79F5
	t := r.state
	z := (t ^ (t >> 15)) * (t | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return float64(z^(z>>14)) / 4294967296.0
}

func (r *mulberry32) intn(n int) int {
	return int(r.next() * float64(n))
}

type harness struct {
	rnd     *mulberry32
	matcher *match.Matcher

	instruments int
	tradeRatio  float64
	modifyRatio float64
	maxOpen     int

	nextOrderID uint64
	open        map[uint64]struct{}
	openIDs     []uint64

	addCount    uint64
	modifyCount uint64
	cancelCount uint64
	tradeCount  uint64
}

func (h *harness) randomQuantity() decimal.Decimal {
	return decimal.NewFromInt(int64(h.rnd.intn(1000) + 1))
}

func (h *harness) randomPrice(side match.Side, shouldCross bool) decimal.Decimal {
	if shouldCross {
		return decimal.NewFromInt(int64(h.rnd.intn(maxPrice-minPrice) + minPrice))
	}
	// Conservative non-crossing bands: bids near the floor, asks near the cap.
	if side == match.Buy {
		return decimal.NewFromInt(int64(h.rnd.intn(1000) + minPrice))
	}
	return decimal.NewFromInt(int64(h.rnd.intn(1000) + maxPrice - 1000))
}

func (h *harness) randomSide() match.Side {
	if h.rnd.next() < 0.5 {
		return match.Buy
	}
	return match.Sell
}

func (h *harness) track(orderID uint64) {
	h.open[orderID] = struct{}{}
	h.openIDs = append(h.openIDs, orderID)
}

func (h *harness) untrack(orderID uint64) {
	delete(h.open, orderID)
}

// randomOpenOrder returns a still-resting tracked order id, pruning stale
// entries it stumbles over.
func (h *harness) randomOpenOrder() (uint64, bool) {
	for attempts := 0; attempts < 5 && len(h.openIDs) > 0; attempts++ {
		i := h.rnd.intn(len(h.openIDs))
		id := h.openIDs[i]
		if _, ok := h.open[id]; ok && h.matcher.GetOrder(id) != nil {
			return id, true
		}
		// Stale: consumed by a match or already canceled.
		h.openIDs[i] = h.openIDs[len(h.openIDs)-1]
		h.openIDs = h.openIDs[:len(h.openIDs)-1]
		h.untrack(id)
	}
	return 0, false
}

func (h *harness) performAdd(shouldCross bool) {
	side := h.randomSide()
	order := &match.Order{
		ID:           h.nextOrderID,
		InstrumentID: uint64(h.rnd.intn(h.instruments)),
		Side:         side,
		Price:        h.randomPrice(side, shouldCross),
		Quantity:     h.randomQuantity(),
		TIF:          match.Day,
		Type:         match.Limit,
	}
	h.nextOrderID++

	trades := h.matcher.Add(order)
	h.addCount++
	h.tradeCount += uint64(len(trades))

	for _, t := range trades {
		if t.BuyOrderID != order.ID {
			h.pruneIfGone(t.BuyOrderID)
		}
		if t.SellOrderID != order.ID {
			h.pruneIfGone(t.SellOrderID)
		}
	}

	if h.matcher.GetOrder(order.ID) != nil {
		h.track(order.ID)
	}
}

func (h *harness) pruneIfGone(orderID uint64) {
	if h.matcher.GetOrder(orderID) == nil {
		h.untrack(orderID)
	}
}

func (h *harness) performModify() {
	id, ok := h.randomOpenOrder()
	if !ok {
		h.performAdd(false)
		return
	}

	order := h.matcher.GetOrder(id)
	priority := match.PriorityRetained
	if h.rnd.next() < 0.3 {
		priority = match.PriorityLost
	}

	h.matcher.Modify(&match.OrderModify{
		OrderID:  id,
		Price:    h.randomPrice(order.Side, false),
		Quantity: order.Filled.Add(h.randomQuantity()),
		Filled:   order.Filled,
		Priority: priority,
	})
	h.modifyCount++

	if h.matcher.GetOrder(id) == nil {
		h.untrack(id)
	}
}

func (h *harness) performCancel() {
	id, ok := h.randomOpenOrder()
	if !ok {
		h.performAdd(false)
		return
	}

	h.matcher.Cancel(id)
	h.cancelCount++
	h.untrack(id)
}

func (h *harness) step() {
	if len(h.open) >= h.maxOpen {
		// At capacity, only shrink the book.
		if h.rnd.next() < 0.5 {
			h.performModify()
		} else {
			h.performCancel()
		}
		return
	}

	const addRatio = 0.5
	op := h.rnd.next()
	switch {
	case op < addRatio:
		h.performAdd(h.rnd.next() < h.tradeRatio)
	case op < addRatio+h.modifyRatio:
		h.performModify()
	default:
		h.performCancel()
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	// Flag defaults can come from the environment or a .env file.
	_ = godotenv.Load()

	duration := flag.Int("duration", envInt("PERF_DURATION", 10), "run duration in seconds")
	maxOpen := flag.Int("max-open", envInt("PERF_MAX_OPEN", 100_000), "max open orders before the flow stops adding")
	tradeRatio := flag.Float64("trade-ratio", envFloat("PERF_TRADE_RATIO", 0.3), "fraction of adds priced to cross")
	modifyRatio := flag.Float64("modify-ratio", envFloat("PERF_MODIFY_RATIO", 0.1), "fraction of operations that modify")
	instruments := flag.Int("instruments", envInt("PERF_INSTRUMENTS", 8), "number of instruments")
	seed := flag.Int("seed", envInt("PERF_SEED", int(time.Now().UnixNano()&0x7FFFFFFF)), "rng seed")
	flag.Parse()

	log, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	runID := xid.New().String()
	log = log.With(zap.String("run_id", runID))
	match.SetLogger(log)

	log.Info("perf run starting",
		zap.Int("duration_sec", *duration),
		zap.Int("max_open", *maxOpen),
		zap.Float64("trade_ratio", *tradeRatio),
		zap.Float64("modify_ratio", *modifyRatio),
		zap.Int("instruments", *instruments),
		zap.Int("seed", *seed))

	h := &harness{
		rnd:         &mulberry32{state: uint32(*seed)},
		matcher:     match.NewMatcher(match.NewDiscardPublishTrade()),
		instruments: *instruments,
		tradeRatio:  *tradeRatio,
		modifyRatio: *modifyRatio,
		maxOpen:     *maxOpen,
		nextOrderID: 1,
		open:        make(map[uint64]struct{}),
	}

	// Warmup: seed the book with non-crossing liquidity.
	warmup := *maxOpen / 10
	if warmup > 10_000 {
		warmup = 10_000
	}
	for i := 0; i < warmup; i++ {
		h.performAdd(false)
	}
	log.Info("warmup complete", zap.Int("orders", warmup))

	h.addCount, h.modifyCount, h.cancelCount, h.tradeCount = 0, 0, 0, 0

	deadline := time.Now().Add(time.Duration(*duration) * time.Second)
	start := time.Now()
	ops := 0
	for {
		h.step()
		ops++
		if ops%10_000 == 0 && time.Now().After(deadline) {
			break
		}
	}
	elapsed := time.Since(start).Seconds()

	total := h.addCount + h.modifyCount + h.cancelCount
	fmt.Println("--- Performance Results ---")
	fmt.Printf("Duration: %.2fs\n", elapsed)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("  - Adds:     %d\n", h.addCount)
	fmt.Printf("  - Modifies: %d\n", h.modifyCount)
	fmt.Printf("  - Cancels:  %d\n", h.cancelCount)
	fmt.Printf("Trades generated: %d\n", h.tradeCount)
	fmt.Printf("Open orders at end: %d\n", len(h.open))
	fmt.Printf("Events/sec: %.0f\n", float64(total)/elapsed)
	fmt.Printf("Trades/sec: %.0f\n", float64(h.tradeCount)/elapsed)

	log.Info("perf run finished",
		zap.Uint64("adds", h.addCount),
		zap.Uint64("modifies", h.modifyCount),
		zap.Uint64("cancels", h.cancelCount),
		zap.Uint64("trades", h.tradeCount),
		zap.Float64("events_per_sec", float64(total)/elapsed))
}
