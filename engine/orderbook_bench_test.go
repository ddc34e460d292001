package engine

import (
	"math/rand"
	"testing"

	"ioctrader/market"
)

func BenchmarkMatchThroughput(b *testing.B) {
	ob := NewOrderBook(OrderBookConfig{Instrument: "SIM", MaxDepth: 2048, RequestBuffer: 2048})
	defer ob.Stop()

	randGen := rand.New(rand.NewSource(42))

	orders := make([]Order, b.N)
	for i := 0; i < b.N; i++ {
		orders[i] = randomBenchmarkOrder(randGen, i)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var matched int64
	for i := 0; i < b.N; i++ {
		exec, err := ob.SubmitOrder(orders[i])
		if err != nil {
			b.Fatalf("submit failed: %v", err)
		}
		matched += int64(len(exec.Fills))
	}
	b.StopTimer()

	if elapsed := b.Elapsed(); elapsed > 0 {
		b.ReportMetric(float64(matched)/elapsed.Seconds(), "trades/sec")
	}
}

func randomBenchmarkOrder(rng *rand.Rand, idx int) Order {
	side := market.Side(rng.Intn(2) + 1)
	base := int64(10_000)
	width := int64(100)
	price := base + rng.Int63n(width)
	if side == market.Sell {
		price = base - rng.Int63n(width)
	}

	otype := market.Limit
	switch rng.Intn(5) {
	case 0:
		otype = market.Market
	case 1:
		otype = market.IOC
	}

	return Order{
		ID:         int64(idx + 1),
		Instrument: "SIM",
		Side:       side,
		Type:       otype,
		Price:      price,
		Quantity:   rng.Int63n(5) + 1,
	}
}
