package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"ioctrader/engine"
	"ioctrader/market"
)

func main() {
	totalOrders := flag.Int("orders", 500000, "number of orders to submit")
	priceLevels := flag.Int64("price-levels", 200, "unique price levels around the mid, in ticks")
	basePrice := flag.Int64("base-price", 1172, "mid price in ticks used for randomization")
	instrument := flag.String("instrument", "SMALL_CHIPS", "instrument to trade")
	maxDepth := flag.Int("max-depth", 2048, "maximum resting depth")
	cancelEvery := flag.Int("cancel-every", 0, "cancel a random earlier order every N submissions")
	reqBuffer := flag.Int("request-buffer", 2048, "queue length of the book's request channel")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for deterministic random streams")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	marketRatio := flag.Int("market-ratio", 5, "1 in N orders will be market instead of limit")
	iocRatio := flag.Int("ioc-ratio", 4, "1 in N of the remaining orders will be immediate-or-cancel")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	book := engine.NewOrderBook(engine.OrderBookConfig{Instrument: *instrument, MaxDepth: *maxDepth, RequestBuffer: *reqBuffer})
	go func() {
		for range book.BookUpdates() {
		}
	}()

	var matches, rejected, cancelled int64
	start := time.Now()
	for i := 0; i < *totalOrders; i++ {
		order := nextRandomOrder(rng, int64(i+1), *instrument, *basePrice, *priceLevels, *marketRatio, *iocRatio)
		exec, err := book.SubmitOrder(order)
		if err != nil {
			rejected++
			continue
		}
		matches += int64(len(exec.Fills))
		if *cancelEvery > 0 && i > 0 && i%*cancelEvery == 0 {
			if _, err := book.CancelOrder(rng.Int63n(int64(i)) + 1); err == nil {
				cancelled++
			}
		}
	}
	elapsed := time.Since(start)

	view, _ := book.Snapshot(0)
	book.Stop()

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}

	ordersPerSec := float64(*totalOrders) / elapsed.Seconds()
	tradesPerSec := float64(matches) / elapsed.Seconds()

	fmt.Printf("submitted %d orders in %s (%.0f orders/s)\n", *totalOrders, elapsed.Truncate(time.Millisecond), ordersPerSec)
	fmt.Printf("matched %d fills (%.0f fills/s), %d rejected, %d cancelled\n", matches, tradesPerSec, rejected, cancelled)
	fmt.Printf("resting levels: %d bids, %d asks\n", len(view.Bids), len(view.Asks))
	fmt.Printf("config: depth=%d request-buffer=%d market-ratio=1/%d ioc-ratio=1/%d\n", *maxDepth, *reqBuffer, *marketRatio, *iocRatio)
}

func nextRandomOrder(rng *rand.Rand, id int64, instrument string, mid, width int64, marketRatio, iocRatio int) engine.Order {
	side := market.Side(rng.Intn(2) + 1)
	var price int64
	if side == market.Buy {
		price = mid + rng.Int63n(width)
	} else {
		offset := rng.Int63n(width)
		if mid > offset {
			price = mid - offset
		} else {
			price = 1
		}
	}

	otype := market.Limit
	switch {
	case marketRatio > 0 && rng.Intn(marketRatio) == 0:
		otype = market.Market
	case iocRatio > 0 && rng.Intn(iocRatio) == 0:
		otype = market.IOC
	}

	return engine.Order{
		ID:         id,
		Instrument: instrument,
		Owner:      fmt.Sprintf("lg-%d", rng.Intn(8)),
		Side:       side,
		Type:       otype,
		Price:      price,
		Quantity:   rng.Int63n(5) + 1,
	}
}
