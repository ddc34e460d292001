package bots

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"ioctrader/exchange"
	"ioctrader/market"
)

// RandomAskBot places short-lived limit asks around the mid price.
type RandomAskBot struct {
	Interval   time.Duration
	Lifetime   time.Duration
	Quantity   int64
	RangeTicks int64
	rand       *rand.Rand
}

func NewRandomAskBot() *RandomAskBot {
	return &RandomAskBot{
		Interval:   200 * time.Millisecond,
		Lifetime:   2 * time.Second,
		Quantity:   1,
		RangeTicks: 5,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *RandomAskBot) Start(ctx context.Context, client exchange.Client, listing Listing) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.placeAsk(ctx, client, listing)
		}
	}
}

func (b *RandomAskBot) placeAsk(ctx context.Context, client exchange.Client, listing Listing) {
	book, err := client.GetLastPriceBook(ctx, listing.Instrument)
	if err != nil {
		return
	}
	mid := midPrice(book, listing)
	if !mid.IsPositive() {
		return
	}

	delta := listing.TickSize.Mul(decimal.NewFromInt(b.rand.Int63n(b.RangeTicks + 1)))
	price := mid.Add(delta)

	resp, err := client.InsertOrder(ctx, market.OrderRequest{
		Instrument: listing.Instrument,
		Price:      price,
		Volume:     b.Quantity,
		Side:       market.Sell,
		Type:       market.Limit,
	})
	if err != nil || !resp.Success {
		return
	}

	go cancelAfter(ctx, client, listing.Instrument, resp.OrderID, b.Lifetime)
}
