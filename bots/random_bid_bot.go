package bots

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"ioctrader/exchange"
	"ioctrader/market"
)

// RandomBidBot places short-lived limit bids around the mid price.
type RandomBidBot struct {
	Interval   time.Duration
	Lifetime   time.Duration
	Quantity   int64
	RangeTicks int64
	rand       *rand.Rand
}

func NewRandomBidBot() *RandomBidBot {
	return &RandomBidBot{
		Interval:   200 * time.Millisecond,
		Lifetime:   2 * time.Second,
		Quantity:   1,
		RangeTicks: 5,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *RandomBidBot) Start(ctx context.Context, client exchange.Client, listing Listing) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.placeBid(ctx, client, listing)
		}
	}
}

func (b *RandomBidBot) placeBid(ctx context.Context, client exchange.Client, listing Listing) {
	book, err := client.GetLastPriceBook(ctx, listing.Instrument)
	if err != nil {
		return
	}
	mid := midPrice(book, listing)
	if !mid.IsPositive() {
		return
	}

	delta := listing.TickSize.Mul(decimal.NewFromInt(b.rand.Int63n(b.RangeTicks + 1)))
	price := mid.Sub(delta)
	if !price.IsPositive() {
		price = listing.TickSize
	}

	resp, err := client.InsertOrder(ctx, market.OrderRequest{
		Instrument: listing.Instrument,
		Price:      price,
		Volume:     b.Quantity,
		Side:       market.Buy,
		Type:       market.Limit,
	})
	if err != nil || !resp.Success {
		return
	}

	go cancelAfter(ctx, client, listing.Instrument, resp.OrderID, b.Lifetime)
}
