package bots

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ioctrader/exchange"
	"ioctrader/market"
)

// SpreadCaptureBot maintains paired bids/asks and re-prices when the spread moves.
type SpreadCaptureBot struct {
	Interval       time.Duration
	Lifetime       time.Duration
	ThresholdTicks int64
	Quantity       int64
}

type pairedOrders struct {
	buyID     int64
	sellID    int64
	anchorMid decimal.Decimal
	placedAt  time.Time
}

func NewSpreadCaptureBot() *SpreadCaptureBot {
	return &SpreadCaptureBot{
		Interval:       300 * time.Millisecond,
		Lifetime:       3 * time.Second,
		ThresholdTicks: 3,
		Quantity:       1,
	}
}

func (b *SpreadCaptureBot) Start(ctx context.Context, client exchange.Client, listing Listing) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	var pair *pairedOrders
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			book, err := client.GetLastPriceBook(ctx, listing.Instrument)
			if err != nil {
				continue
			}
			pair = b.refreshPair(ctx, client, listing, book, pair)
		}
	}
}

func (b *SpreadCaptureBot) refreshPair(ctx context.Context, client exchange.Client, listing Listing, book *market.PriceBook, pair *pairedOrders) *pairedOrders {
	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	if !hasBid || !hasAsk {
		return b.cancelPair(ctx, client, listing, pair)
	}
	tick := listing.TickSize
	mid := floorToTick(bid.Price.Add(ask.Price).Div(two), tick)
	threshold := tick.Mul(decimal.NewFromInt(b.ThresholdTicks))

	if pair != nil {
		if time.Since(pair.placedAt) > b.Lifetime {
			return b.cancelPair(ctx, client, listing, pair)
		}
		if mid.Sub(pair.anchorMid).Abs().GreaterThanOrEqual(threshold) {
			pair = b.cancelPair(ctx, client, listing, pair)
		}
	}

	if pair != nil {
		return pair
	}

	buyPrice := bid.Price
	if mid.Sub(tick).IsPositive() {
		buyPrice = mid.Sub(tick)
	}
	sellPrice := ask.Price
	if sellPrice.LessThanOrEqual(buyPrice) {
		sellPrice = buyPrice.Add(tick)
	}

	buy, err := client.InsertOrder(ctx, market.OrderRequest{
		Instrument: listing.Instrument, Price: buyPrice, Volume: b.Quantity, Side: market.Buy, Type: market.Limit,
	})
	if err != nil || !buy.Success {
		return pair
	}
	sell, err := client.InsertOrder(ctx, market.OrderRequest{
		Instrument: listing.Instrument, Price: sellPrice, Volume: b.Quantity, Side: market.Sell, Type: market.Limit,
	})
	if err != nil || !sell.Success {
		_ = client.DeleteOrder(ctx, listing.Instrument, buy.OrderID)
		return pair
	}

	return &pairedOrders{buyID: buy.OrderID, sellID: sell.OrderID, anchorMid: mid, placedAt: time.Now()}
}

func (b *SpreadCaptureBot) cancelPair(ctx context.Context, client exchange.Client, listing Listing, pair *pairedOrders) *pairedOrders {
	if pair == nil {
		return nil
	}
	_ = client.DeleteOrder(ctx, listing.Instrument, pair.buyID)
	_ = client.DeleteOrder(ctx, listing.Instrument, pair.sellID)
	return nil
}
