package bots

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ioctrader/exchange"
	"ioctrader/market"
)

var two = decimal.NewFromInt(2)

// midPrice falls back to one side, then to the listing's reference price.
func midPrice(book *market.PriceBook, listing Listing) decimal.Decimal {
	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()

	var mid decimal.Decimal
	switch {
	case hasBid && hasAsk:
		mid = bid.Price.Add(ask.Price).Div(two)
	case hasBid:
		mid = bid.Price
	case hasAsk:
		mid = ask.Price
	default:
		mid = listing.Reference
	}
	return floorToTick(mid, listing.TickSize)
}

func floorToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	return price.Div(tick).Floor().Mul(tick)
}

// cancelAfter deletes a resting order once lifetime has passed. Orders that
// already filled are gone and the delete is ignored.
func cancelAfter(ctx context.Context, client exchange.Client, instrument string, orderID int64, lifetime time.Duration) {
	timer := time.NewTimer(lifetime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		_ = client.DeleteOrder(ctx, instrument, orderID)
	}
}
