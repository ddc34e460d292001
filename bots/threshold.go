package bots

import (
	"ioctrader/config"
	"ioctrader/market"
)

// Decide applies the static threshold rule for target to a two-sided book.
// It sells into a rich bid while long and buys a cheap ask while under the
// position cap. Both comparisons are strict. The second result is false when
// no order should be sent.
func Decide(target config.Target, book *market.PriceBook, position int64) (market.OrderRequest, bool) {
	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	if !hasBid || !hasAsk {
		return market.OrderRequest{}, false
	}

	if bid.Price.GreaterThan(target.SellAbove) && position > 0 {
		return market.OrderRequest{
			Instrument: target.Instrument,
			Price:      bid.Price.Add(target.TickOffset),
			Volume:     min(target.MaxSellVolume, position),
			Side:       market.Sell,
			Type:       market.IOC,
		}, true
	}
	if ask.Price.LessThan(target.BuyBelow) && position < target.PositionCap {
		return market.OrderRequest{
			Instrument: target.Instrument,
			Price:      ask.Price.Sub(target.TickOffset),
			Volume:     target.BuyVolume,
			Side:       market.Buy,
			Type:       market.IOC,
		}, true
	}
	return market.OrderRequest{}, false
}
