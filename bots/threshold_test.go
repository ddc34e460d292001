package bots

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ioctrader/config"
	"ioctrader/market"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bookWith(bid, ask string) *market.PriceBook {
	book := &market.PriceBook{Instrument: "SMALL_CHIPS"}
	if bid != "" {
		book.Bids = []market.PriceVolume{{Price: dec(bid), Volume: 50}}
	}
	if ask != "" {
		book.Asks = []market.PriceVolume{{Price: dec(ask), Volume: 50}}
	}
	return book
}

func defaultTarget() config.Target {
	return config.DefaultTrader().Targets[0]
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		bid, ask string
		position int64
		wantOK   bool
		side     market.Side
		price    string
		volume   int64
	}{
		{name: "rich bid while long sells above bid", bid: "118.0", ask: "118.2", position: 10, wantOK: true, side: market.Sell, price: "118.1", volume: 10},
		{name: "sell volume capped", bid: "118.0", ask: "118.2", position: 25, wantOK: true, side: market.Sell, price: "118.1", volume: 20},
		{name: "cheap ask under cap buys below ask", bid: "116.3", ask: "116.5", position: 5, wantOK: true, side: market.Buy, price: "116.4", volume: 20},
		{name: "cheap ask while short still buys", bid: "116.3", ask: "116.5", position: -12, wantOK: true, side: market.Buy, price: "116.4", volume: 20},
		{name: "boundaries are exclusive", bid: "117.5", ask: "117", position: 10},
		{name: "rich bid while flat does nothing", bid: "118.0", ask: "118.2", position: 0},
		{name: "position at cap blocks buy", bid: "116.3", ask: "116.5", position: 30},
		{name: "position above cap blocks buy", bid: "116.3", ask: "116.5", position: 45},
		{name: "prices inside the band", bid: "117.1", ask: "117.3", position: 10},
		{name: "missing ask", bid: "118.0", position: 10},
		{name: "missing bid", ask: "116.5", position: 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, ok := Decide(defaultTarget(), bookWith(tc.bid, tc.ask), tc.position)
			require.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			assert.Equal(t, "SMALL_CHIPS", req.Instrument)
			assert.Equal(t, tc.side, req.Side)
			assert.Equal(t, market.IOC, req.Type)
			assert.True(t, dec(tc.price).Equal(req.Price), "price %s, want %s", req.Price, tc.price)
			assert.Equal(t, tc.volume, req.Volume)
		})
	}
}

func TestDecidePrefersSellWhenBothFire(t *testing.T) {
	target := defaultTarget()
	target.SellAbove = dec("100")
	target.BuyBelow = dec("200")

	req, ok := Decide(target, bookWith("150", "150.2"), 3)
	require.True(t, ok)
	assert.Equal(t, market.Sell, req.Side)
	assert.Equal(t, int64(3), req.Volume)
}

func TestDecideNilBook(t *testing.T) {
	_, ok := Decide(defaultTarget(), nil, 10)
	assert.False(t, ok)
}
