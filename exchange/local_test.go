package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ioctrader/engine"
	"ioctrader/market"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newVenue(t *testing.T, opts ...engine.Option) *engine.Venue {
	t.Helper()
	v, err := engine.NewVenue(engine.VenueConfig{
		Instruments: []engine.InstrumentConfig{
			{ID: "SMALL_CHIPS", TickSize: dec("0.1")},
			{ID: "TECH_INC", TickSize: dec("0.1")},
		},
		MaxDepth: 100,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func limit(side market.Side, price string, volume int64) market.OrderRequest {
	return market.OrderRequest{Instrument: "SMALL_CHIPS", Price: dec(price), Volume: volume, Side: side, Type: market.Limit}
}

func TestLocalClientRequiresConnect(t *testing.T) {
	client := NewLocalClient(newVenue(t), "trader", nil)

	_, err := client.GetInstruments(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, client.Connect(context.Background()))
	instruments, err := client.GetInstruments(context.Background())
	require.NoError(t, err)
	assert.Len(t, instruments, 2)
}

func TestLocalClientTradesOnVenue(t *testing.T) {
	ctx := context.Background()
	v := newVenue(t)
	maker := NewLocalClient(v, "maker", nil)
	taker := NewLocalClient(v, "taker", nil)
	require.NoError(t, maker.Connect(ctx))
	require.NoError(t, taker.Connect(ctx))

	resp, err := maker.InsertOrder(ctx, limit(market.Sell, "117.3", 5))
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Reason)

	book, err := taker.GetLastPriceBook(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, dec("117.3").Equal(ask.Price))

	resp, err = taker.InsertOrder(ctx, market.OrderRequest{Instrument: "SMALL_CHIPS", Price: dec("117.3"), Volume: 2, Side: market.Buy, Type: market.IOC})
	require.NoError(t, err)
	require.True(t, resp.Success)

	positions, err := taker.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), positions["SMALL_CHIPS"])

	trades, err := maker.PollNewTrades(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, market.Sell, trades[0].Side)

	orders, err := maker.GetOutstandingOrders(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	for id, o := range orders {
		assert.Equal(t, int64(3), o.Remaining)
		require.NoError(t, maker.DeleteOrder(ctx, "SMALL_CHIPS", id))
	}

	history, err := taker.GetTradeTickHistory(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLocalClientUnknownBookIsAbsent(t *testing.T) {
	client := NewLocalClient(newVenue(t), "trader", nil)
	require.NoError(t, client.Connect(context.Background()))

	book, err := client.GetLastPriceBook(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, book)
}

func TestLocalClientUnknownInstrumentEndsSession(t *testing.T) {
	ctx := context.Background()
	client := NewLocalClient(newVenue(t), "trader", nil)
	require.NoError(t, client.Connect(ctx))

	_, err := client.InsertOrder(ctx, market.OrderRequest{Instrument: "NOPE", Price: dec("1"), Volume: 1, Side: market.Buy, Type: market.IOC})
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = client.GetPositions(ctx)
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, client.Connect(ctx), ErrSessionClosed)
}

func TestLocalClientThrottlesOrders(t *testing.T) {
	throttle := make(chan time.Time)
	client := NewLocalClient(newVenue(t), "trader", throttle)
	require.NoError(t, client.Connect(context.Background()))

	done := make(chan market.InsertOrderResponse, 1)
	go func() {
		resp, _ := client.InsertOrder(context.Background(), limit(market.Buy, "117", 1))
		done <- resp
	}()

	select {
	case <-done:
		t.Fatal("order submitted before throttle tick")
	case <-time.After(50 * time.Millisecond):
	}

	throttle <- time.Now()
	select {
	case resp := <-done:
		assert.True(t, resp.Success)
	case <-time.After(time.Second):
		t.Fatal("order not submitted after throttle tick")
	}
}

func TestLocalClientThrottleHonoursContext(t *testing.T) {
	client := NewLocalClient(newVenue(t), "trader", make(chan time.Time))
	require.NoError(t, client.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.InsertOrder(ctx, limit(market.Buy, "117", 1))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalClientClose(t *testing.T) {
	client := NewLocalClient(newVenue(t), "trader", nil)
	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Close())

	_, err := client.GetPnL(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
}
