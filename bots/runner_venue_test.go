package bots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ioctrader/config"
	"ioctrader/engine"
	"ioctrader/exchange"
	"ioctrader/market"
)

func newVenue(t *testing.T) *engine.Venue {
	t.Helper()
	v, err := engine.NewVenue(engine.VenueConfig{
		Instruments: []engine.InstrumentConfig{{ID: "SMALL_CHIPS", TickSize: dec("0.1")}},
		MaxDepth:    100,
	}, engine.WithClock(func() time.Time { return time.Unix(100, 0) }))
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func place(t *testing.T, v *engine.Venue, owner string, side market.Side, typ market.OrderType, price string, volume int64) {
	t.Helper()
	resp, err := v.InsertOrder(owner, market.OrderRequest{Instrument: "SMALL_CHIPS", Price: dec(price), Volume: volume, Side: side, Type: typ})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Reason)
}

func TestRunnerAgainstVenue(t *testing.T) {
	v := newVenue(t)
	place(t, v, "maker", market.Buy, market.Limit, "118.0", 50)
	place(t, v, "maker", market.Sell, market.Limit, "118.3", 50)
	place(t, v, "trader", market.Buy, market.IOC, "118.3", 10)

	client := exchange.NewLocalClient(v, "trader", nil)
	require.NoError(t, client.Connect(context.Background()))
	runner, logs := newObservedRunner(client, config.DefaultTrader())

	require.NoError(t, runner.RunCycle(context.Background()))

	inserted := logs.FilterMessage("inserted order").All()
	require.Len(t, inserted, 1)
	assert.Equal(t, "ask", inserted[0].ContextMap()["side"])
	assert.Equal(t, "118.1", inserted[0].ContextMap()["price"])

	// The IOC sell sits above the best bid so it cannot trade.
	assert.Equal(t, int64(10), v.Positions("trader")["SMALL_CHIPS"])
	outstanding, err := v.OutstandingOrders("trader", "SMALL_CHIPS")
	require.NoError(t, err)
	assert.Empty(t, outstanding)

	report := logs.FilterMessage("status report").All()
	require.Len(t, report, 1)
	assert.Equal(t, int64(1), report[0].ContextMap()["myTrades"])
	assert.Equal(t, int64(1), report[0].ContextMap()["marketTrades"])

	require.NoError(t, runner.RunCycle(context.Background()))
	report = logs.FilterMessage("status report").All()
	require.Len(t, report, 2)
	assert.Equal(t, int64(0), report[1].ContextMap()["myTrades"])
	assert.Equal(t, int64(0), report[1].ContextMap()["marketTrades"])
}

func TestRunnerBuysWhenAskCrossesThreshold(t *testing.T) {
	v := newVenue(t)
	place(t, v, "maker", market.Sell, market.Limit, "116.5", 50)
	place(t, v, "maker", market.Buy, market.Limit, "116.0", 50)

	client := exchange.NewLocalClient(v, "trader", nil)
	require.NoError(t, client.Connect(context.Background()))
	runner, logs := newObservedRunner(client, config.DefaultTrader())

	require.NoError(t, runner.RunCycle(context.Background()))

	inserted := logs.FilterMessage("inserted order").All()
	require.Len(t, inserted, 1)
	assert.Equal(t, "bid", inserted[0].ContextMap()["side"])
	assert.Equal(t, "116.4", inserted[0].ContextMap()["price"])
	assert.Equal(t, int64(0), v.Positions("trader")["SMALL_CHIPS"])
}

func TestRunnerSkipsPausedVenueInstrument(t *testing.T) {
	v := newVenue(t)
	place(t, v, "maker", market.Sell, market.Limit, "116.5", 50)
	place(t, v, "maker", market.Buy, market.Limit, "116.0", 50)
	require.NoError(t, v.SetPaused("SMALL_CHIPS", true))

	client := exchange.NewLocalClient(v, "trader", nil)
	require.NoError(t, client.Connect(context.Background()))
	runner, logs := newObservedRunner(client, config.DefaultTrader())

	require.NoError(t, runner.RunCycle(context.Background()))
	assert.Zero(t, logs.FilterMessage("inserted order").Len())
	assert.Equal(t, 1, logs.FilterMessage("instrument is paused, skipping cycle").Len())
}
