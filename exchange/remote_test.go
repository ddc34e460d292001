package exchange

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ioctrader/engine"
	"ioctrader/market"
	"ioctrader/server"
)

type remoteFixture struct {
	venue *engine.Venue
	feed  *server.Feed
	url   string
}

func newRemoteFixture(t *testing.T) *remoteFixture {
	t.Helper()
	feed := server.NewFeed(nil)
	v := newVenue(t, engine.WithPublisher(feed))
	srv := server.New(v, feed, server.Config{
		Accounts:    map[string]string{"trader": "secret", "maker": "maker"},
		CORSOrigins: []string{"*"},
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &remoteFixture{venue: v, feed: feed, url: ts.URL}
}

func (f *remoteFixture) connect(t *testing.T, user, pass string) *RemoteClient {
	t.Helper()
	client, err := NewRemoteClient(Credentials{URL: f.url, Username: user, Password: pass}, nil)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRemoteClientRejectsBadCredentials(t *testing.T) {
	f := newRemoteFixture(t)
	client, err := NewRemoteClient(Credentials{URL: f.url, Username: "trader", Password: "wrong"}, nil)
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.ErrorContains(t, err, "401")

	_, err = client.GetInstruments(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestNewRemoteClientValidatesURL(t *testing.T) {
	_, err := NewRemoteClient(Credentials{URL: "ftp://exchange"}, nil)
	require.Error(t, err)
}

func TestRemoteClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newRemoteFixture(t)
	trader := f.connect(t, "trader", "secret")
	maker := f.connect(t, "maker", "maker")

	instruments, err := trader.GetInstruments(ctx)
	require.NoError(t, err)
	require.Contains(t, instruments, "SMALL_CHIPS")
	assert.True(t, dec("0.1").Equal(instruments["SMALL_CHIPS"].TickSize))

	resp, err := maker.InsertOrder(ctx, limit(market.Sell, "117.3", 5))
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Reason)
	askID := resp.OrderID

	require.Eventually(t, func() bool {
		book, err := trader.GetLastPriceBook(ctx, "SMALL_CHIPS")
		if err != nil || book == nil {
			return false
		}
		ask, ok := book.BestAsk()
		return ok && ask.Price.Equal(dec("117.3")) && ask.Volume == 5
	}, 2*time.Second, 10*time.Millisecond)

	resp, err = trader.InsertOrder(ctx, market.OrderRequest{Instrument: "SMALL_CHIPS", Price: dec("117.3"), Volume: 2, Side: market.Buy, Type: market.IOC})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Reason)

	resp, err = trader.InsertOrder(ctx, market.OrderRequest{Instrument: "SMALL_CHIPS", Price: dec("117.35"), Volume: 1, Side: market.Buy, Type: market.IOC})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Reason)

	positions, err := trader.GetPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"SMALL_CHIPS": 2, "TECH_INC": 0}, positions)

	pnl, err := trader.GetPnL(ctx)
	require.NoError(t, err)
	assert.True(t, pnl.IsZero(), pnl.String())

	trades, err := trader.PollNewTrades(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(2), trades[0].Volume)

	trades, err = trader.PollNewTrades(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	assert.Empty(t, trades)

	ticks, err := trader.PollNewTradeTicks(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	assert.Len(t, ticks, 1)

	history, err := maker.GetTradeTickHistory(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, market.Buy, history[0].Aggressor)

	orders, err := maker.GetOutstandingOrders(ctx, "SMALL_CHIPS")
	require.NoError(t, err)
	require.Contains(t, orders, askID)
	assert.Equal(t, int64(3), orders[askID].Remaining)

	require.NoError(t, maker.DeleteOrder(ctx, "SMALL_CHIPS", askID))
	err = maker.DeleteOrder(ctx, "SMALL_CHIPS", askID)
	require.ErrorIs(t, err, ErrNotFound)

	require.Eventually(t, func() bool {
		book, err := trader.GetLastPriceBook(ctx, "SMALL_CHIPS")
		return err == nil && book != nil && len(book.Asks) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoteClientUnknownBookIsAbsent(t *testing.T) {
	f := newRemoteFixture(t)
	trader := f.connect(t, "trader", "secret")

	book, err := trader.GetLastPriceBook(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, book)
}

func TestRemoteClientUnknownInstrumentEndsSession(t *testing.T) {
	ctx := context.Background()
	f := newRemoteFixture(t)
	trader := f.connect(t, "trader", "secret")
	maker := f.connect(t, "maker", "maker")

	_, err := trader.InsertOrder(ctx, market.OrderRequest{Instrument: "NOPE", Price: dec("1"), Volume: 1, Side: market.Buy, Type: market.IOC})
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = trader.GetPositions(ctx)
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = maker.GetPositions(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRemoteClientDetectsFeedDisconnect(t *testing.T) {
	f := newRemoteFixture(t)
	trader := f.connect(t, "trader", "secret")

	f.feed.Disconnect("trader", "kicked by operator")

	require.Eventually(t, func() bool {
		_, err := trader.GetInstruments(context.Background())
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
	_, err := trader.GetInstruments(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
	assert.Contains(t, err.Error(), "kicked by operator")
}
