package market

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	for _, in := range []string{"buy", "BID", "b"} {
		side, err := ParseSide(in)
		require.NoError(t, err)
		assert.Equal(t, Buy, side)
	}
	for _, in := range []string{"sell", "Ask", "s"} {
		side, err := ParseSide(in)
		require.NoError(t, err)
		assert.Equal(t, Sell, side)
	}
	_, err := ParseSide("hold")
	assert.Error(t, err)
	assert.Equal(t, Sell, Buy.Opposite())
}

func TestParseOrderType(t *testing.T) {
	for in, want := range map[string]OrderType{"limit": Limit, "LMT": Limit, "ioc": IOC, "market": Market, "mkt": Market} {
		got, err := ParseOrderType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseOrderType("fok")
	assert.Error(t, err)
}

func TestUnsetAndUnknownEnumsStringify(t *testing.T) {
	var side Side
	var typ OrderType
	assert.False(t, side.Valid())
	assert.False(t, typ.Valid())
	assert.Equal(t, "side(0)", side.String())
	assert.Equal(t, "side(7)", Side(7).String())
	assert.Equal(t, "ordertype(9)", OrderType(9).String())
	assert.Equal(t, "bid", Buy.String())
	assert.Equal(t, "ask", Sell.String())
	assert.Equal(t, Side(7), Side(7).Opposite())

	_, err := json.Marshal(struct{ Side Side }{Side(7)})
	assert.Error(t, err)
}

func TestOrderRequestWithoutSideOrTypeStaysUnset(t *testing.T) {
	var req OrderRequest
	require.NoError(t, json.Unmarshal([]byte(`{"instrument":"SMALL_CHIPS","price":"118.1","volume":10}`), &req))
	assert.False(t, req.Side.Valid())
	assert.False(t, req.Type.Valid())

	out, err := json.Marshal(req)
	require.NoError(t, err)
	var back OrderRequest
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, Side(0), back.Side)
	assert.Equal(t, OrderType(0), back.Type)
}

func TestOrderRequestJSON(t *testing.T) {
	var req OrderRequest
	require.NoError(t, json.Unmarshal([]byte(`{"instrument":"SMALL_CHIPS","price":"118.1","volume":10,"side":"ask","type":"ioc"}`), &req))
	assert.Equal(t, Sell, req.Side)
	assert.Equal(t, IOC, req.Type)
	assert.True(t, decimal.RequireFromString("118.1").Equal(req.Price))

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"instrument":"SMALL_CHIPS","price":"118.1","volume":10,"side":"ask","type":"ioc"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"side":"up"}`), &req))
}

func TestPriceBookTopOfBook(t *testing.T) {
	var absent *PriceBook
	_, ok := absent.BestBid()
	assert.False(t, ok)
	assert.False(t, absent.TwoSided())

	book := &PriceBook{
		Bids: []PriceVolume{{Price: decimal.RequireFromString("117"), Volume: 5}, {Price: decimal.RequireFromString("116.9"), Volume: 1}},
	}
	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(5), bid.Volume)
	_, ok = book.BestAsk()
	assert.False(t, ok)
	assert.False(t, book.TwoSided())

	book.Asks = []PriceVolume{{Price: decimal.RequireFromString("117.2"), Volume: 3}}
	assert.True(t, book.TwoSided())
}
