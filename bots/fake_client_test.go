package bots

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"ioctrader/exchange"
	"ioctrader/market"
)

// fakeClient scripts exchange answers and records inserted orders.
type fakeClient struct {
	mu          sync.Mutex
	instruments map[string]market.Instrument
	book        *market.PriceBook
	positions   map[string]int64
	insertResp  market.InsertOrderResponse
	insertErr   error
	instErr     error
	inserted    []market.OrderRequest
	polls       int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		instruments: map[string]market.Instrument{
			"SMALL_CHIPS": {ID: "SMALL_CHIPS", TickSize: dec("0.1")},
		},
		positions:  map[string]int64{"SMALL_CHIPS": 0},
		insertResp: market.InsertOrderResponse{Success: true, OrderID: 7},
	}
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) Close() error                  { return nil }

func (f *fakeClient) GetInstruments(context.Context) (map[string]market.Instrument, error) {
	return f.instruments, f.instErr
}

func (f *fakeClient) GetLastPriceBook(context.Context, string) (*market.PriceBook, error) {
	return f.book, nil
}

func (f *fakeClient) GetPositions(context.Context) (map[string]int64, error) {
	return f.positions, nil
}

func (f *fakeClient) GetPnL(context.Context) (decimal.Decimal, error) {
	return dec("12.345"), nil
}

func (f *fakeClient) PollNewTrades(context.Context, string) ([]market.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return []market.Trade{{OrderID: 1}}, nil
}

func (f *fakeClient) PollNewTradeTicks(context.Context, string) ([]market.TradeTick, error) {
	return []market.TradeTick{{}, {}, {}}, nil
}

func (f *fakeClient) GetTradeTickHistory(context.Context, string) ([]market.TradeTick, error) {
	return nil, nil
}

func (f *fakeClient) GetOutstandingOrders(context.Context, string) (map[int64]market.OrderStatus, error) {
	return map[int64]market.OrderStatus{}, nil
}

func (f *fakeClient) InsertOrder(_ context.Context, req market.OrderRequest) (market.InsertOrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, req)
	return f.insertResp, f.insertErr
}

func (f *fakeClient) DeleteOrder(context.Context, string, int64) error { return nil }

func (f *fakeClient) orders() []market.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]market.OrderRequest(nil), f.inserted...)
}

func (f *fakeClient) reports() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

var _ exchange.Client = (*fakeClient)(nil)
