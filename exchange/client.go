package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ioctrader/engine"
	"ioctrader/market"
)

var (
	// ErrSessionClosed means the exchange ended the session, for example after
	// an order for an instrument it does not list. The session cannot recover.
	ErrSessionClosed = errors.New("exchange session closed")
	// ErrNotConnected is returned by calls made before Connect.
	ErrNotConnected = errors.New("exchange client not connected")
	// ErrUnknownInstrument is returned for instruments the exchange does not list.
	ErrUnknownInstrument = engine.ErrUnknownInstrument
	// ErrNotFound is returned by RemoteClient when the exchange answers 404,
	// for an unlisted instrument or an order that is no longer resting.
	ErrNotFound = errors.New("not found")
)

// Client is one trading session with an exchange.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	GetInstruments(ctx context.Context) (map[string]market.Instrument, error)
	// GetLastPriceBook returns nil when no book is available.
	GetLastPriceBook(ctx context.Context, instrument string) (*market.PriceBook, error)
	GetPositions(ctx context.Context) (map[string]int64, error)
	GetPnL(ctx context.Context) (decimal.Decimal, error)
	PollNewTrades(ctx context.Context, instrument string) ([]market.Trade, error)
	PollNewTradeTicks(ctx context.Context, instrument string) ([]market.TradeTick, error)
	GetTradeTickHistory(ctx context.Context, instrument string) ([]market.TradeTick, error)
	GetOutstandingOrders(ctx context.Context, instrument string) (map[int64]market.OrderStatus, error)
	InsertOrder(ctx context.Context, req market.OrderRequest) (market.InsertOrderResponse, error)
	DeleteOrder(ctx context.Context, instrument string, orderID int64) error
}
