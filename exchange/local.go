package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ioctrader/engine"
	"ioctrader/market"
)

// LocalClient is an in-process session on a Venue.
type LocalClient struct {
	venue    *engine.Venue
	account  string
	throttle <-chan time.Time

	mu     sync.Mutex
	state  sessionState
	reason string
}

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionOpen
	sessionClosed
)

// NewLocalClient opens sessions for account on venue. Order insertions wait
// for a tick from throttle when it is non-nil.
func NewLocalClient(venue *engine.Venue, account string, throttle <-chan time.Time) *LocalClient {
	return &LocalClient{venue: venue, account: account, throttle: throttle}
}

func (c *LocalClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == sessionClosed {
		return c.closedErr()
	}
	c.state = sessionOpen
	return nil
}

func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != sessionClosed {
		c.state = sessionClosed
		c.reason = "closed by client"
	}
	return nil
}

func (c *LocalClient) closedErr() error {
	return fmt.Errorf("%w: %s", ErrSessionClosed, c.reason)
}

func (c *LocalClient) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case sessionIdle:
		return ErrNotConnected
	case sessionClosed:
		return c.closedErr()
	}
	return nil
}

func (c *LocalClient) terminate(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = sessionClosed
	c.reason = reason
	return c.closedErr()
}

func (c *LocalClient) waitThrottle(ctx context.Context) error {
	if c.throttle == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.throttle:
		return nil
	}
}

func (c *LocalClient) GetInstruments(ctx context.Context) (map[string]market.Instrument, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return c.venue.Instruments(), nil
}

func (c *LocalClient) GetLastPriceBook(ctx context.Context, instrument string) (*market.PriceBook, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	book, err := c.venue.PriceBook(instrument)
	if errors.Is(err, engine.ErrUnknownInstrument) {
		return nil, nil
	}
	return book, err
}

func (c *LocalClient) GetPositions(ctx context.Context) (map[string]int64, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return c.venue.Positions(c.account), nil
}

func (c *LocalClient) GetPnL(ctx context.Context) (decimal.Decimal, error) {
	if err := c.ready(ctx); err != nil {
		return decimal.Zero, err
	}
	return c.venue.PnL(c.account), nil
}

func (c *LocalClient) PollNewTrades(ctx context.Context, instrument string) ([]market.Trade, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return c.venue.PollTrades(c.account, instrument)
}

func (c *LocalClient) PollNewTradeTicks(ctx context.Context, instrument string) ([]market.TradeTick, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return c.venue.PollTradeTicks(c.account, instrument)
}

func (c *LocalClient) GetTradeTickHistory(ctx context.Context, instrument string) ([]market.TradeTick, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return c.venue.TradeTickHistory(instrument)
}

func (c *LocalClient) GetOutstandingOrders(ctx context.Context, instrument string) (map[int64]market.OrderStatus, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return c.venue.OutstandingOrders(c.account, instrument)
}

// InsertOrder submits an order. Like the remote exchange, an order for an
// unlisted instrument ends the session.
func (c *LocalClient) InsertOrder(ctx context.Context, req market.OrderRequest) (market.InsertOrderResponse, error) {
	if err := c.ready(ctx); err != nil {
		return market.InsertOrderResponse{}, err
	}
	if err := c.waitThrottle(ctx); err != nil {
		return market.InsertOrderResponse{}, err
	}
	resp, err := c.venue.InsertOrder(c.account, req)
	if errors.Is(err, engine.ErrUnknownInstrument) {
		return market.InsertOrderResponse{}, c.terminate(err.Error())
	}
	return resp, err
}

func (c *LocalClient) DeleteOrder(ctx context.Context, instrument string, orderID int64) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	return c.venue.DeleteOrder(c.account, instrument, orderID)
}

var _ Client = (*LocalClient)(nil)
