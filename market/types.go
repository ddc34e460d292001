package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order. The zero value is unset.
type Side int

const (
	// Buy indicates a bid order.
	Buy Side = iota + 1
	// Sell indicates an ask order.
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "bid"
	case Sell:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return s
	}
}

// MarshalText encodes an unset side as the empty string.
func (s Side) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = 0
		return nil
	}
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSide accepts the usual spellings of both sides.
func ParseSide(value string) (Side, error) {
	switch strings.ToLower(value) {
	case "buy", "bid", "b":
		return Buy, nil
	case "sell", "ask", "s":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %s", value)
	}
}

// OrderType represents the execution style for an order. The zero value is
// unset.
type OrderType int

const (
	// Limit orders rest on the book until filled or deleted.
	Limit OrderType = iota + 1
	// IOC orders trade what they can at their limit price and drop the rest.
	IOC
	// Market orders consume available liquidity at any price.
	Market
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case IOC:
		return "ioc"
	case Market:
		return "market"
	default:
		return fmt.Sprintf("ordertype(%d)", int(t))
	}
}

func (t OrderType) Valid() bool {
	return t >= Limit && t <= Market
}

func (t OrderType) MarshalText() ([]byte, error) {
	if t == 0 {
		return []byte{}, nil
	}
	if !t.Valid() {
		return nil, fmt.Errorf("invalid order type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *OrderType) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = 0
		return nil
	}
	parsed, err := ParseOrderType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseOrderType accepts the usual spellings of the supported order types.
func ParseOrderType(value string) (OrderType, error) {
	switch strings.ToLower(value) {
	case "limit", "lmt":
		return Limit, nil
	case "ioc":
		return IOC, nil
	case "market", "mkt":
		return Market, nil
	default:
		return 0, fmt.Errorf("unknown order type %s", value)
	}
}

// Instrument is the tradable metadata published by the exchange.
type Instrument struct {
	ID       string          `json:"id"`
	TickSize decimal.Decimal `json:"tickSize"`
	Paused   bool            `json:"paused"`
}

// PriceVolume is one aggregated price level.
type PriceVolume struct {
	Price  decimal.Decimal `json:"price"`
	Volume int64           `json:"volume"`
}

// PriceBook holds bids from best (highest) to worst and asks from best
// (lowest) to worst.
type PriceBook struct {
	Instrument string        `json:"instrument"`
	Timestamp  time.Time     `json:"timestamp"`
	Bids       []PriceVolume `json:"bids"`
	Asks       []PriceVolume `json:"asks"`
}

// BestBid returns the top bid level, if any.
func (b *PriceBook) BestBid() (PriceVolume, bool) {
	if b == nil || len(b.Bids) == 0 {
		return PriceVolume{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level, if any.
func (b *PriceBook) BestAsk() (PriceVolume, bool) {
	if b == nil || len(b.Asks) == 0 {
		return PriceVolume{}, false
	}
	return b.Asks[0], true
}

// TwoSided reports whether the book exists with at least one bid and one ask.
func (b *PriceBook) TwoSided() bool {
	return b != nil && len(b.Bids) > 0 && len(b.Asks) > 0
}

// OrderRequest is an order insertion as sent by a client.
type OrderRequest struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Volume     int64           `json:"volume"`
	Side       Side            `json:"side"`
	Type       OrderType       `json:"type"`
}

// InsertOrderResponse reports the outcome of an order insertion. Rejections
// are not errors: Success is false and Reason says why.
type InsertOrderResponse struct {
	Success bool   `json:"success"`
	OrderID int64  `json:"orderId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// OrderStatus describes a live resting order.
type OrderStatus struct {
	OrderID    int64           `json:"orderId"`
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Volume     int64           `json:"volume"`
	Remaining  int64           `json:"remaining"`
	Side       Side            `json:"side"`
	Type       OrderType       `json:"type"`
}

// Trade is a fill of one of the caller's own orders.
type Trade struct {
	OrderID    int64           `json:"orderId"`
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Volume     int64           `json:"volume"`
	Side       Side            `json:"side"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TradeTick is a public fill seen by every participant.
type TradeTick struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Volume     int64           `json:"volume"`
	Aggressor  Side            `json:"aggressor"`
	Timestamp  time.Time       `json:"timestamp"`
}
