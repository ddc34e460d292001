package engine

import (
	"time"

	"ioctrader/market"
)

// Order describes a request to trade an instrument. Prices are expressed in
// ticks; the venue converts to and from decimal prices.
type Order struct {
	ID         int64
	Instrument string
	Owner      string
	Side       market.Side
	Type       market.OrderType
	Price      int64 // expressed in ticks
	Quantity   int64
	Remaining  int64
	Timestamp  time.Time
	Sequence   int64
}

// Level is an aggregated price level in ticks.
type Level struct {
	Price  int64
	Volume int64
}

// BookView summarizes the best levels of a book.
type BookView struct {
	Instrument string
	Bids       []Level
	Asks       []Level
	Timestamp  time.Time
}

// MatchResult captures a completed trade.
type MatchResult struct {
	Instrument  string
	BuyOrderID  int64
	SellOrderID int64
	Buyer       string
	Seller      string
	Aggressor   market.Side
	Price       int64
	Quantity    int64
	Timestamp   time.Time
}

// Execution is the outcome of a submitted order: the order as it stands after
// matching and the fills it produced.
type Execution struct {
	Order  Order
	Fills  []MatchResult
	Rested bool
}

// OrderBookConfig controls book parameters.
type OrderBookConfig struct {
	Instrument    string
	MaxDepth      int
	RequestBuffer int
	UpdateLevels  int
}
