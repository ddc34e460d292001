package bots

import (
	"context"

	"github.com/shopspring/decimal"

	"ioctrader/exchange"
)

// Bot represents a trading agent that can be run under a supervisor.
type Bot interface {
	Start(ctx context.Context, client exchange.Client, listing Listing)
}

// Listing is the instrument a bot quotes. Reference anchors quotes while the
// book is empty.
type Listing struct {
	Instrument string
	TickSize   decimal.Decimal
	Reference  decimal.Decimal
}
