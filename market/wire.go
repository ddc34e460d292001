package market

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Feed message types.
const (
	FeedBook = "book"
	FeedTick = "tick"
)

// FeedMessage is one frame of the websocket feed.
type FeedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// APIError is the body of every non-2xx exchange response. Terminated is set
// when the exchange ended the caller's session.
type APIError struct {
	Error      string `json:"error"`
	Terminated bool   `json:"terminated,omitempty"`
}

type Session struct {
	Account string `json:"account"`
}

type PnL struct {
	PnL decimal.Decimal `json:"pnl"`
}
