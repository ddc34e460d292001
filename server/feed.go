package server

import (
	"go.uber.org/zap"

	"ioctrader/market"
)

const feedBuffer = 256

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Feed fans venue events out to websocket subscribers. It implements
// engine.Publisher.
type Feed struct {
	hub    *hub[outboundMessage]
	logger *zap.SugaredLogger
}

func NewFeed(logger *zap.SugaredLogger) *Feed {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Feed{hub: newHub[outboundMessage](), logger: logger}
}

// PublishBook queues book for every subscriber. A book still waiting to be
// written is replaced by the newer one for the same instrument.
func (f *Feed) PublishBook(book market.PriceBook) {
	f.hub.Broadcast(book.Instrument, outboundMessage{Type: market.FeedBook, Data: book})
}

func (f *Feed) PublishTick(tick market.TradeTick) {
	f.hub.Broadcast("", outboundMessage{Type: market.FeedTick, Data: tick})
}

// Disconnect closes every feed connection of account.
func (f *Feed) Disconnect(account, reason string) {
	if n := f.hub.Disconnect(account, reason); n > 0 {
		f.logger.Infow("feed disconnected", "account", account, "connections", n, "reason", reason)
	}
}

// Subscribers returns the number of open feed connections.
func (f *Feed) Subscribers() int {
	return f.hub.Len()
}
