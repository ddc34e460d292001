package bots

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ioctrader/exchange"
)

const pnlLogInterval = 2 * time.Second

// Supervisor runs a swarm of liquidity bots on every listing through one
// shared client and logs the swarm's PnL.
type Supervisor struct {
	client   exchange.Client
	listings []Listing
	logger   *zap.SugaredLogger
	newSwarm func() []Bot
}

// NewSupervisor builds the default swarm for each listing. client should be
// connected and may throttle order entry.
func NewSupervisor(client exchange.Client, listings []Listing, logger *zap.SugaredLogger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Supervisor{
		client:   client,
		listings: listings,
		logger:   logger,
		newSwarm: defaultSwarm,
	}
}

func defaultSwarm() []Bot {
	return []Bot{
		NewRandomBidBot(),
		NewRandomAskBot(),
		NewRandomBidBot(),
		NewRandomAskBot(),
		NewSpreadCaptureBot(),
	}
}

// Start launches all bots and PnL monitoring until the context is canceled,
// then waits for the bots to stop.
func (s *Supervisor) Start(ctx context.Context) {
	logTicker := time.NewTicker(pnlLogInterval)
	defer logTicker.Stop()

	var wg sync.WaitGroup
	for _, listing := range s.listings {
		for _, bot := range s.newSwarm() {
			wg.Add(1)
			go func(b Bot, l Listing) {
				defer wg.Done()
				b.Start(ctx, s.client, l)
			}(bot, listing)
		}
	}
	s.logger.Infow("liquidity bots started", "listings", len(s.listings))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-logTicker.C:
			s.logPnL(ctx)
		}
	}
}

func (s *Supervisor) logPnL(ctx context.Context) {
	pnl, err := s.client.GetPnL(ctx)
	if err != nil {
		s.logger.Warnw("liquidity pnl unavailable", "error", err)
		return
	}
	positions, err := s.client.GetPositions(ctx)
	if err != nil {
		s.logger.Warnw("liquidity positions unavailable", "error", err)
		return
	}
	s.logger.Infow("liquidity pnl", "pnl", pnl.StringFixed(2), "positions", positions)
}
