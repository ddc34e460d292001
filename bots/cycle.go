package bots

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ioctrader/config"
	"ioctrader/exchange"
	"ioctrader/market"
)

// Runner executes the threshold strategy on a fixed interval. It owns no
// state between cycles; positions and PnL live on the exchange.
type Runner struct {
	client   exchange.Client
	targets  []config.Target
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewRunner expects client to be connected already.
func NewRunner(client exchange.Client, cfg config.Trader, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		client:   client,
		targets:  cfg.Targets,
		interval: cfg.Interval,
		logger:   logger,
	}
}

// Run executes cycles until ctx is cancelled, sleeping Interval between them.
// A client error ends the session and is returned; cancellation returns nil.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if err := r.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.logger.Infow("iteration complete", "sleep", r.interval.String())

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle evaluates every target once. Unmet preconditions and rejected
// orders are logged; only client failures are returned.
func (r *Runner) RunCycle(ctx context.Context) error {
	instruments, err := r.client.GetInstruments(ctx)
	if err != nil {
		return fmt.Errorf("get instruments: %w", err)
	}
	for _, target := range r.targets {
		if err := r.trade(ctx, target, instruments); err != nil {
			return fmt.Errorf("%s: %w", target.Instrument, err)
		}
	}
	return nil
}

func (r *Runner) trade(ctx context.Context, target config.Target, instruments map[string]market.Instrument) error {
	log := r.logger.With("instrument", target.Instrument)

	inst, ok := instruments[target.Instrument]
	if !ok {
		log.Infow("instrument does not exist, unable to trade")
		return nil
	}
	if inst.Paused {
		log.Infow("instrument is paused, skipping cycle")
		return nil
	}

	book, err := r.client.GetLastPriceBook(ctx, target.Instrument)
	if err != nil {
		return fmt.Errorf("get price book: %w", err)
	}
	positions, err := r.client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}

	if !book.TwoSided() {
		log.Infow("no top bid/ask or no book at all")
	} else if req, ok := Decide(target, book, positions[target.Instrument]); ok {
		if err := r.insert(ctx, log, req); err != nil {
			return err
		}
	}

	return report(ctx, r.client, log, target.Instrument)
}

func (r *Runner) insert(ctx context.Context, log *zap.SugaredLogger, req market.OrderRequest) error {
	resp, err := r.client.InsertOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if !resp.Success {
		log.Infow("unable to insert order",
			"side", req.Side.String(), "price", req.Price.String(), "volume", req.Volume, "reason", resp.Reason)
		return nil
	}
	log.Infow("inserted order",
		"orderId", resp.OrderID, "side", req.Side.String(), "price", req.Price.String(), "volume", req.Volume)
	return nil
}
