package bots

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"ioctrader/exchange"
	"ioctrader/market"
)

// report logs activity since the previous report along with PnL, positions
// and resting orders. Polling resets the exchange's trade cursors.
func report(ctx context.Context, client exchange.Client, log *zap.SugaredLogger, instrument string) error {
	pnl, err := client.GetPnL(ctx)
	if err != nil {
		return fmt.Errorf("get pnl: %w", err)
	}
	positions, err := client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}
	trades, err := client.PollNewTrades(ctx, instrument)
	if err != nil {
		return fmt.Errorf("poll trades: %w", err)
	}
	ticks, err := client.PollNewTradeTicks(ctx, instrument)
	if err != nil {
		return fmt.Errorf("poll trade ticks: %w", err)
	}
	orders, err := client.GetOutstandingOrders(ctx, instrument)
	if err != nil {
		return fmt.Errorf("get outstanding orders: %w", err)
	}

	log.Infow("status report",
		"myTrades", len(trades),
		"marketTrades", len(ticks),
		"pnl", pnl.StringFixed(2),
		"positions", positions,
		"orders", describeOrders(orders),
	)
	return nil
}

func describeOrders(orders map[int64]market.OrderStatus) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, fmt.Sprintf("%d:%s %d/%d@%s", o.OrderID, o.Side, o.Remaining, o.Volume, o.Price))
	}
	sort.Strings(out)
	return out
}
