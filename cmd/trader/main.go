package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ioctrader/bots"
	"ioctrader/config"
	"ioctrader/exchange"
	"ioctrader/logging"
)

func main() {
	cfg, err := config.LoadTrader("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.LogFile != "" {
		logger, err = logging.NewLoggerWithFile(cfg.LogLevel, cfg.LogFile)
	} else {
		logger, err = logging.NewLogger(cfg.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	creds, err := exchange.LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		sugar.Fatalw("credentials", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := exchange.NewRemoteClient(creds, sugar.Named("exchange"))
	if err != nil {
		sugar.Fatalw("exchange client", "error", err)
	}
	if err := client.Connect(ctx); err != nil {
		sugar.Fatalw("connect failed", "url", creds.URL, "error", err)
	}
	defer client.Close()

	targets := make([]string, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets = append(targets, t.Instrument)
	}
	sugar.Infow("trader started", "targets", targets, "interval", cfg.Interval.String(), "account", creds.Username)

	runner := bots.NewRunner(client, cfg, sugar.Named("runner"))
	if err := runner.Run(ctx); err != nil {
		client.Close()
		sugar.Fatalw("session ended", "error", err)
	}
	sugar.Infow("trader stopped")
}
