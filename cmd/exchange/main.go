package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"go.uber.org/zap"

	"ioctrader/bots"
	"ioctrader/config"
	"ioctrader/engine"
	"ioctrader/exchange"
	"ioctrader/logging"
	"ioctrader/server"
	"ioctrader/storage"
)

func main() {
	cfg, err := config.LoadExchange("")
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

	if cfg.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "ioctrader.exchange",
			ServerAddress:   cfg.PyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			sugar.Fatalw("pyroscope start failed", "error", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	feed := server.NewFeed(sugar.Named("feed"))
	opts := []engine.Option{engine.WithPublisher(feed), engine.WithLogger(sugar.Named("venue"))}
	if cfg.JournalDir != "" {
		journal, err := storage.OpenTickJournal(cfg.JournalDir)
		if err != nil {
			sugar.Fatalw("open tick journal", "dir", cfg.JournalDir, "error", err)
		}
		defer journal.Close()
		opts = append(opts, engine.WithJournal(journal))
		sugar.Infow("tick journal opened", "dir", cfg.JournalDir)
	}

	venueCfg := engine.VenueConfig{
		MaxDepth:      cfg.MaxDepth,
		BookLevels:    cfg.BookLevels,
		PositionLimit: cfg.PositionLimit,
	}
	listings := make([]bots.Listing, 0, len(cfg.Listings))
	for _, l := range cfg.Listings {
		venueCfg.Instruments = append(venueCfg.Instruments, engine.InstrumentConfig{ID: l.ID, TickSize: l.TickSize})
		listings = append(listings, bots.Listing{Instrument: l.ID, TickSize: l.TickSize, Reference: l.ReferencePrice})
	}
	venue, err := engine.NewVenue(venueCfg, opts...)
	if err != nil {
		sugar.Fatalw("venue", "error", err)
	}
	defer venue.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botsDone := make(chan struct{})
	if cfg.LiquidityBots {
		throttle := time.NewTicker(cfg.OrderInterval)
		defer throttle.Stop()
		client := exchange.NewLocalClient(venue, cfg.LiquidityAccount, throttle.C)
		if err := client.Connect(ctx); err != nil {
			sugar.Fatalw("liquidity client", "error", err)
		}
		sup := bots.NewSupervisor(client, listings, sugar.Named("liquidity"))
		go func() {
			sup.Start(ctx)
			close(botsDone)
		}()
	} else {
		close(botsDone)
	}

	srv := server.New(venue, feed, server.Config{Accounts: cfg.Accounts, CORSOrigins: cfg.CORSOrigins}, sugar.Named("api"))
	sugar.Infow("exchange starting", "addr", cfg.ListenAddr, "instruments", venue.InstrumentIDs(), "accounts", len(cfg.Accounts))
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		sugar.Errorw("api server stopped", "error", err)
		stop()
	}
	<-botsDone
	sugar.Infow("exchange stopped")
}
