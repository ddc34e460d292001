package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Target is one instrument the trader watches together with its static
// thresholds.
type Target struct {
	Instrument string
	// SellAbove: sell when the best bid is strictly above it.
	SellAbove decimal.Decimal
	// BuyBelow: buy when the best ask is strictly below it.
	BuyBelow      decimal.Decimal
	TickOffset    decimal.Decimal
	MaxSellVolume int64
	BuyVolume     int64
	PositionCap   int64
}

type Trader struct {
	Targets  []Target
	Interval time.Duration
	// CredentialsPath overrides the default credentials file location.
	CredentialsPath string
	LogFile         string
	LogLevel        string
}

// DefaultTrader returns the settings the trader ships with.
func DefaultTrader() Trader {
	return Trader{
		Targets: []Target{{
			Instrument:    "SMALL_CHIPS",
			SellAbove:     decimal.RequireFromString("117.5"),
			BuyBelow:      decimal.RequireFromString("117"),
			TickOffset:    decimal.RequireFromString("0.1"),
			MaxSellVolume: 20,
			BuyVolume:     20,
			PositionCap:   30,
		}},
		Interval: 8 * time.Second,
	}
}

// LoadTrader loads the trader configuration from a .env file (if it exists) and
// environment variables.
// Priority: ENV > .env file > defaults. The TRADER_* scalars describe a single
// target; TRADER_TARGETS lists several, each starting from those scalars.
func LoadTrader(envPath string) (Trader, error) {
	loadDotEnv(envPath)
	cfg := DefaultTrader()
	p := &parser{}

	target := &cfg.Targets[0]
	target.Instrument = getEnv("TRADER_INSTRUMENT", target.Instrument)
	target.SellAbove = p.decimal("TRADER_SELL_ABOVE", target.SellAbove)
	target.BuyBelow = p.decimal("TRADER_BUY_BELOW", target.BuyBelow)
	target.TickOffset = p.decimal("TRADER_TICK_OFFSET", target.TickOffset)
	target.MaxSellVolume = p.int64("TRADER_MAX_SELL_VOLUME", target.MaxSellVolume)
	target.BuyVolume = p.int64("TRADER_BUY_VOLUME", target.BuyVolume)
	target.PositionCap = p.int64("TRADER_POSITION_CAP", target.PositionCap)
	if v := os.Getenv("TRADER_TARGETS"); v != "" {
		cfg.Targets = p.targets("TRADER_TARGETS", v, *target)
	}
	cfg.Interval = p.millis("TRADER_INTERVAL_MS", cfg.Interval)
	cfg.CredentialsPath = getEnv("EXCHANGE_CREDENTIALS", cfg.CredentialsPath)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := p.err(); err != nil {
		return Trader{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the trader settings for values the decision rule cannot use.
func (c Trader) Validate() error {
	if len(c.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Instrument == "" {
			return errors.New("target instrument is required")
		}
		if seen[t.Instrument] {
			return fmt.Errorf("target %s listed twice", t.Instrument)
		}
		seen[t.Instrument] = true
		if t.MaxSellVolume <= 0 || t.BuyVolume <= 0 {
			return fmt.Errorf("target %s: volumes must be positive", t.Instrument)
		}
		if t.TickOffset.IsNegative() {
			return fmt.Errorf("target %s: tick offset must not be negative", t.Instrument)
		}
	}
	return nil
}

// Listing configures one instrument of the exchange simulation.
type Listing struct {
	ID       string
	TickSize decimal.Decimal
	// ReferencePrice anchors the liquidity bots while the book is empty.
	ReferencePrice decimal.Decimal
}

type Exchange struct {
	ListenAddr    string
	Listings      []Listing
	Accounts      map[string]string
	MaxDepth      int
	BookLevels    int
	PositionLimit int64
	JournalDir    string
	CORSOrigins   []string

	LiquidityBots    bool
	LiquidityAccount string
	OrderInterval    time.Duration

	PyroscopeAddr string
	LogFile       string
	LogLevel      string
}

// DefaultExchange returns a two-instrument simulation with one trading account.
func DefaultExchange() Exchange {
	return Exchange{
		ListenAddr: ":8080",
		Listings: []Listing{
			{ID: "SMALL_CHIPS", TickSize: decimal.RequireFromString("0.1"), ReferencePrice: decimal.RequireFromString("117.2")},
			{ID: "TECH_INC", TickSize: decimal.RequireFromString("0.1"), ReferencePrice: decimal.RequireFromString("273.6")},
		},
		Accounts:         map[string]string{"trader": "trader"},
		MaxDepth:         100,
		BookLevels:       10,
		PositionLimit:    100,
		CORSOrigins:      []string{"*"},
		LiquidityBots:    true,
		LiquidityAccount: "liquidity",
		OrderInterval:    50 * time.Millisecond,
	}
}

// LoadExchange loads the simulation configuration from a .env file (if it
// exists) and environment variables.
func LoadExchange(envPath string) (Exchange, error) {
	loadDotEnv(envPath)
	cfg := DefaultExchange()
	p := &parser{}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		cfg.Listings = p.listings("INSTRUMENTS", v)
	}
	if v := os.Getenv("ACCOUNTS"); v != "" {
		cfg.Accounts = p.accounts("ACCOUNTS", v)
	}
	cfg.MaxDepth = int(p.int64("MAX_DEPTH", int64(cfg.MaxDepth)))
	cfg.BookLevels = int(p.int64("BOOK_LEVELS", int64(cfg.BookLevels)))
	cfg.PositionLimit = p.int64("POSITION_LIMIT", cfg.PositionLimit)
	cfg.JournalDir = getEnv("JOURNAL_DIR", cfg.JournalDir)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	cfg.LiquidityBots = p.bool("LIQUIDITY_BOTS", cfg.LiquidityBots)
	cfg.LiquidityAccount = getEnv("LIQUIDITY_ACCOUNT", cfg.LiquidityAccount)
	cfg.OrderInterval = p.millis("ORDER_INTERVAL_MS", cfg.OrderInterval)
	cfg.PyroscopeAddr = getEnv("PYROSCOPE_ADDR", cfg.PyroscopeAddr)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := p.err(); err != nil {
		return Exchange{}, err
	}
	if len(cfg.Listings) == 0 {
		return Exchange{}, errors.New("at least one instrument is required")
	}
	return cfg, nil
}

func loadDotEnv(envPath string) {
	// Optional: a missing .env file is not an error.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every invalid variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s value %q: %w", key, value, err))
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) int64(key string, def int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return parsed
}

func (p *parser) bool(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return parsed
}

func (p *parser) millis(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (p *parser) decimal(key string, def decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return parsed
}

// listings parses "ID:TICK:REFERENCE" entries separated by commas.
func (p *parser) listings(key, value string) []Listing {
	var out []Listing
	for _, entry := range splitList(value) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			p.fail(key, entry, errors.New("want ID:TICK:REFERENCE"))
			continue
		}
		tick, err := decimal.NewFromString(parts[1])
		if err != nil {
			p.fail(key, entry, err)
			continue
		}
		ref, err := decimal.NewFromString(parts[2])
		if err != nil {
			p.fail(key, entry, err)
			continue
		}
		out = append(out, Listing{ID: parts[0], TickSize: tick, ReferencePrice: ref})
	}
	return out
}

// targets parses "ID:SELL_ABOVE:BUY_BELOW[:TICK_OFFSET[:MAX_SELL[:BUY[:CAP]]]]"
// entries separated by commas. Omitted fields come from base.
func (p *parser) targets(key, value string, base Target) []Target {
	var out []Target
	for _, entry := range splitList(value) {
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 7 || parts[0] == "" {
			p.fail(key, entry, errors.New("want ID:SELL_ABOVE:BUY_BELOW[:TICK_OFFSET:MAX_SELL:BUY:CAP]"))
			continue
		}
		t := base
		t.Instrument = parts[0]
		decimals := []*decimal.Decimal{&t.SellAbove, &t.BuyBelow, &t.TickOffset}
		ints := []*int64{&t.MaxSellVolume, &t.BuyVolume, &t.PositionCap}
		var err error
		for i, field := range parts[1:] {
			if i < len(decimals) {
				*decimals[i], err = decimal.NewFromString(field)
			} else {
				*ints[i-len(decimals)], err = strconv.ParseInt(field, 10, 64)
			}
			if err != nil {
				break
			}
		}
		if err != nil {
			p.fail(key, entry, err)
			continue
		}
		out = append(out, t)
	}
	return out
}

// accounts parses "user:password" entries separated by commas.
func (p *parser) accounts(key, value string) map[string]string {
	out := make(map[string]string)
	for _, entry := range splitList(value) {
		user, pass, ok := strings.Cut(entry, ":")
		if !ok || user == "" {
			p.fail(key, entry, errors.New("want user:password"))
			continue
		}
		out[user] = pass
	}
	return out
}
