package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ioctrader/market"
)

// ErrUnknownInstrument is returned for requests naming an instrument the venue
// does not list.
var ErrUnknownInstrument = errors.New("unknown instrument")

// InstrumentConfig lists one tradable instrument.
type InstrumentConfig struct {
	ID       string
	TickSize decimal.Decimal
	Paused   bool
}

// VenueConfig controls the simulated exchange.
type VenueConfig struct {
	Instruments []InstrumentConfig
	MaxDepth    int
	// BookLevels caps the levels per side in published price books; zero
	// publishes the whole book.
	BookLevels int
	// PositionLimit rejects orders that could take an absolute position past
	// it; zero disables the check.
	PositionLimit int64
}

// Publisher receives book and trade events as they happen. Implementations
// must not block.
type Publisher interface {
	PublishBook(book market.PriceBook)
	PublishTick(tick market.TradeTick)
}

// Journal persists public trade ticks so history survives restarts.
type Journal interface {
	Append(tick market.TradeTick) error
	Load(instrument string) ([]market.TradeTick, error)
}

// Option customizes a Venue.
type Option func(*Venue)

// WithPublisher streams book and tick events to p.
func WithPublisher(p Publisher) Option {
	return func(v *Venue) { v.publisher = p }
}

// WithJournal records ticks to j and replays its history on start.
func WithJournal(j Journal) Option {
	return func(v *Venue) { v.journal = j }
}

// WithLogger sets the logger used for journal failures.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *Venue) { v.logger = l }
}

// WithClock overrides the time source of the venue and its books.
func WithClock(now func() time.Time) Option {
	return func(v *Venue) { v.now = now }
}

type listing struct {
	info   market.Instrument
	book   *OrderBook
	ticks  []market.TradeTick
	last   decimal.Decimal
	traded bool
}

type account struct {
	positions map[string]int64
	cash      decimal.Decimal
	fills     map[string][]market.Trade
	cursors   map[string]int
}

// Venue is a multi-instrument exchange simulation. It owns one OrderBook per
// instrument and keeps positions, cash and trade history per account.
type Venue struct {
	mu        sync.Mutex
	cfg       VenueConfig
	listings  map[string]*listing
	accounts  map[string]*account
	nextID    int64
	publisher Publisher
	journal   Journal
	logger    *zap.SugaredLogger
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewVenue builds the books for every configured instrument.
func NewVenue(cfg VenueConfig, opts ...Option) (*Venue, error) {
	v := &Venue{
		cfg:      cfg,
		listings: make(map[string]*listing),
		accounts: make(map[string]*account),
		logger:   zap.NewNop().Sugar(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	for _, ic := range cfg.Instruments {
		if ic.ID == "" {
			v.Close()
			return nil, errors.New("instrument id is required")
		}
		if !ic.TickSize.IsPositive() {
			v.Close()
			return nil, fmt.Errorf("instrument %s: tick size must be positive", ic.ID)
		}
		if _, dup := v.listings[ic.ID]; dup {
			v.Close()
			return nil, fmt.Errorf("instrument %s listed twice", ic.ID)
		}
		book := NewOrderBook(OrderBookConfig{Instrument: ic.ID, MaxDepth: cfg.MaxDepth, UpdateLevels: cfg.BookLevels})
		book.now = v.now
		l := &listing{info: market.Instrument{ID: ic.ID, TickSize: ic.TickSize, Paused: ic.Paused}, book: book}
		v.listings[ic.ID] = l

		if v.journal != nil {
			history, err := v.journal.Load(ic.ID)
			if err != nil {
				v.Close()
				return nil, fmt.Errorf("replay %s: %w", ic.ID, err)
			}
			l.ticks = history
			if n := len(history); n > 0 {
				l.last, l.traded = history[n-1].Price, true
			}
		}
		if v.publisher != nil {
			v.wg.Add(1)
			go v.forwardUpdates(l)
		}
	}
	return v, nil
}

// Close stops every book.
func (v *Venue) Close() {
	for _, l := range v.listings {
		l.book.Stop()
	}
	v.wg.Wait()
}

func (v *Venue) forwardUpdates(l *listing) {
	defer v.wg.Done()
	for view := range l.book.BookUpdates() {
		v.publisher.PublishBook(toPriceBook(view, l.info.TickSize))
	}
}

// Instruments returns the listed instruments keyed by id.
func (v *Venue) Instruments() map[string]market.Instrument {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]market.Instrument, len(v.listings))
	for id, l := range v.listings {
		out[id] = l.info
	}
	return out
}

// SetPaused pauses or resumes trading in an instrument.
func (v *Venue) SetPaused(instrument string, paused bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, err := v.listing(instrument)
	if err != nil {
		return err
	}
	l.info.Paused = paused
	return nil
}

// PriceBook returns the current aggregated book for an instrument.
func (v *Venue) PriceBook(instrument string) (*market.PriceBook, error) {
	v.mu.Lock()
	l, err := v.listing(instrument)
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	view, err := l.book.Snapshot(v.cfg.BookLevels)
	if err != nil {
		return nil, err
	}
	book := toPriceBook(view, l.info.TickSize)
	return &book, nil
}

// InsertOrder validates and matches an order for owner. Business rejections
// come back as an unsuccessful response; an unknown instrument is an error.
func (v *Venue) InsertOrder(owner string, req market.OrderRequest) (market.InsertOrderResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	l, err := v.listing(req.Instrument)
	if err != nil {
		return market.InsertOrderResponse{}, err
	}
	if l.info.Paused {
		return reject("instrument %s is paused", req.Instrument), nil
	}
	if !req.Side.Valid() {
		return reject("side is required"), nil
	}
	if !req.Type.Valid() {
		return reject("order type is required"), nil
	}
	if req.Volume <= 0 {
		return reject("volume must be positive"), nil
	}
	var ticks int64
	if req.Type != market.Market {
		ticks, err = toTicks(req.Price, l.info.TickSize)
		if err != nil {
			return reject("%v", err), nil
		}
	}

	acct := v.account(owner)
	if limit := v.cfg.PositionLimit; limit > 0 {
		projected := acct.positions[req.Instrument] + signed(req.Side, req.Volume)
		if projected > limit || projected < -limit {
			return reject("order would breach position limit %d", limit), nil
		}
	}

	v.nextID++
	exec, err := l.book.SubmitOrder(Order{
		ID:         v.nextID,
		Instrument: req.Instrument,
		Owner:      owner,
		Side:       req.Side,
		Type:       req.Type,
		Price:      ticks,
		Quantity:   req.Volume,
	})
	if err != nil {
		if errors.Is(err, ErrBookStopped) {
			return market.InsertOrderResponse{}, err
		}
		return reject("%v", err), nil
	}
	for _, fill := range exec.Fills {
		v.settle(l, fill)
	}
	return market.InsertOrderResponse{Success: true, OrderID: exec.Order.ID}, nil
}

// DeleteOrder removes one of owner's resting orders.
func (v *Venue) DeleteOrder(owner, instrument string, orderID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, err := v.listing(instrument)
	if err != nil {
		return err
	}
	resting, err := l.book.Outstanding(owner)
	if err != nil {
		return err
	}
	for _, o := range resting {
		if o.ID == orderID {
			_, err := l.book.CancelOrder(orderID)
			return err
		}
	}
	return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
}

// OutstandingOrders returns owner's resting orders in an instrument.
func (v *Venue) OutstandingOrders(owner, instrument string) (map[int64]market.OrderStatus, error) {
	v.mu.Lock()
	l, err := v.listing(instrument)
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	resting, err := l.book.Outstanding(owner)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]market.OrderStatus, len(resting))
	for _, o := range resting {
		out[o.ID] = market.OrderStatus{
			OrderID:    o.ID,
			Instrument: o.Instrument,
			Price:      fromTicks(o.Price, l.info.TickSize),
			Volume:     o.Quantity,
			Remaining:  o.Remaining,
			Side:       o.Side,
			Type:       o.Type,
		}
	}
	return out, nil
}

// Positions returns owner's position in every listed instrument.
func (v *Venue) Positions(owner string) map[string]int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	acct := v.account(owner)
	out := make(map[string]int64, len(v.listings))
	for id := range v.listings {
		out[id] = acct.positions[id]
	}
	return out
}

// PnL returns owner's cash plus positions marked at the last traded price.
func (v *Venue) PnL(owner string) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	acct := v.account(owner)
	pnl := acct.cash
	for id, pos := range acct.positions {
		if l, ok := v.listings[id]; ok && l.traded {
			pnl = pnl.Add(l.last.Mul(decimal.NewFromInt(pos)))
		}
	}
	return pnl
}

// PollTrades returns owner's fills in an instrument since the previous poll.
func (v *Venue) PollTrades(owner, instrument string) ([]market.Trade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.listing(instrument); err != nil {
		return nil, err
	}
	acct := v.account(owner)
	trades := acct.fills[instrument]
	delete(acct.fills, instrument)
	return trades, nil
}

// PollTradeTicks returns the public ticks in an instrument that owner has not
// polled yet. A new account starts at the end of the existing history.
func (v *Venue) PollTradeTicks(owner, instrument string) ([]market.TradeTick, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, err := v.listing(instrument)
	if err != nil {
		return nil, err
	}
	acct := v.account(owner)
	from := acct.cursors[instrument]
	acct.cursors[instrument] = len(l.ticks)
	if from >= len(l.ticks) {
		return nil, nil
	}
	out := make([]market.TradeTick, len(l.ticks)-from)
	copy(out, l.ticks[from:])
	return out, nil
}

// TradeTickHistory returns every public tick in an instrument.
func (v *Venue) TradeTickHistory(instrument string) ([]market.TradeTick, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, err := v.listing(instrument)
	if err != nil {
		return nil, err
	}
	out := make([]market.TradeTick, len(l.ticks))
	copy(out, l.ticks)
	return out, nil
}

// InstrumentIDs returns the listed ids in lexical order.
func (v *Venue) InstrumentIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]string, 0, len(v.listings))
	for id := range v.listings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (v *Venue) listing(instrument string) (*listing, error) {
	l, ok := v.listings[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	return l, nil
}

func (v *Venue) account(owner string) *account {
	acct, ok := v.accounts[owner]
	if ok {
		return acct
	}
	acct = &account{
		positions: make(map[string]int64),
		fills:     make(map[string][]market.Trade),
		cursors:   make(map[string]int, len(v.listings)),
	}
	for id, l := range v.listings {
		acct.cursors[id] = len(l.ticks)
	}
	v.accounts[owner] = acct
	return acct
}

// settle applies one fill to both counterparties and records the public tick.
func (v *Venue) settle(l *listing, fill MatchResult) {
	price := fromTicks(fill.Price, l.info.TickSize)
	notional := price.Mul(decimal.NewFromInt(fill.Quantity))

	buyer := v.account(fill.Buyer)
	buyer.positions[fill.Instrument] += fill.Quantity
	buyer.cash = buyer.cash.Sub(notional)
	buyer.fills[fill.Instrument] = append(buyer.fills[fill.Instrument], market.Trade{
		OrderID:    fill.BuyOrderID,
		Instrument: fill.Instrument,
		Price:      price,
		Volume:     fill.Quantity,
		Side:       market.Buy,
		Timestamp:  fill.Timestamp,
	})

	seller := v.account(fill.Seller)
	seller.positions[fill.Instrument] -= fill.Quantity
	seller.cash = seller.cash.Add(notional)
	seller.fills[fill.Instrument] = append(seller.fills[fill.Instrument], market.Trade{
		OrderID:    fill.SellOrderID,
		Instrument: fill.Instrument,
		Price:      price,
		Volume:     fill.Quantity,
		Side:       market.Sell,
		Timestamp:  fill.Timestamp,
	})

	tick := market.TradeTick{
		Instrument: fill.Instrument,
		Price:      price,
		Volume:     fill.Quantity,
		Aggressor:  fill.Aggressor,
		Timestamp:  fill.Timestamp,
	}
	l.ticks = append(l.ticks, tick)
	l.last, l.traded = price, true

	if v.journal != nil {
		if err := v.journal.Append(tick); err != nil {
			v.logger.Warnw("journal_append_failed", "instrument", tick.Instrument, "err", err)
		}
	}
	if v.publisher != nil {
		v.publisher.PublishTick(tick)
	}
}

func reject(format string, args ...any) market.InsertOrderResponse {
	return market.InsertOrderResponse{Success: false, Reason: fmt.Sprintf(format, args...)}
}

func signed(side market.Side, volume int64) int64 {
	if side == market.Sell {
		return -volume
	}
	return volume
}

func toTicks(price, tick decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, fmt.Errorf("price %s must be positive", price)
	}
	if !price.Mod(tick).IsZero() {
		return 0, fmt.Errorf("price %s is not a multiple of tick size %s", price, tick)
	}
	return price.Div(tick).IntPart(), nil
}

func fromTicks(ticks int64, tick decimal.Decimal) decimal.Decimal {
	return tick.Mul(decimal.NewFromInt(ticks))
}

func toPriceBook(view BookView, tick decimal.Decimal) market.PriceBook {
	book := market.PriceBook{
		Instrument: view.Instrument,
		Timestamp:  view.Timestamp,
		Bids:       make([]market.PriceVolume, 0, len(view.Bids)),
		Asks:       make([]market.PriceVolume, 0, len(view.Asks)),
	}
	for _, lvl := range view.Bids {
		book.Bids = append(book.Bids, market.PriceVolume{Price: fromTicks(lvl.Price, tick), Volume: lvl.Volume})
	}
	for _, lvl := range view.Asks {
		book.Asks = append(book.Asks, market.PriceVolume{Price: fromTicks(lvl.Price, tick), Volume: lvl.Volume})
	}
	return book
}
