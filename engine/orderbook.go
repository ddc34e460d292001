package engine

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"time"

	"ioctrader/market"
)

var (
	// ErrOrderNotFound is returned when cancelling an order that is not resting.
	ErrOrderNotFound = errors.New("order not found")
	// ErrBookStopped is returned for requests sent after Stop.
	ErrBookStopped = errors.New("order book stopped")
)

type requestType int

const (
	requestAdd requestType = iota
	requestCancel
	requestSnapshot
	requestOutstanding
	requestStop
)

type bookRequest struct {
	typ    requestType
	order  Order
	levels int
	resp   chan bookResponse
}

type bookResponse struct {
	exec   Execution
	view   BookView
	orders []Order
	err    error
}

// OrderBook maintains bids and asks for a single instrument using price-time
// priority. All mutations happen on one worker goroutine.
type OrderBook struct {
	cfg     OrderBookConfig
	bids    priceTimeQueue
	asks    priceTimeQueue
	orders  map[int64]*orderEntry
	seq     int64
	reqCh   chan bookRequest
	done    chan struct{}
	updates chan BookView
	now     func() time.Time
}

// NewOrderBook builds an order book and launches the worker loop.
func NewOrderBook(cfg OrderBookConfig) *OrderBook {
	ob := &OrderBook{
		cfg:     cfg,
		bids:    priceTimeQueue{},
		asks:    priceTimeQueue{},
		orders:  make(map[int64]*orderEntry),
		reqCh:   make(chan bookRequest, cfg.RequestBuffer),
		done:    make(chan struct{}),
		updates: make(chan BookView, 16),
		now:     time.Now,
	}
	heap.Init(&ob.bids)
	heap.Init(&ob.asks)
	go ob.run()
	return ob
}

func (ob *OrderBook) call(req bookRequest) bookResponse {
	req.resp = make(chan bookResponse, 1)
	select {
	case ob.reqCh <- req:
	case <-ob.done:
		return bookResponse{err: ErrBookStopped}
	}
	select {
	case res := <-req.resp:
		return res
	case <-ob.done:
		return bookResponse{err: ErrBookStopped}
	}
}

// SubmitOrder matches an order against the book and returns its execution.
func (ob *OrderBook) SubmitOrder(order Order) (Execution, error) {
	res := ob.call(bookRequest{typ: requestAdd, order: order})
	return res.exec, res.err
}

// CancelOrder removes a resting order by ID and returns it.
func (ob *OrderBook) CancelOrder(id int64) (Order, error) {
	res := ob.call(bookRequest{typ: requestCancel, order: Order{ID: id}})
	return res.exec.Order, res.err
}

// Snapshot returns up to levels aggregated price levels per side. A
// non-positive levels value returns the whole book.
func (ob *OrderBook) Snapshot(levels int) (BookView, error) {
	res := ob.call(bookRequest{typ: requestSnapshot, levels: levels})
	return res.view, res.err
}

// Outstanding returns copies of the resting orders belonging to owner, oldest
// first.
func (ob *OrderBook) Outstanding(owner string) ([]Order, error) {
	res := ob.call(bookRequest{typ: requestOutstanding, order: Order{Owner: owner}})
	return res.orders, res.err
}

// BookUpdates exposes a view of the book after every change, limited to
// UpdateLevels per side. Slow readers miss intermediate views but the last
// view queued always matches the book.
func (ob *OrderBook) BookUpdates() <-chan BookView {
	return ob.updates
}

// Stop terminates the worker loop. It is safe to call more than once.
func (ob *OrderBook) Stop() {
	select {
	case ob.reqCh <- bookRequest{typ: requestStop}:
		<-ob.done
	case <-ob.done:
	}
}

func (ob *OrderBook) run() {
	for req := range ob.reqCh {
		switch req.typ {
		case requestAdd:
			exec, err := ob.processAdd(req.order)
			req.resp <- bookResponse{exec: exec, err: err}
			if err == nil {
				ob.publishView()
			}
		case requestCancel:
			order, err := ob.processCancel(req.order.ID)
			req.resp <- bookResponse{exec: Execution{Order: order}, err: err}
			if err == nil {
				ob.publishView()
			}
		case requestSnapshot:
			req.resp <- bookResponse{view: ob.snapshotView(req.levels)}
		case requestOutstanding:
			req.resp <- bookResponse{orders: ob.ownedBy(req.order.Owner)}
		case requestStop:
			close(ob.updates)
			close(ob.done)
			return
		}
	}
}

func (ob *OrderBook) processAdd(order Order) (Execution, error) {
	if order.Instrument != ob.cfg.Instrument {
		return Execution{}, fmt.Errorf("order instrument %s does not match book %s", order.Instrument, ob.cfg.Instrument)
	}
	if !order.Side.Valid() || !order.Type.Valid() {
		return Execution{}, fmt.Errorf("order side %s or type %s is not set", order.Side, order.Type)
	}
	if order.Quantity <= 0 {
		return Execution{}, errors.New("order quantity must be positive")
	}
	if order.Type != market.Market && order.Price <= 0 {
		return Execution{}, errors.New("order price must be positive")
	}
	if _, exists := ob.orders[order.ID]; exists {
		return Execution{}, fmt.Errorf("order %d already resting", order.ID)
	}

	ob.seq++
	order.Sequence = ob.seq
	order.Timestamp = ob.now()
	order.Remaining = order.Quantity

	var exec Execution
	if order.Side == market.Buy {
		exec = ob.match(&order, &ob.asks, &ob.bids)
	} else {
		exec = ob.match(&order, &ob.bids, &ob.asks)
	}
	return exec, nil
}

func (ob *OrderBook) match(incoming *Order, opposing *priceTimeQueue, resting *priceTimeQueue) Execution {
	var fills []MatchResult
	for incoming.Remaining > 0 {
		best := opposing.peek()
		if best == nil {
			break
		}
		if incoming.Type != market.Market {
			if incoming.Side == market.Buy && incoming.Price < best.order.Price {
				break
			}
			if incoming.Side == market.Sell && incoming.Price > best.order.Price {
				break
			}
		}

		tradedQty := min(incoming.Remaining, best.order.Remaining)
		incoming.Remaining -= tradedQty
		best.order.Remaining -= tradedQty

		fill := MatchResult{
			Instrument: incoming.Instrument,
			Aggressor:  incoming.Side,
			Price:      best.order.Price,
			Quantity:   tradedQty,
			Timestamp:  ob.now(),
		}
		if incoming.Side == market.Buy {
			fill.BuyOrderID, fill.Buyer = incoming.ID, incoming.Owner
			fill.SellOrderID, fill.Seller = best.order.ID, best.order.Owner
		} else {
			fill.BuyOrderID, fill.Buyer = best.order.ID, best.order.Owner
			fill.SellOrderID, fill.Seller = incoming.ID, incoming.Owner
		}
		fills = append(fills, fill)

		if best.order.Remaining == 0 {
			heap.Pop(opposing)
			delete(ob.orders, best.order.ID)
		}
	}

	exec := Execution{Order: *incoming, Fills: fills}
	if incoming.Remaining > 0 && incoming.Type == market.Limit {
		stored := *incoming
		entry := &orderEntry{order: &stored, isBid: incoming.Side == market.Buy}
		heap.Push(resting, entry)
		ob.orders[incoming.ID] = entry
		trimDepth(resting, ob.cfg.MaxDepth, ob.orders)
		_, exec.Rested = ob.orders[incoming.ID]
	}
	return exec
}

func (ob *OrderBook) processCancel(id int64) (Order, error) {
	entry, ok := ob.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	if entry.isBid {
		ob.bids.remove(entry)
	} else {
		ob.asks.remove(entry)
	}
	delete(ob.orders, id)
	return *entry.order, nil
}

func (ob *OrderBook) snapshotView(levels int) BookView {
	return BookView{
		Instrument: ob.cfg.Instrument,
		Bids:       aggregate(ob.bids, levels),
		Asks:       aggregate(ob.asks, levels),
		Timestamp:  ob.now(),
	}
}

// aggregate collapses a queue into price levels ordered best first.
func aggregate(q priceTimeQueue, levels int) []Level {
	if len(q) == 0 {
		return nil
	}
	entries := make([]*orderEntry, len(q))
	copy(entries, q)
	sorted := priceTimeQueue(entries)
	sort.Slice(entries, func(i, j int) bool { return sorted.Less(i, j) })

	var out []Level
	for _, entry := range entries {
		if n := len(out); n > 0 && out[n-1].Price == entry.order.Price {
			out[n-1].Volume += entry.order.Remaining
			continue
		}
		if levels > 0 && len(out) == levels {
			break
		}
		out = append(out, Level{Price: entry.order.Price, Volume: entry.order.Remaining})
	}
	return out
}

func (ob *OrderBook) ownedBy(owner string) []Order {
	var out []Order
	for _, entry := range ob.orders {
		if entry.order.Owner == owner {
			out = append(out, *entry.order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// publishView queues the current view, evicting the oldest queued one when
// the reader has fallen behind. The worker is the only sender, so the loop
// ends as soon as a slot frees up.
func (ob *OrderBook) publishView() {
	view := ob.snapshotView(ob.cfg.UpdateLevels)
	for {
		select {
		case ob.updates <- view:
			return
		default:
		}
		select {
		case <-ob.updates:
		default:
		}
	}
}
