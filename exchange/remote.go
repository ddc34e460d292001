package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ioctrader/market"
)

const (
	apiPrefix    = "/api/v1"
	feedPath     = "/ws/feed"
	requestLimit = 10 * time.Second
)

// RemoteClient is a session with an exchange server. Requests use REST with
// basic auth. Price books arrive over the websocket feed and the latest one
// per instrument is cached.
type RemoteClient struct {
	creds  Credentials
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	logger *zap.SugaredLogger

	mu        sync.Mutex
	books     map[string]market.PriceBook
	conn      *websocket.Conn
	connected bool
	closed    bool
	reason    string
	feedDone  chan struct{}
}

// NewRemoteClient validates the exchange URL. No connection is made until
// Connect.
func NewRemoteClient(creds Credentials, logger *zap.SugaredLogger) (*RemoteClient, error) {
	base, err := url.Parse(strings.TrimRight(creds.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse exchange url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("exchange url %q: scheme must be http or https", creds.URL)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RemoteClient{
		creds:  creds,
		base:   base,
		http:   &http.Client{Timeout: requestLimit},
		dialer: &websocket.Dialer{HandshakeTimeout: requestLimit},
		logger: logger,
		books:  make(map[string]market.PriceBook),
	}, nil
}

// Connect checks the credentials and subscribes to the price book feed.
func (c *RemoteClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.closedErr()
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var session market.Session
	if err := c.do(ctx, http.MethodGet, "/session", nil, &session); err != nil {
		return fmt.Errorf("connect to %s: %w", c.base, err)
	}

	header := http.Header{}
	header.Set("Authorization", basicAuth(c.creds))
	conn, resp, err := c.dialer.DialContext(ctx, c.feedURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("subscribe to feed: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.feedDone = done
	c.mu.Unlock()

	go c.readFeed(conn, done)
	c.logger.Infow("connected to exchange", "url", c.base.String(), "account", session.Account)
	return nil
}

// Close ends the session and waits for the feed reader to exit.
func (c *RemoteClient) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.feedDone
	c.conn = nil
	if !c.closed {
		c.closed = true
		c.reason = "closed by client"
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	<-done
	return err
}

func (c *RemoteClient) readFeed(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var msg market.FeedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			reason := "feed closed"
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Text != "" {
				reason = closeErr.Text
			}
			c.mu.Lock()
			if !c.closed {
				c.closed = true
				c.reason = reason
				c.logger.Warnw("exchange feed ended", "reason", reason, "error", err)
			}
			c.mu.Unlock()
			return
		}
		if msg.Type != market.FeedBook {
			continue
		}
		var book market.PriceBook
		if err := json.Unmarshal(msg.Data, &book); err != nil {
			c.logger.Warnw("dropping malformed book", "error", err)
			continue
		}
		c.storeBook(book, true)
	}
}

func (c *RemoteClient) storeBook(book market.PriceBook, fromFeed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.books[book.Instrument]
	if ok && (!fromFeed || book.Timestamp.Before(current.Timestamp)) {
		return
	}
	c.books[book.Instrument] = book
}

func (c *RemoteClient) closedErr() error {
	return fmt.Errorf("%w: %s", ErrSessionClosed, c.reason)
}

func (c *RemoteClient) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.closedErr()
	}
	if !c.connected {
		return ErrNotConnected
	}
	return nil
}

func (c *RemoteClient) terminate(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reason = reason
	return c.closedErr()
}

func (c *RemoteClient) GetInstruments(ctx context.Context) (map[string]market.Instrument, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	var out map[string]market.Instrument
	if err := c.do(ctx, http.MethodGet, "/instruments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLastPriceBook serves the feed cache and falls back to a REST snapshot
// for instruments the feed has not mentioned yet.
func (c *RemoteClient) GetLastPriceBook(ctx context.Context, instrument string) (*market.PriceBook, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	cached, ok := c.books[instrument]
	c.mu.Unlock()
	if ok {
		return &cached, nil
	}

	var book market.PriceBook
	err := c.do(ctx, http.MethodGet, instrumentPath(instrument, "book"), nil, &book)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.storeBook(book, false)
	return &book, nil
}

func (c *RemoteClient) GetPositions(ctx context.Context) (map[string]int64, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	var out map[string]int64
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteClient) GetPnL(ctx context.Context) (decimal.Decimal, error) {
	if err := c.ready(ctx); err != nil {
		return decimal.Zero, err
	}
	var out market.PnL
	if err := c.do(ctx, http.MethodGet, "/pnl", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.PnL, nil
}

func (c *RemoteClient) PollNewTrades(ctx context.Context, instrument string) ([]market.Trade, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	var out []market.Trade
	if err := c.do(ctx, http.MethodPost, instrumentPath(instrument, "trades/poll"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteClient) PollNewTradeTicks(ctx context.Context, instrument string) ([]market.TradeTick, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	var out []market.TradeTick
	if err := c.do(ctx, http.MethodPost, instrumentPath(instrument, "ticks/poll"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteClient) GetTradeTickHistory(ctx context.Context, instrument string) ([]market.TradeTick, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	var out []market.TradeTick
	if err := c.do(ctx, http.MethodGet, instrumentPath(instrument, "ticks"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteClient) GetOutstandingOrders(ctx context.Context, instrument string) (map[int64]market.OrderStatus, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	var out map[int64]market.OrderStatus
	if err := c.do(ctx, http.MethodGet, instrumentPath(instrument, "orders"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RemoteClient) InsertOrder(ctx context.Context, req market.OrderRequest) (market.InsertOrderResponse, error) {
	if err := c.ready(ctx); err != nil {
		return market.InsertOrderResponse{}, err
	}
	var out market.InsertOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", req, &out); err != nil {
		return market.InsertOrderResponse{}, err
	}
	return out, nil
}

func (c *RemoteClient) DeleteOrder(ctx context.Context, instrument string, orderID int64) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	path := instrumentPath(instrument, "orders/"+strconv.FormatInt(orderID, 10))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do performs one API call. A response flagged as terminated closes the
// session.
func (c *RemoteClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+apiPrefix+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", basicAuth(c.creds))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr market.APIError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		switch {
		case apiErr.Terminated:
			return c.terminate(apiErr.Error)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %w: %s", method, path, ErrNotFound, apiErr.Error)
		default:
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *RemoteClient) feedURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + feedPath
	return u.String()
}

func instrumentPath(instrument, suffix string) string {
	return "/instruments/" + url.PathEscape(instrument) + "/" + suffix
}

func basicAuth(creds Credentials) string {
	req := http.Request{Header: http.Header{}}
	req.SetBasicAuth(creds.Username, creds.Password)
	return req.Header.Get("Authorization")
}

var _ Client = (*RemoteClient)(nil)
