package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"ioctrader/engine"
	"ioctrader/market"
)

const (
	maxCloseReason  = 120
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type contextKey struct{}

// Config controls access to the API.
type Config struct {
	// Accounts maps usernames to passwords for HTTP basic auth.
	Accounts    map[string]string
	CORSOrigins []string
}

// Server exposes a Venue over REST under /api/v1 and streams price books on
// /ws/feed.
type Server struct {
	venue    *engine.Venue
	feed     *Feed
	accounts map[string]string
	router   *mux.Router
	handler  http.Handler
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Instruments int    `json:"instruments"`
	Subscribers int    `json:"subscribers"`
}

// New wires the routes. feed should be the venue's publisher.
func New(venue *engine.Venue, feed *Feed, cfg Config, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		venue:    venue,
		feed:     feed,
		accounts: cfg.Accounts,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/ws/feed", s.withAuth(http.HandlerFunc(s.handleFeed)))

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.withAuth)

	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/instruments", s.handleInstruments).Methods("GET")
	api.HandleFunc("/instruments/{id}/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/instruments/{id}/book", s.handleBook).Methods("GET")
	api.HandleFunc("/instruments/{id}/ticks", s.handleTickHistory).Methods("GET")
	api.HandleFunc("/instruments/{id}/ticks/poll", s.handlePollTicks).Methods("POST")
	api.HandleFunc("/instruments/{id}/trades/poll", s.handlePollTrades).Methods("POST")
	api.HandleFunc("/instruments/{id}/orders", s.handleOutstanding).Methods("GET")
	api.HandleFunc("/instruments/{id}/orders/{orderID}", s.handleDeleteOrder).Methods("DELETE")
	api.HandleFunc("/orders", s.handleInsertOrder).Methods("POST")
	api.HandleFunc("/positions", s.handlePositions).Methods("GET")
	api.HandleFunc("/pnl", s.handlePnL).Methods("GET")
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down and drops
// feed connections.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.feed.hub.CloseAll("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		expected, known := s.accounts[user]
		if !ok || !known || subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="ioctrader"`)
			writeError(w, http.StatusUnauthorized, errors.New("missing or invalid credentials"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

func accountFrom(r *http.Request) string {
	account, _ := r.Context().Value(contextKey{}).(string)
	return account
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Instruments: len(s.venue.InstrumentIDs()),
		Subscribers: s.feed.Subscribers(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, market.Session{Account: accountFrom(r)})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.venue.Instruments())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.venue.SetPaused(id, req.Paused); err != nil {
		writeVenueError(w, err)
		return
	}
	s.logger.Infow("instrument pause changed", "instrument", id, "paused", req.Paused, "account", accountFrom(r))
	writeJSON(w, http.StatusOK, s.venue.Instruments()[id])
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.venue.PriceBook(mux.Vars(r)["id"])
	if err != nil {
		writeVenueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleTickHistory(w http.ResponseWriter, r *http.Request) {
	ticks, err := s.venue.TradeTickHistory(mux.Vars(r)["id"])
	if err != nil {
		writeVenueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ticks))
}

func (s *Server) handlePollTicks(w http.ResponseWriter, r *http.Request) {
	ticks, err := s.venue.PollTradeTicks(accountFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeVenueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ticks))
}

func (s *Server) handlePollTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.venue.PollTrades(accountFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeVenueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trades))
}

func (s *Server) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	orders, err := s.venue.OutstandingOrders(accountFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeVenueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// handleInsertOrder ends the caller's session when the order names an
// instrument the venue does not list.
func (s *Server) handleInsertOrder(w http.ResponseWriter, r *http.Request) {
	var req market.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	account := accountFrom(r)
	resp, err := s.venue.InsertOrder(account, req)
	switch {
	case errors.Is(err, engine.ErrUnknownInstrument):
		reason := err.Error()
		s.logger.Warnw("terminating session", "account", account, "reason", reason)
		s.feed.Disconnect(account, reason)
		writeJSON(w, http.StatusBadRequest, market.APIError{Error: reason, Terminated: true})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orderID, err := strconv.ParseInt(vars["orderID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid order id %q", vars["orderID"]))
		return
	}
	if err := s.venue.DeleteOrder(accountFrom(r), vars["id"], orderID); err != nil {
		writeVenueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.venue.Positions(accountFrom(r)))
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, market.PnL{PnL: s.venue.PnL(accountFrom(r))})
}

// handleFeed sends the current book of every instrument, then streams
// updates until the client leaves or the account is disconnected.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	account := accountFrom(r)
	sub := s.feed.hub.Subscribe(account, feedBuffer)
	defer s.feed.hub.Unsubscribe(sub)
	s.logger.Debugw("feed connected", "account", account, "conn", sub.id)

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				s.feed.hub.Unsubscribe(sub)
				return
			}
		}
	}()

	for _, id := range s.venue.InstrumentIDs() {
		book, err := s.venue.PriceBook(id)
		if err != nil {
			continue
		}
		if err := conn.WriteJSON(outboundMessage{Type: market.FeedBook, Data: book}); err != nil {
			return
		}
	}

	for {
		msg, ok := sub.Next()
		if !ok {
			break
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}

	if reason := sub.Reason(); reason != "" {
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			time.Now().Add(writeWait))
	}
	s.logger.Debugw("feed closed", "account", account, "conn", sub.id)
}

func writeVenueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownInstrument), errors.Is(err, engine.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, market.APIError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
