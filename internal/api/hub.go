package api

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/observability"
)

// HubConfig configures the transaction feed.
type HubConfig struct {
	// Buffer is the number of events queued per subscriber before drops.
	Buffer int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a silent peer is kept; pongs extend it.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHubConfig returns default feed configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Buffer:       256,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Filter selects the transactions a subscriber receives. Empty fields match
// everything.
type Filter struct {
	TraceID string
	Account domain.Address
}

func (f Filter) match(tx *domain.Transaction) bool {
	if f.TraceID != "" && tx.TraceID != f.TraceID {
		return false
	}
	if !f.Account.IsNone() && tx.Account != f.Account && tx.Sender != f.Account {
		return false
	}
	return true
}

type subscriber struct {
	filter Filter
	ch     chan TransactionView
}

// Hub fans processed transactions out to feed subscribers. It is a
// vm.TraceSink; a slow subscriber loses events instead of stalling the
// ledger.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	dropped atomic.Uint64
}

// NewHub creates a hub. metrics and logger may be nil.
func NewHub(config *HubConfig, metrics *observability.Metrics, logger *zap.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		logger:  logger,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Record implements vm.TraceSink.
func (h *Hub) Record(_ context.Context, tx *domain.Transaction) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || len(h.subs) == 0 {
		return nil
	}
	view := transactionView(tx)
	for s := range h.subs {
		if !s.filter.match(tx) {
			continue
		}
		select {
		case s.ch <- view:
		default:
			h.dropped.Add(1)
			if h.metrics != nil {
				h.metrics.FeedDroppedEvents.Inc()
			}
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (h *Hub) Subscribe(filter Filter) (<-chan TransactionView, func()) {
	s := &subscriber{filter: filter, ch: make(chan TransactionView, h.config.Buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.FeedSubscribers.Inc()
	}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { h.remove(s) })
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		delete(h.subs, s)
		close(s.ch)
	}
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.FeedSubscribers.Dec()
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the number of events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes every subscription. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	n := len(h.subs)
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.FeedSubscribers.Sub(float64(n))
	}
}

// ServeWS upgrades the request and streams matching transactions as JSON
// text frames. Query parameters trace and account narrow the feed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	filter := Filter{TraceID: r.URL.Query().Get("trace")}
	if v := r.URL.Query().Get("account"); v != "" {
		addr, err := domain.ParseAddress(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		filter.Account = addr
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		h.logger.Debug("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.Subscribe(filter)
	defer cancel()

	// The read loop only services control frames and notices the peer leaving.
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case view, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if err := conn.WriteJSON(view); err != nil {
				h.logger.Debug("websocket write", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
