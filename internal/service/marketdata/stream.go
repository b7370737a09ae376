package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// QuoteStream keeps a websocket subscription to the provider's quote feed
// and remembers the most recent quote. LatestQuote answers from memory;
// a quote older than staleAfter is treated as absent so a dead feed can
// never masquerade as a live price.
type QuoteStream struct {
	url            string
	apiKey         string
	symbol         string
	staleAfter     time.Duration
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.RWMutex
	lastPrice float64
	lastAt    time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

type StreamConfig struct {
	URL            string
	APIKey         string
	Symbol         string
	StaleAfter     time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

func NewQuoteStream(cfg StreamConfig, log *logger.Logger) *QuoteStream {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &QuoteStream{
		url:            cfg.URL,
		apiKey:         cfg.APIKey,
		symbol:         cfg.Symbol,
		staleAfter:     cfg.StaleAfter,
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		log:            log.With("quote-stream"),
	}
}

// Start runs the connect/read/reconnect loop until Stop.
func (s *QuoteStream) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			if err := s.run(ctx); err != nil {
				s.log.Warn("stream disconnected", logger.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}
		}
	}()
}

// Stop tears the stream down and waits for the loop to exit.
func (s *QuoteStream) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// LatestQuote returns the last streamed price, or false when the stream
// has no quote fresher than staleAfter.
func (s *QuoteStream) LatestQuote() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastAt.IsZero() || time.Since(s.lastAt) > s.staleAfter {
		return 0, false
	}
	return s.lastPrice, true
}

type wsQuote struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	At     int64   `json:"at"` // unix ms
}

func (s *QuoteStream) run(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.url, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s.symbol}); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.symbol, err)
	}
	s.log.Info("subscribed", logger.String("symbol", s.symbol))

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var q wsQuote
		if err := json.Unmarshal(b, &q); err != nil || q.Type != "quote" {
			continue
		}
		if q.Symbol != s.symbol || q.Price <= 0 {
			continue
		}

		s.mu.Lock()
		s.lastPrice = q.Price
		s.lastAt = time.Now()
		s.mu.Unlock()
	}
}
