// Package feed streams live kline data over WebSocket into per-symbol bar
// windows. It speaks the Binance combined-stream wire format.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/market"
)

// Reconnect backoff bounds.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// combinedStreamEvent is the envelope of a combined-stream message.
type combinedStreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// klineEvent is a kline update event.
type klineEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     klineData `json:"k"`
}

type klineData struct {
	OpenTime  int64   `json:"t"`
	CloseTime int64   `json:"T"`
	Symbol    string  `json:"s"`
	Interval  string  `json:"i"`
	Open      float64 `json:"o,string"`
	Close     float64 `json:"c,string"`
	High      float64 `json:"h,string"`
	Low       float64 `json:"l,string"`
	Volume    float64 `json:"v,string"`
	Trades    int64   `json:"n"`
	IsClosed  bool    `json:"x"`
}

// BarHandler is called on every closed bar after the window is updated.
type BarHandler func(symbol string, bar market.Bar)

// Streamer maintains one combined-stream WebSocket connection for the
// configured symbols and feeds their rolling windows. Forming bars update the
// newest window entry in place; closed bars are appended and handed to the
// bar handler.
type Streamer struct {
	mu sync.RWMutex

	cfg     config.FeedConfig
	windows map[string]*market.Window
	onBar   BarHandler
	logger  zerolog.Logger

	updatesReceived int64
	lastUpdateTime  time.Time
	reconnects      int
}

// NewStreamer creates a streamer with one window per configured symbol.
func NewStreamer(cfg config.FeedConfig, logger zerolog.Logger) *Streamer {
	windows := make(map[string]*market.Window, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		symbol = strings.ToUpper(symbol)
		windows[symbol] = market.NewWindow(symbol, cfg.WindowSize)
	}

	return &Streamer{
		cfg:     cfg,
		windows: windows,
		logger:  logger.With().Str("component", "FeedStreamer").Logger(),
	}
}

// SetBarHandler registers the closed-bar callback. Must be called before Run.
func (s *Streamer) SetBarHandler(handler BarHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBar = handler
}

// Window returns the rolling window for a symbol, or nil if the symbol is not
// configured.
func (s *Streamer) Window(symbol string) *market.Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windows[strings.ToUpper(symbol)]
}

// streamURL builds the combined-stream endpoint for the configured symbols.
// Format: <base>/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m
func (s *Streamer) streamURL() string {
	streams := make([]string, 0, len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), s.cfg.Interval))
	}
	return fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(s.cfg.WSBaseURL, "/"), strings.Join(streams, "/"))
}

// Run connects and processes messages until the context is cancelled,
// reconnecting with exponential backoff on connection loss.
func (s *Streamer) Run(ctx context.Context) error {
	if len(s.cfg.Symbols) == 0 {
		return fmt.Errorf("no feed symbols configured")
	}

	backoff := initialBackoff
	for {
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.mu.Lock()
			s.reconnects++
			attempts := s.reconnects
			s.mu.Unlock()

			s.logger.Warn().
				Err(err).
				Int("reconnects", attempts).
				Dur("backoff", backoff).
				Msg("Feed connection lost, reconnecting")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		return nil
	}
}

func (s *Streamer) runOnce(ctx context.Context) error {
	url := s.streamURL()
	s.logger.Info().Str("url", url).Msg("Connecting to kline stream")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Info().Int("symbols", len(s.cfg.Symbols)).Msg("Kline stream connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read failed: %w", err)
		}
		s.handleMessage(message)
	}
}

func (s *Streamer) handleMessage(message []byte) {
	var envelope combinedStreamEvent
	if err := json.Unmarshal(message, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("Skipping undecodable stream message")
		return
	}

	var event klineEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		s.logger.Warn().Err(err).Str("stream", envelope.Stream).Msg("Skipping undecodable kline event")
		return
	}
	if event.EventType != "kline" {
		return
	}

	symbol := strings.ToUpper(event.Symbol)
	window := s.Window(symbol)
	if window == nil {
		return
	}

	bar := market.Bar{
		OpenTime:  event.Kline.OpenTime,
		CloseTime: event.Kline.CloseTime,
		Open:      event.Kline.Open,
		High:      event.Kline.High,
		Low:       event.Kline.Low,
		Close:     event.Kline.Close,
		Volume:    event.Kline.Volume,
		Trades:    event.Kline.Trades,
	}

	s.mu.Lock()
	s.updatesReceived++
	s.lastUpdateTime = time.Now()
	onBar := s.onBar
	s.mu.Unlock()

	if !event.Kline.IsClosed {
		window.Update(bar)
		return
	}

	window.Update(bar)
	if onBar != nil {
		onBar(symbol, bar)
	}
}

// Stats reports feed health for logging and diagnostics.
type Stats struct {
	UpdatesReceived int64     `json:"updates_received"`
	LastUpdateTime  time.Time `json:"last_update_time"`
	Reconnects      int       `json:"reconnects"`
}

// GetStats returns a snapshot of feed statistics.
func (s *Streamer) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		UpdatesReceived: s.updatesReceived,
		LastUpdateTime:  s.lastUpdateTime,
		Reconnects:      s.reconnects,
	}
}
