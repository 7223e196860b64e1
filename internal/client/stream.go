package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"sai-swap/internal/api"
	"sai-swap/internal/domain"
)

const logModule = "client"

// StreamConfig configures event stream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing control frames.
	WriteTimeout time.Duration
	// Buffer is the capacity of the Events channel.
	Buffer int
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            1024,
	}
}

// Stream is a reconnecting subscription to the swapd event stream.
// Events are delivered in order per connection; events emitted while
// disconnected are not replayed.
type Stream struct {
	endpoint string
	config   StreamConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events     chan api.EventView
	reconnects atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// StreamURL converts an http(s) base URL to the stream endpoint for state.
// A zero state subscribes to every configuration.
func StreamURL(baseURL string, state domain.PublicKey) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/v1/events/stream"
	if !state.IsZero() {
		u.RawQuery = url.Values{"state": {state.String()}}.Encode()
	}
	return u.String(), nil
}

// Subscribe connects to the event stream of the server at baseURL.
func Subscribe(ctx context.Context, baseURL string, state domain.PublicKey, config *StreamConfig) (*Stream, error) {
	endpoint, err := StreamURL(baseURL, state)
	if err != nil {
		return nil, err
	}

	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &Stream{
		endpoint: endpoint,
		config:   cfg,
		events:   make(chan api.EventView, cfg.Buffer),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Events returns the event channel. It is closed by Close.
func (s *Stream) Events() <-chan api.EventView {
	return s.events
}

// Reconnects returns how many times the stream has re-established its connection.
func (s *Stream) Reconnects() uint64 {
	return s.reconnects.Load()
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *Stream) current() *websocket.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Stream) drop(conn *websocket.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()
	conn.Close()
}

// Close stops the stream and closes the Events channel.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

// readLoop reads events and reconnects with exponential backoff on failure.
func (s *Stream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		conn := s.current()
		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(reconnectDelay):
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := s.connect(ctx)
			cancel()
			if err != nil {
				log.WithFields(log.Fields{"module": logModule, "endpoint": s.endpoint}).WithError(err).Debug("reconnect failed")
				reconnectDelay *= 2
				if reconnectDelay > s.config.MaxReconnectDelay {
					reconnectDelay = s.config.MaxReconnectDelay
				}
				continue
			}
			s.reconnects.Add(1)
			reconnectDelay = s.config.ReconnectDelay
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			log.WithFields(log.Fields{"module": logModule, "endpoint": s.endpoint}).WithError(err).Info("stream disconnected")
			s.drop(conn)
			continue
		}

		var ev api.EventView
		if err := json.Unmarshal(message, &ev); err != nil {
			log.WithFields(log.Fields{"module": logModule}).WithError(err).Warn("skipping malformed event")
			continue
		}

		// Block until the consumer catches up; never drop.
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				// A dead connection surfaces in readLoop.
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}
