// Package websocket streams each flush as one JSON text frame over a
// persistent connection, for live dashboards.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/pulse/internal/sink"
)

// Name is the registry key of this sink.
const Name = "websocket"

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	closeTimeout     = 5 * time.Second
)

func init() {
	sink.Register(Name, func() sink.Sink { return New() })
}

// Stats counts what the sink has sent.
type Stats struct {
	Frames     int64
	Bytes      int64
	Reconnects int64
}

// Sink redials on the next Flush after a failed write or a closed connection.
type Sink struct {
	sink.Buffer

	dialer  *websocket.Dialer
	url     string
	headers http.Header

	mu    sync.Mutex
	conn  *websocket.Conn
	stats Stats
}

func New() *Sink {
	return &Sink{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// Setup dials endpoint (ws:// or wss://). A non-empty credential is sent as
// a bearer token on the handshake.
func (s *Sink) Setup(ctx context.Context, endpoint, credential string) error {
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("websocket: endpoint: %w", err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("websocket: endpoint %q must be a ws:// or wss:// URL", endpoint)
	}
	s.url = endpoint
	s.headers = http.Header{}
	if c := strings.TrimSpace(credential); c != "" {
		s.headers.Set("Authorization", "Bearer "+c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Sink) connectLocked(ctx context.Context) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket: dial failed: %w", err)
	}
	s.conn = conn
	go s.readLoop(conn)
	return nil
}

// readLoop discards inbound frames. Reading is what answers pings and the
// peer's close frame; once it fails the connection is dropped so the next
// Flush redials.
func (s *Sink) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = conn.Close()
		s.conn = nil
	}
}

// Flush sends everything queued as a single frame.
func (s *Sink) Flush(ctx context.Context) error {
	snaps, annotations := s.Drain()
	if len(snaps) == 0 && len(annotations) == 0 {
		return nil
	}
	frame, err := json.Marshal(sink.NewDocument(snaps, annotations, true))
	if err != nil {
		return fmt.Errorf("websocket: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return errors.New("websocket: sink is not set up")
	}
	if s.conn == nil {
		if err := s.connectLocked(ctx); err != nil {
			return err
		}
		s.stats.Reconnects++
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("websocket: write: %w", err)
	}
	s.stats.Frames++
	s.stats.Bytes += int64(len(frame))
	return nil
}

// Stats returns the send counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Teardown sends a close frame and closes the connection.
func (s *Sink) Teardown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout),
	)
	closeErr := s.conn.Close()
	s.conn = nil
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("websocket: close frame: %w", err)
	}
	return closeErr
}
