package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketTransport exchanges JSON frames with a backend over one websocket
// connection. Requests are serialized; the connection is dialled on first use
// and redialled after any failure.
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocketTransport(url string, log zerolog.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log: log.With().Str("transport", "websocket").Logger(),
	}
}

// RoundTrip writes req and reads frames until match accepts one or ctx ends.
// Frames that do not match are skipped.
func (t *WebSocketTransport) RoundTrip(ctx context.Context, req Request, match Matcher) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := t.connect(ctx)
	if err != nil {
		return "", err
	}

	payload, err := t.exchange(ctx, conn, req, match)
	if err != nil {
		// A timed out or failed read leaves the connection unusable.
		t.drop()
		return "", err
	}
	return payload, nil
}

func (t *WebSocketTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: dial %s: %w", ErrTimeout, t.url, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, t.url, err)
	}
	t.log.Debug().Str("url", t.url).Msg("connected to backend")
	t.conn = conn
	return conn, nil
}

func (t *WebSocketTransport) exchange(ctx context.Context, conn *websocket.Conn, req Request, match Matcher) (string, error) {
	frame, err := encodeFrame(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}

	// Zero when ctx has no deadline, which clears any previous one.
	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return "", classify(ctx, fmt.Errorf("write %q: %w", req.Msg, err))
	}

	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", classify(ctx, fmt.Errorf("read %q: %w", req.Msg, err))
		}
		resp, err := decodeResponse(data)
		if err != nil {
			t.log.Debug().Err(err).Msg("skipping undecodable frame")
			continue
		}
		if payload, ok := match(resp); ok {
			return payload, nil
		}
		t.log.Debug().Str("msg", resp.Msg).Msg("skipping unmatched frame")
	}
}

func (t *WebSocketTransport) drop() {
	if t.conn == nil {
		return
	}
	_ = t.conn.Close()
	t.conn = nil
}

// Close closes the current connection, if any.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.drop()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}
