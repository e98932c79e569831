package queue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsBackend answers each request frame with the frames reply returns.
func wsBackend(t *testing.T, reply func(req Request) [][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req, err := DecodeRequest(data)
			if err != nil {
				return
			}
			for _, frame := range reply(req) {
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func frame(t *testing.T, r Response) []byte {
	data, err := EncodeResponse(r)
	require.NoError(t, err)
	return data
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv, conns := wsBackend(t, func(req Request) [][]byte {
		return [][]byte{
			[]byte("garbage"),
			frame(t, Response{Msg: "R_other", Content: "nope"}),
			frame(t, Response{Msg: ResponseTag(req.Msg), Content: "3,10,2,-5"}),
		}
	})

	tr := NewWebSocketTransport(wsURL(srv), zerolog.Nop())
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		payload, err := tr.RoundTrip(ctx, Request{Msg: "getnextinclination"}, MatchTag("R_getnextinclination"))
		require.NoError(t, err)
		assert.Equal(t, "3,10,2,-5", payload)
	}
	assert.Equal(t, int32(1), conns.Load(), "connection is reused")
}

func TestWebSocketTimeoutRedials(t *testing.T) {
	var calls atomic.Int32
	srv, conns := wsBackend(t, func(req Request) [][]byte {
		if calls.Add(1) == 1 {
			return nil
		}
		return [][]byte{frame(t, Response{Msg: "R_getnextinclination", Content: "2,1"})}
	})

	tr := NewWebSocketTransport(wsURL(srv), zerolog.Nop())
	defer tr.Close()

	el := &Element{
		Request:  Request{Msg: "getnextinclination"},
		Match:    MatchTag("R_getnextinclination"),
		Timeout:  100 * time.Millisecond,
		Attempts: 3,
	}
	payload, err := el.Enqueue(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "2,1", payload)
	assert.Equal(t, int32(2), conns.Load(), "timed out connection is replaced")
}

func TestWebSocketDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	tr := NewWebSocketTransport(url, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := tr.RoundTrip(ctx, Request{Msg: "getnextinclination"}, MatchTag("R_getnextinclination"))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestWebSocketCloseWithoutConnection(t *testing.T) {
	tr := NewWebSocketTransport("ws://127.0.0.1:1/ws", zerolog.Nop())
	assert.NoError(t, tr.Close())
}
