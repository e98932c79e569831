package web

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jwatral/qdomyos-zwift/src/chart"
	"github.com/jwatral/qdomyos-zwift/src/inclination"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats inclination.Stats

func (f fixedStats) Stats() inclination.Stats { return inclination.Stats(f) }

func newTestServer(stats inclination.Stats) (*Server, *chart.Line) {
	o := chart.DefaultOptions()
	o.FrameURL = "/api/inclination"
	line := chart.NewLine(o)
	return NewServer(line, fixedStats(stats), zerolog.Nop()), line
}

func TestFrameEndpoint(t *testing.T) {
	s, line := newTestServer(inclination.Stats{})
	line.SetData([]float64{10, math.NaN(), 30})
	line.Update()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/inclination", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got struct {
		Revision uint64     `json:"revision"`
		Data     []*float64 `json:"data"`
		Colors   []string   `json:"colors"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(1), got.Revision)
	require.Len(t, got.Data, 3)
	assert.Equal(t, 10.0, *got.Data[0])
	assert.Nil(t, got.Data[1])
	assert.Equal(t, 30.0, *got.Data[2])
	assert.Len(t, got.Colors, 2)
}

func TestPageEndpoint(t *testing.T) {
	s, line := newTestServer(inclination.Stats{})
	line.SetData([]float64{1, 2, 3})
	line.Update()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/inclination")
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(inclination.Stats{Cycles: 3, LastSuccess: time.Now()})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	s, _ = newTestServer(inclination.Stats{Cycles: 3, Failures: 3, LastError: "queue: response timeout"})
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(inclination.Stats{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/inclination", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMount(t *testing.T) {
	s, _ := newTestServer(inclination.Stats{})
	s.Mount("/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "mounted")
	}))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, "mounted", rec.Body.String())
}

func TestListenAndServeShutsDown(t *testing.T) {
	s, _ := newTestServer(inclination.Stats{})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
