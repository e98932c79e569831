package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/jwatral/qdomyos-zwift/src/chart"
	"github.com/jwatral/qdomyos-zwift/src/inclination"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// StatsSource reports poller health.
type StatsSource interface {
	Stats() inclination.Stats
}

// Server exposes the chart page, its data frame and a health check.
type Server struct {
	line   *chart.Line
	stats  StatsSource
	log    zerolog.Logger
	router *mux.Router
}

type frameResponse struct {
	Revision  uint64     `json:"revision"`
	UpdatedAt time.Time  `json:"updated_at"`
	Data      []*float64 `json:"data"`
	Colors    []string   `json:"colors"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Poller inclination.Stats `json:"poller"`
}

func NewServer(line *chart.Line, stats StatsSource, log zerolog.Logger) *Server {
	s := &Server{
		line:  line,
		stats: stats,
		log:   log.With().Str("component", "web").Logger(),
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	s.router.HandleFunc("/api/inclination", s.handleFrame).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return s
}

// Mount adds handler under path, e.g. the simulated backend's websocket.
func (s *Server) Mount(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.line.Render(&buf); err != nil {
		s.log.Error().Err(err).Msg("chart render failed")
		http.Error(w, "chart render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f := s.line.Frame()
	s.writeJSON(w, http.StatusOK, frameResponse{
		Revision:  f.Revision,
		UpdatedAt: f.UpdatedAt,
		Data:      nullable(f.Data),
		Colors:    f.Colors,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.stats.Stats()
	status := http.StatusOK
	resp := healthResponse{Status: "ok", Poller: st}
	if st.Cycles > 0 && st.LastSuccess.IsZero() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// nullable maps non-finite samples to JSON null.
func nullable(data []float64) []*float64 {
	out := make([]*float64, len(data))
	for i := range data {
		if math.IsNaN(data[i]) || math.IsInf(data[i], 0) {
			continue
		}
		v := data[i]
		out[i] = &v
	}
	return out
}
