package inclination

import (
	"sync"
	"sync/atomic"
)

// Chart is the widget a Session drives. SetData replaces the backing series
// and Update redraws.
type Chart interface {
	SetData(data []float64)
	Update()
}

// Session owns the displayed series and the chart it feeds.
type Session struct {
	chart Chart
	mode  Mode

	mu     sync.Mutex
	series []float64

	onWorkout atomic.Bool
}

func NewSession(chart Chart, mode Mode) *Session {
	return &Session{
		chart:  chart,
		mode:   mode,
		series: []float64{},
	}
}

// Refresh decodes payload and replaces the displayed series with it. When the
// payload is rejected the previous series stays on the chart.
func (s *Session) Refresh(payload string) error {
	series, err := DecodeMode(payload, s.mode)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.series = series
	s.mu.Unlock()

	s.chart.SetData(series)
	s.chart.Update()
	return nil
}

// Series returns a copy of the displayed series.
func (s *Session) Series() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float64, len(s.series))
	copy(cp, s.series)
	return cp
}

func (s *Session) Mode() Mode {
	return s.mode
}

func (s *Session) SetOnWorkout(v bool) {
	s.onWorkout.Store(v)
}

func (s *Session) OnWorkout() bool {
	return s.onWorkout.Load()
}
