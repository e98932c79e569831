package inclination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwatral/qdomyos-zwift/src/model"
	"github.com/jwatral/qdomyos-zwift/src/queue"

	"github.com/rs/zerolog"
)

// Stats summarize the poll cycles run so far.
type Stats struct {
	Cycles      uint64    `json:"cycles"`
	Failures    uint64    `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
	Samples     int       `json:"samples"`
}

// Poller runs the refresh cycle: request, decode, redraw, wait, repeat.
type Poller struct {
	session   *Session
	transport queue.Transport
	cfg       model.PollerConfig
	log       zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

func NewPoller(session *Session, transport queue.Transport, cfg model.PollerConfig, log zerolog.Logger) *Poller {
	if cfg.Command == "" {
		cfg.Command = "getnextinclination"
	}
	if cfg.ResponseTag == "" {
		cfg.ResponseTag = queue.ResponseTag(cfg.Command)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = queue.DefaultTimeout
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = queue.DefaultAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	return &Poller{
		session:   session,
		transport: transport,
		cfg:       cfg,
		log:       log.With().Str("component", "poller").Str("cmd", cfg.Command).Logger(),
	}
}

// PollOnce runs a single cycle and reports what went wrong, if anything.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.session.SetOnWorkout(false)

	el := &queue.Element{
		Request:  queue.Request{Msg: p.cfg.Command},
		Match:    queue.MatchTag(p.cfg.ResponseTag),
		Timeout:  p.cfg.Timeout,
		Attempts: p.cfg.Attempts,
	}
	payload, err := el.Enqueue(ctx, p.transport)
	if err != nil {
		p.record(err)
		return fmt.Errorf("failed to fetch inclination: %w", err)
	}

	if err := p.session.Refresh(payload); err != nil {
		p.record(err)
		return fmt.Errorf("failed to refresh inclination: %w", err)
	}

	p.record(nil)
	p.log.Debug().Int("samples", len(p.session.Series())).Msg("inclination refreshed")
	return nil
}

// Run polls until ctx is cancelled. The next cycle starts Interval after the
// previous one settles, so cycles never overlap. Failures are logged and the
// loop carries on.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().
		Dur("interval", p.cfg.Interval).
		Dur("timeout", p.cfg.Timeout).
		Int("attempts", p.cfg.Attempts).
		Str("decode", p.session.Mode().String()).
		Msg("poller started")

	if err := sleep(ctx, p.cfg.InitialDelay); err != nil {
		return err
	}
	for {
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Error().Err(err).Msg("poll cycle failed")
		}
		if err := sleep(ctx, p.cfg.Interval); err != nil {
			p.log.Info().Msg("poller stopped")
			return err
		}
	}
}

// Stats returns a snapshot of the cycle counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Samples = len(p.session.Series())
	return s
}

func (p *Poller) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Cycles++
	if err != nil {
		p.stats.Failures++
		p.stats.LastError = err.Error()
		return
	}
	p.stats.LastError = ""
	p.stats.LastSuccess = time.Now()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
