package backend

import (
	"math/rand/v2"
	"sync"

	"github.com/jwatral/qdomyos-zwift/src/inclination"
)

// Profile is a scrolling window over a simulated inclination trace. The trace
// moves in runs of a constant slope so it compresses well on the wire.
type Profile struct {
	mu     sync.Mutex
	rng    *rand.Rand
	size   int
	step   int
	lo     float64
	hi     float64
	window []float64
	last   float64
	delta  float64
	runs   int
}

// NewProfile builds a profile holding size samples bounded by [lo, hi]. Each
// call to Next scrolls the window by step samples.
func NewProfile(size, step int, lo, hi float64, seed uint64) *Profile {
	if size <= 0 {
		size = 300
	}
	if step <= 0 {
		step = 1
	}
	p := &Profile{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		size:   size,
		step:   step,
		lo:     lo,
		hi:     hi,
		window: make([]float64, 0, size),
	}
	p.advance(size)
	return p
}

// Next scrolls the window and returns its run-length payload.
func (p *Profile) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(p.step)
	return inclination.Encode(p.window)
}

// Window returns a copy of the current samples.
func (p *Profile) Window() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]float64, len(p.window))
	copy(cp, p.window)
	return cp
}

func (p *Profile) advance(n int) {
	for i := 0; i < n; i++ {
		if p.runs == 0 {
			p.runs = 1 + p.rng.IntN(30)
			// Slopes from -5 to 9 cover every palette step.
			p.delta = float64(p.rng.IntN(15) - 5)
		}
		p.runs--

		next := p.last + p.delta
		if next > p.hi || next < p.lo {
			p.delta = -p.delta
			next = p.last + p.delta
		}
		p.last = next
		p.window = append(p.window, next)
	}
	if over := len(p.window) - p.size; over > 0 {
		p.window = append(p.window[:0], p.window[over:]...)
	}
}
