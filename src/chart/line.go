package chart

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const chartID = "inclination"

// Options configure a Line once at construction.
type Options struct {
	Title   string
	Slots   int
	YMin    float64
	YMax    float64
	Width   string
	Height  string
	Smooth  bool
	Palette Palette
	// FrameURL and RefreshEvery drive the in-page script that keeps a rendered
	// page current. An empty FrameURL renders a static page.
	FrameURL     string
	RefreshEvery time.Duration
}

// DefaultOptions returns the widget layout: 300 slots, y in [-3000, 3000].
func DefaultOptions() Options {
	return Options{
		Title:        "Inclination",
		Slots:        300,
		YMin:         -3000,
		YMax:         3000,
		Width:        "150px",
		Height:       "75px",
		Smooth:       true,
		Palette:      DefaultPalette(),
		RefreshEvery: 500 * time.Millisecond,
	}
}

// Frame is a published snapshot of the chart data.
type Frame struct {
	Revision  uint64
	UpdatedAt time.Time
	Data      []float64
	Colors    []string
}

// Line is a single-series line chart. SetData stages a series and Update
// publishes it; readers only ever see published frames.
type Line struct {
	opts Options

	mu      sync.RWMutex
	pending []float64
	frame   Frame
}

func NewLine(o Options) *Line {
	if o.Slots <= 0 {
		o.Slots = DefaultOptions().Slots
	}
	return &Line{
		opts:  o,
		frame: Frame{Data: []float64{}, Colors: []string{}},
	}
}

// Options returns the options the line was built with.
func (l *Line) Options() Options {
	return l.opts
}

// SetData replaces the staged series. The slice is copied.
func (l *Line) SetData(data []float64) {
	cp := make([]float64, len(data))
	copy(cp, data)

	l.mu.Lock()
	l.pending = cp
	l.mu.Unlock()
}

// Update publishes the staged series as a new frame, keeping only the samples
// that fit the x domain.
func (l *Line) Update() {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := l.pending
	if data == nil {
		data = l.frame.Data
	}
	if len(data) > l.opts.Slots {
		data = data[:l.opts.Slots]
	}
	l.frame = Frame{
		Revision:  l.frame.Revision + 1,
		UpdatedAt: time.Now(),
		Data:      data,
		Colors:    l.opts.Palette.SegmentColors(data),
	}
}

// Frame returns the last published frame.
func (l *Line) Frame() Frame {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame
}

// Render writes an HTML page holding the current frame.
func (l *Line) Render(w io.Writer) error {
	frame := l.Frame()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: l.opts.Title,
			Width:     l.opts.Width,
			Height:    l.opts.Height,
			ChartID:   chartID,
		}),
		charts.WithLegendOpts(opts.Legend{Show: false}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Show: false},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Min:       l.opts.YMin,
			Max:       l.opts.YMax,
			AxisLabel: &opts.AxisLabel{Show: false},
			SplitLine: &opts.SplitLine{Show: false},
		}),
	)

	line.SetXAxis(slotLabels(l.opts.Slots)).
		AddSeries("", lineData(frame.Data)).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: l.opts.Smooth}))

	if l.opts.FrameURL != "" {
		line.AddJSFuncs(refreshScript(l.opts.FrameURL, l.opts.RefreshEvery))
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func slotLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i)
	}
	return labels
}

// lineData converts samples to echarts points; non-finite samples become gaps.
func lineData(data []float64) []opts.LineData {
	items := make([]opts.LineData, 0, len(data))
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			items = append(items, opts.LineData{Value: "-"})
			continue
		}
		items = append(items, opts.LineData{Value: v})
	}
	return items
}

// refreshScript polls the frame endpoint and repaints the series with one
// visualMap piece per segment so each segment takes its slope color.
func refreshScript(url string, every time.Duration) string {
	ms := every.Milliseconds()
	if ms <= 0 {
		ms = 500
	}
	return fmt.Sprintf(`
(function () {
  var chart = goecharts_%s;
  var revision = -1;
  function paint(frame) {
    if (frame.revision === revision) { return; }
    revision = frame.revision;
    var pieces = frame.colors.map(function (c, i) { return {gt: i, lte: i + 1, color: c}; });
    chart.setOption({
      visualMap: pieces.length ? [{show: false, dimension: 0, pieces: pieces}] : [],
      series: [{data: frame.data.map(function (v) { return v === null ? '-' : v; })}]
    });
  }
  setInterval(function () {
    fetch(%q).then(function (r) { return r.json(); }).then(paint).catch(function (err) {
      console.error('inclination refresh failed: ' + err);
    });
  }, %d);
})();`, chartID, url, ms)
}
