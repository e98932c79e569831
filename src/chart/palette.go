package chart

import (
	"errors"
	"fmt"
)

// ColorStep colors any segment whose slope is strictly below Below.
type ColorStep struct {
	Below float64
	Color string
}

// Palette maps the slope between two consecutive samples to a color. Steps are
// checked in order; the first one whose bound is above the slope wins and
// Overflow is used when none matches.
type Palette struct {
	Steps    []ColorStep
	Overflow string
}

// DefaultPalette is the green-to-red ramp used by the inclination widget.
func DefaultPalette() Palette {
	return Palette{
		Steps: []ColorStep{
			{Below: 0, Color: "#008000"}, // green
			{Below: 3, Color: "#32cd32"}, // limegreen
			{Below: 5, Color: "#ffd700"}, // gold
			{Below: 7, Color: "#ffa500"}, // orange
			{Below: 9, Color: "#ff8c00"}, // darkorange
		},
		Overflow: "#ff0000", // red
	}
}

// NewPalette validates that steps are strictly increasing and every color is set.
func NewPalette(steps []ColorStep, overflow string) (Palette, error) {
	if overflow == "" {
		return Palette{}, errors.New("overflow color is required")
	}
	for i, s := range steps {
		if s.Color == "" {
			return Palette{}, fmt.Errorf("step %d has no color", i)
		}
		if i > 0 && s.Below <= steps[i-1].Below {
			return Palette{}, fmt.Errorf("step %d bound %v is not above %v", i, s.Below, steps[i-1].Below)
		}
	}
	cp := make([]ColorStep, len(steps))
	copy(cp, steps)
	return Palette{Steps: cp, Overflow: overflow}, nil
}

// SegmentColor returns the color for a segment with the given slope. NaN never
// satisfies a bound and gets the overflow color.
func (p Palette) SegmentColor(delta float64) string {
	for _, s := range p.Steps {
		if delta < s.Below {
			return s.Color
		}
	}
	return p.Overflow
}

// SegmentColors returns one color per segment of data, len(data)-1 entries.
func (p Palette) SegmentColors(data []float64) []string {
	if len(data) < 2 {
		return []string{}
	}
	colors := make([]string, len(data)-1)
	for i := 1; i < len(data); i++ {
		colors[i-1] = p.SegmentColor(data[i] - data[i-1])
	}
	return colors
}
