package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/jwatral/qdomyos-zwift/src/chart"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the structure of config.yaml
type YAMLConfig struct {
	Chart struct {
		Title  string   `yaml:"title"`
		Slots  int      `yaml:"slots"`
		YMin   *float64 `yaml:"y_min"`
		YMax   *float64 `yaml:"y_max"`
		Width  string   `yaml:"width"`
		Height string   `yaml:"height"`
		Smooth *bool    `yaml:"smooth"`
	} `yaml:"chart"`
	Palette []struct {
		Below float64 `yaml:"below"`
		Color string  `yaml:"color"`
	} `yaml:"palette"`
	Overflow string `yaml:"overflow_color"`
}

// LoadConfig loads configuration from config.yaml. A missing file is not an
// error; callers get an empty config and fall back to chart defaults.
func LoadConfig(filepath string) (*YAMLConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &YAMLConfig{}, nil
		}
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config YAMLConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("error parsing YAML: %v", err)
	}

	return &config, nil
}

// BuildChartOptions merges the YAML chart section over chart.DefaultOptions
func BuildChartOptions(yamlConfig *YAMLConfig) (chart.Options, error) {
	opts := chart.DefaultOptions()
	c := yamlConfig.Chart

	if c.Title != "" {
		opts.Title = c.Title
	}
	if c.Slots > 0 {
		opts.Slots = c.Slots
	}
	if c.YMin != nil {
		opts.YMin = *c.YMin
	}
	if c.YMax != nil {
		opts.YMax = *c.YMax
	}
	if c.Width != "" {
		opts.Width = c.Width
	}
	if c.Height != "" {
		opts.Height = c.Height
	}
	if c.Smooth != nil {
		opts.Smooth = *c.Smooth
	}

	if len(yamlConfig.Palette) > 0 {
		steps := make([]chart.ColorStep, 0, len(yamlConfig.Palette))
		for _, p := range yamlConfig.Palette {
			steps = append(steps, chart.ColorStep{Below: p.Below, Color: p.Color})
		}
		overflow := yamlConfig.Overflow
		if overflow == "" {
			overflow = opts.Palette.Overflow
		}
		palette, err := chart.NewPalette(steps, overflow)
		if err != nil {
			return opts, fmt.Errorf("invalid palette: %w", err)
		}
		opts.Palette = palette
	}

	if opts.YMin >= opts.YMax {
		return opts, fmt.Errorf("chart y_min (%v) must be below y_max (%v)", opts.YMin, opts.YMax)
	}

	return opts, nil
}
