// Package config loads grainhull run settings from TOML.
package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/grainhull/pkg/hull"
	"github.com/chazu/grainhull/pkg/project"
	"github.com/chazu/grainhull/pkg/transform"
	"github.com/chazu/grainhull/pkg/voxel"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the parsed configuration file.
//
//	spacing = 25.0
//	padding = 1
//	iso_level = 0.5
//
//	[projection]
//	workers = 4
//	prefer_outside = false
//	min_parallel = 8192
//
//	[output]
//	path = "hull.json"
//	plot_dir = "plots"
type Config struct {
	Spacing    float64          `toml:"spacing"`
	Padding    int              `toml:"padding"`
	IsoLevel   float64          `toml:"iso_level"`
	Projection projectionConfig `toml:"projection"`
	Output     outputConfig     `toml:"output"`
}

type projectionConfig struct {
	Workers       int  `toml:"workers"`
	PreferOutside bool `toml:"prefer_outside"`
	MinParallel   int  `toml:"min_parallel"`
}

type outputConfig struct {
	Path    string `toml:"path"`
	PlotDir string `toml:"plot_dir"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Spacing:  transform.DefaultSpacing,
		Padding:  voxel.DefaultPadding,
		IsoLevel: hull.DefaultIsoLevel,
		Projection: projectionConfig{
			MinParallel: project.DefaultMinParallel,
		},
	}
}

// Load reads a TOML file over the defaults. Relative output paths are
// resolved against the file's directory. Unknown keys are an error.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	c := Default()
	md, err := toml.DecodeFile(filename, c)
	if err != nil {
		return nil, fmt.Errorf("could not decode TOML config %s: %w", filename, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, filename, strings.Join(keys, ", "))
	}
	c.resolvePaths(filepath.Dir(filename))
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

// resolvePaths makes relative output paths relative to dir.
func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Output.Path, &c.Output.PlotDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case !(c.Spacing > 0) || math.IsInf(c.Spacing, 0):
		return fmt.Errorf("%w: spacing must be positive, got %v", ErrInvalid, c.Spacing)
	case c.Padding < 1:
		return fmt.Errorf("%w: padding must be at least 1, got %d", ErrInvalid, c.Padding)
	case !(c.IsoLevel > 0 && c.IsoLevel < 1):
		return fmt.Errorf("%w: iso_level must lie strictly between 0 and 1, got %v", ErrInvalid, c.IsoLevel)
	case c.Projection.Workers < 0:
		return fmt.Errorf("%w: projection.workers must not be negative, got %d", ErrInvalid, c.Projection.Workers)
	case c.Projection.MinParallel < 0:
		return fmt.Errorf("%w: projection.min_parallel must not be negative, got %d", ErrInvalid, c.Projection.MinParallel)
	}
	return nil
}

// PipelineOptions converts the settings to hull options. The logger is
// left for the caller to set.
func (c *Config) PipelineOptions() hull.Options {
	return hull.Options{
		Spacing:  c.Spacing,
		Padding:  c.Padding,
		IsoLevel: c.IsoLevel,
		Projection: project.Options{
			Workers:       c.Projection.Workers,
			PreferOutside: c.Projection.PreferOutside,
			MinParallel:   c.Projection.MinParallel,
		},
	}
}
