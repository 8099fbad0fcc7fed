package utils

import (
	"fmt"
	"io"
	"log"

	"github.com/BurntSushi/toml"
	"github.com/carbocation/pfx"
	"github.com/natefinch/lumberjack"
)

// GridConfig lists the parameter values swept in grid mode. Every
// (compactness, segments, thresh) combination becomes one tile.
type GridConfig struct {
	Compactness []float64 `toml:"compactness"`
	Segments    []int     `toml:"segments"`
	Thresh      []float64 `toml:"thresh"`
}

func DefaultGridConfig() GridConfig {
	return GridConfig{
		Compactness: []float64{10, 20, 30, 40},
		Segments:    []int{400, 500, 600, 700, 800},
		Thresh:      []float64{0.08, 0.04, 0.01},
	}
}

// Size returns the number of tiles.
func (g GridConfig) Size() int {
	return len(g.Compactness) * len(g.Segments) * len(g.Thresh)
}

func (g GridConfig) Validate() error {
	if g.Size() == 0 {
		return fmt.Errorf("grid: every axis needs at least one value")
	}
	for _, c := range g.Compactness {
		if c <= 0 {
			return fmt.Errorf("grid: compactness must be positive, got %g", c)
		}
	}
	for _, s := range g.Segments {
		if s <= 0 {
			return fmt.Errorf("grid: segments must be positive, got %d", s)
		}
	}
	return nil
}

type LogConfig struct {
	Logfile string `toml:"logfile"`
	MaxSize int    `toml:"max_log_size"`
	MaxAge  int    `toml:"max_log_age"`
}

// SetLogger sends the standard logger to a rotated file. The returned
// closer is nil when no log file is configured.
func (c LogConfig) SetLogger() io.Closer {
	if c.Logfile == "" {
		return nil
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(l)
	return l
}

// Config is the optional TOML file accepted by the command line tool.
//
//	[grid]
//	compactness = [10.0, 20.0]
//	segments = [400]
//	thresh = [0.08, 0.01]
//
//	[logging]
//	logfile = "posterize.log"
//	max_log_size = 10
type Config struct {
	Grid    GridConfig `toml:"grid"`
	Logging LogConfig  `toml:"logging"`
}

// LoadConfig reads a TOML config. Grid axes left out of the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Grid: DefaultGridConfig()}
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, pfx.Err(err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Printf("config warning: ignoring unknown keys %v in %s", undecoded, path)
	}
	if err := cfg.Grid.Validate(); err != nil {
		return cfg, pfx.Err(err)
	}
	return cfg, nil
}
