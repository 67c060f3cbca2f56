// Package config loads the TOML configuration file, applying defaults for
// anything the user leaves out.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// duration lets TOML carry values like "30s" or "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the full mailsweep configuration.
type Config struct {
	DBPath         string   `toml:"db_path"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
	BatchSize      int64    `toml:"batch_size"`
	ScoreThreshold int      `toml:"score_threshold"`
	MaxConcurrent  int      `toml:"max_concurrent"`
	RequestTimeout duration `toml:"request_timeout"`
	DelayMin       duration `toml:"delay_min"`
	DelayMax       duration `toml:"delay_max"`
	DelayCeiling   duration `toml:"delay_ceiling"`
	Cooldown       duration `toml:"cooldown"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	return Config{
		LogLevel:       "info",
		LogFormat:      "console",
		BatchSize:      500,
		ScoreThreshold: 3,
		MaxConcurrent:  3,
		RequestTimeout: duration{30 * time.Second},
		DelayMin:       duration{2 * time.Second},
		DelayMax:       duration{5 * time.Second},
		DelayCeiling:   duration{60 * time.Second},
		Cooldown:       duration{5 * time.Minute},
	}
}

// Load reads the TOML file at path. A missing file is not an error: the
// defaults are returned so first runs need no setup.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.DelayMin.Duration > c.DelayMax.Duration {
		return fmt.Errorf("delay_min %v exceeds delay_max %v", c.DelayMin.Duration, c.DelayMax.Duration)
	}
	return nil
}

// Timeout returns the remote request timeout as a plain duration.
func (c Config) Timeout() time.Duration { return c.RequestTimeout.Duration }

// WriteExample writes a commented example config if none exists yet.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	const example = `# mailsweep configuration
#db_path = "~/.config/mailsweep/mailsweep.db"
#log_level = "info"       # debug, info, warn, error
#log_format = "console"   # console or json
#batch_size = 500
#score_threshold = 3
#max_concurrent = 3
#request_timeout = "30s"
#delay_min = "2s"
#delay_max = "5s"
#delay_ceiling = "60s"
#cooldown = "5m"
`
	return os.WriteFile(path, []byte(example), 0o644)
}
