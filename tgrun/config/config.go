// Package config holds tgrun's configuration, read from a TOML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/walteh/tgexec/pkg/log"
	"github.com/walteh/tgexec/pkg/sentry/kernel"
)

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Log configures logging.
type Log struct {
	// Level is one of "warning", "info" or "debug".
	Level string `toml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format"`
}

// Exec configures the limits applied by execve.
type Exec struct {
	MaxArgStrings       int      `toml:"max_arg_strings"`
	MaxArgStringLen     int      `toml:"max_arg_string_len"`
	MaxArgTotal         int      `toml:"max_arg_total"`
	MaxPathLen          int      `toml:"max_path_len"`
	MaxInterpreterDepth int      `toml:"max_interpreter_depth"`
	BarrierWarnInterval Duration `toml:"barrier_warn_interval"`
}

// Config is tgrun's configuration.
type Config struct {
	Log  Log  `toml:"log"`
	Exec Exec `toml:"exec"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	kc := kernel.DefaultConfig()
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Exec: Exec{
			MaxArgStrings:       kc.MaxArgStrings,
			MaxArgStringLen:     kc.MaxArgStringLen,
			MaxArgTotal:         kc.MaxArgTotal,
			MaxPathLen:          kc.MaxPathLen,
			MaxInterpreterDepth: kc.MaxInterpreterDepth,
			BarrierWarnInterval: Duration(kc.BarrierWarnInterval),
		},
	}
}

// Load reads the file at path over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%q: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return c, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, want \"text\" or \"json\"", c.Log.Format)
	}
	for _, lim := range []struct {
		name string
		val  int
	}{
		{"max_arg_strings", c.Exec.MaxArgStrings},
		{"max_arg_string_len", c.Exec.MaxArgStringLen},
		{"max_path_len", c.Exec.MaxPathLen},
		{"max_interpreter_depth", c.Exec.MaxInterpreterDepth},
	} {
		if lim.val <= 0 {
			return fmt.Errorf("exec.%s must be positive, got %d", lim.name, lim.val)
		}
	}
	if c.Exec.MaxArgTotal < 0 {
		return fmt.Errorf("exec.max_arg_total must not be negative, got %d", c.Exec.MaxArgTotal)
	}
	if c.Exec.BarrierWarnInterval <= 0 {
		return fmt.Errorf("exec.barrier_warn_interval must be positive, got %v", time.Duration(c.Exec.BarrierWarnInterval))
	}
	return nil
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() log.Level {
	l, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("LogLevel called on an unvalidated config: %v", err))
	}
	return l
}

// ToKernel returns the kernel configuration.
func (c *Config) ToKernel() kernel.Config {
	return kernel.Config{
		MaxArgStrings:       c.Exec.MaxArgStrings,
		MaxArgStringLen:     c.Exec.MaxArgStringLen,
		MaxArgTotal:         c.Exec.MaxArgTotal,
		MaxPathLen:          c.Exec.MaxPathLen,
		MaxInterpreterDepth: c.Exec.MaxInterpreterDepth,
		BarrierWarnInterval: time.Duration(c.Exec.BarrierWarnInterval),
	}
}
