package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// DefaultConfigPath is where the CLI looks for its configuration file.
const DefaultConfigPath = "bundlex.toml"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Production bool           `toml:"production"`
	SourceMaps bool           `toml:"sourcemaps"`
	LogLevel   string         `toml:"log_level"`
	Watch      WatchConfig    `toml:"watch"`
	Database   DatabaseConfig `toml:"database"`
	Tasks      []TaskConfig   `toml:"tasks"`
}

// WatchConfig controls how file events are turned into re-runs.
type WatchConfig struct {
	DebounceMS int     `toml:"debounce_ms"`
	RatePerSec float64 `toml:"rate_per_sec"`
	Burst      int     `toml:"burst"`
}

// Debounce returns the debounce window as a [time.Duration].
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// TaskConfig declares one bundle task.
type TaskConfig struct {
	Name       string         `toml:"name"`
	SrcBase    string         `toml:"src_base"`
	Src        string         `toml:"src"`
	OutputDir  string         `toml:"output_dir"`
	OutputName string         `toml:"output_name"`
	Options    map[string]any `toml:"options"`
}

// Validate checks the fields every task needs.
func (t TaskConfig) Validate() error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: task name is required", ErrInvalidConfig)
	case t.Src == "":
		return fmt.Errorf("%w: task %q has no src", ErrInvalidConfig, t.Name)
	case t.OutputDir == "":
		return fmt.Errorf("%w: task %q has no output_dir", ErrInvalidConfig, t.Name)
	case t.OutputName == "":
		return fmt.Errorf("%w: task %q has no output_name", ErrInvalidConfig, t.Name)
	}
	return nil
}

// Validate checks the whole configuration, including duplicate task names.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateTask, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Tasks = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a bundlex.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
