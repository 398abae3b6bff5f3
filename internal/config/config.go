package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig describes one remote CalDAV server to poll.
type ServerConfig struct {
	// ID is an internal identifier; assigned at startup when empty.
	ID string `yaml:"id"`
	// URL is the CalDAV endpoint, e.g. "https://calendar.example.com/".
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// CalendarPath is the calendar collection path on the server. When
	// empty, the first calendar of the principal's home set is used.
	CalendarPath string `yaml:"calendar_path"`
	// IntervalMinutes is the minimum time between automatic syncs.
	IntervalMinutes int `yaml:"interval_minutes"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the control surface.
	Listen string `yaml:"listen"`

	// Output is the path of the combined calendar artifact.
	Output string `yaml:"output"`

	// Refresh is a cron-style schedule for the scheduler tick
	// (e.g. "@every 1m").
	Refresh string `yaml:"refresh"`

	// HorizonDays is the length of the future sync window.
	HorizonDays int `yaml:"horizon_days"`

	// FetchTimeoutSeconds bounds every remote CalDAV request.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`

	// Workers is the number of concurrent sync workers.
	Workers int `yaml:"workers"`

	// QueueSize is the sync job queue capacity.
	QueueSize int `yaml:"queue_size"`

	// LogLimit caps the in-memory activity log.
	LogLimit int `yaml:"log_limit"`

	// Servers is the list of remote calendar servers polled at startup.
	Servers []ServerConfig `yaml:"servers"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:9090",
		Output:              "calendar.ics",
		Refresh:             "@every 1m",
		HorizonDays:         365,
		FetchTimeoutSeconds: 30,
		Workers:             4,
		QueueSize:           16,
		LogLimit:            1000,
		Servers:             []ServerConfig{},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:9090"
	}
	if c.Output == "" {
		c.Output = "calendar.ics"
	}
	if c.Refresh == "" {
		c.Refresh = "@every 1m"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 365
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = 30
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.LogLimit <= 0 {
		c.LogLimit = 1000
	}
	if c.Servers == nil {
		c.Servers = []ServerConfig{}
	}
	for i := range c.Servers {
		if c.Servers[i].IntervalMinutes <= 0 {
			c.Servers[i].IntervalMinutes = 20
		}
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600,
// parent directory created) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions; credentials live in this file.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".caldav2ical-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
