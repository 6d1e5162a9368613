// File path: internal/sqlite/config.go
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls where the triage database lives and how its pool behaves.
type Config struct {
	Path        string
	JournalMode string

	MaxOpenConns int
	MaxIdleConns int

	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// BusyTimeout bounds how long a writer waits for the database lock.
	BusyTimeout time.Duration
}

// fileConfig is the YAML shape of SQLITE_CONFIG_FILE. Durations are written
// as Go duration strings ("2s", "15m").
type fileConfig struct {
	Path            string `yaml:"path"`
	JournalMode     string `yaml:"journal_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
	BusyTimeout     string `yaml:"busy_timeout"`
}

// LoadConfig layers SQLITE_CONFIG_FILE, then SQLITE_* variables, over the
// defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("SQLITE_CONFIG_FILE")); path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.readEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.JournalMode == "" {
		c.JournalMode = "wal"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 15 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read sqlite config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse sqlite config: %w", err)
	}
	c.Path = strings.TrimSpace(fc.Path)
	c.JournalMode = strings.TrimSpace(fc.JournalMode)
	c.MaxOpenConns = fc.MaxOpenConns
	c.MaxIdleConns = fc.MaxIdleConns
	for _, d := range []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&c.ConnMaxLifetime, fc.ConnMaxLifetime, "conn_max_lifetime"},
		{&c.ConnMaxIdleTime, fc.ConnMaxIdleTime, "conn_max_idle_time"},
		{&c.BusyTimeout, fc.BusyTimeout, "busy_timeout"},
	} {
		if err := setDuration(d.dst, d.raw); err != nil {
			return fmt.Errorf("parse sqlite config %s: %w", d.key, err)
		}
	}
	return nil
}

// readEnv applies SQLITE_* variables; empty variables are ignored.
func (c *Config) readEnv() error {
	if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
		c.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("SQLITE_JOURNAL_MODE")); v != "" {
		c.JournalMode = v
	}
	for key, dst := range map[string]*int{
		"SQLITE_MAX_OPEN_CONNS": &c.MaxOpenConns,
		"SQLITE_MAX_IDLE_CONNS": &c.MaxIdleConns,
	} {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if n > 0 {
			*dst = n
		}
	}
	for key, dst := range map[string]*time.Duration{
		"SQLITE_CONN_MAX_LIFETIME":  &c.ConnMaxLifetime,
		"SQLITE_CONN_MAX_IDLE_TIME": &c.ConnMaxIdleTime,
		"SQLITE_BUSY_TIMEOUT":       &c.BusyTimeout,
	} {
		if err := setDuration(dst, os.Getenv(key)); err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
	}
	return nil
}

func setDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if d > 0 {
		*dst = d
	}
	return nil
}
