// File path: internal/orchestrator/config.go
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent backends.
const (
	BackendCLI    = "cli"
	BackendOpenAI = "openai"
)

// Config controls the construction of the orchestrator and its background
// loops.
type Config struct {
	ListenAddr        string `yaml:"listen_addr"`
	InvestigationsDir string `yaml:"investigations_dir"`
	DatabasePath      string `yaml:"database_path"`
	SettingsPath      string `yaml:"settings_path"`
	// TicketExportDir holds <ticketID>.json exports tried before the agent.
	TicketExportDir string `yaml:"ticket_export_dir"`

	AgentBackend string `yaml:"agent_backend"`
	AgentBinary  string `yaml:"agent_binary"`
	AgentWorkDir string `yaml:"agent_work_dir"`
	// AgentRate caps agent invocations per second across investigations.
	AgentRate float64 `yaml:"agent_rate"`

	AgentTimeout       time.Duration `yaml:"-"`
	AgentTimeoutString string        `yaml:"agent_timeout"`

	PollInterval       time.Duration `yaml:"-"`
	PollIntervalString string        `yaml:"poll_interval"`
	PollDisabled       bool          `yaml:"poll_disabled"`

	DebounceWindow       time.Duration `yaml:"-"`
	DebounceWindowString string        `yaml:"debounce_window"`
}

// DefaultConfig returns the baseline configuration used when no overrides are
// supplied.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":3001",
		InvestigationsDir: filepath.Join("data", "investigations"),
		DatabasePath:      filepath.Join("data", "triage.db"),
		SettingsPath:      filepath.Join("data", "settings.json"),
		AgentBackend:      BackendCLI,
		AgentBinary:       "claude",
		AgentWorkDir:      ".",
		AgentRate:         1,
		AgentTimeout:      5 * time.Minute,
		PollInterval:      time.Minute,
		DebounceWindow:    20 * time.Minute,
	}
}

// LoadConfig builds a Config from defaults, the optional YAML file named by
// TRIAGE_CONFIG_FILE and TRIAGE_* environment variables, in that order.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("TRIAGE_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	return applyDefaults(cfg), nil
}

// Merge overlays the non-zero values of override onto c.
func (c Config) Merge(override Config) Config {
	result := c
	str := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, v time.Duration, raw string) {
		if v > 0 {
			*dst = v
			return
		}
		if parsed, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
	str(&result.ListenAddr, override.ListenAddr)
	str(&result.InvestigationsDir, override.InvestigationsDir)
	str(&result.DatabasePath, override.DatabasePath)
	str(&result.SettingsPath, override.SettingsPath)
	str(&result.TicketExportDir, override.TicketExportDir)
	str(&result.AgentBackend, override.AgentBackend)
	str(&result.AgentBinary, override.AgentBinary)
	str(&result.AgentWorkDir, override.AgentWorkDir)
	if override.AgentRate > 0 {
		result.AgentRate = override.AgentRate
	}
	dur(&result.AgentTimeout, override.AgentTimeout, override.AgentTimeoutString)
	dur(&result.PollInterval, override.PollInterval, override.PollIntervalString)
	dur(&result.DebounceWindow, override.DebounceWindow, override.DebounceWindowString)
	if override.PollDisabled {
		result.PollDisabled = true
	}
	return result
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read triage config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse triage config: %w", err)
	}
	for name, raw := range map[string]string{
		"agent_timeout":   cfg.AgentTimeoutString,
		"poll_interval":   cfg.PollIntervalString,
		"debounce_window": cfg.DebounceWindowString,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil {
			return Config{}, fmt.Errorf("parse triage config %s: %w", name, err)
		}
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{
		ListenAddr:        os.Getenv("TRIAGE_LISTEN_ADDR"),
		InvestigationsDir: os.Getenv("TRIAGE_INVESTIGATIONS_DIR"),
		DatabasePath:      os.Getenv("TRIAGE_DATABASE_PATH"),
		SettingsPath:      os.Getenv("TRIAGE_SETTINGS_PATH"),
		TicketExportDir:   os.Getenv("TRIAGE_TICKET_EXPORT_DIR"),
		AgentBackend:      strings.ToLower(strings.TrimSpace(os.Getenv("TRIAGE_AGENT_BACKEND"))),
		AgentBinary:       os.Getenv("TRIAGE_AGENT_BINARY"),
		AgentWorkDir:      os.Getenv("TRIAGE_AGENT_WORK_DIR"),
	}
	if value := strings.TrimSpace(os.Getenv("TRIAGE_AGENT_RATE")); value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse TRIAGE_AGENT_RATE: %w", err)
		}
		cfg.AgentRate = rate
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TRIAGE_AGENT_TIMEOUT", &cfg.AgentTimeout},
		{"TRIAGE_POLL_INTERVAL", &cfg.PollInterval},
		{"TRIAGE_DEBOUNCE_WINDOW", &cfg.DebounceWindow},
	}
	for _, d := range durations {
		value := strings.TrimSpace(os.Getenv(d.key))
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if value := strings.TrimSpace(os.Getenv("TRIAGE_POLL_DISABLED")); value != "" {
		disabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse TRIAGE_POLL_DISABLED: %w", err)
		}
		cfg.PollDisabled = disabled
	}
	return cfg, nil
}

func applyDefaults(cfg Config) Config {
	return DefaultConfig().Merge(cfg)
}

func (c Config) validate() error {
	if strings.TrimSpace(c.InvestigationsDir) == "" {
		return fmt.Errorf("investigations dir required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database path required")
	}
	switch c.AgentBackend {
	case BackendCLI, BackendOpenAI:
	default:
		return fmt.Errorf("unknown agent backend %q", c.AgentBackend)
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("agent timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.DebounceWindow <= 0 {
		return fmt.Errorf("debounce window must be positive")
	}
	return nil
}
