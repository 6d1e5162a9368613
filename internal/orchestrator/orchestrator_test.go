// File path: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

var configEnv = []string{
	"TRIAGE_CONFIG_FILE",
	"TRIAGE_LISTEN_ADDR",
	"TRIAGE_INVESTIGATIONS_DIR",
	"TRIAGE_DATABASE_PATH",
	"TRIAGE_SETTINGS_PATH",
	"TRIAGE_TICKET_EXPORT_DIR",
	"TRIAGE_AGENT_BACKEND",
	"TRIAGE_AGENT_BINARY",
	"TRIAGE_AGENT_WORK_DIR",
	"TRIAGE_AGENT_RATE",
	"TRIAGE_AGENT_TIMEOUT",
	"TRIAGE_POLL_INTERVAL",
	"TRIAGE_POLL_DISABLED",
	"TRIAGE_DEBOUNCE_WINDOW",
	"SQLITE_CONFIG_FILE",
	"SQLITE_PATH",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("LoadConfig defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_INVESTIGATIONS_DIR", "/srv/triage/investigations")
	t.Setenv("TRIAGE_AGENT_BACKEND", "OpenAI")
	t.Setenv("TRIAGE_AGENT_RATE", "0.5")
	t.Setenv("TRIAGE_POLL_INTERVAL", "45s")
	t.Setenv("TRIAGE_DEBOUNCE_WINDOW", "2m")
	t.Setenv("TRIAGE_POLL_DISABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.InvestigationsDir != "/srv/triage/investigations" {
		t.Errorf("InvestigationsDir = %q", cfg.InvestigationsDir)
	}
	if cfg.AgentBackend != BackendOpenAI {
		t.Errorf("AgentBackend = %q", cfg.AgentBackend)
	}
	if cfg.AgentRate != 0.5 {
		t.Errorf("AgentRate = %v", cfg.AgentRate)
	}
	if cfg.PollInterval != 45*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.DebounceWindow != 2*time.Minute {
		t.Errorf("DebounceWindow = %v", cfg.DebounceWindow)
	}
	if !cfg.PollDisabled {
		t.Errorf("PollDisabled = false")
	}
	if cfg.DatabasePath != DefaultConfig().DatabasePath {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
}

func TestLoadConfigFileThenEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "triage.yaml")
	content := "listen_addr: \":8088\"\ndatabase_path: /var/lib/triage.db\ndebounce_window: 5m\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRIAGE_CONFIG_FILE", path)
	t.Setenv("TRIAGE_LISTEN_ADDR", ":9000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "/var/lib/triage.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.DebounceWindow != 5*time.Minute {
		t.Errorf("DebounceWindow = %v", cfg.DebounceWindow)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_POLL_INTERVAL", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "triage.yaml")
	if err := os.WriteFile(path, []byte("agent_timeout: forever\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRIAGE_CONFIG_FILE", path)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected duration error from config file")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AgentBackend = "carrier-pigeon"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

type stubAgent struct{}

func (stubAgent) Run(context.Context, agent.Request) (string, error) { return "OK", nil }

type stubSource struct{}

func (stubSource) Fetch(context.Context, int64) (*ticket.Data, error) {
	return nil, ticket.ErrUnavailable
}

func TestNewStartAndClose(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.InvestigationsDir = filepath.Join(root, "investigations")
	cfg.DatabasePath = filepath.Join(root, "db", "triage.db")
	cfg.SettingsPath = filepath.Join(root, "settings.json")

	ws, err := workspace.New(cfg.InvestigationsDir)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	if err := ws.WriteFile(3141, workspace.FileTicketData, []byte(`{"customer_name":"Initech"}`)); err != nil {
		t.Fatalf("seed ticket data: %v", err)
	}

	orch, err := New(context.Background(), cfg,
		WithAgent(stubAgent{}),
		WithTicketSource(stubSource{}),
		WithPollDisabled(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	inv, err := orch.Investigations().Get(context.Background(), 3141)
	if err != nil {
		t.Fatalf("bootstrap did not import folder: %v", err)
	}
	if inv.Status != model.StatusWaiting || inv.Customer("") != "Initech" {
		t.Fatalf("unexpected imported investigation: %+v", inv)
	}
	if _, ok := orch.Agent().(agent.Checker); !ok {
		t.Fatalf("agent should expose health checks")
	}
	if err := orch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
