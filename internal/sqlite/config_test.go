// File path: internal/sqlite/config_test.go
package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sqlite.yaml")
	if err := os.WriteFile(path, []byte("path: /data/file.db\nmax_open_conns: 4\nbusy_timeout: 2s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SQLITE_CONFIG_FILE", path)
	t.Setenv("SQLITE_MAX_OPEN_CONNS", "6")
	t.Setenv("SQLITE_PATH", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Path != "/data/file.db" {
		t.Fatalf("expected path from file, got %q", cfg.Path)
	}
	if cfg.MaxOpenConns != 6 {
		t.Fatalf("expected env override of max open conns, got %d", cfg.MaxOpenConns)
	}
	if cfg.BusyTimeout != 2*time.Second {
		t.Fatalf("expected busy timeout 2s, got %s", cfg.BusyTimeout)
	}
	if cfg.ConnMaxLifetime != 15*time.Minute {
		t.Fatalf("expected default lifetime, got %s", cfg.ConnMaxLifetime)
	}
	if cfg.JournalMode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", cfg.JournalMode)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("SQLITE_CONFIG_FILE", "")
	t.Setenv("SQLITE_MAX_IDLE_CONNS", "many")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
	t.Setenv("SQLITE_MAX_IDLE_CONNS", "")
	t.Setenv("SQLITE_BUSY_TIMEOUT", "a while")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected duration error")
	}
}
