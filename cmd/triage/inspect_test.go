// File path: cmd/triage/inspect_test.go
package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/orchestrator"
)

func TestParseID(t *testing.T) {
	if id, err := parseID(" 42 "); err != nil || id != 42 {
		t.Fatalf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "x", "-3", "0"} {
		if _, err := parseID(bad); err == nil {
			t.Errorf("parseID(%q) should fail", bad)
		}
	}
}

func TestListAndShowCommands(t *testing.T) {
	t.Setenv("TRIAGE_CONFIG_FILE", "")
	t.Setenv("SQLITE_CONFIG_FILE", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("TRIAGE_DATABASE_PATH", filepath.Join(t.TempDir(), "triage.db"))

	cfg, err := orchestrator.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	store, err := orchestrator.OpenStore(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	cp := model.CheckpointValidation
	err = store.Q().InsertInvestigation(context.Background(), &model.Investigation{
		ID:                2718,
		CustomerName:      model.Ptr("Hooli"),
		Status:            model.StatusWaiting,
		CurrentCheckpoint: &cp,
		AgentMode:         "team",
		CurrentRunNumber:  1,
	})
	store.Close()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"list", "--status", "waiting"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "Hooli") || !strings.Contains(out.String(), "2718") {
		t.Fatalf("list output missing investigation:\n%s", out.String())
	}

	out.Reset()
	rootCmd.SetArgs([]string{"show", "2718"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), string(model.CheckpointValidation)) {
		t.Fatalf("show output missing checkpoint:\n%s", out.String())
	}

	rootCmd.SetArgs([]string{"show", "9999"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestRenderRunsMarksOpenRuns(t *testing.T) {
	var out bytes.Buffer
	renderRuns(&out, []model.Run{{RunNumber: 1, TriggerType: model.TriggerManual, Status: model.RunRunning}})
	if !strings.Contains(out.String(), string(model.TriggerManual)) {
		t.Fatalf("missing trigger:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "-") {
		t.Fatalf("open run should show a placeholder completion:\n%s", out.String())
	}
}
