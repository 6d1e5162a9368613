// File path: internal/settings/settings.go
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// FileName is the settings file kept next to the investigations directory.
const FileName = "settings.json"

// Checkpoint keys in the settings file.
const (
	CheckpointClassification = "checkpoint_1_post_classification"
	CheckpointContext        = "checkpoint_2_post_context_gathering"
	CheckpointValidation     = "checkpoint_3_investigation_validation"
	CheckpointSolution       = "checkpoint_4_solution_check"
)

type Checkpoint struct {
	Enabled   bool `json:"enabled"`
	Mandatory bool `json:"mandatory"`
}

type Concurrency struct {
	MaxActiveInvestigations int `json:"max_active_investigations" validate:"min=1,max=64"`
}

type AgentMode struct {
	Default string `json:"default" validate:"required,max=32"`
}

type CodeReview struct {
	DefaultDepth int `json:"default_depth" validate:"min=0,max=10"`
}

// Settings are the operator preferences edited from the UI.
type Settings struct {
	Checkpoints map[string]Checkpoint `json:"checkpoints" validate:"required"`
	Concurrency Concurrency           `json:"concurrency"`
	AgentMode   AgentMode             `json:"agent_mode"`
	CodeReview  CodeReview            `json:"code_review"`
}

// Defaults returns the settings used when no file exists.
func Defaults() Settings {
	return Settings{
		Checkpoints: map[string]Checkpoint{
			CheckpointClassification: {Enabled: true, Mandatory: true},
			CheckpointContext:        {Enabled: true, Mandatory: true},
			CheckpointValidation:     {Enabled: true, Mandatory: true},
			CheckpointSolution:       {Enabled: true, Mandatory: true},
		},
		Concurrency: Concurrency{MaxActiveInvestigations: 3},
		AgentMode:   AgentMode{Default: "team"},
		CodeReview:  CodeReview{DefaultDepth: 2},
	}
}

// Store reads and writes the settings file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Load returns the stored settings layered over Defaults. The file may
// contain comments and trailing commas.
func (s *Store) Load() (Settings, error) {
	if s == nil {
		return Settings{}, errors.New("settings store not initialised")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Defaults()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
		return Defaults(), fmt.Errorf("parse settings: %w", err)
	}
	if out.Checkpoints == nil {
		out.Checkpoints = Defaults().Checkpoints
	}
	return out, nil
}

// Save writes settings as indented JSON, replacing the file atomically.
func (s *Store) Save(settings Settings) error {
	if s == nil {
		return errors.New("settings store not initialised")
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
