// File path: internal/workspace/logs.go
package workspace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/common"
)

// Activity is one line of activity-log.jsonl.
type Activity struct {
	TS      time.Time `json:"ts"`
	Phase   string    `json:"phase"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// LogActivity appends an activity line. Failures are logged and swallowed.
func (w *Workspace) LogActivity(id int64, phase, kind, message string) {
	entry := Activity{TS: time.Now().UTC(), Phase: phase, Type: kind, Message: message}
	if err := w.appendLine(id, FileActivityLog, entry); err != nil {
		common.Logger().Warn("workspace: activity write failed", "investigation", id, "error", err)
	}
}

// Activity returns the parsed activity log, skipping malformed lines. When
// since is set only later entries are returned.
func (w *Workspace) Activity(id int64, since *time.Time) ([]Activity, error) {
	f, err := os.Open(filepath.Join(w.Dir(id), FileActivityLog))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Activity{}, nil
		}
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	defer f.Close()
	out := []Activity{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Activity
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if since != nil && !entry.TS.After(*since) {
			continue
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}
	return out, nil
}

func (w *Workspace) appendLine(id int64, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.appendBytes(id, name, append(data, '\n'))
}

// AppendText appends text to a plain-text file such as the agent transcript.
func (w *Workspace) AppendText(id int64, name, text string) error {
	if _, err := w.path(id, name); err != nil {
		return err
	}
	return w.appendBytes(id, name, []byte(text))
}

func (w *Workspace) appendBytes(id int64, name string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.Dir(id), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.Dir(id), name), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// MergeMetrics merges values into metrics.json and stamps last_updated.
// Failures are logged and swallowed.
func (w *Workspace) MergeMetrics(id int64, values map[string]interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	current := map[string]interface{}{}
	if err := w.ReadJSON(id, FileMetrics, &current); err != nil || current == nil {
		current = map[string]interface{}{}
	}
	for k, v := range values {
		current[k] = v
	}
	current["last_updated"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := w.WriteJSON(id, FileMetrics, current); err != nil {
		common.Logger().Warn("workspace: metrics write failed", "investigation", id, "error", err)
	}
}

// CheckpointAction is one entry of checkpoint-actions.json.
type CheckpointAction struct {
	Timestamp  time.Time `json:"timestamp"`
	Checkpoint string    `json:"checkpoint"`
	Action     string    `json:"action"`
	Feedback   *string   `json:"feedback"`
}

// CheckpointActions returns the decision history, empty when absent.
func (w *Workspace) CheckpointActions(id int64) []CheckpointAction {
	var actions []CheckpointAction
	if err := w.ReadJSON(id, FileCheckpointActions, &actions); err != nil || actions == nil {
		return []CheckpointAction{}
	}
	return actions
}

// AppendCheckpointAction appends to checkpoint-actions.json. A missing or
// unparseable file starts a new list.
func (w *Workspace) AppendCheckpointAction(id int64, action CheckpointAction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	actions := w.CheckpointActions(id)
	actions = append(actions, action)
	if err := w.WriteJSON(id, FileCheckpointActions, actions); err != nil {
		return fmt.Errorf("record checkpoint action: %w", err)
	}
	return nil
}
