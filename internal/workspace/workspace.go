// File path: internal/workspace/workspace.go
package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/common"
)

// Names of the files kept in an investigation directory.
const (
	FileTicketData        = "ticket-data.json"
	FilePhase1Findings    = "phase1-findings.md"
	FileSummary           = "summary.md"
	FileCustomerResponse  = "customer-response.md"
	FileLinearDraft       = "linear-draft.md"
	FileCheckpointActions = "checkpoint-actions.json"
	FileActivityLog       = "activity-log.jsonl"
	FileMetrics           = "metrics.json"
	FileAgentTranscript   = "agent-transcript.txt"
	FileTriagePrompt      = "triage-prompt.txt"
)

// TrackedFiles are captured in every snapshot.
var TrackedFiles = []string{
	FileTicketData,
	FilePhase1Findings,
	FileSummary,
	FileCustomerResponse,
	FileLinearDraft,
	FileCheckpointActions,
}

// ArchivedFiles are copied into run-N/ on hard reset.
var ArchivedFiles = []string{
	FileTicketData,
	FilePhase1Findings,
	FileSummary,
	FileCustomerResponse,
	FileLinearDraft,
	FileCheckpointActions,
	FileActivityLog,
	FileMetrics,
	FileAgentTranscript,
	FileTriagePrompt,
}

// IsJSON reports whether the tracked file holds JSON.
func IsJSON(name string) bool {
	return strings.HasSuffix(name, ".json")
}

// ErrInvalidName is returned for file names that escape the directory.
var ErrInvalidName = errors.New("workspace: invalid file name")

// Workspace manages the per-investigation directories under one root.
type Workspace struct {
	root string
	// mu serialises appends to the shared log files.
	mu sync.Mutex
}

// New creates the root directory if needed.
func New(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute investigations directory.
func (w *Workspace) Root() string { return w.root }

// Dir returns the directory for an investigation.
func (w *Workspace) Dir(id int64) string {
	return filepath.Join(w.root, strconv.FormatInt(id, 10))
}

// Ensure creates the investigation directory and returns its path.
func (w *Workspace) Ensure(id int64) (string, error) {
	dir := w.Dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create investigation dir: %w", err)
	}
	return dir, nil
}

// Exists reports whether the investigation directory is present.
func (w *Workspace) Exists(id int64) bool {
	info, err := os.Stat(w.Dir(id))
	return err == nil && info.IsDir()
}

func (w *Workspace) path(id int64, name string) (string, error) {
	clean := filepath.Clean(name)
	if name == "" || clean != name || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(w.Dir(id), clean), nil
}

// ReadFile returns the file contents. A missing file yields fs.ErrNotExist.
func (w *Workspace) ReadFile(id int64, name string) ([]byte, error) {
	p, err := w.path(id, name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// ReadText returns the file as a string, or nil when missing or unreadable.
func (w *Workspace) ReadText(id int64, name string) *string {
	data, err := w.ReadFile(id, name)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// ReadJSON decodes a JSON file into v.
func (w *Workspace) ReadJSON(id int64, name string, v interface{}) error {
	data, err := w.ReadFile(id, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// WriteFile atomically replaces the file contents.
func (w *Workspace) WriteFile(id int64, name string, data []byte) error {
	p, err := w.path(id, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create investigation dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+name+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// WriteJSON writes v as two-space indented JSON.
func (w *Workspace) WriteJSON(id int64, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return w.WriteFile(id, name, data)
}

// WriteRawJSON re-indents raw JSON before writing it.
func (w *Workspace) WriteRawJSON(id int64, name string, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return w.WriteFile(id, name, buf.Bytes())
}

// Archive copies the archivable files into run-{runNumber}/. Files that are
// missing are skipped; copy failures are logged and skipped. The names that
// were copied are returned.
func (w *Workspace) Archive(id int64, runNumber int) []string {
	logger := common.Logger()
	dest := filepath.Join(w.Dir(id), fmt.Sprintf("run-%d", runNumber))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		logger.Warn("workspace: create archive dir failed", "investigation", id, "run", runNumber, "error", err)
		return nil
	}
	var copied []string
	for _, name := range ArchivedFiles {
		src := filepath.Join(w.Dir(id), name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyFile(src, filepath.Join(dest, name)); err != nil {
			logger.Warn("workspace: archive file failed", "investigation", id, "file", name, "error", err)
			continue
		}
		copied = append(copied, name)
	}
	logger.Info("workspace: archived run", "investigation", id, "run", runNumber, "files", len(copied))
	return copied
}

// Truncate removes the working copies of the archived files except
// ticket-data.json. Files missing from archived are left in place.
func (w *Workspace) Truncate(id int64, archived []string) {
	logger := common.Logger()
	copied := make(map[string]bool, len(archived))
	for _, name := range archived {
		copied[name] = true
	}
	for _, name := range ArchivedFiles {
		if name == FileTicketData {
			continue
		}
		p := filepath.Join(w.Dir(id), name)
		if !copied[name] {
			if _, err := os.Stat(p); err == nil {
				logger.Warn("workspace: keeping unarchived file", "investigation", id, "file", name)
			}
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("workspace: truncate file failed", "investigation", id, "file", name, "error", err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FileInfo describes one entry of an investigation directory.
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"isDir"`
	Modified time.Time `json:"modified"`
}

// List returns the entries of the investigation directory sorted by name.
func (w *Workspace) List(id int64) ([]FileInfo, error) {
	entries, err := os.ReadDir(w.Dir(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read investigation dir: %w", err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: entry.Name(), Size: info.Size(), IsDir: entry.IsDir(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// InvestigationIDs returns the numeric directory names under the root.
func (w *Workspace) InvestigationIDs() ([]int64, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil, fmt.Errorf("read workspace root: %w", err)
	}
	var ids []int64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
