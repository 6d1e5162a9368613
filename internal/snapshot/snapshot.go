// File path: internal/snapshot/snapshot.go
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
	"github.com/jmoiron/sqlx/types"
)

// Created identifies a newly inserted snapshot.
type Created struct {
	VersionID     int64 `json:"versionId"`
	VersionNumber int   `json:"versionNumber"`
}

// Store captures and compares investigation snapshots. Callers hold the
// investigation lock and pass transaction-bound queries.
type Store struct {
	ws *workspace.Workspace
}

// New returns a snapshot store reading files from ws.
func New(ws *workspace.Workspace) *Store {
	return &Store{ws: ws}
}

// Create snapshots the investigation row and tracked files, computes the diff
// against the previous snapshot and points current_version_id at the result.
func (s *Store) Create(ctx context.Context, q *sqlite.Queries, investigationID int64, checkpoint *model.Checkpoint, label string, runNumber int) (Created, error) {
	if s == nil || s.ws == nil {
		return Created{}, errors.New("snapshot store not initialised")
	}
	inv, err := q.GetInvestigation(ctx, investigationID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return Created{}, fmt.Errorf("investigation %d: %w", investigationID, model.ErrNotFound)
		}
		return Created{}, fmt.Errorf("load investigation: %w", err)
	}
	fields := model.CaptureFields(inv)
	files := s.captureFiles(investigationID)

	next, err := q.NextVersionNumber(ctx, investigationID)
	if err != nil {
		return Created{}, err
	}
	summary := "Initial snapshot"
	if next > 1 {
		prev, err := q.LatestVersion(ctx, investigationID)
		if err != nil {
			return Created{}, fmt.Errorf("load previous version: %w", err)
		}
		summary, err = diffSummary(prev, fields, files)
		if err != nil {
			return Created{}, err
		}
	}

	fieldJSON, err := json.Marshal(fields)
	if err != nil {
		return Created{}, fmt.Errorf("encode snapshot fields: %w", err)
	}
	fileJSON, err := json.Marshal(files)
	if err != nil {
		return Created{}, fmt.Errorf("encode snapshot files: %w", err)
	}
	if runNumber <= 0 {
		runNumber = inv.RunNumber()
	}
	version := &model.Version{
		InvestigationID:       investigationID,
		RunNumber:             runNumber,
		VersionNumber:         next,
		Label:                 label,
		Checkpoint:            checkpoint,
		SnapshotInvestigation: types.JSONText(fieldJSON),
		SnapshotFiles:         types.JSONText(fileJSON),
		DiffSummary:           summary,
		CreatedBy:             "system",
	}
	if err := q.InsertVersion(ctx, version); err != nil {
		return Created{}, err
	}
	if err := q.SetCurrentVersion(ctx, investigationID, version.ID); err != nil {
		return Created{}, err
	}
	common.Logger().Debug("snapshot: created", "investigation", investigationID, "version", next, "label", label)
	return Created{VersionID: version.ID, VersionNumber: next}, nil
}

// captureFiles reads the tracked files. JSON files are stored parsed, text
// files as strings and missing or unparseable files as null.
func (s *Store) captureFiles(investigationID int64) model.FileSnapshot {
	files := model.FileSnapshot{}
	for _, name := range workspace.TrackedFiles {
		files[name] = json.RawMessage("null")
		data, err := s.ws.ReadFile(investigationID, name)
		if err != nil {
			continue
		}
		if workspace.IsJSON(name) {
			if !json.Valid(data) {
				common.Logger().Warn("snapshot: unparseable tracked file", "investigation", investigationID, "file", name)
				continue
			}
			files[name] = compact(data)
			continue
		}
		encoded, err := json.Marshal(string(data))
		if err != nil {
			continue
		}
		files[name] = encoded
	}
	return files
}

func compact(data []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(buf.Bytes())
}

func diffSummary(prev *model.Version, fields model.FieldSnapshot, files model.FileSnapshot) (string, error) {
	prevFields, err := prev.Fields()
	if err != nil {
		return "", fmt.Errorf("decode previous fields: %w", err)
	}
	prevFiles, err := prev.Files()
	if err != nil {
		return "", fmt.Errorf("decode previous files: %w", err)
	}
	var changedFields, changedFiles []string
	for _, name := range model.TrackedFields {
		if !sameValue(prevFields.Field(name), fields.Field(name)) {
			changedFields = append(changedFields, name)
		}
	}
	for _, name := range workspace.TrackedFiles {
		if !sameJSON(prevFiles[name], files[name]) {
			changedFiles = append(changedFiles, name)
		}
	}
	return fmt.Sprintf("Changed fields: [%s]. Changed files: [%s]", listOrNone(changedFields), listOrNone(changedFiles)), nil
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// sameJSON compares decoded values so formatting and key order are ignored.
// An absent entry equals null.
func sameJSON(a, b json.RawMessage) bool {
	var av, bv interface{}
	if len(a) > 0 {
		if err := json.Unmarshal(a, &av); err != nil {
			return false
		}
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &bv); err != nil {
			return false
		}
	}
	return reflect.DeepEqual(av, bv)
}

// List returns the investigation's snapshots in ascending version order.
func (s *Store) List(ctx context.Context, q *sqlite.Queries, investigationID int64) ([]model.Version, error) {
	versions, err := q.ListVersions(ctx, investigationID)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []model.Version{}
	}
	return versions, nil
}

// Diff compares two snapshots of the same investigation.
func (s *Store) Diff(ctx context.Context, q *sqlite.Queries, investigationID, a, b int64) (model.VersionDiff, error) {
	va, err := s.load(ctx, q, investigationID, a)
	if err != nil {
		return model.VersionDiff{}, err
	}
	vb, err := s.load(ctx, q, investigationID, b)
	if err != nil {
		return model.VersionDiff{}, err
	}
	fa, err := va.Fields()
	if err != nil {
		return model.VersionDiff{}, fmt.Errorf("decode version %d: %w", a, err)
	}
	fb, err := vb.Fields()
	if err != nil {
		return model.VersionDiff{}, fmt.Errorf("decode version %d: %w", b, err)
	}
	filesA, err := va.Files()
	if err != nil {
		return model.VersionDiff{}, fmt.Errorf("decode version %d: %w", a, err)
	}
	filesB, err := vb.Files()
	if err != nil {
		return model.VersionDiff{}, fmt.Errorf("decode version %d: %w", b, err)
	}

	diff := model.VersionDiff{ChangedFields: []model.FieldChange{}, ChangedFiles: []string{}}
	for _, name := range model.TrackedFields {
		oldValue, newValue := fa.Field(name), fb.Field(name)
		if !sameValue(oldValue, newValue) {
			diff.ChangedFields = append(diff.ChangedFields, model.FieldChange{Field: name, OldValue: oldValue, NewValue: newValue})
		}
	}
	for _, name := range fileUnion(filesA, filesB) {
		if !sameJSON(filesA[name], filesB[name]) {
			diff.ChangedFiles = append(diff.ChangedFiles, name)
		}
	}
	diff.Summary = fmt.Sprintf("%d field(s) changed, %d file(s) changed", len(diff.ChangedFields), len(diff.ChangedFiles))
	return diff, nil
}

// fileUnion lists the tracked files first, then any others alphabetically.
func fileUnion(a, b model.FileSnapshot) []string {
	seen := map[string]bool{}
	var names []string
	for _, name := range workspace.TrackedFiles {
		seen[name] = true
		names = append(names, name)
	}
	var extra []string
	for _, m := range []model.FileSnapshot{a, b} {
		for name := range m {
			if !seen[name] {
				seen[name] = true
				extra = append(extra, name)
			}
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func (s *Store) load(ctx context.Context, q *sqlite.Queries, investigationID, versionID int64) (*model.Version, error) {
	v, err := q.GetVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, fmt.Errorf("version %d: %w", versionID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("load version %d: %w", versionID, err)
	}
	if v.InvestigationID != investigationID {
		return nil, fmt.Errorf("version %d of investigation %d: %w", versionID, investigationID, model.ErrNotFound)
	}
	return v, nil
}
