// File path: cmd/triage/inspect.go
package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/orchestrator"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
)

var listFlags struct {
	status   []string
	markdown bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List investigations",
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one investigation",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var versionsCmd = &cobra.Command{
	Use:   "versions <id>",
	Short: "List the snapshots of an investigation",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

var runsCmd = &cobra.Command{
	Use:   "runs <id>",
	Short: "List the runs of an investigation",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	f := listCmd.Flags()
	f.StringSliceVar(&listFlags.status, "status", nil, "only show these statuses (repeatable)")
	f.BoolVar(&listFlags.markdown, "markdown", false, "render as a Markdown table")
}

// withStore opens the database read path without starting the queue or
// poller, so it is safe to use next to a running server.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, q *sqlite.Queries) error) error {
	cfg, err := orchestrator.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := orchestrator.OpenStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	return fn(cmd.Context(), store.Q())
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid investigation id %q", arg)
	}
	return id, nil
}

func runList(cmd *cobra.Command, _ []string) error {
	statuses := make([]model.Status, 0, len(listFlags.status))
	for _, s := range listFlags.status {
		statuses = append(statuses, model.Status(strings.TrimSpace(s)))
	}
	return withStore(cmd, func(ctx context.Context, q *sqlite.Queries) error {
		invs, err := q.ListInvestigations(ctx, statuses...)
		if err != nil {
			return err
		}
		renderInvestigations(cmd.OutOrStdout(), invs, listFlags.markdown)
		return nil
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, q *sqlite.Queries) error {
		inv, err := q.GetInvestigation(ctx, id)
		if err != nil {
			return fmt.Errorf("investigation %d: %w", id, err)
		}
		renderInvestigation(cmd.OutOrStdout(), inv)
		return nil
	})
}

func runVersions(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, q *sqlite.Queries) error {
		versions, err := q.ListVersions(ctx, id)
		if err != nil {
			return err
		}
		renderVersions(cmd.OutOrStdout(), versions)
		return nil
	})
}

func runRuns(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withStore(cmd, func(ctx context.Context, q *sqlite.Queries) error {
		runs, err := q.ListRuns(ctx, id)
		if err != nil {
			return err
		}
		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	})
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func stamp(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format("2006-01-02 15:04")
}

func renderInvestigations(out io.Writer, invs []model.Investigation, markdown bool) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Customer", "Status", "Checkpoint", "Class", "Priority", "Run", "Updated"})
	for _, inv := range invs {
		updated := inv.UpdatedAt
		t.AppendRow(table.Row{
			inv.ID,
			inv.Customer("-"),
			inv.Status,
			inv.Checkpoint().Index(),
			model.Deref(inv.Classification),
			model.Deref(inv.Priority),
			inv.RunNumber(),
			stamp(&updated),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(invs)})
	if markdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

func renderInvestigation(out io.Writer, inv *model.Investigation) {
	t := newTable(out)
	t.AppendRows([]table.Row{
		{"ID", inv.ID},
		{"Customer", inv.Customer("-")},
		{"Status", inv.Status},
		{"Checkpoint", inv.Checkpoint()},
		{"Classification", model.Deref(inv.Classification)},
		{"Connector", model.Deref(inv.ConnectorName)},
		{"Product area", model.Deref(inv.ProductArea)},
		{"Priority", model.Deref(inv.Priority)},
		{"Agent mode", inv.AgentMode},
		{"Run", inv.RunNumber()},
		{"New reply", inv.HasNewReply},
		{"Error", model.Deref(inv.ErrorMessage)},
		{"Resolved", stamp(inv.ResolvedAt)},
	})
	t.Render()
}

func renderVersions(out io.Writer, versions []model.Version) {
	t := newTable(out)
	t.AppendHeader(table.Row{"ID", "Version", "Run", "Checkpoint", "Label", "Created"})
	for _, v := range versions {
		created := v.CreatedAt
		t.AppendRow(table.Row{v.ID, v.VersionNumber, v.RunNumber, model.Deref(v.Checkpoint), v.Label, stamp(&created)})
	}
	t.Render()
}

func renderRuns(out io.Writer, runs []model.Run) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Run", "Trigger", "Status", "Checkpoint", "Summary", "Started", "Completed"})
	for _, r := range runs {
		created := r.CreatedAt
		t.AppendRow(table.Row{
			r.RunNumber,
			r.TriggerType,
			r.Status,
			model.Deref(r.CurrentCheckpoint),
			model.Deref(r.TriggerSummary),
			stamp(&created),
			stamp(r.CompletedAt),
		})
	}
	t.Render()
}
