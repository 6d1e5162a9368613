// File path: cmd/triage/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacobaguon-blip/support-triage/internal/api"
	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/orchestrator"
)

const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	addr   string
	noPoll bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, phase queue and response poller",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "listen address (overrides TRIAGE_LISTEN_ADDR)")
	f.BoolVar(&serveFlags.noPoll, "no-poll", false, "do not poll for new customer responses")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := common.Logger()
	cfg, err := orchestrator.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if trimmed := strings.TrimSpace(serveFlags.addr); trimmed != "" {
		cfg.ListenAddr = trimmed
	}
	if serveFlags.noPoll {
		cfg.PollDisabled = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Error("triage: shutdown incomplete", "error", err)
		}
	}()
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	handler, err := api.NewServer(orch)
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reachable := cfg.ListenAddr
		if strings.HasPrefix(reachable, ":") {
			reachable = "localhost" + reachable
		}
		logger.Info("triage: server listening", "addr", cfg.ListenAddr, "health", fmt.Sprintf("http://%s/api/health", reachable))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("triage: shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
