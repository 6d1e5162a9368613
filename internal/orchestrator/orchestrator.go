// File path: internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/debounce"
	"github.com/jacobaguon-blip/support-triage/internal/investigation"
	"github.com/jacobaguon-blip/support-triage/internal/keylock"
	"github.com/jacobaguon-blip/support-triage/internal/phases"
	"github.com/jacobaguon-blip/support-triage/internal/poller"
	"github.com/jacobaguon-blip/support-triage/internal/settings"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workflow"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

type closer interface {
	Close() error
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// Orchestrator wires together the stores, the phase queue, the debounce
// engine and the poller that back the triage server, and exposes accessors
// for the API layer.
type Orchestrator struct {
	cfg Config

	store      *sqlite.Store
	workspace  *workspace.Workspace
	settings   *settings.Store
	agent      agent.Runner
	queue      *workflow.Manager
	timers     *debounce.Scheduler
	reconciler *debounce.Reconciler
	poller     *poller.Poller
	service    *investigation.Service

	pollDisabled bool

	startOnce sync.Once
	stop      context.CancelFunc
	wg        sync.WaitGroup

	closers []closer
}

// New constructs an orchestrator from the provided configuration and optional
// overrides. Nothing runs in the background until Start.
func New(ctx context.Context, cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg = applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	clock := o.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := common.Logger()

	ws, err := workspace.New(cfg.InvestigationsDir)
	if err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}
	store, err := OpenStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init sqlite store: %w", err)
	}

	settingsStore := settings.NewStore(cfg.SettingsPath)
	prefs, err := settingsStore.Load()
	if err != nil {
		logger.Warn("orchestrator: settings unreadable, using defaults", "path", cfg.SettingsPath, "error", err)
		prefs = settings.Defaults()
	}

	runner := o.agent
	if runner == nil {
		runner, err = newAgent(cfg, ws)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init agent: %w", err)
		}
	}
	runner = agent.Limited(runner, rate.NewLimiter(rate.Limit(cfg.AgentRate), 1))

	source := o.source
	if source == nil {
		source = ticket.Chain{
			ticket.DirSource{Dir: cfg.TicketExportDir},
			ticket.AgentSource{Runner: runner, WorkDir: cfg.AgentWorkDir, Clock: clock.Now},
		}
	}

	locks := keylock.New()
	executor, err := phases.New(phases.Config{
		Store:        store,
		Workspace:    ws,
		Agent:        runner,
		Source:       source,
		Locks:        locks,
		Clock:        clock,
		AgentWorkDir: cfg.AgentWorkDir,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init phases: %w", err)
	}
	queue := workflow.NewManager(store, executor,
		workflow.WithClock(clock),
		workflow.WithMaxActive(prefs.Concurrency.MaxActiveInvestigations),
	)

	reconciler := debounce.NewReconciler(store, ws, locks)
	timers := debounce.NewScheduler(store, reconciler.Fire,
		debounce.WithClock(clock),
		debounce.WithWindow(cfg.DebounceWindow),
	)

	poll, err := poller.New(poller.Config{
		Store:     store,
		Workspace: ws,
		Locks:     locks,
		Timers:    timers,
		Clock:     clock,
		Interval:  cfg.PollInterval,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init poller: %w", err)
	}

	service, err := investigation.New(investigation.Config{
		Store:            store,
		Workspace:        ws,
		Locks:            locks,
		Queue:            queue,
		Timers:           timers,
		Clock:            clock,
		DefaultAgentMode: prefs.AgentMode.Default,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init investigation service: %w", err)
	}

	orch := &Orchestrator{
		cfg:          cfg,
		store:        store,
		workspace:    ws,
		settings:     settingsStore,
		agent:        runner,
		queue:        queue,
		timers:       timers,
		reconciler:   reconciler,
		poller:       poll,
		service:      service,
		pollDisabled: o.disablePoll || cfg.PollDisabled,
	}
	// Closed in reverse: background work stops before the database closes.
	orch.closers = append(orch.closers,
		store,
		queue,
		closeFunc(func() error { timers.Close(); return nil }),
	)
	logger.Info("orchestrator: initialised",
		"investigations_dir", cfg.InvestigationsDir,
		"database", cfg.DatabasePath,
		"agent_backend", cfg.AgentBackend,
		"max_active", prefs.Concurrency.MaxActiveInvestigations,
	)
	return orch, nil
}

// OpenStore opens the database at path, creating its directory. SQLITE_PATH
// overrides path; the other SQLITE_* settings still apply.
func OpenStore(path string) (*sqlite.Store, error) {
	cfg, err := sqlite.LoadConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(os.Getenv("SQLITE_PATH")) == "" {
		cfg.Path = path
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	return sqlite.OpenWithConfig(cfg)
}

func newAgent(cfg Config, ws *workspace.Workspace) (agent.Runner, error) {
	switch cfg.AgentBackend {
	case BackendOpenAI:
		return agent.NewOpenAIRunner(agent.OpenAIConfigFromEnv())
	default:
		return agent.NewCLIRunner(agent.CLIConfig{
			Binary:  cfg.AgentBinary,
			Timeout: cfg.AgentTimeout,
		}, ws), nil
	}
}

// Start recovers state left by a previous process, imports investigation
// folders without a database row and launches the poller. It is safe to call
// more than once; only the first call has effect.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o == nil {
		return errors.New("orchestrator not initialised")
	}
	var err error
	o.startOnce.Do(func() {
		err = o.start(ctx)
	})
	return err
}

func (o *Orchestrator) start(ctx context.Context) error {
	logger := common.Logger()
	recovered, err := o.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover tasks: %w", err)
	}
	rearmed, err := o.timers.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover debounce timers: %w", err)
	}
	boot, err := o.service.Bootstrap(ctx)
	if err != nil {
		logger.Warn("orchestrator: bootstrap failed", "error", err)
	}
	logger.Info("orchestrator: started",
		"recovered_tasks", recovered,
		"rearmed_timers", rearmed,
		"imported", boot.Created,
		"populated", boot.Populated,
	)

	if o.pollDisabled {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.stop = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.poller.Run(runCtx); err != nil {
			logger.Error("orchestrator: poller stopped", "error", err)
		}
	}()
	return nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	if o == nil {
		return Config{}
	}
	return o.cfg
}

// Store exposes the database.
func (o *Orchestrator) Store() *sqlite.Store {
	if o == nil {
		return nil
	}
	return o.store
}

// Workspace exposes the investigation directories.
func (o *Orchestrator) Workspace() *workspace.Workspace {
	if o == nil {
		return nil
	}
	return o.workspace
}

// Settings exposes the operator settings file.
func (o *Orchestrator) Settings() *settings.Store {
	if o == nil {
		return nil
	}
	return o.settings
}

// Agent exposes the rate-limited agent runner.
func (o *Orchestrator) Agent() agent.Runner {
	if o == nil {
		return nil
	}
	return o.agent
}

// Queue exposes the phase task queue.
func (o *Orchestrator) Queue() *workflow.Manager {
	if o == nil {
		return nil
	}
	return o.queue
}

// Timers exposes the debounce scheduler.
func (o *Orchestrator) Timers() *debounce.Scheduler {
	if o == nil {
		return nil
	}
	return o.timers
}

// Reconciler exposes the debounce reconciler.
func (o *Orchestrator) Reconciler() *debounce.Reconciler {
	if o == nil {
		return nil
	}
	return o.reconciler
}

// Poller exposes the response poller.
func (o *Orchestrator) Poller() *poller.Poller {
	if o == nil {
		return nil
	}
	return o.poller
}

// Investigations exposes the investigation service.
func (o *Orchestrator) Investigations() *investigation.Service {
	if o == nil {
		return nil
	}
	return o.service
}

// Close stops the poller and releases any resources associated with the
// orchestrator.
func (o *Orchestrator) Close() error {
	if o == nil {
		return nil
	}
	if o.stop != nil {
		o.stop()
	}
	o.wg.Wait()
	var err error
	for i := len(o.closers) - 1; i >= 0; i-- {
		closer := o.closers[i]
		if closer == nil {
			continue
		}
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
