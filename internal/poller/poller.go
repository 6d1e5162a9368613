// File path: internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/common/telemetry"
	"github.com/jacobaguon-blip/support-triage/internal/keylock"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

const (
	DefaultInterval    = 60 * time.Second
	DefaultConcurrency = 4
	DefaultRate        = 2
	DefaultMaxTries    = 3
)

// ErrNoTicketData is returned when an investigation has no ticket body to
// parse responses from.
var ErrNoTicketData = fmt.Errorf("%w: no ticket data", model.ErrNotFound)

// Timers starts or extends the debounce window of an investigation.
type Timers interface {
	StartOrReset(ctx context.Context, id int64) (model.DebounceTimer, error)
}

// Config wires a Poller.
type Config struct {
	Store     *sqlite.Store
	Workspace *workspace.Workspace
	Locks     *keylock.Map
	Timers    Timers
	Clock     clockwork.Clock

	Interval       time.Duration
	Concurrency    int
	RatePerSecond  float64
	MaxTries       uint
	InitialBackoff time.Duration
}

// CheckResult is the outcome of a new-response check.
type CheckResult struct {
	HasNew   bool                 `json:"hasNew"`
	NewCount int                  `json:"newCount"`
	Synced   *ticket.SyncResult   `json:"synced,omitempty"`
	Timer    *model.DebounceTimer `json:"timer,omitempty"`
}

// Summary reports one poll cycle.
type Summary struct {
	Checked int `json:"checked"`
	WithNew int `json:"withNew"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Poller periodically checks waiting and complete investigations for new
// customer responses.
type Poller struct {
	cfg     Config
	limiter *rate.Limiter
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Poller, error) {
	if cfg.Store == nil {
		return nil, errors.New("poller requires a store")
	}
	if cfg.Workspace == nil {
		return nil, errors.New("poller requires a workspace")
	}
	if cfg.Locks == nil {
		cfg.Locks = keylock.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRate
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	return &Poller{cfg: cfg, limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)}, nil
}

func (p *Poller) ticketBody(id int64) (*ticket.Data, error) {
	raw, err := p.cfg.Workspace.ReadFile(id, workspace.FileTicketData)
	if err != nil {
		return nil, ErrNoTicketData
	}
	data, err := ticket.Parse(raw)
	if err != nil || data.BodyText() == "" {
		return nil, ErrNoTicketData
	}
	return data, nil
}

// Sync stores new thread messages of an investigation without touching its
// debounce window.
func (p *Poller) Sync(ctx context.Context, id int64) (ticket.SyncResult, error) {
	unlock := p.cfg.Locks.Lock(id)
	defer unlock()

	var result ticket.SyncResult
	err := p.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
		inv, err := q.GetInvestigation(ctx, id)
		if err != nil {
			return err
		}
		data, err := p.ticketBody(id)
		if err != nil {
			return err
		}
		result, err = ticket.Sync(ctx, q, ticket.Thread{
			InvestigationID: id,
			RunNumber:       inv.RunNumber(),
			Body:            data.BodyText(),
			CustomerName:    inv.Customer(data.Customer("Customer")),
		})
		return err
	})
	return result, err
}

// Check compares the thread with stored responses, syncs when it grew,
// stamps the check timestamps and starts the debounce window for fresh
// messages.
func (p *Poller) Check(ctx context.Context, id int64) (CheckResult, error) {
	unlock := p.cfg.Locks.Lock(id)
	var out CheckResult
	err := p.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
		inv, err := q.GetInvestigation(ctx, id)
		if err != nil {
			return err
		}
		data, err := p.ticketBody(id)
		if err != nil {
			return err
		}
		check, err := ticket.CheckForNew(ctx, q, id, data.BodyText())
		if err != nil {
			return err
		}
		out = CheckResult{HasNew: check.HasNew, NewCount: check.NewCount}
		now := p.cfg.Clock.Now().UTC()
		if check.HasNew {
			synced, err := ticket.Sync(ctx, q, ticket.Thread{
				InvestigationID: id,
				RunNumber:       inv.RunNumber(),
				Body:            data.BodyText(),
				CustomerName:    inv.Customer(data.Customer("Customer")),
			})
			if err != nil {
				return err
			}
			out.Synced = &synced
			if synced.NewCount > 0 {
				inv.LastCustomerMessageAt = &now
			}
		}
		inv.LastResponseCheckAt = &now
		return q.UpdateInvestigation(ctx, inv)
	})
	unlock()
	if err != nil {
		return CheckResult{}, err
	}
	if out.Synced != nil && out.Synced.NewCount > 0 && p.cfg.Timers != nil {
		timer, err := p.cfg.Timers.StartOrReset(ctx, id)
		if err != nil {
			return out, fmt.Errorf("start debounce timer: %w", err)
		}
		out.Timer = &timer
	}
	return out, nil
}

// PollOnce checks every waiting or complete investigation with bounded
// concurrency. Failures of single investigations are logged and counted.
func (p *Poller) PollOnce(ctx context.Context) (Summary, error) {
	log := common.Logger()
	invs, err := p.cfg.Store.Q().ListInvestigations(ctx, model.StatusWaiting, model.StatusComplete)
	if err != nil {
		telemetry.RecordPollCycle("error")
		return Summary{}, err
	}

	results := make([]error, len(invs))
	found := make([]bool, len(invs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i := range invs {
		i, id := i, invs[i].ID
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}
			res, err := p.checkWithRetry(gctx, id)
			results[i] = err
			found[i] = res.Synced != nil && res.Synced.NewCount > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordPollCycle("canceled")
		return Summary{}, err
	}

	var sum Summary
	for i, err := range results {
		switch {
		case errors.Is(err, ErrNoTicketData):
			sum.Skipped++
		case err != nil:
			sum.Failed++
			log.Warn("poller: check failed", "investigation", invs[i].ID, "error", err)
		default:
			sum.Checked++
			if found[i] {
				sum.WithNew++
			}
		}
	}
	outcome := "ok"
	if sum.Failed > 0 {
		outcome = "partial"
	}
	telemetry.RecordPollCycle(outcome)
	if sum.WithNew > 0 || sum.Failed > 0 {
		log.Info("poller: cycle complete", "checked", sum.Checked, "new", sum.WithNew, "skipped", sum.Skipped, "failed", sum.Failed)
	}
	return sum, nil
}

func (p *Poller) checkWithRetry(ctx context.Context, id int64) (CheckResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	return backoff.Retry(ctx, func() (CheckResult, error) {
		res, err := p.Check(ctx, id)
		if err != nil && errors.Is(err, model.ErrNotFound) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.cfg.MaxTries))
}

// Run polls every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	common.Logger().Info("poller: started", "interval", p.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				common.Logger().Error("poller: cycle failed", "error", err)
			}
		}
	}
}
