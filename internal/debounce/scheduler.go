// File path: internal/debounce/scheduler.go
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/common/telemetry"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
)

// DefaultWindow is how long a timer waits after the latest customer message.
const DefaultWindow = 20 * time.Minute

// FireFunc runs when a window elapses without further messages.
type FireFunc func(ctx context.Context, investigationID int64) error

// Status describes the timer of one investigation.
type Status struct {
	Active          bool  `json:"active"`
	DebounceMinutes int   `json:"debounceMinutes,omitempty"`
	RemainingMs     int64 `json:"remainingMs,omitempty"`
	PendingMessages int   `json:"pendingMessages,omitempty"`
}

type pending struct {
	state model.DebounceTimer
	timer clockwork.Timer
	gen   uint64
}

// Scheduler keeps one debounce window per investigation. Windows are
// persisted so that Recover can re-arm them after a restart.
type Scheduler struct {
	store  *sqlite.Store
	fire   FireFunc
	clock  clockwork.Clock
	window time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[int64]*pending
	firing map[int64]bool
	gen    uint64
	closed bool
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used for windows.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// NewScheduler returns a Scheduler that calls fire when a window elapses.
func NewScheduler(store *sqlite.Store, fire FireFunc, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:  store,
		fire:   fire,
		clock:  clockwork.NewRealClock(),
		window: DefaultWindow,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[int64]*pending),
		firing: make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartOrReset restarts the window for id and bumps its pending count.
func (s *Scheduler) StartOrReset(ctx context.Context, id int64) (model.DebounceTimer, error) {
	if s == nil || s.store == nil {
		return model.DebounceTimer{}, errors.New("debounce scheduler not initialised")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.DebounceTimer{}, errors.New("debounce scheduler closed")
	}

	// A window that is being evaluated starts over from zero.
	count := 0
	if p, ok := s.timers[id]; ok {
		p.timer.Stop()
		count = p.state.PendingMessages
	} else if s.firing[id] {
		count = 0
	} else if persisted, err := s.store.Q().GetTimer(ctx, id); err == nil {
		count = persisted.PendingMessages
	} else if !errors.Is(err, sqlite.ErrNotFound) {
		return model.DebounceTimer{}, err
	}

	now := s.clock.Now().UTC()
	state := model.DebounceTimer{
		InvestigationID: id,
		PendingMessages: count + 1,
		StartedAt:       now,
		DueAt:           now.Add(s.window),
	}
	if err := s.store.Q().UpsertTimer(ctx, state); err != nil {
		delete(s.timers, id)
		s.publishLocked()
		return model.DebounceTimer{}, err
	}
	s.armLocked(state, s.window)
	common.Logger().Info("debounce: timer armed", "investigation", id, "pending", state.PendingMessages, "due", state.DueAt)
	return state, nil
}

// Cancel stops and forgets the window for id.
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	if s == nil || s.store == nil {
		return nil
	}
	s.mu.Lock()
	if p, ok := s.timers[id]; ok {
		p.timer.Stop()
		delete(s.timers, id)
		s.publishLocked()
		common.Logger().Info("debounce: timer cancelled", "investigation", id)
	}
	s.mu.Unlock()
	return s.store.Q().DeleteTimer(ctx, id)
}

// Status reports the window for id.
func (s *Scheduler) Status(id int64) Status {
	if s == nil {
		return Status{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.timers[id]
	if !ok {
		return Status{}
	}
	remaining := p.state.DueAt.Sub(s.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Active:          true,
		DebounceMinutes: int(s.window / time.Minute),
		RemainingMs:     remaining.Milliseconds(),
		PendingMessages: p.state.PendingMessages,
	}
}

// Active returns the number of armed windows.
func (s *Scheduler) Active() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Recover re-arms persisted windows. Overdue windows fire immediately.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	if s == nil || s.store == nil {
		return 0, errors.New("debounce scheduler not initialised")
	}
	timers, err := s.store.Q().ListTimers(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, state := range timers {
		if _, ok := s.timers[state.InvestigationID]; ok {
			continue
		}
		delay := state.DueAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s.armLocked(state, delay)
	}
	if len(timers) > 0 {
		common.Logger().Info("debounce: recovered timers", "count", len(timers))
	}
	return len(timers), nil
}

// Close stops every window and waits for running evaluations. Persisted
// windows are kept for the next Recover.
func (s *Scheduler) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
	s.publishLocked()
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) armLocked(state model.DebounceTimer, delay time.Duration) {
	s.gen++
	p := &pending{state: state, gen: s.gen}
	id := state.InvestigationID
	gen := p.gen
	p.timer = s.clock.AfterFunc(delay, func() { s.expire(id, gen) })
	s.timers[id] = p
	s.publishLocked()
}

func (s *Scheduler) expire(id int64, gen uint64) {
	s.mu.Lock()
	p, ok := s.timers[id]
	if !ok || p.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.firing[id] = true
	s.publishLocked()
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	log := common.Logger()
	log.Info("debounce: window elapsed", "investigation", id, "pending", p.state.PendingMessages)
	if s.fire != nil {
		if err := s.fire(s.ctx, id); err != nil {
			log.Error("debounce: evaluation failed", "investigation", id, "error", err)
		}
	}

	// The row belongs to a newer window if one was armed during evaluation.
	// Close keeps rows for the next Recover.
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.firing, id)
	if s.closed || s.timers[id] != nil {
		return
	}
	if err := s.store.Q().DeleteTimer(s.ctx, id); err != nil {
		log.Warn("debounce: could not delete timer", "investigation", id, "error", err)
	}
}

func (s *Scheduler) publishLocked() {
	telemetry.SetActiveTimers(len(s.timers))
}
