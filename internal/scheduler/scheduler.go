package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/app"
)

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = errors.New("a run is already in progress")

// Runner executes one digest run.
type Runner interface {
	Run(ctx context.Context) (*app.Report, error)
}

// Scheduler triggers runs on a cron schedule and on demand.
// At most one run is in flight; overlapping triggers are skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	timeout time.Duration

	running sync.Mutex
	busy    atomic.Bool

	mu      sync.RWMutex
	last    *app.Report
	lastErr error
	lastAt  time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler running runner on the given cron expression.
// timeout bounds each run; zero means no bound.
func New(spec string, runner Runner, timeout time.Duration) (*Scheduler, error) {
	c := cron.New()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:    c,
		runner:  runner,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}

	if _, err := c.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Start begins firing the cron schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("Scheduler started; next run at %s", s.Next().Format(time.RFC3339))
}

// Stop stops the schedule, cancels an in-flight run and waits for it to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	s.cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Next returns the time of the next scheduled run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.ctx); errors.Is(err, ErrBusy) {
		log.Println("Previous run still in progress; skipping this tick")
	}
}

// RunOnce performs a run now unless one is already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) (*app.Report, error) {
	if !s.running.TryLock() {
		return nil, ErrBusy
	}
	defer s.running.Unlock()
	s.busy.Store(true)
	defer s.busy.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Println("Starting scheduled digest run...")
	report, err := s.runner.Run(ctx)
	if err != nil {
		log.Printf("Digest run failed: %v", err)
	}

	s.mu.Lock()
	s.last, s.lastErr, s.lastAt = report, err, time.Now()
	s.mu.Unlock()

	return report, err
}

// Status is the scheduler state exposed over HTTP.
type Status struct {
	Running   bool        `json:"running"`
	NextRun   time.Time   `json:"next_run"`
	LastRunAt *time.Time  `json:"last_run_at,omitempty"`
	LastError string      `json:"last_error,omitempty"`
	Failed    bool        `json:"failed"`
	Report    *app.Report `json:"report,omitempty"`
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	st := Status{NextRun: s.Next(), Running: s.busy.Load()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.lastAt.IsZero() {
		at := s.lastAt
		st.LastRunAt = &at
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	st.Report = s.last
	st.Failed = s.lastErr != nil || s.last.Failed()
	return st
}
