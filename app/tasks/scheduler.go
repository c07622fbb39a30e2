package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/timeline-comb/app/authors"
)

var ErrRunPending = errors.New("a harvest run is already pending")

// AuthorSource returns the authors for the next run.
type AuthorSource func() ([]authors.Author, error)

type RunFunc func(ctx context.Context, list []authors.Author) (RunSummary, error)

// Scheduler triggers harvest runs periodically and on demand. Runs execute
// on a single goroutine and never overlap; at most one extra request waits.
type Scheduler struct {
	run      RunFunc
	source   AuthorSource
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	trigger chan struct{}

	mu      sync.RWMutex
	last    *RunSummary
	running bool
}

// NewScheduler returns a scheduler. A zero interval disables periodic runs;
// runs then only happen on EnqueueRun.
func NewScheduler(run RunFunc, source AuthorSource, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:      run,
		source:   source,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		trigger:  make(chan struct{}, 1),
	}
}

// Start begins the loop with one run right away.
func (s *Scheduler) Start() {
	_ = s.EnqueueRun()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var tick <-chan time.Time
		if s.interval > 0 {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-tick:
				s.runOnce()
			case <-s.trigger:
				s.runOnce()
			}
		}
	}()
}

// Stop cancels a run in progress and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// EnqueueRun asks for a run as soon as the current one, if any, finishes.
func (s *Scheduler) EnqueueRun() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrRunPending
	}
}

// LastRun returns the summary of the most recent finished run, if any.
func (s *Scheduler) LastRun() (RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RunSummary{}, false
	}
	return *s.last, true
}

func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) runOnce() {
	list, err := s.source()
	if err != nil {
		slog.Error("Failed to resolve authors, skipping run", "error", err)
		return
	}
	if len(list) == 0 {
		slog.Warn("No authors configured, skipping run")
		return
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	summary, err := s.run(s.ctx, list)
	if err != nil && s.ctx.Err() == nil {
		slog.Error("Harvest run aborted", "run_id", summary.ID, "error", err)
	}

	s.mu.Lock()
	s.running = false
	s.last = &summary
	s.mu.Unlock()
}
