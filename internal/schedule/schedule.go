// Package schedule runs the importer on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/importer"
)

// Runner performs one import pass.
type Runner interface {
	Run(ctx context.Context) (map[string]int, error)
}

// Scheduler triggers a Runner on a cron spec. Passes never overlap; a tick
// that arrives while a pass is running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// New parses spec (standard five-field or a descriptor such as "@every 1h")
// and returns a stopped Scheduler.
func New(spec string, runner Runner) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		s.cancel()
		return nil, eris.Wrapf(err, "schedule: parse %q", spec)
	}
	return s, nil
}

// Start begins triggering in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	zap.L().Info("schedule: import scheduled", zap.Time("next", s.Next()))
}

// Next returns the next trigger time, or zero when not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts triggering, cancels a pass in progress and waits for it to
// return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		zap.L().Warn("schedule: previous import still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.RunOnce(s.ctx)
}

// RunOnce performs a single pass. Missing source configuration makes the
// pass a no-op.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()
	counts, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, importer.ErrNotConfigured):
		zap.L().Debug("schedule: import not configured, skipping", zap.Error(err))
		return
	case err != nil:
		zap.L().Error("schedule: import failed", zap.Error(err))
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	zap.L().Info("schedule: import finished",
		zap.Int("imported", total),
		zap.Int("sources", len(counts)),
		zap.Duration("elapsed", time.Since(start)),
	)
}
