package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/becomeliminal/nim-memory/log"
)

const stopTimeout = 5 * time.Second

// Scheduler runs maintenance jobs at fixed intervals. A job that is still
// running when its next tick arrives skips that tick.
type Scheduler struct {
	logger log.Logger

	mu      sync.Mutex
	cron    *rcron.Cron
	entries map[string]rcron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		cron:    rcron.New(rcron.WithChain(rcron.Recover(rcron.DiscardLogger), rcron.SkipIfStillRunning(rcron.DiscardLogger))),
		entries: make(map[string]rcron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Every registers fn under name, replacing an existing job with that name.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.logger.Debugf(s.ctx, "[SCHEDULER] Running %s", name)
		fn(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

// Jobs returns the registered job names and their next run.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop cancels job contexts and waits up to five seconds for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if !running {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(stopTimeout):
		s.logger.Warnf(context.Background(), "[SCHEDULER] Stop timed out waiting for running jobs")
	}
}
