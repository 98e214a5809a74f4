// Package engine wires the three memory tiers into one MemoryEngine: the
// read path that builds prompt context and the background write path that
// turns each interaction into working, episodic and long-term updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/classify"
	"github.com/becomeliminal/nim-memory/memory/episodic"
	"github.com/becomeliminal/nim-memory/memory/longterm"
	"github.com/becomeliminal/nim-memory/memory/narrative"
	"github.com/becomeliminal/nim-memory/memory/store/inmem"
	"github.com/becomeliminal/nim-memory/memory/textsvc"
	"github.com/becomeliminal/nim-memory/memory/working"
)

// MemoryEngine owns the memory stores of one process. Construct it once
// and share it between request handlers.
type MemoryEngine struct {
	cfg        *memory.Config
	logger     log.Logger
	docs       memory.DocumentStore
	sim        longterm.Similarity
	text       memory.TextService
	classifier *classify.Classifier
	extractor  narrative.Extractor
	now        func() time.Time

	working  *working.Store
	episodic *episodic.Store
	longterm *longterm.Store

	queue     chan task
	errs      chan *TaskError
	workers   sync.WaitGroup
	scheduler *Scheduler

	mu      sync.RWMutex
	started bool
	closed  bool

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures the engine.
type Option func(*MemoryEngine)

// WithConfig sets budgets, thresholds and worker sizing.
func WithConfig(cfg *memory.Config) Option {
	return func(e *MemoryEngine) { e.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *MemoryEngine) { e.logger = l }
}

// WithDocumentStore sets the Episodic and Long-Term persistence.
// Default: an in-process store.
func WithDocumentStore(docs memory.DocumentStore) Option {
	return func(e *MemoryEngine) { e.docs = docs }
}

// WithSimilarity sets the vector similarity service used for long-term
// merges and retrieval. Default: lexical similarity.
func WithSimilarity(sim longterm.Similarity) Option {
	return func(e *MemoryEngine) { e.sim = sim }
}

// WithTextService sets the text service. Network services should be
// wrapped in textsvc.Resilient. Default: textsvc.Local.
func WithTextService(text memory.TextService) Option {
	return func(e *MemoryEngine) { e.text = text }
}

// WithClassifier replaces the default rule-based classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(e *MemoryEngine) { e.classifier = c }
}

// WithClock overrides time.Now in every store.
func WithClock(now func() time.Time) Option {
	return func(e *MemoryEngine) { e.now = now }
}

// New creates an engine. Background processing starts with Start.
func New(opts ...Option) *MemoryEngine {
	e := &MemoryEngine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg == nil {
		e.cfg = memory.DefaultConfig()
	}
	if e.logger == nil {
		e.logger = log.NewNop()
	}
	if e.docs == nil {
		e.docs = inmem.New()
	}
	if e.classifier == nil {
		e.classifier = classify.New(
			classify.WithFloor(e.cfg.ClassifierFloor),
			classify.WithTopN(e.cfg.ClassifierTopN),
		)
	}
	if e.text == nil {
		e.text = textsvc.NewLocal(e.classifier)
	}

	e.working = working.New(e.cfg, e.logger, working.WithClock(e.now))
	e.episodic = episodic.New(e.docs, e.cfg, e.logger,
		episodic.WithClock(e.now),
		episodic.WithTextService(e.text),
	)
	ltmOpts := []longterm.Option{
		longterm.WithClock(e.now),
		longterm.WithTextService(e.text),
	}
	if e.sim != nil {
		ltmOpts = append(ltmOpts, longterm.WithSimilarity(e.sim))
	}
	e.longterm = longterm.New(e.docs, e.cfg, e.logger, ltmOpts...)

	queueSize := e.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	e.queue = make(chan task, queueSize)
	e.errs = make(chan *TaskError, queueSize)
	e.scheduler = NewScheduler(e.logger)
	return e
}

// Working returns the working memory store.
func (e *MemoryEngine) Working() *working.Store { return e.working }

// Episodic returns the episodic store.
func (e *MemoryEngine) Episodic() *episodic.Store { return e.episodic }

// LongTerm returns the long-term store.
func (e *MemoryEngine) LongTerm() *longterm.Store { return e.longterm }

// Start launches the workers and the sweep schedule.
func (e *MemoryEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return memory.ErrClosed
	}
	if e.started {
		return nil
	}

	workers := max(e.cfg.Workers, 1)
	for i := 0; i < workers; i++ {
		e.workers.Add(1)
		go e.work(context.WithoutCancel(ctx))
	}

	if e.cfg.SweepInterval > 0 {
		if err := e.scheduler.Every("sweep", e.cfg.SweepInterval, func(ctx context.Context) {
			if _, err := e.Sweep(ctx); err != nil {
				e.logger.Errorf(ctx, "[ENGINE] Sweep failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
		e.scheduler.Start()
	}

	e.started = true
	e.logger.Infof(ctx, "[ENGINE] Started %d workers (queue=%d, sweep=%s)", workers, cap(e.queue), e.cfg.SweepInterval)
	return nil
}

// Close stops accepting work, drains the queue, stops the schedule and
// closes the document store and similarity service.
func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	close(e.queue)
	e.mu.Unlock()

	if !started {
		// Nothing is consuming; process what was queued before Start.
		e.workers.Add(1)
		e.work(context.Background())
	}
	e.workers.Wait()
	e.scheduler.Stop()
	close(e.errs)

	var errs []error
	if c, ok := e.sim.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, e.docs.Close())
	return errors.Join(errs...)
}

// Errors reports background task failures. Rejections are not reported.
// When nobody reads, errors beyond the buffer are dropped after logging.
// The channel is closed by Close.
func (e *MemoryEngine) Errors() <-chan *TaskError { return e.errs }

// InitializeSession creates or refreshes a working memory session.
func (e *MemoryEngine) InitializeSession(ctx context.Context, sessionID, userID string, metadata map[string]any) (working.Session, error) {
	return e.working.CreateSession(ctx, sessionID, userID, metadata)
}

// EndSession destroys a session and its working memory.
func (e *MemoryEngine) EndSession(ctx context.Context, sessionID string) error {
	return e.working.EndSession(ctx, sessionID)
}

// Ack acknowledges that an interaction was queued.
type Ack struct {
	TaskID   string    `json:"task_id"`
	QueuedAt time.Time `json:"queued_at"`
}

// ProcessInteraction queues in for background processing and returns at
// once. Processing continues after ctx is cancelled. It fails only when the
// input is invalid, the queue is full or the engine is closed.
func (e *MemoryEngine) ProcessInteraction(ctx context.Context, in core.Interaction) (Ack, error) {
	if err := validate(in); err != nil {
		return Ack{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Ack{}, memory.ErrClosed
	}

	t := task{id: uuid.NewString(), in: in, ctx: context.WithoutCancel(ctx)}
	select {
	case e.queue <- t:
		return Ack{TaskID: t.id, QueuedAt: e.now()}, nil
	default:
		e.dropped.Add(1)
		e.logger.Warnf(ctx, "[ENGINE] Queue full, dropping interaction for chat %s", in.ChatID)
		return Ack{}, memory.ErrQueueFull
	}
}

func validate(in core.Interaction) error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("process interaction: user is required")
	case in.ChatID == "":
		return fmt.Errorf("process interaction: chat is required")
	case in.UserMessage == "":
		return fmt.Errorf("process interaction: empty user message")
	}
	return nil
}

func (e *MemoryEngine) work(ctx context.Context) {
	defer e.workers.Done()
	for t := range e.queue {
		out := e.process(t.ctx, t.id, t.in)
		if len(out.Errors) > 0 {
			e.failed.Add(1)
		}
		e.processed.Add(1)
		for _, err := range out.Errors {
			e.report(ctx, err)
		}
	}
}

func (e *MemoryEngine) report(ctx context.Context, err *TaskError) {
	select {
	case e.errs <- err:
	default:
		e.logger.Warnf(ctx, "[ENGINE] Error channel full, dropping: %v", err)
	}
}

// SweepResult reports one maintenance pass.
type SweepResult struct {
	Sessions []string `json:"sessions" yaml:"sessions"`
	Purged   int      `json:"purged" yaml:"purged"`
}

// Sweep reclaims inactive sessions and hard-deletes expired documents.
// It runs on the schedule set by Config.SweepInterval.
func (e *MemoryEngine) Sweep(ctx context.Context) (SweepResult, error) {
	now := e.now()
	res := SweepResult{Sessions: e.working.Sweep(ctx, now)}
	n, err := e.docs.PurgeExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("purge documents: %w", err)
	}
	res.Purged = n
	if n > 0 {
		e.logger.Infof(ctx, "[ENGINE] Purged %d expired documents", n)
	}
	return res, nil
}

// Stats is a snapshot of engine activity.
type Stats struct {
	Sessions  int    `json:"sessions" yaml:"sessions"`
	Queued    int    `json:"queued" yaml:"queued"`
	Processed uint64 `json:"processed" yaml:"processed"`
	Failed    uint64 `json:"failed" yaml:"failed"`
	Dropped   uint64 `json:"dropped" yaml:"dropped"`
}

// Stats returns counters since construction.
func (e *MemoryEngine) Stats() Stats {
	return Stats{
		Sessions:  e.working.Len(),
		Queued:    len(e.queue),
		Processed: e.processed.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
	}
}

// UserStats summarizes a user's long-term profile.
func (e *MemoryEngine) UserStats(ctx context.Context, userID string) (longterm.Stats, error) {
	return e.longterm.GetStats(ctx, userID)
}

type task struct {
	id  string
	in  core.Interaction
	ctx context.Context
}

// TaskError is a failed tier write of a background task.
type TaskError struct {
	TaskID    string
	Tier      core.Tier
	SessionID string
	ChatID    string
	UserID    string
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %s write for chat %s: %v", e.TaskID, e.Tier, e.ChatID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
