// Package episodic implements the per-conversation memory tier. Each chat
// has one structured record that is merged on every processed interaction,
// compressed into a narrative as it approaches its word budget, and expires
// after prolonged inactivity.
//
// Records are persisted through a memory.DocumentStore. The soft expiry
// (ExpiresAt, 30 days) hides a record from prompt context; the document's
// purge time (90 days) is the hard delete.
package episodic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/keylock"
	"github.com/becomeliminal/nim-memory/memory/narrative"
)

var tracer = otel.Tracer("nim-memory/episodic")

// Store manages episodic records.
type Store struct {
	docs   memory.DocumentStore
	cfg    *memory.Config
	logger log.Logger
	text   memory.TextService
	locks  keylock.Map
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTextService lets compression shorten the summary through a text
// service before the deterministic pass. The service should already carry
// its own fallback (textsvc.Resilient).
func WithTextService(text memory.TextService) Option {
	return func(s *Store) { s.text = text }
}

// New creates a Store.
func New(docs memory.DocumentStore, cfg *memory.Config, logger log.Logger, opts ...Option) *Store {
	if cfg == nil {
		cfg = memory.DefaultConfig()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Store{docs: docs, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateOption tweaks a single Update call.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	merge        bool
	autoCompress bool
	narrative    bool
}

// WithoutMerge replaces the content instead of merging into it.
func WithoutMerge() UpdateOption {
	return func(o *updateOptions) { o.merge = false }
}

// WithoutAutoCompress skips compression; the update still fails if the
// result is over budget.
func WithoutAutoCompress() UpdateOption {
	return func(o *updateOptions) { o.autoCompress = false }
}

// WithNarrative re-renders the narrative from all merged events, sized to
// stay below the compression threshold.
func WithNarrative() UpdateOption {
	return func(o *updateOptions) { o.narrative = true }
}

// Create stores the first record of a chat. It fails with ErrAlreadyExists
// when the chat already has one. Content over the whole budget is
// compressed first.
func (s *Store) Create(ctx context.Context, chatID, userID string, initial Content) (*Record, error) {
	if chatID == "" || userID == "" {
		return nil, fmt.Errorf("create episodic: chat and user are required")
	}
	unlock := s.locks.Lock(chatID)
	defer unlock()

	if _, err := s.load(ctx, chatID); err == nil {
		return nil, fmt.Errorf("create episodic %s: %w", chatID, memory.ErrAlreadyExists)
	} else if !errors.Is(err, memory.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	rec := &Record{ChatID: chatID, UserID: userID, Content: initial, CreatedAt: now}
	if err := s.settle(ctx, rec, budget.IsOverLimit(initial.WordCount(), s.cfg.EpisodicBudget)); err != nil {
		return nil, fmt.Errorf("create episodic %s: %w", chatID, err)
	}
	if err := s.save(ctx, rec, now); err != nil {
		return nil, err
	}

	s.logger.Debugf(ctx, "[EPISODIC] Created %s for user %s (%d words)", chatID, userID, rec.WordCount)
	return rec, nil
}

// Update merges content into the chat's record. When the merged record
// reaches 80% of the budget it is compressed toward 60%; if it is still
// over budget the update fails with ErrBudgetExceeded and the stored record
// is left untouched.
func (s *Store) Update(ctx context.Context, chatID string, content Content, opts ...UpdateOption) (*Record, error) {
	ctx, span := tracer.Start(ctx, "episodic.update")
	defer span.End()
	span.SetAttributes(attribute.String("chat_id", chatID))

	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.load(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("update episodic %s: %w", chatID, err)
	}
	if err := s.apply(ctx, rec, content, opts...); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update episodic %s: %w", chatID, err)
	}
	span.SetAttributes(attribute.Int("word_count", rec.WordCount))
	return rec, nil
}

// Upsert creates the record on the first interaction of a chat and
// updates it afterwards, under one lock.
func (s *Store) Upsert(ctx context.Context, chatID, userID string, content Content, opts ...UpdateOption) (*Record, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.load(ctx, chatID)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		now := s.now()
		rec = &Record{ChatID: chatID, UserID: userID, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("upsert episodic %s: %w", chatID, err)
	}
	if err := s.apply(ctx, rec, content, opts...); err != nil {
		return nil, fmt.Errorf("upsert episodic %s: %w", chatID, err)
	}
	return rec, nil
}

func (s *Store) apply(ctx context.Context, rec *Record, content Content, opts ...UpdateOption) error {
	o := updateOptions{merge: true, autoCompress: true}
	for _, opt := range opts {
		opt(&o)
	}

	if o.merge {
		events := content.Events
		content.Events = nil
		rec.Content = rec.Content.Merge(content)
		if len(events) > 0 {
			rec.Content.Events = s.addEvents(ctx, rec, events)
		}
	} else {
		rec.Content = content
	}
	if o.narrative && len(rec.Content.Events) > 0 {
		s.renderNarrative(rec)
	}

	compress := o.autoCompress &&
		budget.IsNearLimit(rec.Content.WordCount(), s.cfg.EpisodicBudget, s.cfg.NearLimitThreshold)
	if err := s.settle(ctx, rec, compress); err != nil {
		return err
	}
	return s.save(ctx, rec, s.now())
}

// addEvents folds new events into the record through a narrative.Manager,
// which prunes low-priority events and enforces the stored-event cap.
func (s *Store) addEvents(ctx context.Context, rec *Record, events []narrative.Event) []narrative.Event {
	mgr := narrative.NewManager(rec.Content.Events,
		narrative.WithMaxWords(s.cfg.NarrativeMaxWords),
		narrative.WithPruning(s.cfg.NarrativePruneThreshold, s.cfg.NarrativePruneFraction),
		narrative.WithMaxEvents(s.cfg.NarrativeMaxEvents),
		narrative.WithClock(s.now),
	)
	removed := 0
	for _, e := range events {
		removed += len(mgr.Add(e))
	}
	if removed > 0 {
		s.logger.Debugf(ctx, "[EPISODIC] Dropped %d events from %s", removed, rec.ChatID)
	}
	return mgr.Events()
}

func (s *Store) renderNarrative(rec *Record) {
	others := rec.Content.WordCount() - budget.Words(rec.Content.Narrative)
	room := min(s.cfg.NarrativeMaxWords, s.cfg.EpisodicCompressAt()-1-others)
	if room < minNarrative {
		room = minNarrative
	}
	rec.Content.Narrative = narrative.EventsToNarrative(rec.Content.Events, room, s.now())
}

// settle optionally compresses, recomputes the word count and enforces the budget.
func (s *Store) settle(ctx context.Context, rec *Record, compress bool) error {
	if compress {
		before := rec.Content.WordCount()
		rec.Content = s.compress(ctx, rec.Content)
		rec.CompressionCount++
		rec.LastCompressedAt = s.now()
		s.logger.Infof(ctx, "[EPISODIC] Compressed %s: %d -> %d words", rec.ChatID, before, rec.Content.WordCount())
	}
	rec.WordCount = rec.Content.WordCount()
	if budget.IsOverLimit(rec.WordCount, s.cfg.EpisodicBudget) {
		s.logger.Warnf(ctx, "[EPISODIC] %s still over budget after compression (%d/%d)", rec.ChatID, rec.WordCount, s.cfg.EpisodicBudget)
		return memory.ErrBudgetExceeded
	}
	return nil
}

func (s *Store) compress(ctx context.Context, c Content) Content {
	target := s.cfg.EpisodicTarget()
	if s.text != nil && budget.Words(c.Summary) > target/2 {
		shorter, err := s.text.Compress(ctx, c.Summary, target/2)
		if err != nil {
			s.logger.Warnf(ctx, "[EPISODIC] Summary compression failed, using deterministic pass: %v", err)
		} else if budget.Words(shorter) > 0 && budget.Words(shorter) <= budget.Words(c.Summary) {
			c.Summary = shorter
		}
	}
	return CompressEpisodicMemory(c, target, s.cfg.NarrativeMaxWords, s.now())
}

// CompressMemory compresses a record to the target regardless of its size.
func (s *Store) CompressMemory(ctx context.Context, chatID string) (*Record, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.load(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("compress episodic %s: %w", chatID, err)
	}
	if err := s.settle(ctx, rec, true); err != nil {
		return nil, fmt.Errorf("compress episodic %s: %w", chatID, err)
	}
	if err := s.save(ctx, rec, s.now()); err != nil {
		return nil, err
	}
	return rec, nil
}

// Archive moves the soft expiry to now+days without touching content.
// Zero or negative days expire the record immediately; the hard delete
// follows the same distance from expiry as for regular records.
func (s *Store) Archive(ctx context.Context, chatID string, days int) (*Record, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.load(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("archive episodic %s: %w", chatID, err)
	}
	now := s.now()
	rec.ExpiresAt = now.Add(time.Duration(days) * 24 * time.Hour)
	if err := s.put(ctx, rec, rec.ExpiresAt.Add(s.cfg.EpisodicPurgeAfter-s.cfg.EpisodicTTL)); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record even when soft-expired.
func (s *Store) Get(ctx context.Context, chatID string) (*Record, error) {
	rec, err := s.load(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get episodic %s: %w", chatID, err)
	}
	return rec, nil
}

// GetActive returns ErrNotFound for soft-expired records.
func (s *Store) GetActive(ctx context.Context, chatID string) (*Record, error) {
	rec, err := s.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.now()) {
		return nil, fmt.Errorf("get episodic %s: expired: %w", chatID, memory.ErrNotFound)
	}
	return rec, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, chatID string) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	return s.docs.Delete(ctx, memory.CollectionEpisodic, chatID)
}

func (s *Store) load(ctx context.Context, chatID string) (*Record, error) {
	raw, err := s.docs.Get(ctx, memory.CollectionEpisodic, chatID)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode episodic %s: %w", chatID, err)
	}
	return &rec, nil
}

// save refreshes both expiries and persists.
func (s *Store) save(ctx context.Context, rec *Record, now time.Time) error {
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.cfg.EpisodicTTL)
	return s.put(ctx, rec, now.Add(s.cfg.EpisodicPurgeAfter))
}

func (s *Store) put(ctx context.Context, rec *Record, purgeAt time.Time) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode episodic %s: %w", rec.ChatID, err)
	}
	if err := s.docs.Put(ctx, memory.CollectionEpisodic, rec.ChatID, raw, purgeAt); err != nil {
		return fmt.Errorf("store episodic %s: %w", rec.ChatID, err)
	}
	return nil
}
