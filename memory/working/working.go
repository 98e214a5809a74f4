// Package working implements the per-session working memory tier: a
// volatile key/value map with a word budget, oldest-first eviction and an
// inactivity timeout.
//
// Sessions are independent. Each one carries its own lock, so writes to
// different sessions never contend; the session registry itself is only
// write-locked to create, end or sweep sessions.
package working

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/rules"
)

// Session is the public view of a working memory session.
type Session struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EntryOverhead is the fixed word cost of every entry on top of its key and
// value, so many tiny entries still consume budget.
const EntryOverhead = 1

// Entry is one stored value. Words counts the key, the value and
// EntryOverhead.
type Entry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Words     int       `json:"words"`
	CreatedAt time.Time `json:"created_at"`
}

// SetResult reports the outcome of Set. A rejected write has Stored == false
// and a non-nil Rejection; it is not an error.
type SetResult struct {
	Stored    bool
	Evicted   []string
	Words     int
	Rejection *memory.RejectionError
}

type session struct {
	mu      sync.Mutex
	info    Session
	order   []string
	entries map[string]*Entry
	words   int
	closed  bool
}

// Store holds every live session.
type Store struct {
	budget  int
	timeout time.Duration
	logger  log.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store using the working budget and session timeout of cfg.
func New(cfg *memory.Config, logger log.Logger, opts ...Option) *Store {
	if cfg == nil {
		cfg = memory.DefaultConfig()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Store{
		budget:   cfg.WorkingBudget,
		timeout:  cfg.SessionTimeout,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession starts a session, or refreshes it if it already exists.
// Metadata is merged into the existing metadata.
func (s *Store) CreateSession(ctx context.Context, sessionID, userID string, metadata map[string]any) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("create session: empty session id")
	}
	now := s.now()

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{
			info: Session{
				ID:           sessionID,
				UserID:       userID,
				CreatedAt:    now,
				LastActivity: now,
				Metadata:     map[string]any{},
			},
			entries: make(map[string]*Entry),
		}
		s.sessions[sessionID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for k, v := range metadata {
		sess.info.Metadata[k] = v
	}
	if userID != "" {
		sess.info.UserID = userID
	}
	sess.info.LastActivity = now

	if !ok {
		s.logger.Debugf(ctx, "[WORKING] Session %s created for user %s", sessionID, userID)
	}
	return sess.snapshot(), nil
}

// EndSession destroys a session and its entries.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("end session %s: %w", sessionID, memory.ErrNotFound)
	}

	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()

	s.logger.Debugf(ctx, "[WORKING] Session %s ended", sessionID)
	return nil
}

// Session returns a snapshot of the session.
func (s *Store) Session(sessionID string) (Session, error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return Session{}, err
	}
	defer unlock()
	return sess.snapshot(), nil
}

// Set stores value under key. The write first passes the admission rules;
// then, if the session would exceed its budget, the oldest entries are
// evicted until the new one fits. An entry larger than the whole budget is
// still stored after everything else has been evicted.
//
// Overwriting a key moves it to the newest position.
func (s *Store) Set(ctx context.Context, sessionID, key string, value any) (*SetResult, error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	sess.info.LastActivity = now

	if rej := admit(key, value); rej != nil {
		s.logger.Debugf(ctx, "[WORKING] Rejected %s/%s: %s", sessionID, key, rej.Kind)
		return &SetResult{Rejection: rej}, nil
	}

	cost := entryCost(key, value)
	result := &SetResult{Stored: true, Words: cost}

	if _, exists := sess.entries[key]; exists {
		sess.remove(key)
	}

	for sess.words+cost > s.budget && len(sess.order) > 0 {
		oldest := sess.order[0]
		sess.remove(oldest)
		result.Evicted = append(result.Evicted, oldest)
	}

	sess.entries[key] = &Entry{Key: key, Value: value, Words: cost, CreatedAt: now}
	sess.order = append(sess.order, key)
	sess.words += cost

	if len(result.Evicted) > 0 {
		s.logger.Debugf(ctx, "[WORKING] Session %s evicted %d entries to fit %q (%d/%d words)",
			sessionID, len(result.Evicted), key, sess.words, s.budget)
	}
	if cost > s.budget {
		s.logger.Warnf(ctx, "[WORKING] Entry %q alone exceeds budget (%d > %d)", key, cost, s.budget)
	}
	return result, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, sessionID, key string) (any, bool, error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	sess.info.LastActivity = s.now()
	e, ok := sess.entries[key]
	if !ok {
		return nil, false, nil
	}
	return e.Value, true, nil
}

// GetAll returns a copy of the session map.
func (s *Store) GetAll(ctx context.Context, sessionID string) (map[string]any, error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess.info.LastActivity = s.now()
	out := make(map[string]any, len(sess.entries))
	for k, e := range sess.entries {
		out[k] = e.Value
	}
	return out, nil
}

// Entries returns the entries oldest first.
func (s *Store) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]Entry, 0, len(sess.order))
	for _, k := range sess.order {
		out = append(out, *sess.entries[k])
	}
	return out, nil
}

// Keys returns the stored keys oldest first.
func (s *Store) Keys(sessionID string) ([]string, error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return append([]string(nil), sess.order...), nil
}

// Delete removes key. It reports whether the key existed.
func (s *Store) Delete(ctx context.Context, sessionID, key string) (bool, error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return false, err
	}
	defer unlock()

	sess.info.LastActivity = s.now()
	if _, ok := sess.entries[key]; !ok {
		return false, nil
	}
	sess.remove(key)
	return true, nil
}

// Clear removes every entry but keeps the session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	sess.info.LastActivity = s.now()
	sess.order = nil
	sess.entries = make(map[string]*Entry)
	sess.words = 0
	return nil
}

// Usage returns the words held by the session and the budget.
func (s *Store) Usage(sessionID string) (used, limit int, err error) {
	sess, unlock, err := s.acquire(sessionID)
	if err != nil {
		return 0, 0, err
	}
	defer unlock()
	return sess.words, s.budget, nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep destroys sessions inactive for longer than the timeout and returns
// their IDs. Safe to run concurrently with reads and writes: a session
// touched after the sweep decided is still removed only if its activity
// timestamp is stale when its lock is held.
func (s *Store) Sweep(ctx context.Context, now time.Time) []string {
	cutoff := now.Add(-s.timeout)

	s.mu.RLock()
	candidates := make(map[string]*session)
	for id, sess := range s.sessions {
		candidates[id] = sess
	}
	s.mu.RUnlock()

	var expired []string
	for id, sess := range candidates {
		sess.mu.Lock()
		stale := sess.info.LastActivity.Before(cutoff)
		if stale {
			sess.closed = true
		}
		sess.mu.Unlock()
		if !stale {
			continue
		}

		s.mu.Lock()
		if s.sessions[id] == sess {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		expired = append(expired, id)
	}

	if len(expired) > 0 {
		s.logger.Infof(ctx, "[WORKING] Swept %d inactive sessions", len(expired))
	}
	return expired
}

// acquire returns the locked session. Callers must call unlock.
func (s *Store) acquire(sessionID string) (*session, func(), error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, memory.ErrNotFound)
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, nil, fmt.Errorf("session %s: %w", sessionID, memory.ErrNotFound)
	}
	return sess, sess.mu.Unlock, nil
}

func (sess *session) remove(key string) {
	e, ok := sess.entries[key]
	if !ok {
		return
	}
	delete(sess.entries, key)
	sess.words -= e.Words
	for i, k := range sess.order {
		if k == key {
			sess.order = append(sess.order[:i], sess.order[i+1:]...)
			break
		}
	}
}

func (sess *session) snapshot() Session {
	info := sess.info
	info.Metadata = make(map[string]any, len(sess.info.Metadata))
	for k, v := range sess.info.Metadata {
		info.Metadata[k] = v
	}
	return info
}

func entryCost(key string, value any) int {
	return EntryOverhead + budget.Words(key) + budget.Count(value)
}

func admit(key string, value any) *memory.RejectionError {
	if !rules.IsSuitableForTier(key, core.TierWorking) {
		return memory.NewRejection(memory.RejectEmpty, "empty key")
	}
	if value == nil {
		return memory.NewRejection(memory.RejectEmpty, "nil value")
	}
	if f := rules.ContainsForbiddenContent(key + " " + render(value)); f.Found {
		return memory.NewRejection(memory.RejectForbidden, f.Kind)
	}
	return nil
}

func render(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(raw)
}
