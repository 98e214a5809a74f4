package narrative

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/budget"
)

// DefaultMaxWords is the narrative budget.
const DefaultMaxWords = 750

// DefaultMaxEvents bounds the events a Manager stores.
const DefaultMaxEvents = 60

// Static priorities, before the age penalty.
const (
	priorityDecision = 100.0
	priorityAction   = 80.0
	priorityValues   = 60.0
	priorityPinned   = 40.0
	priorityOther    = 20.0
	agePenaltyPerDay = 2.0
)

// Priority ranks an event for retention: explicit decision, then investing or
// debt-paying intent, then quantified values, then goals, risk profile and
// restrictions, then everything else. Each elapsed day costs two points.
func Priority(e Event, now time.Time) float64 {
	p := priorityOther
	switch {
	case e.Decision != "":
		p = priorityDecision
	case e.Intent == IntentInvest || e.Intent == IntentPayDebt:
		p = priorityAction
	case len(e.MentionedValues) > 0:
		p = priorityValues
	case e.Category.Pinned():
		p = priorityPinned
	}
	if !e.Timestamp.IsZero() && now.After(e.Timestamp) {
		days := math.Floor(now.Sub(e.Timestamp).Hours() / 24)
		p -= agePenaltyPerDay * days
	}
	return p
}

type dedupKey struct {
	intent   string
	category core.Category
}

// EventsToNarrative renders one line per event in chronological order,
// skipping repeats of an (intent, category) pair. When the result exceeds
// maxWords, lines are kept highest priority first while they fit; a line
// that does not fit is skipped and smaller ones may still be kept.
func EventsToNarrative(events []Event, maxWords int, now time.Time) string {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	ordered := chronological(events)
	seen := make(map[dedupKey]bool, len(ordered))
	type line struct {
		text     string
		words    int
		priority float64
		ts       time.Time
		idx      int
	}
	var (
		lines []line
		total int
	)
	for _, e := range ordered {
		k := dedupKey{e.Intent, e.Category}
		if seen[k] {
			continue
		}
		seen[k] = true
		text := e.Line()
		w := budget.Words(text)
		lines = append(lines, line{text: text, words: w, priority: Priority(e, now), ts: e.Timestamp, idx: len(lines)})
		total += w
	}

	if total > maxWords {
		byPriority := append([]line(nil), lines...)
		sort.SliceStable(byPriority, func(i, j int) bool {
			if byPriority[i].priority != byPriority[j].priority {
				return byPriority[i].priority > byPriority[j].priority
			}
			return byPriority[i].ts.After(byPriority[j].ts)
		})

		kept := make([]line, 0, len(byPriority))
		used := 0
		for _, l := range byPriority {
			if used+l.words > maxWords {
				continue
			}
			kept = append(kept, l)
			used += l.words
		}
		sort.Slice(kept, func(i, j int) bool { return kept[i].idx < kept[j].idx })
		lines = kept
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.text
	}
	return strings.Join(out, "\n")
}

func chronological(events []Event) []Event {
	out := append([]Event(nil), events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Manager is the stateful narrative: it keeps a conversation's events and
// prunes the lowest-priority unpinned ones once the narrative reaches the
// prune threshold. Goals, risk-profile and restriction events are never pruned
// by priority; only the hard event cap can remove them.
type Manager struct {
	mu            sync.Mutex
	events        []Event
	maxWords      int
	maxEvents     int
	pruneAt       float64
	pruneFraction float64
	now           func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxWords sets the narrative budget.
func WithMaxWords(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxWords = n
		}
	}
}

// WithMaxEvents sets the hard cap on stored events.
func WithMaxEvents(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxEvents = n
		}
	}
}

// WithPruning sets the prune threshold (fraction of budget) and the fraction
// of stored events dropped per prune.
func WithPruning(threshold, fraction float64) ManagerOption {
	return func(m *Manager) {
		if threshold > 0 {
			m.pruneAt = threshold
		}
		if fraction > 0 {
			m.pruneFraction = fraction
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager seeded with existing events.
func NewManager(events []Event, opts ...ManagerOption) *Manager {
	m := &Manager{
		events:        chronological(events),
		maxWords:      DefaultMaxWords,
		maxEvents:     DefaultMaxEvents,
		pruneAt:       0.9,
		pruneFraction: 0.2,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends an event, prunes if the narrative crossed the threshold and
// then enforces the event cap. It returns the IDs of removed events.
func (m *Manager) Add(e Event) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, e)
	m.events = chronological(m.events)
	pruned := m.maybePrune()
	return append(pruned, m.enforceCap()...)
}

// Narrative renders the current events.
func (m *Manager) Narrative() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return EventsToNarrative(m.events, m.maxWords, m.now())
}

// Events returns a copy of the stored events, oldest first.
func (m *Manager) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Snapshot is the manager state for inspection and persistence.
type Snapshot struct {
	Events    []Event `json:"events"`
	Narrative string  `json:"narrative"`
	Words     int     `json:"words"`
	MaxWords  int     `json:"max_words"`
	Pinned    int     `json:"pinned"`
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	text := EventsToNarrative(m.events, m.maxWords, m.now())
	pinned := 0
	for _, e := range m.events {
		if e.Pinned() {
			pinned++
		}
	}
	return Snapshot{
		Events:    append([]Event(nil), m.events...),
		Narrative: text,
		Words:     budget.Words(text),
		MaxWords:  m.maxWords,
		Pinned:    pinned,
	}
}

// DropOldestUnpinned removes up to n unpinned events, oldest first, and
// returns how many were removed. Used by episodic compression.
func (m *Manager) DropOldestUnpinned(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	kept := make([]Event, 0, len(m.events))
	for _, e := range m.events {
		if removed < n && !e.Pinned() {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return removed
}

// fullWords counts the narrative with every stored event, before the
// render-time budget cut, so pruning reacts to what is actually stored.
func (m *Manager) fullWords() int {
	total := 0
	seen := make(map[dedupKey]bool, len(m.events))
	for _, e := range m.events {
		k := dedupKey{e.Intent, e.Category}
		if seen[k] {
			continue
		}
		seen[k] = true
		total += budget.Words(e.Line())
	}
	return total
}

func (m *Manager) maybePrune() []string {
	if float64(m.fullWords()) < float64(m.maxWords)*m.pruneAt {
		return nil
	}

	now := m.now()
	type candidate struct {
		idx      int
		priority float64
	}
	var candidates []candidate
	for i, e := range m.events {
		if e.Pinned() {
			continue
		}
		candidates = append(candidates, candidate{idx: i, priority: Priority(e, now)})
	}
	if len(candidates) == 0 {
		return nil
	}

	drop := int(math.Ceil(float64(len(m.events)) * m.pruneFraction))
	if drop > len(candidates) {
		drop = len(candidates)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return m.events[candidates[i].idx].Timestamp.Before(m.events[candidates[j].idx].Timestamp)
	})

	dropped := make(map[int]bool, drop)
	ids := make([]string, 0, drop)
	for _, c := range candidates[:drop] {
		dropped[c.idx] = true
		ids = append(ids, m.events[c.idx].ID)
	}
	kept := make([]Event, 0, len(m.events)-drop)
	for i, e := range m.events {
		if !dropped[i] {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return ids
}

// enforceCap trims the stored events to maxEvents: unpinned events go
// first, oldest first, then repeats of an (intent, category) pair the
// narrative already renders, then the oldest of what is left.
func (m *Manager) enforceCap() []string {
	over := len(m.events) - m.maxEvents
	if m.maxEvents <= 0 || over <= 0 {
		return nil
	}

	var ids []string
	filter := func(drop func(e Event, seen bool) bool) {
		seen := make(map[dedupKey]bool, len(m.events))
		kept := make([]Event, 0, len(m.events))
		for _, e := range m.events {
			k := dedupKey{e.Intent, e.Category}
			if over > 0 && drop(e, seen[k]) {
				ids = append(ids, e.ID)
				over--
			} else {
				kept = append(kept, e)
			}
			seen[k] = true
		}
		m.events = kept
	}
	filter(func(e Event, _ bool) bool { return !e.Pinned() })
	filter(func(_ Event, seen bool) bool { return seen })
	filter(func(Event, bool) bool { return true })
	return ids
}
