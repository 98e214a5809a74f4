// Package longterm implements the per-user curated profile: ten fixed
// categories, each with its own word budget, fed by a curation pipeline
// that decides whether a candidate fact is admitted, merged into an existing
// item or rejected.
package longterm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/keylock"
	"github.com/becomeliminal/nim-memory/memory/rules"
	"github.com/becomeliminal/nim-memory/memory/scoring"
	"github.com/becomeliminal/nim-memory/memory/textsvc"
	"github.com/becomeliminal/nim-memory/memory/vector"
)

var tracer = otel.Tracer("nim-memory/longterm")

// Similarity finds merge targets and ranks retrieval candidates.
// vector.Service satisfies it.
type Similarity interface {
	Rank(ctx context.Context, namespace, text string, candidates []vector.Candidate, filter map[string]string) []vector.Match
	Index(ctx context.Context, namespace, id, text string, metadata map[string]string) error
	Remove(ctx context.Context, namespace, id string) error
	RemoveNamespace(ctx context.Context, namespace string) error
}

// lexical is the Similarity used when no vector service is configured.
type lexical struct{}

func (lexical) Rank(_ context.Context, _, text string, candidates []vector.Candidate, _ map[string]string) []vector.Match {
	return vector.RankLexical(text, candidates)
}

func (lexical) Index(context.Context, string, string, string, map[string]string) error {
	return nil
}

func (lexical) Remove(context.Context, string, string) error {
	return nil
}

func (lexical) RemoveNamespace(context.Context, string) error {
	return nil
}

// Store manages long-term profiles.
type Store struct {
	docs   memory.DocumentStore
	cfg    *memory.Config
	logger log.Logger
	sim    Similarity
	text   memory.TextService
	local  *textsvc.Local
	scorer scoring.Scorer
	locks  keylock.Map
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSimilarity sets the merge and retrieval similarity source.
// Default: token Jaccard over the category's items.
func WithSimilarity(sim Similarity) Option {
	return func(s *Store) { s.sim = sim }
}

// WithTextService sets the service used for refinement and category
// descriptions. Failures fall back to textsvc.Local.
func WithTextService(text memory.TextService) Option {
	return func(s *Store) { s.text = text }
}

// WithScorer replaces the deterministic impact scorer.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Store) { s.scorer = scorer }
}

// New creates a Store.
func New(docs memory.DocumentStore, cfg *memory.Config, logger log.Logger, opts ...Option) *Store {
	if cfg == nil {
		cfg = memory.DefaultConfig()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	local := textsvc.NewLocal(nil)
	s := &Store{
		docs:   docs,
		cfg:    cfg,
		logger: logger,
		sim:    lexical{},
		text:   local,
		local:  local,
		scorer: scoring.Deterministic{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Proposal is a candidate fact for the long-term profile.
type Proposal struct {
	UserID      string
	Content     string
	Category    core.Category
	SourceChats []string
	// EventDate defaults to the proposal time.
	EventDate time.Time
	// MentionCount is how many times the fact was stated in the source chat.
	MentionCount int
}

// Result describes an accepted proposal.
type Result struct {
	Item    MemoryItem
	Merged  bool
	Evicted []MemoryItem
	Score   float64
}

// Propose runs curation and stores the fact. A declined proposal returns a
// *memory.RejectionError and only the curation counters change.
func (s *Store) Propose(ctx context.Context, p Proposal) (*Result, error) {
	ctx, span := tracer.Start(ctx, "longterm.propose")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", p.UserID),
		attribute.String("category", string(p.Category)),
	)

	if p.UserID == "" {
		return nil, fmt.Errorf("propose: user is required")
	}
	unlock := s.locks.Lock(p.UserID)
	defer unlock()

	prof, err := s.loadOrNew(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	prof.TotalProposed++

	content, score, rej := s.curate(ctx, p)
	if rej != nil {
		prof.TotalRejected++
		s.logger.Debugf(ctx, "[LTM] Rejected proposal for %s in %s: %v", p.UserID, p.Category, rej)
		span.SetAttributes(attribute.String("rejection", rej.Kind))
		if err := s.save(ctx, prof, now); err != nil {
			return nil, err
		}
		return nil, rej
	}

	res := &Result{Score: score}
	if target := s.mergeTarget(ctx, prof, p.Category, content); target >= 0 {
		res.Item, res.Evicted = s.merge(ctx, prof, target, content, score, p.SourceChats, now)
		res.Merged = true
		prof.TotalMerged++
	} else {
		eventDate := p.EventDate
		if eventDate.IsZero() {
			eventDate = now
		}
		if budget.Words(content) > s.cfg.LongTermPerCategory {
			content = budget.Truncate(content, s.cfg.LongTermPerCategory)
		}
		item := newItem(content, p.Category, score, dedupe(p.SourceChats), eventDate, now)
		res.Evicted = s.makeRoom(ctx, prof, p.Category, item.WordCount, "")
		if err := s.sim.Index(ctx, p.UserID, item.ID, item.Content, item.metadata()); err != nil {
			s.logger.Warnf(ctx, "[LTM] Indexing %s failed, item stored without vector: %v", item.ID, err)
		} else {
			item.VectorRef = item.ID
		}
		prof.Items = append(prof.Items, item)
		res.Item = item
	}

	prof.TotalAccepted++
	prof.AcceptedCount[p.Category]++
	prof.recount()
	s.refreshDescription(ctx, prof, p.Category, now)

	if err := s.save(ctx, prof, now); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("merged", res.Merged),
		attribute.Int("evicted", len(res.Evicted)),
		attribute.Float64("score", score),
	)
	s.logger.Infof(ctx, "[LTM] Stored %s for %s in %s (score=%.3f merged=%t evicted=%d)",
		res.Item.ID, p.UserID, p.Category, score, res.Merged, len(res.Evicted))
	return res, nil
}

// curate applies the admission pipeline and returns the refined content.
func (s *Store) curate(ctx context.Context, p Proposal) (string, float64, *memory.RejectionError) {
	content := strings.Join(strings.Fields(p.Content), " ")
	if content == "" {
		return "", 0, memory.NewRejection(memory.RejectEmpty, "")
	}
	if f := rules.ContainsForbiddenContent(content); f.Found {
		return "", 0, memory.NewRejection(memory.RejectForbidden, f.Kind)
	}
	if !p.Category.Valid() {
		return "", 0, memory.NewRejection(memory.RejectInvalidCategory, string(p.Category))
	}
	if !rules.IsSuitableForTier(content, core.TierLongTerm) {
		return "", 0, memory.NewRejection(memory.RejectUnsuitable, "")
	}

	score := s.scorer.Score(content, scoring.Context{
		SourceChats:  len(dedupe(p.SourceChats)),
		MentionCount: p.MentionCount,
	})
	if score < s.cfg.MinImpactForLongTerm {
		return "", score, memory.NewRejection(memory.RejectLowScore, fmt.Sprintf("%.3f < %.2f", score, s.cfg.MinImpactForLongTerm))
	}

	content = s.refine(ctx, content)
	// The refined text comes from a service; check it again.
	if f := rules.ContainsForbiddenContent(content); f.Found {
		return "", score, memory.NewRejection(memory.RejectForbidden, f.Kind)
	}
	if content == "" {
		return "", score, memory.NewRejection(memory.RejectEmpty, "refined content is empty")
	}
	return content, score, nil
}

// refine enforces the item word ceiling.
func (s *Store) refine(ctx context.Context, content string) string {
	limit := s.cfg.RefinedMaxWords
	if limit <= 0 || budget.Words(content) <= limit {
		return content
	}
	out, err := s.text.Compress(ctx, content, limit)
	if err != nil || budget.Words(out) == 0 {
		s.logger.Warnf(ctx, "[LTM] Refinement failed, using local compression: %v", err)
		out, _ = s.local.Compress(ctx, content, limit)
	}
	return budget.Truncate(out, limit)
}

// mergeTarget returns the index of the closest same-category item at or
// above the merge threshold, or -1.
func (s *Store) mergeTarget(ctx context.Context, prof *Profile, c core.Category, content string) int {
	var candidates []vector.Candidate
	for _, it := range prof.ItemsIn(c) {
		candidates = append(candidates, vector.Candidate{ID: it.ID, Text: it.Content})
	}
	if len(candidates) == 0 {
		return -1
	}
	matches := s.sim.Rank(ctx, prof.UserID, content, candidates, map[string]string{"category": string(c)})
	if len(matches) == 0 || matches[0].Score < s.cfg.MergeThreshold {
		return -1
	}
	s.logger.Debugf(ctx, "[LTM] Merge target %s (similarity=%.3f lexical=%t)", matches[0].ID, matches[0].Score, matches[0].Lexical)
	return prof.index(matches[0].ID)
}

func (s *Store) merge(ctx context.Context, prof *Profile, i int, content string, score float64, chats []string, now time.Time) (MemoryItem, []MemoryItem) {
	it := prof.Items[i]
	fused := fuse(it.Content, content)
	changed := fused != it.Content
	if changed {
		fused = s.refine(ctx, fused)
	}

	it.Content = fused
	it.WordCount = budget.Words(fused)
	it.ImpactScore = max(it.ImpactScore, score)
	it.SourceChats = dedupe(append(it.SourceChats, chats...))
	it.MergeCount++
	it.LastAccessed = now
	prof.Items[i] = it

	evicted := s.makeRoom(ctx, prof, it.Category, 0, it.ID)
	if changed {
		if err := s.sim.Index(ctx, prof.UserID, it.ID, it.Content, it.metadata()); err != nil {
			s.logger.Warnf(ctx, "[LTM] Re-indexing %s failed: %v", it.ID, err)
		}
	}
	// makeRoom may have shifted the slice.
	if j := prof.index(it.ID); j >= 0 {
		it = prof.Items[j]
	}
	return it, evicted
}

// makeRoom evicts the lowest-impact items of c (oldest first among equals)
// until incoming more words fit the category budget. keep is never evicted.
func (s *Store) makeRoom(ctx context.Context, prof *Profile, c core.Category, incoming int, keep string) []MemoryItem {
	limit := s.cfg.LongTermPerCategory
	if prof.CategoryWords(c)+incoming <= limit {
		return nil
	}
	var evicted []MemoryItem
	for _, victim := range prof.evictionOrder(c, keep) {
		if prof.CategoryWords(c)+incoming <= limit {
			break
		}
		prof.remove(victim.ID)
		evicted = append(evicted, victim)
		if victim.VectorRef != "" {
			if err := s.sim.Remove(ctx, prof.UserID, victim.VectorRef); err != nil {
				s.logger.Warnf(ctx, "[LTM] Removing vector %s failed: %v", victim.VectorRef, err)
			}
		}
		s.logger.Debugf(ctx, "[LTM] Evicted %s from %s (impact=%.3f)", victim.ID, c, victim.ImpactScore)
	}
	return evicted
}

// refreshDescription regenerates the category description when it is
// missing, on every DescriptionEvery-th accepted item, or once it is older
// than DescriptionMaxAge.
func (s *Store) refreshDescription(ctx context.Context, prof *Profile, c core.Category, now time.Time) {
	current, ok := prof.Descriptions[c]
	due := !ok || current.Description == "" ||
		(s.cfg.DescriptionEvery > 0 && prof.AcceptedCount[c]%s.cfg.DescriptionEvery == 0) ||
		now.Sub(current.LastUpdated) >= s.cfg.DescriptionMaxAge
	if !due {
		return
	}

	req := memory.SummaryRequest{Category: c, MaxWords: s.cfg.DescriptionMaxWords}
	for _, it := range prof.ItemsIn(c) {
		req.Items = append(req.Items, it.Content)
	}
	desc, err := s.text.Summarize(ctx, req)
	if err != nil || strings.TrimSpace(desc) == "" || budget.Words(desc) > req.MaxWords {
		if err != nil {
			s.logger.Warnf(ctx, "[LTM] Description for %s failed, using template: %v", c, err)
		}
		desc, _ = s.local.Summarize(ctx, req)
	}

	prof.Descriptions[c] = CategoryDescription{
		Description: desc,
		LastUpdated: now,
		UpdateCount: current.UpdateCount + 1,
	}
}

// RetrieveOptions narrows Retrieve.
type RetrieveOptions struct {
	// Query ranks items by 0.6 similarity + 0.4 impact. Empty ranks by impact.
	Query      string
	Categories []core.Category
	// Limit defaults to Config.RetrieveLimit.
	Limit int
}

// Retrieve returns the user's most relevant items and records the access.
func (s *Store) Retrieve(ctx context.Context, userID string, opts RetrieveOptions) ([]MemoryItem, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	prof, err := s.load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", userID, err)
	}

	var pool []MemoryItem
	for _, it := range prof.Items {
		if len(opts.Categories) == 0 || containsCategory(opts.Categories, it.Category) {
			pool = append(pool, it)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}

	rank := make(map[string]float64, len(pool))
	if q := strings.TrimSpace(opts.Query); q != "" {
		candidates := make([]vector.Candidate, len(pool))
		for i, it := range pool {
			candidates[i] = vector.Candidate{ID: it.ID, Text: it.Content}
		}
		sim := make(map[string]float64, len(pool))
		for _, m := range s.sim.Rank(ctx, userID, q, candidates, nil) {
			sim[m.ID] = m.Score
		}
		for _, it := range pool {
			rank[it.ID] = 0.6*sim[it.ID] + 0.4*it.ImpactScore
		}
	} else {
		for _, it := range pool {
			rank[it.ID] = it.ImpactScore
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if rank[pool[i].ID] != rank[pool[j].ID] {
			return rank[pool[i].ID] > rank[pool[j].ID]
		}
		return pool[i].CreatedAt.After(pool[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.RetrieveLimit
	}
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}

	now := s.now()
	for i := range pool {
		pool[i].LastAccessed = now
		pool[i].AccessCount++
		if j := prof.index(pool[i].ID); j >= 0 {
			prof.Items[j] = pool[i]
		}
	}
	if err := s.save(ctx, prof, now); err != nil {
		return nil, err
	}
	return pool, nil
}

// Profile returns the stored profile without touching access bookkeeping.
func (s *Store) Profile(ctx context.Context, userID string) (*Profile, error) {
	prof, err := s.load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", userID, err)
	}
	return prof, nil
}

// GetStats summarizes the user's profile.
func (s *Store) GetStats(ctx context.Context, userID string) (Stats, error) {
	prof, err := s.Profile(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return prof.stats(s.cfg.LongTermTotal), nil
}

// Forget removes one item.
func (s *Store) Forget(ctx context.Context, userID, itemID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	prof, err := s.load(ctx, userID)
	if err != nil {
		return fmt.Errorf("forget %s: %w", itemID, err)
	}
	i := prof.index(itemID)
	if i < 0 {
		return fmt.Errorf("forget %s: %w", itemID, memory.ErrNotFound)
	}
	item := prof.Items[i]
	prof.remove(itemID)
	prof.recount()
	if item.VectorRef != "" {
		if err := s.sim.Remove(ctx, userID, item.VectorRef); err != nil {
			s.logger.Warnf(ctx, "[LTM] Removing vector %s failed: %v", item.VectorRef, err)
		}
	}
	return s.save(ctx, prof, s.now())
}

// DeleteProfile removes the profile and the user's vector namespace.
func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.sim.RemoveNamespace(ctx, userID); err != nil {
		s.logger.Warnf(ctx, "[LTM] Removing namespace %s failed: %v", userID, err)
	}
	if err := s.docs.Delete(ctx, memory.CollectionLongTerm, userID); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	s.logger.Infof(ctx, "[LTM] Deleted profile %s", userID)
	return nil
}

func (s *Store) loadOrNew(ctx context.Context, userID string) (*Profile, error) {
	prof, err := s.load(ctx, userID)
	if errors.Is(err, memory.ErrNotFound) {
		return newProfile(userID, s.now()), nil
	}
	return prof, err
}

func (s *Store) load(ctx context.Context, userID string) (*Profile, error) {
	raw, err := s.docs.Get(ctx, memory.CollectionLongTerm, userID)
	if err != nil {
		return nil, err
	}
	var prof Profile
	if err := json.Unmarshal(raw, &prof); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	if prof.Descriptions == nil {
		prof.Descriptions = make(map[core.Category]CategoryDescription)
	}
	if prof.AcceptedCount == nil {
		prof.AcceptedCount = make(map[core.Category]int)
	}
	return &prof, nil
}

func (s *Store) save(ctx context.Context, prof *Profile, now time.Time) error {
	prof.UpdatedAt = now
	raw, err := json.Marshal(prof)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", prof.UserID, err)
	}
	if err := s.docs.Put(ctx, memory.CollectionLongTerm, prof.UserID, raw, time.Time{}); err != nil {
		return fmt.Errorf("store profile %s: %w", prof.UserID, err)
	}
	return nil
}

func dedupe(list []string) []string {
	var out []string
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func containsCategory(list []core.Category, c core.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
