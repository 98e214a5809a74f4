// Package vector is the similarity service used by long-term curation. It
// pairs an Embedder with a VectorIndex, caches embeddings in ristretto and
// degrades to lexical similarity when the embedder is unavailable.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

var errZeroVector = errors.New("embedding has no signal")

// Candidate is an item the caller already holds, scored by Rank.
type Candidate struct {
	ID   string
	Text string
}

// Match is a scored candidate.
type Match struct {
	ID    string
	Score float64
	// Lexical is set when the score came from token overlap instead of the index.
	Lexical bool
}

// Service combines an embedder, an index and an embedding cache.
type Service struct {
	embedder memory.Embedder
	index    memory.VectorIndex
	cache    *ristretto.Cache
	timeout  time.Duration
	logger   log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each embedder call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service. cacheEntries <= 0 disables the embedding cache.
func New(embedder memory.Embedder, index memory.VectorIndex, cacheEntries int64, opts ...Option) (*Service, error) {
	s := &Service{
		embedder: embedder,
		index:    index,
		timeout:  8 * time.Second,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cacheEntries * 10,
			MaxCost:     cacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Embed returns the embedding of text, from cache when possible.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(text); ok {
			return v.([]float32), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, memory.NewExternalError("embedder", "embed", err)
	}
	if isZero(vec) {
		return nil, errZeroVector
	}

	if s.cache != nil {
		s.cache.Set(text, vec, 1)
		s.cache.Wait()
	}
	return vec, nil
}

// Index embeds text and stores it under id.
func (s *Service) Index(ctx context.Context, namespace, id, text string, metadata map[string]string) error {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, namespace, id, vec, metadata); err != nil {
		return fmt.Errorf("index %s: %w", id, err)
	}
	return nil
}

// QueryText returns the topK indexed vectors closest to text.
func (s *Service) QueryText(ctx context.Context, namespace, text string, topK int, filter map[string]string) ([]memory.VectorMatch, error) {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.index.Query(ctx, namespace, vec, topK, filter)
}

// Rank scores every candidate against text, highest first. Scores come from
// the index; candidates missing from the index score 0. When embedding or the
// index query fails, every candidate is scored by token Jaccard instead.
func (s *Service) Rank(ctx context.Context, namespace, text string, candidates []Candidate, filter map[string]string) []Match {
	if len(candidates) == 0 {
		return nil
	}

	matches, err := s.rankIndexed(ctx, namespace, text, candidates, filter)
	if err != nil {
		if !errors.Is(err, errZeroVector) {
			s.logger.Warnf(ctx, "[VECTOR] Falling back to lexical similarity in %s: %v", namespace, err)
		}
		matches = RankLexical(text, candidates)
	}
	return matches
}

func (s *Service) rankIndexed(ctx context.Context, namespace, text string, candidates []Candidate, filter map[string]string) ([]Match, error) {
	results, err := s.QueryText(ctx, namespace, text, len(candidates), filter)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.ID] = r.Score
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{ID: c.ID, Score: scores[c.ID]})
	}
	sortMatches(matches)
	return matches, nil
}

// Remove deletes one vector.
func (s *Service) Remove(ctx context.Context, namespace, id string) error {
	return s.index.Delete(ctx, namespace, id)
}

// RemoveNamespace deletes every vector of a namespace.
func (s *Service) RemoveNamespace(ctx context.Context, namespace string) error {
	return s.index.DeleteNamespace(ctx, namespace)
}

// Close releases the cache and the index.
func (s *Service) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.index.Close()
}

// RankLexical scores candidates by token Jaccard similarity, highest first.
func RankLexical(text string, candidates []Candidate) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{ID: c.ID, Score: textnorm.Jaccard(text, c.Text), Lexical: true})
	}
	sortMatches(matches)
	return matches
}

func sortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool { return m[i].Score > m[j].Score })
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
