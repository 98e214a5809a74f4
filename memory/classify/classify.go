// Package classify ranks text against the fixed long-term categories using
// weighted keyword, intent and entity detectors. It never calls out: results
// are deterministic for a given text and context.
package classify

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

const (
	DefaultFloor     = 30.0
	DefaultTopN      = 3
	defaultCacheSize = 1024
	maxScore         = 100.0
)

// Context is session state that influences ranking.
type Context struct {
	// ActiveCategories were already detected in the current session.
	// They get a score multiplier and win ties.
	ActiveCategories []core.Category
}

func (c Context) active(cat core.Category) bool {
	for _, a := range c.ActiveCategories {
		if a == cat {
			return true
		}
	}
	return false
}

func (c Context) key() string {
	parts := make([]string, len(c.ActiveCategories))
	for i, a := range c.ActiveCategories {
		parts[i] = string(a)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Classifier is safe for concurrent use.
type Classifier struct {
	floor float64
	topN  int
	cache *lru.Cache[string, []core.CategoryScore]
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFloor sets the minimum score returned by DetectCategories.
func WithFloor(floor float64) Option {
	return func(c *Classifier) { c.floor = floor }
}

// WithTopN sets how many categories DetectCategories returns.
func WithTopN(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.topN = n
		}
	}
}

// WithCacheSize sets the ranking cache size. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(c *Classifier) {
		if size <= 0 {
			c.cache = nil
			return
		}
		c.cache, _ = lru.New[string, []core.CategoryScore](size)
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{floor: DefaultFloor, topN: DefaultTopN}
	c.cache, _ = lru.New[string, []core.CategoryScore](defaultCacheSize)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DetectCategories returns the top categories scoring at least the floor,
// highest first. Empty or unmatched text yields no categories.
func (c *Classifier) DetectCategories(text string, ctx Context) []core.CategoryScore {
	ranked := c.Rank(text, ctx)
	out := make([]core.CategoryScore, 0, c.topN)
	for _, s := range ranked {
		if s.Score < c.floor || len(out) == c.topN {
			break
		}
		out = append(out, s)
	}
	return out
}

// Rank scores every category, highest first. Ties go to categories active in
// ctx, then to the fixed category order.
func (c *Classifier) Rank(text string, ctx Context) []core.CategoryScore {
	folded := textnorm.Fold(strings.TrimSpace(text))
	if folded == "" {
		return nil
	}

	cacheKey := ctx.key() + "|" + folded
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			return append([]core.CategoryScore(nil), cached...)
		}
	}

	ranked := rank(folded, ctx)
	if c.cache != nil {
		c.cache.Add(cacheKey, ranked)
	}
	return append([]core.CategoryScore(nil), ranked...)
}

type scored struct {
	core.CategoryScore
	active bool
	order  int
}

func rank(folded string, ctx Context) []core.CategoryScore {
	tokens := textnorm.Tokens(folded)
	verbFirst := len(tokens) > 0 && firstPersonVerbs[tokens[0]]
	numeric := reDigit.MatchString(folded)
	selfRef := false
	for _, t := range tokens {
		if selfReference[t] {
			selfRef = true
			break
		}
	}

	results := make([]scored, 0, len(detectors))
	for i, d := range detectors {
		score, reason := d.score(folded)
		active := ctx.active(d.category)
		if score > 0 {
			if verbFirst {
				score *= multVerbFirst
			}
			if numeric {
				score *= multNumeric
			}
			if selfRef {
				score *= multSelfReference
			}
			if active {
				score *= multPriorActive
			}
		}
		if score > maxScore {
			score = maxScore
		}
		results = append(results, scored{
			CategoryScore: core.CategoryScore{
				Category: d.category,
				Score:    float64(int(score*10+0.5)) / 10,
				Reason:   reason,
			},
			active: active,
			order:  i,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.active != b.active {
			return a.active
		}
		return a.order < b.order
	})

	out := make([]core.CategoryScore, len(results))
	for i, r := range results {
		out[i] = r.CategoryScore
	}
	return out
}

func (d detector) score(folded string) (float64, string) {
	var (
		score   float64
		reasons []string
	)

	high := textnorm.MatchedTerms(folded, d.high)
	medium := textnorm.MatchedTerms(folded, d.medium)
	low := textnorm.MatchedTerms(folded, d.low)
	score += pointsHigh*float64(len(high)) + pointsMedium*float64(len(medium)) + pointsLow*float64(len(low))
	if kw := append(append(high, medium...), low...); len(kw) > 0 {
		reasons = append(reasons, "keywords: "+strings.Join(kw, ", "))
	}

	intents := 0
	for _, re := range d.intents {
		if re.MatchString(folded) {
			intents++
		}
	}
	if intents > 0 {
		score += pointsIntent * float64(intents)
		reasons = append(reasons, fmt.Sprintf("intents: %d", intents))
	}

	var entities []string
	for _, name := range d.entities {
		if entityPatterns[name].MatchString(folded) {
			entities = append(entities, name)
		}
	}
	if len(entities) > 0 {
		score += pointsEntity * float64(len(entities))
		reasons = append(reasons, "entities: "+strings.Join(entities, ", "))
	}

	return score, strings.Join(reasons, "; ")
}
