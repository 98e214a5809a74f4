// Package textsvc implements memory.TextService. Local is deterministic and
// always available; Anthropic and OpenAI call a language model with forced
// tool use; Resilient puts a network service behind a timeout, a rate limit
// and the Local fallback.
package textsvc

import (
	"context"
	"sort"
	"strings"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/classify"
	"github.com/becomeliminal/nim-memory/memory/scoring"
)

// Local is the rule-based TextService.
type Local struct {
	classifier *classify.Classifier
}

// NewLocal creates a Local service. A nil classifier gets a default one.
func NewLocal(c *classify.Classifier) *Local {
	if c == nil {
		c = classify.New()
	}
	return &Local{classifier: c}
}

var _ memory.TextService = (*Local)(nil)

// Classify scores text with the rule-based classifier, restricted to
// candidates when any are given. Zero scores are dropped.
func (l *Local) Classify(_ context.Context, text string, candidates []core.Category) ([]core.CategoryScore, error) {
	var out []core.CategoryScore
	for _, s := range l.classifier.Rank(text, classify.Context{}) {
		if s.Score <= 0 || (len(candidates) > 0 && !contains(candidates, s.Category)) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Compress keeps the most informative sentences that fit in maxWords, in
// their original order. When even the best sentence does not fit, the text
// is cut at maxWords.
func (l *Local) Compress(_ context.Context, text string, maxWords int) (string, error) {
	if maxWords <= 0 {
		return "", nil
	}
	if budget.Words(text) <= maxWords {
		return strings.Join(strings.Fields(text), " "), nil
	}

	type sentence struct {
		pos   int
		text  string
		words int
		score float64
	}
	var sentences []sentence
	for i, s := range splitSentences(text) {
		sentences = append(sentences, sentence{
			pos:   i,
			text:  s,
			words: budget.Words(s),
			score: scoring.Score(s, scoring.Context{}),
		})
	}

	ranked := append([]sentence(nil), sentences...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	used := 0
	keep := make(map[int]bool)
	for _, s := range ranked {
		if used+s.words <= maxWords {
			keep[s.pos] = true
			used += s.words
		}
	}
	if len(keep) == 0 {
		return budget.Truncate(text, maxWords), nil
	}

	var parts []string
	for _, s := range sentences {
		if keep[s.pos] {
			parts = append(parts, s.text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Summarize renders a template description from the category items with
// dates, amounts and instrument names removed.
func (l *Local) Summarize(_ context.Context, req memory.SummaryRequest) (string, error) {
	maxWords := req.MaxWords
	if maxWords <= 0 {
		maxWords = 25
	}
	label := req.Category.Label()

	var parts []string
	seen := make(map[string]bool)
	for _, item := range req.Items {
		clean := strings.TrimRight(Sanitize(item), ".!?;")
		key := strings.ToLower(clean)
		if clean == "" || seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, clean)
	}

	if len(parts) == 0 {
		return budget.Truncate("Ainda sem detalhes relevantes sobre "+label+".", maxWords), nil
	}
	return budget.Truncate("Sobre "+label+": "+strings.Join(parts, "; "), maxWords), nil
}

func contains(list []core.Category, c core.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

// splitSentences breaks text after words ending in sentence punctuation.
// Decimal points inside amounts ("R$50.000") do not end a sentence.
func splitSentences(text string) []string {
	var out, cur []string
	for _, w := range strings.Fields(text) {
		cur = append(cur, w)
		if strings.ContainsAny(w[len(w)-1:], ".!?;") {
			out = append(out, strings.Join(cur, " "))
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
