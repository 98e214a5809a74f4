package episodic

import (
	"sort"
	"strings"
	"time"

	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/narrative"
)

// Content is the structured body of an episodic record. Known fields are
// typed; anything else goes into Extra.
//
// Events are not counted by WordCount: they are represented by Narrative,
// which is rendered from them. Store bounds them with a narrative.Manager.
type Content struct {
	Summary   string            `json:"summary,omitempty"`
	Topics    []string          `json:"topics,omitempty"`
	Decisions []string          `json:"decisions,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Events    []narrative.Event `json:"events,omitempty"`
	Narrative string            `json:"narrative,omitempty"`
	Extra     map[string]any    `json:"extra,omitempty"`
}

// WordCount implements budget.Counter.
func (c Content) WordCount() int {
	return budget.Words(c.Summary) +
		budget.Count(c.Topics) +
		budget.Count(c.Decisions) +
		budget.Count(c.Values) +
		budget.Words(c.Narrative) +
		budget.Count(c.Extra)
}

// IsEmpty reports whether c carries no content at all.
func (c Content) IsEmpty() bool {
	return c.WordCount() == 0 && len(c.Events) == 0
}

// Merge folds patch into c. Same-key values from patch win: Summary and
// Narrative are replaced when non-empty, Values and Extra merge per key.
// Events and Decisions append, Topics are unioned in order.
func (c Content) Merge(patch Content) Content {
	out := c.clone()
	if patch.Summary != "" {
		out.Summary = patch.Summary
	}
	if patch.Narrative != "" {
		out.Narrative = patch.Narrative
	}
	for _, t := range patch.Topics {
		if !containsFold(out.Topics, t) {
			out.Topics = append(out.Topics, t)
		}
	}
	for _, d := range patch.Decisions {
		if !containsFold(out.Decisions, d) {
			out.Decisions = append(out.Decisions, d)
		}
	}
	if len(patch.Values) > 0 && out.Values == nil {
		out.Values = make(map[string]string, len(patch.Values))
	}
	for k, v := range patch.Values {
		out.Values[k] = v
	}
	if len(patch.Extra) > 0 && out.Extra == nil {
		out.Extra = make(map[string]any, len(patch.Extra))
	}
	for k, v := range patch.Extra {
		out.Extra[k] = v
	}
	out.Events = append(out.Events, patch.Events...)
	return out
}

func (c Content) clone() Content {
	out := c
	out.Topics = append([]string(nil), c.Topics...)
	out.Decisions = append([]string(nil), c.Decisions...)
	out.Events = append([]narrative.Event(nil), c.Events...)
	if c.Values != nil {
		out.Values = make(map[string]string, len(c.Values))
		for k, v := range c.Values {
			out.Values[k] = v
		}
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Record is one conversation's episodic memory.
type Record struct {
	ChatID           string    `json:"chat_id"`
	UserID           string    `json:"user_id"`
	Content          Content   `json:"content"`
	WordCount        int       `json:"word_count"`
	CompressionCount int       `json:"compression_count"`
	LastCompressedAt time.Time `json:"last_compressed_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its soft expiry.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Compression limits on list fields.
const (
	keepDecisions = 5
	keepTopics    = 8
	keepEvents    = 60
	minNarrative  = 10
)

// CompressEpisodicMemory shrinks content to at most target words. The
// narrative is re-rendered from events within what the other fields leave;
// then lists keep only their newest entries, Extra is dropped, and the
// summary and narrative are truncated as a last resort. The result is never
// larger than the input and never empty when the input was not.
func CompressEpisodicMemory(c Content, target, narrativeMax int, now time.Time) Content {
	if target <= 0 || c.WordCount() <= target {
		return c
	}
	inputWords := c.WordCount()
	out := c.clone()

	// Stored events are bounded; pinned ones survive.
	if len(out.Events) > keepEvents {
		mgr := narrative.NewManager(out.Events)
		mgr.DropOldestUnpinned(len(out.Events) - keepEvents)
		out.Events = mgr.Events()
	}

	renderNarrative := func() {
		if len(out.Events) == 0 {
			return
		}
		room := target - (out.WordCount() - budget.Words(out.Narrative))
		if room < minNarrative {
			room = minNarrative
		}
		if room > narrativeMax {
			room = narrativeMax
		}
		out.Narrative = narrative.EventsToNarrative(out.Events, room, now)
	}
	renderNarrative()

	if out.WordCount() > target {
		out.Decisions = tail(out.Decisions, keepDecisions)
		out.Topics = tail(out.Topics, keepTopics)
		renderNarrative()
	}
	if out.WordCount() > target && len(out.Extra) > 0 {
		out.Extra = nil
		renderNarrative()
	}
	if over := out.WordCount() - target; over > 0 {
		keep := budget.Words(out.Summary) - over
		if keep < 0 {
			keep = 0
		}
		out.Summary = budget.Truncate(out.Summary, keep)
	}
	if over := out.WordCount() - target; over > 0 {
		keep := budget.Words(out.Narrative) - over
		if keep < 0 {
			keep = 0
		}
		out.Narrative = truncateLines(out.Narrative, keep)
	}
	if over := out.WordCount() - target; over > 0 {
		out.Values = trimValues(out.Values, over)
	}
	if over := out.WordCount() - target; over > 0 {
		out.Decisions = nil
		out.Topics = nil
	}

	if out.WordCount() == 0 && inputWords > 0 {
		out.Summary = budget.Truncate(firstText(c), max(1, min(target, inputWords)))
	}
	return out
}

func tail(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return append([]string(nil), list[len(list)-n:]...)
}

// truncateLines keeps whole narrative lines while they fit, then cuts the
// next line at the word limit.
func truncateLines(text string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	var kept []string
	used := 0
	for _, line := range strings.Split(text, "\n") {
		w := budget.Words(line)
		if used+w <= maxWords {
			kept = append(kept, line)
			used += w
			continue
		}
		if rest := maxWords - used; rest > 0 {
			kept = append(kept, budget.Truncate(line, rest))
		}
		break
	}
	return strings.Join(kept, "\n")
}

func trimValues(values map[string]string, over int) map[string]string {
	if len(values) == 0 {
		return values
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, k := range keys {
		if over <= 0 {
			break
		}
		over -= budget.Words(out[k])
		delete(out, k)
	}
	return out
}

func firstText(c Content) string {
	for _, s := range []string{c.Summary, c.Narrative, strings.Join(c.Decisions, " "), strings.Join(c.Topics, " ")} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	for _, v := range c.Values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "conversa"
}
