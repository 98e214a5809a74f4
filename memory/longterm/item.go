package longterm

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

// MemoryItem is one curated fact about the user.
type MemoryItem struct {
	ID           string        `json:"id"`
	Content      string        `json:"content"`
	Category     core.Category `json:"category"`
	ImpactScore  float64       `json:"impact_score"`
	SourceChats  []string      `json:"source_chats,omitempty"`
	WordCount    int           `json:"word_count"`
	CreatedAt    time.Time     `json:"created_at"`
	EventDate    time.Time     `json:"event_date"`
	LastAccessed time.Time     `json:"last_accessed"`
	AccessCount  int           `json:"access_count"`
	MergeCount   int           `json:"merge_count"`
	// VectorRef is the ID in the vector index; empty when indexing failed.
	VectorRef string `json:"vector_ref,omitempty"`
}

func newItem(content string, category core.Category, impact float64, chats []string, eventDate, now time.Time) MemoryItem {
	return MemoryItem{
		ID:           uuid.New().String(),
		Content:      content,
		Category:     category,
		ImpactScore:  impact,
		SourceChats:  chats,
		WordCount:    budget.Words(content),
		CreatedAt:    now,
		EventDate:    eventDate,
		LastAccessed: now,
	}
}

// Format renders the item for prompt injection with its age, so the model
// can tell older facts from newer ones.
func (m MemoryItem) Format(now time.Time, maxLen int) string {
	return fmt.Sprintf("[%s, %s] %s", m.Category.Label(), Age(m.CreatedAt, now), truncate(m.Content, maxLen))
}

// metadata is stored next to the vector.
func (m MemoryItem) metadata() map[string]string {
	return map[string]string{
		"category": string(m.Category),
		"content":  m.Content,
	}
}

// Age describes the time elapsed since t in Portuguese.
func Age(t, now time.Time) string {
	d := now.Sub(t)
	days := int(d.Hours() / 24)
	switch {
	case d < 24*time.Hour:
		return "hoje"
	case days == 1:
		return "há 1 dia"
	case days < 30:
		return fmt.Sprintf("há %d dias", days)
	case days < 60:
		return "há 1 mês"
	case days < 365:
		return fmt.Sprintf("há %d meses", days/30)
	case days < 730:
		return "há 1 ano"
	default:
		return fmt.Sprintf("há %d anos", days/365)
	}
}

// fuse joins two contents keeping every distinct sentence once, existing
// sentences first.
// When incoming adds nothing new, existing is returned unchanged.
func fuse(existing, incoming string) string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) bool {
		key := strings.Join(textnorm.Tokens(s), " ")
		if key == "" || seen[key] {
			return false
		}
		seen[key] = true
		out = append(out, s)
		return true
	}
	for _, s := range sentences(existing) {
		add(s)
	}
	added := false
	for _, s := range sentences(incoming) {
		if add(s) {
			added = true
		}
	}
	if !added {
		return existing
	}
	return strings.Join(out, " ")
}

// sentences splits text after words that end in sentence punctuation and
// terminates every sentence with a period.
func sentences(text string) []string {
	var out, cur []string
	flush := func() {
		if len(cur) == 0 {
			return
		}
		s := strings.Join(cur, " ")
		if !strings.ContainsAny(s[len(s)-1:], ".!?") {
			s = strings.TrimRight(s, ",;:") + "."
		}
		out = append(out, s)
		cur = nil
	}
	for _, w := range strings.Fields(text) {
		cur = append(cur, w)
		if strings.ContainsAny(w[len(w)-1:], ".!?;") {
			flush()
		}
	}
	flush()
	return out
}

// truncate truncates a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
