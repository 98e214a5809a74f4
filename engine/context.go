package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/episodic"
	"github.com/becomeliminal/nim-memory/memory/longterm"
)

// Context is the read-only memory aggregate used to build a prompt.
// Missing tiers are left empty.
type Context struct {
	SessionID            string                                         `json:"session_id,omitempty"`
	ChatID               string                                         `json:"chat_id,omitempty"`
	UserID               string                                         `json:"user_id"`
	WorkingMemory        map[string]any                                 `json:"working_memory,omitempty"`
	Episodic             *episodic.Record                               `json:"episodic,omitempty"`
	LongTerm             []longterm.MemoryItem                          `json:"long_term,omitempty"`
	CategoryDescriptions map[core.Category]longterm.CategoryDescription `json:"category_descriptions,omitempty"`
	BuiltAt              time.Time                                      `json:"built_at"`
}

// BuildContext gathers the session map, the active episodic record and the
// most relevant long-term items. Unknown sessions, chats and profiles are
// not errors; soft-expired episodic records are left out.
func (e *MemoryEngine) BuildContext(ctx context.Context, sessionID, chatID, userID string) (*Context, error) {
	out := &Context{SessionID: sessionID, ChatID: chatID, UserID: userID, BuiltAt: e.now()}

	if sessionID != "" {
		wm, err := e.working.GetAll(ctx, sessionID)
		if err != nil && !errors.Is(err, memory.ErrNotFound) {
			return nil, fmt.Errorf("build context: %w", err)
		}
		out.WorkingMemory = wm
	}

	if chatID != "" {
		rec, err := e.episodic.GetActive(ctx, chatID)
		if err != nil && !errors.Is(err, memory.ErrNotFound) {
			return nil, fmt.Errorf("build context: %w", err)
		}
		out.Episodic = rec
	}

	if userID != "" {
		items, err := e.longterm.Retrieve(ctx, userID, longterm.RetrieveOptions{Limit: e.cfg.RetrieveLimit})
		switch {
		case errors.Is(err, memory.ErrNotFound):
			return out, nil
		case err != nil:
			return nil, fmt.Errorf("build context: %w", err)
		}
		out.LongTerm = items

		prof, err := e.longterm.Profile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("build context: %w", err)
		}
		out.CategoryDescriptions = prof.Descriptions
	}
	return out, nil
}

// FormatContextForPrompt renders c in truth-priority order: session data,
// then the current conversation, then the category descriptions, then the
// long-term history from oldest to newest with the age of each fact.
func FormatContextForPrompt(c *Context) string {
	if c == nil {
		return ""
	}
	now := c.BuiltAt
	if now.IsZero() {
		now = time.Now()
	}

	var parts []string
	if s := formatWorking(c.WorkingMemory); s != "" {
		parts = append(parts, "=== DADOS DA SESSÃO ===\n"+s)
	}
	if s := formatEpisodic(c.Episodic); s != "" {
		parts = append(parts, "=== CONVERSA ATUAL ===\n"+s)
	}
	if s := formatDescriptions(c.CategoryDescriptions); s != "" {
		parts = append(parts, "=== PERFIL DO CLIENTE ===\n"+s)
	}
	if s := formatLongTerm(c.LongTerm, now); s != "" {
		parts = append(parts, "=== HISTÓRICO DE LONGO PRAZO ===\n"+s)
	}
	if len(parts) == 0 {
		return ""
	}

	header := "Memória do cliente. Em caso de conflito, vale a seção que aparece primeiro; " +
		"no histórico, fatos mais recentes substituem os mais antigos."
	return header + "\n\n" + strings.Join(parts, "\n\n")
}

func formatWorking(wm map[string]any) string {
	if len(wm) == 0 {
		return ""
	}
	keys := make([]string, 0, len(wm))
	for k := range wm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %v", k, wm[k]))
	}
	return strings.Join(lines, "\n")
}

func formatEpisodic(rec *episodic.Record) string {
	if rec == nil {
		return ""
	}
	c := rec.Content
	var lines []string
	if c.Summary != "" {
		lines = append(lines, "Resumo: "+c.Summary)
	}
	if c.Narrative != "" {
		lines = append(lines, c.Narrative)
	}
	if len(c.Decisions) > 0 {
		lines = append(lines, "Decisões: "+strings.Join(c.Decisions, "; "))
	}
	if len(c.Values) > 0 {
		keys := make([]string, 0, len(c.Values))
		for k := range c.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var vals []string
		for _, k := range keys {
			vals = append(vals, k+"="+c.Values[k])
		}
		lines = append(lines, "Valores citados: "+strings.Join(vals, ", "))
	}
	return strings.Join(lines, "\n")
}

func formatDescriptions(descs map[core.Category]longterm.CategoryDescription) string {
	var lines []string
	for _, cat := range core.AllCategories {
		if d, ok := descs[cat]; ok && d.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", cat.Label(), d.Description))
		}
	}
	return strings.Join(lines, "\n")
}

func formatLongTerm(items []longterm.MemoryItem, now time.Time) string {
	if len(items) == 0 {
		return ""
	}
	sorted := append([]longterm.MemoryItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	// Calculate max length per memory
	maxLen := 2000 / len(sorted)
	if maxLen < 100 {
		maxLen = 100
	}

	var lines []string
	for i, it := range sorted {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, it.Format(now, maxLen)))
	}
	return strings.Join(lines, "\n")
}
