package longterm

import (
	"math"
	"sort"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// CategoryDescription is the short profile line kept per category.
type CategoryDescription struct {
	Description string    `json:"description"`
	LastUpdated time.Time `json:"last_updated"`
	UpdateCount int       `json:"update_count"`
}

// Profile is a user's long-term memory.
type Profile struct {
	UserID       string                                `json:"user_id"`
	Items        []MemoryItem                          `json:"items"`
	Descriptions map[core.Category]CategoryDescription `json:"descriptions,omitempty"`

	TotalWordCount int `json:"total_word_count"`
	TotalProposed  int `json:"total_proposed"`
	TotalAccepted  int `json:"total_accepted"`
	TotalRejected  int `json:"total_rejected"`
	TotalMerged    int `json:"total_merged"`
	// AcceptedCount drives the every-Nth description refresh.
	AcceptedCount map[core.Category]int `json:"accepted_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newProfile(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:        userID,
		Descriptions:  make(map[core.Category]CategoryDescription),
		AcceptedCount: make(map[core.Category]int),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CategoryWords sums the word counts of a category's items.
func (p *Profile) CategoryWords(c core.Category) int {
	total := 0
	for _, it := range p.Items {
		if it.Category == c {
			total += it.WordCount
		}
	}
	return total
}

// ItemsIn returns the category's items in storage order.
func (p *Profile) ItemsIn(c core.Category) []MemoryItem {
	var out []MemoryItem
	for _, it := range p.Items {
		if it.Category == c {
			out = append(out, it)
		}
	}
	return out
}

func (p *Profile) index(id string) int {
	for i, it := range p.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (p *Profile) remove(id string) {
	if i := p.index(id); i >= 0 {
		p.Items = append(p.Items[:i], p.Items[i+1:]...)
	}
}

func (p *Profile) recount() {
	total := 0
	for _, it := range p.Items {
		total += it.WordCount
	}
	p.TotalWordCount = total
}

// evictionOrder lists a category's items lowest impact first, oldest first
// among equal impact.
func (p *Profile) evictionOrder(c core.Category, keep string) []MemoryItem {
	var items []MemoryItem
	for _, it := range p.Items {
		if it.Category == c && it.ID != keep {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ImpactScore != items[j].ImpactScore {
			return items[i].ImpactScore < items[j].ImpactScore
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// CategoryCount is one row of Stats.TopCategories.
type CategoryCount struct {
	Category core.Category `json:"category" yaml:"category"`
	Items    int           `json:"items" yaml:"items"`
	Words    int           `json:"words" yaml:"words"`
}

// Stats summarizes a profile.
type Stats struct {
	UserID         string          `json:"user_id" yaml:"user_id"`
	TotalItems     int             `json:"total_items" yaml:"total_items"`
	TotalWordCount int             `json:"total_word_count" yaml:"total_word_count"`
	GlobalBudget   int             `json:"global_budget" yaml:"global_budget"`
	PercentageUsed float64         `json:"percentage_used" yaml:"percentage_used"`
	TotalProposed  int             `json:"total_proposed" yaml:"total_proposed"`
	TotalAccepted  int             `json:"total_accepted" yaml:"total_accepted"`
	TotalRejected  int             `json:"total_rejected" yaml:"total_rejected"`
	TotalMerged    int             `json:"total_merged" yaml:"total_merged"`
	MeanImpact     float64         `json:"mean_impact" yaml:"mean_impact"`
	TopCategories  []CategoryCount `json:"top_categories" yaml:"top_categories"`
}

func (p *Profile) stats(globalBudget int) Stats {
	s := Stats{
		UserID:         p.UserID,
		TotalItems:     len(p.Items),
		TotalWordCount: p.TotalWordCount,
		GlobalBudget:   globalBudget,
		TotalProposed:  p.TotalProposed,
		TotalAccepted:  p.TotalAccepted,
		TotalRejected:  p.TotalRejected,
		TotalMerged:    p.TotalMerged,
	}
	if globalBudget > 0 {
		s.PercentageUsed = math.Round(float64(p.TotalWordCount)/float64(globalBudget)*1000) / 10
	}

	counts := make(map[core.Category]*CategoryCount)
	impact := 0.0
	for _, it := range p.Items {
		impact += it.ImpactScore
		c, ok := counts[it.Category]
		if !ok {
			c = &CategoryCount{Category: it.Category}
			counts[it.Category] = c
		}
		c.Items++
		c.Words += it.WordCount
	}
	if len(p.Items) > 0 {
		s.MeanImpact = math.Round(impact/float64(len(p.Items))*1000) / 1000
	}

	for _, cat := range core.AllCategories {
		if c, ok := counts[cat]; ok {
			s.TopCategories = append(s.TopCategories, *c)
		}
	}
	sort.SliceStable(s.TopCategories, func(i, j int) bool {
		return s.TopCategories[i].Items > s.TopCategories[j].Items
	})
	return s
}
