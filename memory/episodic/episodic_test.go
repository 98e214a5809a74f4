package episodic_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/episodic"
	"github.com/becomeliminal/nim-memory/memory/narrative"
	"github.com/becomeliminal/nim-memory/memory/store/inmem"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T, opts ...episodic.Option) (*episodic.Store, *inmem.Store, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	docs := inmem.New()
	opts = append([]episodic.Option{episodic.WithClock(clk.Now)}, opts...)
	return episodic.New(docs, memory.DefaultConfig(), log.NewNop(), opts...), docs, clk
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("palavra ", n))
}

func events(n int, at time.Time) []narrative.Event {
	out := make([]narrative.Event, n)
	for i := range out {
		out[i] = narrative.Event{
			ID:         fmt.Sprintf("e%d", i),
			Intent:     fmt.Sprintf("intent_%d", i),
			UserAction: words(12),
			Category:   core.CategoryInvestments,
			Timestamp:  at.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestUpdate_CompressesWhenCrossingThreshold(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "chat1", "user1", episodic.Content{Summary: words(410)})
	require.NoError(t, err)
	require.Equal(t, 410, rec.WordCount)
	require.Zero(t, rec.CompressionCount)

	rec, err = s.Update(ctx, "chat1", episodic.Content{Topics: []string{"renda fixa"}})
	require.NoError(t, err)

	assert.LessOrEqual(t, rec.WordCount, 300)
	assert.Positive(t, rec.WordCount)
	assert.Equal(t, 1, rec.CompressionCount)
	assert.False(t, rec.LastCompressedAt.IsZero())

	stored, err := s.Get(ctx, "chat1")
	require.NoError(t, err)
	assert.Equal(t, rec.WordCount, stored.WordCount)
}

func TestUpdate_CompressesNarrativeFromEvents(t *testing.T) {
	s, _, clk := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "chat1", "user1", episodic.Content{Summary: "início"})
	require.NoError(t, err)

	evs := events(30, clk.Now())
	patch := episodic.Content{
		Events:    evs,
		Narrative: narrative.EventsToNarrative(evs, 750, clk.Now()),
	}
	require.GreaterOrEqual(t, patch.WordCount(), 400)

	rec, err := s.Update(ctx, "chat1", patch)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.WordCount, 300)
	assert.NotEmpty(t, rec.Content.Narrative)
	assert.Len(t, rec.Content.Events, 30)
	assert.Equal(t, "início", rec.Content.Summary)
}

func TestUpdate_BudgetExceededLeavesRecordUntouched(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "chat1", "user1", episodic.Content{Summary: "original"})
	require.NoError(t, err)

	_, err = s.Update(ctx, "chat1", episodic.Content{Summary: words(600)}, episodic.WithoutAutoCompress())
	assert.ErrorIs(t, err, memory.ErrBudgetExceeded)

	rec, err := s.Get(ctx, "chat1")
	require.NoError(t, err)
	assert.Equal(t, "original", rec.Content.Summary)
}

func TestUpdate_MergeSemantics(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "chat1", "user1", episodic.Content{
		Summary: "primeiro",
		Topics:  []string{"renda"},
		Values:  map[string]string{"renda": "R$5.000"},
		Extra:   map[string]any{"canal": "app"},
	})
	require.NoError(t, err)

	rec, err := s.Update(ctx, "chat1", episodic.Content{
		Topics: []string{"Renda", "metas"},
		Values: map[string]string{"renda": "R$8.000", "meta": "R$50.000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "primeiro", rec.Content.Summary)
	assert.Equal(t, []string{"renda", "metas"}, rec.Content.Topics)
	assert.Equal(t, map[string]string{"renda": "R$8.000", "meta": "R$50.000"}, rec.Content.Values)
	assert.Equal(t, "app", rec.Content.Extra["canal"])

	rec, err = s.Update(ctx, "chat1", episodic.Content{Summary: "substituído"}, episodic.WithoutMerge())
	require.NoError(t, err)
	assert.Equal(t, episodic.Content{Summary: "substituído"}, rec.Content)
}

func TestCreate_AndNotFound(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "chat1", "user1", episodic.Content{})
	require.NoError(t, err)
	_, err = s.Create(ctx, "chat1", "user1", episodic.Content{})
	assert.ErrorIs(t, err, memory.ErrAlreadyExists)

	_, err = s.Update(ctx, "missing", episodic.Content{Summary: "x"})
	assert.ErrorIs(t, err, memory.ErrNotFound)
	_, err = s.CompressMemory(ctx, "missing")
	assert.ErrorIs(t, err, memory.ErrNotFound)
	_, err = s.Archive(ctx, "missing", 1)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestExpiry(t *testing.T) {
	s, docs, clk := setup(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "chat1", "user1", episodic.Content{Summary: "meta de viagem"})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(30*24*time.Hour), rec.ExpiresAt)

	clk.Advance(31 * 24 * time.Hour)
	_, err = s.GetActive(ctx, "chat1")
	assert.ErrorIs(t, err, memory.ErrNotFound)
	_, err = s.Get(ctx, "chat1")
	assert.NoError(t, err, "soft-expired records stay readable")

	rec, err = s.Update(ctx, "chat1", episodic.Content{Topics: []string{"viagem"}})
	require.NoError(t, err)
	_, err = s.GetActive(ctx, "chat1")
	assert.NoError(t, err, "update revives the record")

	clk.Advance(91 * 24 * time.Hour)
	n, err := docs.PurgeExpired(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.Get(ctx, "chat1")
	assert.ErrorIs(t, err, memory.ErrNotFound)
	_ = rec
}

func TestArchive(t *testing.T) {
	s, _, clk := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "chat1", "user1", episodic.Content{Summary: "x"})
	require.NoError(t, err)

	rec, err := s.Archive(ctx, "chat1", 2)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(48*time.Hour), rec.ExpiresAt)
	assert.Equal(t, "x", rec.Content.Summary)

	_, err = s.Archive(ctx, "chat1", 0)
	require.NoError(t, err)
	_, err = s.GetActive(ctx, "chat1")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestCompressMemory_Manual(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "chat1", "user1", episodic.Content{Summary: words(350)})
	require.NoError(t, err)

	rec, err := s.CompressMemory(ctx, "chat1")
	require.NoError(t, err)
	assert.Equal(t, 300, rec.WordCount)
	assert.Equal(t, 1, rec.CompressionCount)
}

func TestUpsert(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	rec, err := s.Upsert(ctx, "chat1", "user1", episodic.Content{Topics: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "user1", rec.UserID)

	rec, err = s.Upsert(ctx, "chat1", "user1", episodic.Content{Topics: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rec.Content.Topics)
}

func TestUpsert_WithNarrativeStaysBelowThreshold(t *testing.T) {
	s, _, clk := setup(t)
	ctx := context.Background()

	var rec *episodic.Record
	for _, ev := range events(40, clk.Now()) {
		var err error
		rec, err = s.Upsert(ctx, "chat1", "user1", episodic.Content{Events: []narrative.Event{ev}}, episodic.WithNarrative())
		require.NoError(t, err)
		assert.Less(t, rec.WordCount, 400)
	}

	assert.NotEmpty(t, rec.Content.Narrative)
	assert.Len(t, rec.Content.Events, 40)
	assert.Zero(t, rec.CompressionCount)
}

type shortText struct{ fail bool }

func (s shortText) Classify(context.Context, string, []core.Category) ([]core.CategoryScore, error) {
	return nil, nil
}

func (s shortText) Compress(_ context.Context, text string, maxWords int) (string, error) {
	if s.fail {
		return "", errors.New("unavailable")
	}
	return "resumo curto", nil
}

func (s shortText) Summarize(context.Context, memory.SummaryRequest) (string, error) {
	return "", nil
}

func TestCompress_UsesTextServiceForSummary(t *testing.T) {
	s, _, _ := setup(t, episodic.WithTextService(shortText{}))
	ctx := context.Background()

	_, err := s.Create(ctx, "chat1", "user1", episodic.Content{Summary: words(420)})
	require.NoError(t, err)
	rec, err := s.Update(ctx, "chat1", episodic.Content{Topics: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "resumo curto", rec.Content.Summary)

	failing, _, _ := setup(t, episodic.WithTextService(shortText{fail: true}))
	_, err = failing.Create(ctx, "chat1", "user1", episodic.Content{Summary: words(420)})
	require.NoError(t, err)
	rec, err = failing.Update(ctx, "chat1", episodic.Content{Topics: []string{"x"}})
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.WordCount, 300)
}

func TestCompressEpisodicMemory_ReducesAndNeverEmpties(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evs := events(80, now.Add(-time.Hour))
	inputs := []episodic.Content{
		{Summary: words(900)},
		{Narrative: words(700)},
		{Events: evs, Narrative: narrative.EventsToNarrative(evs, 750, now), Decisions: []string{words(30), words(30), words(30), words(30), words(30), words(30)}},
		{Values: map[string]string{"a": words(200), "b": words(200)}, Extra: map[string]any{"n": words(100)}},
		{Topics: []string{words(150), words(150), words(150)}},
	}

	for i, in := range inputs {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			out := episodic.CompressEpisodicMemory(in, 300, 750, now)
			assert.LessOrEqual(t, out.WordCount(), in.WordCount())
			assert.LessOrEqual(t, out.WordCount(), 300)
			assert.Positive(t, out.WordCount())
		})
	}

	small := episodic.Content{Summary: "curto"}
	assert.Equal(t, small, episodic.CompressEpisodicMemory(small, 300, 750, now))
	assert.Equal(t, 0, budget.Count(episodic.CompressEpisodicMemory(episodic.Content{}, 300, 750, now)))
}

func TestCompressEpisodicMemory_KeepsPinnedEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evs := events(80, now.Add(-2*time.Hour))
	evs[0].Category = core.CategoryGoals
	in := episodic.Content{Events: evs, Narrative: words(400)}

	out := episodic.CompressEpisodicMemory(in, 300, 750, now)
	require.Len(t, out.Events, 60)
	assert.Equal(t, "e0", out.Events[0].ID)
}
