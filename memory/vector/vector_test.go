package vector_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/hashing"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/vector"
)

type countingEmbedder struct {
	inner memory.Embedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func (failingEmbedder) Dimensions() int { return 384 }

func newService(t *testing.T, e memory.Embedder) *vector.Service {
	t.Helper()
	svc, err := vector.New(e, chromem.New(log.NewNop()), 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestService_EmbedIsCached(t *testing.T) {
	e := &countingEmbedder{inner: hashing.New(64)}
	svc := newService(t, e)

	a, err := svc.Embed(context.Background(), "reserva de emergência")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "reserva de emergência")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), e.calls.Load())
}

func TestService_RankUsesIndex(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, hashing.New(256))

	candidates := []vector.Candidate{
		{ID: "1", Text: "prefere investir em renda fixa"},
		{ID: "2", Text: "tem dois filhos pequenos"},
	}
	for _, c := range candidates {
		require.NoError(t, svc.Index(ctx, "user1", c.ID, c.Text, map[string]string{"category": "perfil_risco"}))
	}

	matches := svc.Rank(ctx, "user1", "prefere investir em renda fixa sempre", candidates, map[string]string{"category": "perfil_risco"})
	require.Len(t, matches, 2)
	assert.Equal(t, "1", matches[0].ID)
	assert.False(t, matches[0].Lexical)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	res, err := svc.QueryText(ctx, "user1", "filhos", 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "2", res[0].ID)

	require.NoError(t, svc.Remove(ctx, "user1", "2"))
	require.NoError(t, svc.RemoveNamespace(ctx, "user1"))
}

func TestService_RankFallsBackToLexical(t *testing.T) {
	svc := newService(t, failingEmbedder{})

	_, err := svc.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, memory.ErrExternalService)

	matches := svc.Rank(context.Background(), "user1", "renda mensal de 8000", []vector.Candidate{
		{ID: "a", Text: "tem dois filhos"},
		{ID: "b", Text: "renda mensal de 8000 reais"},
	}, nil)
	require.Len(t, matches, 2)
	assert.Equal(t, "b", matches[0].ID)
	assert.True(t, matches[0].Lexical)
	assert.InDelta(t, 0.8, matches[0].Score, 1e-9)
	assert.Zero(t, matches[1].Score)
}

func TestService_RankEmpty(t *testing.T) {
	svc := newService(t, hashing.New(8))
	assert.Nil(t, svc.Rank(context.Background(), "u", "x", nil, nil))
}
