package hashing_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/embedder/hashing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedder_Deterministic(t *testing.T) {
	e := hashing.New(0)
	assert.Equal(t, hashing.DefaultDimensions, e.Dimensions())

	a, err := e.Embed(context.Background(), "Quero investir em renda fixa")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "quero INVESTIR em renda fixa!")
	require.NoError(t, err)

	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := hashing.New(256)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "tenho perfil de risco moderado")
	near, _ := e.Embed(ctx, "meu perfil de risco é moderado")
	far, _ := e.Embed(ctx, "minha filha nasceu em março")

	assert.Greater(t, cosine(base, near), cosine(base, far))
}

func TestEmbedder_EmptyText(t *testing.T) {
	vec, err := hashing.New(8).Embed(context.Background(), "  ...  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)
}

func TestEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hashing.New(8).Embed(ctx, "oi")
	assert.ErrorIs(t, err, context.Canceled)
}
