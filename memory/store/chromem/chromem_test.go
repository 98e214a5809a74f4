package chromem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
)

func TestIndex_UpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	idx := chromem.New(log.NewNop())

	require.NoError(t, idx.Upsert(ctx, "user1", "a", []float32{1, 0, 0}, map[string]string{"category": "investimentos"}))
	require.NoError(t, idx.Upsert(ctx, "user1", "b", []float32{0.9, 0.1, 0}, map[string]string{"category": "perfil_risco"}))
	require.NoError(t, idx.Upsert(ctx, "user1", "c", []float32{0, 1, 0}, map[string]string{"category": "investimentos"}))

	matches, err := idx.Query(ctx, "user1", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)

	filtered, err := idx.Query(ctx, "user1", []float32{1, 0, 0}, 10, map[string]string{"category": "investimentos"})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].ID)
	assert.Equal(t, "c", filtered[1].ID)

	// Upsert replaces.
	require.NoError(t, idx.Upsert(ctx, "user1", "a", []float32{0, 0, 1}, map[string]string{"category": "investimentos"}))
	matches, err = idx.Query(ctx, "user1", []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", matches[0].ID)

	require.NoError(t, idx.Delete(ctx, "user1", "b"))
	matches, err = idx.Query(ctx, "user1", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestIndex_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	idx := chromem.New(log.NewNop())

	require.NoError(t, idx.Upsert(ctx, "user1", "a", []float32{1, 0}, nil))

	matches, err := idx.Query(ctx, "user2", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, idx.DeleteNamespace(ctx, "user1"))
	matches, err = idx.Query(ctx, "user1", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	assert.NoError(t, idx.Delete(ctx, "unknown", "x"))
	assert.Error(t, idx.Upsert(ctx, "user1", "empty", nil, nil))
}
