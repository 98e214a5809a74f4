package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/inmem"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()
	now := time.Now()

	require.NoError(t, s.Put(ctx, "episodic", "chat-2", []byte(`{"a":1}`), now.Add(time.Hour)))
	require.NoError(t, s.Put(ctx, "episodic", "chat-1", []byte(`{"a":2}`), now.Add(-time.Hour)))
	require.NoError(t, s.Put(ctx, "longterm", "user-1", []byte(`{}`), time.Time{}))

	ids, err := s.List(ctx, "episodic", "chat-")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat-1", "chat-2"}, ids)

	n, err := s.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "episodic", "chat-1")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	got, err := s.Get(ctx, "longterm", "user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	require.NoError(t, s.Delete(ctx, "longterm", "user-1"))
	require.NoError(t, s.Delete(ctx, "longterm", "missing"))

	require.NoError(t, s.Close())
	_, err = s.Get(ctx, "episodic", "chat-2")
	assert.ErrorIs(t, err, memory.ErrClosed)
}
