package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/sqlite"
)

func openStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "memory.db")
	s, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	return s, path
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	defer s.Close()
	now := time.Now()

	require.NoError(t, s.Put(ctx, "episodic", "chat-2", []byte(`{"a":1}`), now.Add(time.Hour)))
	require.NoError(t, s.Put(ctx, "episodic", "chat-1", []byte(`{"a":2}`), now.Add(-time.Hour)))
	require.NoError(t, s.Put(ctx, "episodic", "other", []byte(`{}`), time.Time{}))
	require.NoError(t, s.Put(ctx, "longterm", "user-1", []byte(`{}`), time.Time{}))

	ids, err := s.List(ctx, "episodic", "chat-")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat-1", "chat-2"}, ids)

	all, err := s.List(ctx, "episodic", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := s.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "episodic", "chat-1")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	require.NoError(t, s.Put(ctx, "episodic", "chat-2", []byte(`{"a":3}`), now.Add(time.Hour)))
	got, err := s.Get(ctx, "episodic", "chat-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":3}`, string(got))

	require.NoError(t, s.Delete(ctx, "longterm", "user-1"))
	require.NoError(t, s.Delete(ctx, "longterm", "missing"))
	_, err = s.Get(ctx, "longterm", "user-1")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)
	require.NoError(t, s.Put(ctx, "longterm", "user-1", []byte(`{"items":[]}`), time.Time{}))
	require.NoError(t, s.Close())

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "longterm", "user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(got))
}
