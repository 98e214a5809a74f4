package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, memory.DefaultConfig(), cfg.Memory)
	assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, config.DriverChromem, cfg.Vector.Driver)
	assert.Equal(t, config.ProviderHashing, cfg.Embedder.Provider)
	assert.Equal(t, config.ProviderLocal, cfg.Text.Provider)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
working:
  budget: 500
  session_timeout: 10m
episodic:
  ttl: 720h
longterm:
  merge_threshold: 0.9
storage:
  driver: sqlite
  sqlite_path: /tmp/memory.db
logger:
  level: debug
`)
	t.Setenv("NIM_MEMORY_WORKING_BUDGET", "650")
	t.Setenv("NIM_MEMORY_ENGINE_WORKERS", "2")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 650, cfg.Memory.WorkingBudget, "environment wins over the file")
	assert.Equal(t, 2, cfg.Memory.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Memory.SessionTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.Memory.EpisodicTTL)
	assert.InDelta(t, 0.9, cfg.Memory.MergeThreshold, 1e-9)
	assert.Equal(t, 500, cfg.Memory.EpisodicBudget)
	assert.Equal(t, config.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown storage", "storage:\n  driver: mongo\n"},
		{"sqlite without path", "storage:\n  driver: sqlite\n"},
		{"postgres without url", "storage:\n  driver: postgres\n"},
		{"postgres vectors without url", "vector:\n  driver: postgres\n"},
		{"unknown vector driver", "vector:\n  driver: faiss\n"},
		{"openai embedder without key", "embedder:\n  provider: openai\n"},
		{"onnx without model", "embedder:\n  provider: onnx\n"},
		{"anthropic without key", "text:\n  provider: anthropic\n"},
		{"unknown text provider", "text:\n  provider: gemini\n"},
		{"zero budget", "working:\n  budget: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestBuild_Local(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	e, err := config.Build(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Process(context.Background(), core.Interaction{
		ChatID:      "chat1",
		UserID:      "u1",
		UserMessage: "prefiro sempre investir em renda fixa, nunca em ações de alta volatilidade",
	})
	require.NoError(t, err)
	require.NotNil(t, out.LongTerm)
	assert.NotEmpty(t, out.LongTerm.Item.VectorRef, "item indexed in chromem")
}

func TestBuild_SQLiteLexical(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  driver: sqlite\n  sqlite_path: "+filepath.Join(dir, "memory.db")+"\nvector:\n  driver: lexical\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	e, err := config.Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, err = e.Process(context.Background(), core.Interaction{ChatID: "chat1", UserID: "u1", UserMessage: "tenho dois filhos pequenos"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// Documents survive a restart.
	e, err = config.Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer e.Close()
	rec, err := e.Episodic().Get(context.Background(), "chat1")
	require.NoError(t, err)
	assert.Len(t, rec.Content.Events, 1)
}

func TestBuild_RemoteTextServiceFallsBack(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
vector:
  driver: lexical
text:
  provider: openai
  api_key: test
  base_url: http://127.0.0.1:1
engine:
  external_timeout: 200ms
`))
	require.NoError(t, err)

	e, err := config.Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer e.Close()

	// The unreachable provider is replaced by the local fallback.
	out, err := e.Process(context.Background(), core.Interaction{ChatID: "c", UserID: "u", UserMessage: "obrigado pela ajuda"})
	require.NoError(t, err)
	assert.False(t, out.Refined)
	assert.NotNil(t, out.Episodic)
}
