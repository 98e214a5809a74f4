package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory/longterm"
	"github.com/becomeliminal/nim-memory/memory/narrative"
	"github.com/becomeliminal/nim-memory/memory/scoring"
)

const preference = "prefiro sempre investir em renda fixa, nunca em ações de alta volatilidade"

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.yaml")
	body := "storage:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "memory.db") + "\nvector:\n  driver: lexical\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestClassify(t *testing.T) {
	out := execute(t, "", "classify", "-o", "json", preference)

	var scores []core.CategoryScore
	require.NoError(t, json.Unmarshal([]byte(out), &scores))
	require.NotEmpty(t, scores)
	assert.Equal(t, core.CategoryRiskProfile, scores[0].Category)
}

func TestScore(t *testing.T) {
	out := execute(t, "", "score", preference)

	var b scoring.Breakdown
	require.NoError(t, yaml.Unmarshal([]byte(out), &b))
	assert.InDelta(t, 0.745, b.Score, 1e-9)
}

func TestExtract(t *testing.T) {
	out := execute(t, "", "extract", "-o", "json", "decidi investir R$ 5.000 no tesouro direto")

	var ev narrative.Event
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.NotEmpty(t, ev.Intent)
	assert.NotEmpty(t, ev.MentionedValues)
}

func TestNarrative(t *testing.T) {
	out := execute(t, "quero comprar um apartamento\n\nprefiro renda fixa\n", "narrative")
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestUnknownOutputFormat(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"classify", "-o", "xml", preference})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestRunStatsPurge(t *testing.T) {
	cfg := sqliteConfig(t)
	lines := []string{
		`{"session_id":"s1","chat_id":"c1","user_id":"u1","user_message":"` + preference + `","ai_response":"ok"}`,
		`{"session_id":"s1","chat_id":"c1","user_id":"u1","user_message":"trabalho como engenheiro numa empresa de energia"}`,
		`not json`,
		`{"chat_id":"c1","user_id":"u1"}`,
	}

	out := execute(t, strings.Join(lines, "\n"), "run", "-c", cfg)
	var report struct {
		Stats   engine.Stats `yaml:"stats"`
		Skipped int          `yaml:"skipped"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, uint64(2), report.Stats.Processed)
	assert.Equal(t, 2, report.Skipped)

	out = execute(t, "", "stats", "-c", cfg, "-o", "json", "u1")
	var stats longterm.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "u1", stats.UserID)
	assert.GreaterOrEqual(t, stats.TotalItems, 1)
	assert.Equal(t, 2, stats.TotalProposed)

	out = execute(t, "", "purge", "-c", cfg, "-o", "json")
	var res engine.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Zero(t, res.Purged)
}
