package budget_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/memory/budget"
)

type fixed int

func (f fixed) WordCount() int { return int(f) }

func TestCount(t *testing.T) {
	type nested struct {
		Title   string
		Amounts []float64
		When    time.Time
		hidden  string
	}

	tests := []struct {
		name    string
		content any
		want    int
	}{
		{"nil", nil, 0},
		{"empty string", "", 0},
		{"whitespace only", "   \n\t ", 0},
		{"sentence", "prefiro sempre investir em renda fixa", 6},
		{"number", 1500, 1},
		{"float", 3.5, 1},
		{"bool", true, 1},
		{"slice", []any{"um dois", 3, nil}, 3},
		{"map counts values only", map[string]any{"long key name": "a b", "n": 2}, 3},
		{"nested map", map[string]any{"outer": map[string]any{"inner": "x y z"}}, 3},
		{"struct exported fields", nested{Title: "meta anual", Amounts: []float64{1, 2}, When: time.Now(), hidden: "ignored words"}, 5},
		{"nil pointer", (*nested)(nil), 0},
		{"counter", fixed(42), 42},
		{"raw json", json.RawMessage(`{"a":"b c","d":[1,2]}`), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, budget.Count(tt.content))
		})
	}
}

func TestIsNearLimit(t *testing.T) {
	assert.True(t, budget.IsNearLimit(400, 500, 0.8))
	assert.False(t, budget.IsNearLimit(399, 500, 0.8))
	assert.True(t, budget.IsNearLimit(560, 700, 0))
	assert.False(t, budget.IsNearLimit(0, 0, 0.8))
}

func TestPercentageAndRemaining(t *testing.T) {
	assert.Equal(t, 82.0, budget.PercentageUsed(410, 500))
	assert.Equal(t, 0.0, budget.PercentageUsed(10, 0))
	assert.Equal(t, 2, budget.Remaining(698, 700))
	assert.Equal(t, 0, budget.Remaining(800, 700))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", budget.Truncate("a  b c d", 2))
	assert.Equal(t, "a b", budget.Truncate(" a b ", 5))
	assert.Equal(t, "", budget.Truncate("a b", 0))
}
