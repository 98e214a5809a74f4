package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/classify"
)

func TestDetectCategories_GoalWithAmountAndHorizon(t *testing.T) {
	c := classify.New()

	got := c.DetectCategories("quero juntar R$50.000 para comprar um apartamento em 3 anos", classify.Context{})

	require.NotEmpty(t, got)
	assert.Equal(t, core.CategoryGoals, got[0].Category)
	assert.GreaterOrEqual(t, got[0].Score, 60.0)
	assert.Contains(t, got[0].Reason, "juntar")
	for _, s := range got {
		assert.GreaterOrEqual(t, s.Score, classify.DefaultFloor)
	}
}

func TestDetectCategories_Table(t *testing.T) {
	tests := []struct {
		text string
		want core.Category
	}{
		{"prefiro sempre investir em renda fixa, nunca em ações de alta volatilidade", core.CategoryRiskProfile},
		{"Carlos ganha R$8.000/mês", core.CategoryFinancialSituation},
		{"gastei muito com delivery esse mês", core.CategorySpendingBehavior},
		{"tenho dois filhos e minha esposa não trabalha", core.CategoryFamilyContext},
		{"quero me aposentar aos 55 anos com previdência privada", core.CategoryFuturePlanning},
		{"o que é CDI e como funciona?", core.CategoryFinancialLiteracy},
		{"trabalho como engenheiro numa empresa de energia", core.CategoryProfessionalProfile},
		{"me avise pelo app quando a fatura fechar", core.CategoryPlatformRelationship},
		{"quero investir R$1.000 em CDB", core.CategoryInvestments},
	}

	c := classify.New()
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			got := c.DetectCategories(tt.text, classify.Context{})
			require.NotEmpty(t, got, tt.text)
			assert.Equal(t, tt.want, got[0].Category, "%s -> %+v", tt.text, got)
		})
	}
}

func TestDetectCategories_TopNAndFloor(t *testing.T) {
	c := classify.New(classify.WithTopN(1))
	got := c.DetectCategories("prefiro sempre investir em renda fixa, nunca em ações de alta volatilidade", classify.Context{})
	assert.Len(t, got, 1)

	assert.Empty(t, classify.New().DetectCategories("renda fixa", classify.Context{}))
	assert.Empty(t, classify.New().DetectCategories("", classify.Context{}))
	assert.Empty(t, classify.New().DetectCategories("obrigado!", classify.Context{}))
}

func TestRank_ActiveCategoryBoostsAndWinsTies(t *testing.T) {
	c := classify.New()

	plain := c.Rank("renda fixa", classify.Context{})
	require.NotEmpty(t, plain)
	assert.Equal(t, core.CategoryFinancialSituation, plain[0].Category)

	boosted := c.Rank("renda fixa", classify.Context{ActiveCategories: []core.Category{core.CategoryInvestments}})
	assert.Equal(t, core.CategoryInvestments, boosted[0].Category)

	// All zero: the active category still ranks first.
	zero := c.Rank("obrigado", classify.Context{ActiveCategories: []core.Category{core.CategoryRiskProfile}})
	require.Len(t, zero, len(core.AllCategories))
	assert.Equal(t, core.CategoryRiskProfile, zero[0].Category)
	assert.Equal(t, 0.0, zero[0].Score)
}

func TestRank_CacheReturnsCopies(t *testing.T) {
	c := classify.New(classify.WithCacheSize(4))
	text := "quero juntar R$50.000 para comprar um apartamento em 3 anos"

	first := c.Rank(text, classify.Context{})
	first[0].Score = -1

	second := c.Rank(text, classify.Context{})
	assert.Equal(t, 100.0, second[0].Score)
}
