package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/memory/scoring"
)

func TestScore_DurablePreferenceIsAdmitted(t *testing.T) {
	content := "prefiro sempre investir em renda fixa, nunca em ações de alta volatilidade"

	b := scoring.Explain(content, scoring.Context{SourceChats: 1})

	assert.Equal(t, 1.0, b.Structural)
	assert.Equal(t, 1.0, b.Durability)
	assert.Equal(t, 1.0, b.Actionability)
	assert.InDelta(t, 0.3, b.Specificity, 1e-9)
	assert.InDelta(t, 0.4, b.Recurrence, 1e-9)
	assert.InDelta(t, 0.745, b.Score, 1e-9)
	assert.GreaterOrEqual(t, b.Score, scoring.MinForLongTerm)
}

func TestScore_QuantifiedFactsAreAdmitted(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"income per month", "Carlos ganha R$8.000/mês"},
		{"monthly income", "Carlos tem renda mensal de R$8.000"},
		{"goal with horizon", "quero juntar R$50.000 para comprar um apartamento em 3 anos"},
		{"debt", "tenho uma dívida de R$12.000 no cartão de crédito"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := scoring.Explain(tt.content, scoring.Context{SourceChats: 1})
			assert.Equal(t, 1.0, b.Structural)
			assert.GreaterOrEqual(t, b.Score, scoring.MinForLongTerm)
		})
	}
}

func TestScore_IncomeBreakdown(t *testing.T) {
	b := scoring.Explain("Carlos ganha R$8.000/mês", scoring.Context{})

	assert.InDelta(t, 0.4, b.Recurrence, 1e-9)
	assert.Equal(t, 1.0, b.Structural)
	assert.Equal(t, 1.0, b.Durability)
	assert.InDelta(t, 0.75, b.Specificity, 1e-9)
	assert.Zero(t, b.Actionability)
	assert.InDelta(t, 0.7125, b.Score, 0.001)
}

func TestScore_Empty(t *testing.T) {
	assert.Equal(t, 0.0, scoring.Score("", scoring.Context{}))
	assert.Equal(t, 0.0, scoring.Score("   ", scoring.Context{SourceChats: 3}))
}

func TestScore_SmallTalkStaysLow(t *testing.T) {
	score := scoring.Score("oi, tudo bem?", scoring.Context{})
	assert.Less(t, score, scoring.MinToKeep)
}

func TestScore_EphemeralLowersDurability(t *testing.T) {
	durable := scoring.Explain("sempre guardo 10% da renda", scoring.Context{})
	ephemeral := scoring.Explain("hoje guardo 10% da renda temporariamente", scoring.Context{})

	assert.Greater(t, durable.Durability, ephemeral.Durability)
	assert.Greater(t, durable.Score, ephemeral.Score)
}

func TestScore_VagueLanguagePenalizesSpecificity(t *testing.T) {
	precise := scoring.Explain("tenho R$20.000 no tesouro direto", scoring.Context{})
	vague := scoring.Explain("talvez eu tenha algum dinheiro no tesouro direto", scoring.Context{})

	assert.Greater(t, precise.Specificity, vague.Specificity)
}

func TestScore_RecurrenceGrowsWithHistory(t *testing.T) {
	content := "quero quitar o financiamento do carro"
	first := scoring.Score(content, scoring.Context{})
	repeated := scoring.Score(content, scoring.Context{SourceChats: 3, AccessCount: 5, MentionCount: 2})

	assert.Greater(t, repeated, first)
	assert.LessOrEqual(t, repeated, 1.0)
}

func TestDeterministic_ImplementsScorer(t *testing.T) {
	var s scoring.Scorer = scoring.Deterministic{}
	content := "pretendo aplicar 15% do salário todo mês"
	assert.Equal(t, s.Score(content, scoring.Context{}), s.Score(content, scoring.Context{}))
}
