package textnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "acoes de alta volatilidade", textnorm.Fold("Ações de Alta Volatilidade"))
	assert.Equal(t, "r$8.000/mes", textnorm.Fold("R$8.000/mês"))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"carlos", "ganha", "r", "8", "000", "mes"}, textnorm.Tokens("Carlos ganha R$8.000/mês"))
}

func TestContainsWord(t *testing.T) {
	folded := textnorm.Fold("prefiro sempre investir em renda fixa")
	assert.True(t, textnorm.ContainsWord(folded, "renda fixa"))
	assert.True(t, textnorm.ContainsWord(folded, "investir"))
	assert.False(t, textnorm.ContainsWord(folded, "invest"))
	assert.False(t, textnorm.ContainsWord(folded, "fixas"))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, textnorm.Jaccard("renda fixa", "Renda  Fixa"))
	assert.Equal(t, 0.0, textnorm.Jaccard("", ""))
	assert.InDelta(t, 1.0/3.0, textnorm.Jaccard("renda fixa", "renda variavel"), 1e-9)
}
