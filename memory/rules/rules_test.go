package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/rules"
)

func TestContainsForbiddenContent(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind string
	}{
		{"password assignment", "minha senha: hunter22", rules.KindCredential},
		{"spoken password", "minha senha é hunter22", rules.KindCredential},
		{"english api key", "api_key=abc123def", rules.KindCredential},
		{"openai style key", "use sk-abcdefghijklmnopqrstuvwx", rules.KindCredential},
		{"cpf", "meu cpf é 123.456.789-09", rules.KindNationalID},
		{"cnpj", "empresa 12.345.678/0001-95", rules.KindNationalID},
		{"ssn", "ssn 123-45-6789", rules.KindNationalID},
		{"card with spaces", "cartão 4111 1111 1111 1111", rules.KindPaymentCard},
		{"card plain", "4111111111111111", rules.KindPaymentCard},
		{"cvv", "o cvv é 123", rules.KindSecurityCode},
		{"codigo de seguranca", "código de segurança 4567", rules.KindSecurityCode},
		{"postgres dsn", "postgres://admin:pw@db:5432/prod", rules.KindConnectionString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rules.ContainsForbiddenContent(tt.text)
			assert.True(t, got.Found)
			assert.Equal(t, tt.kind, got.Kind)
		})
	}
}

func TestContainsForbiddenContent_Clean(t *testing.T) {
	clean := []string{
		"",
		"Carlos ganha R$8.000/mês",
		"quero juntar R$50.000 para comprar um apartamento em 3 anos",
		"prefiro sempre investir em renda fixa, nunca em ações de alta volatilidade",
		"meu patrimônio é 1234567890123",
		"esqueci minha senha do app",
		"minha senha e meu cartão ficam comigo",
		"a senha é segura",
	}
	for _, text := range clean {
		assert.False(t, rules.ContainsForbiddenContent(text).Found, text)
	}
}

func TestIsSuitableForTier(t *testing.T) {
	assert.False(t, rules.IsSuitableForTier("   ", core.TierWorking))
	assert.True(t, rules.IsSuitableForTier("resultado temporário", core.TierWorking))
	assert.False(t, rules.IsSuitableForTier("resultado temporário do cálculo", core.TierLongTerm))
	assert.False(t, rules.IsSuitableForTier("Thought: preciso checar o saldo", core.TierLongTerm))
	assert.True(t, rules.IsSuitableForTier("prefiro renda fixa", core.TierLongTerm))
}
