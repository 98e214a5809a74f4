package textsvc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/textsvc"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ganha R$8.000 por mês", "Ganha por mês"},
		{"Prefere renda fixa e CDB de liquidez diária", "Prefere renda fixa e de liquidez diária"},
		{"Quer comprar um apartamento em março de 2027", "Quer comprar um apartamento"},
		{"Tem 8 mil reais guardados", "Tem guardados"},
		{"Aplica no Tesouro Direto e em PETR4", "Aplica"},
		{"Perfil conservador, prefere segurança", "Perfil conservador, prefere segurança"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, textsvc.Sanitize(tt.in))
		})
	}

	assert.True(t, textsvc.IsClean("Perfil conservador, prefere segurança"))
	assert.False(t, textsvc.IsClean("Tem 8 mil reais"))
}

func TestLocal_Classify(t *testing.T) {
	l := textsvc.NewLocal(nil)
	text := "quero juntar R$50.000 para comprar um apartamento em 3 anos"

	scores, err := l.Classify(context.Background(), text, nil)
	require.NoError(t, err)
	require.NotEmpty(t, scores)
	assert.Equal(t, core.CategoryGoals, scores[0].Category)

	only, err := l.Classify(context.Background(), text, []core.Category{core.CategoryFamilyContext})
	require.NoError(t, err)
	for _, s := range only {
		assert.Equal(t, core.CategoryFamilyContext, s.Category)
	}
}

func TestLocal_Compress(t *testing.T) {
	l := textsvc.NewLocal(nil)
	ctx := context.Background()
	text := "Oi, tudo bem com você hoje. Quero juntar R$50.000 para comprar um apartamento em 3 anos. Obrigado pela ajuda."

	out, err := l.Compress(ctx, text, 15)
	require.NoError(t, err)
	assert.Contains(t, out, "Quero juntar R$50.000 para comprar um apartamento em 3 anos.")
	assert.LessOrEqual(t, budget.Words(out), 15)

	out, err = l.Compress(ctx, "um dois três quatro cinco seis", 3)
	require.NoError(t, err)
	assert.Equal(t, "um dois três", out)

	out, err = l.Compress(ctx, "curto  demais", 10)
	require.NoError(t, err)
	assert.Equal(t, "curto demais", out)

	out, err = l.Compress(ctx, text, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLocal_Summarize(t *testing.T) {
	l := textsvc.NewLocal(nil)
	ctx := context.Background()

	out, err := l.Summarize(ctx, memory.SummaryRequest{
		Category: core.CategoryFinancialSituation,
		Items:    []string{"Ganha R$8.000 por mês.", "Trabalha como engenheiro", "ganha R$8.000 por mês"},
		MaxWords: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sobre situação financeira: Ganha por mês; Trabalha como engenheiro", out)

	out, err = l.Summarize(ctx, memory.SummaryRequest{Category: core.CategoryInvestments})
	require.NoError(t, err)
	assert.Equal(t, "Ainda sem detalhes relevantes sobre investimentos.", out)
}

type stubText struct {
	err      error
	delay    time.Duration
	compress string
	summary  string
	calls    int
}

func (s *stubText) Classify(ctx context.Context, _ string, _ []core.Category) ([]core.CategoryScore, error) {
	s.calls++
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return []core.CategoryScore{{Category: core.CategoryInvestments, Score: 91}}, nil
}

func (s *stubText) Compress(ctx context.Context, _ string, _ int) (string, error) {
	s.calls++
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.compress, nil
}

func (s *stubText) Summarize(ctx context.Context, _ memory.SummaryRequest) (string, error) {
	s.calls++
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.summary, nil
}

func (s *stubText) wait(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func TestResilient_UsesPrimaryWhenValid(t *testing.T) {
	stub := &stubText{compress: "texto curto", summary: "Investidor conservador que valoriza segurança"}
	r := textsvc.NewResilient("stub", stub, nil)
	ctx := context.Background()

	scores, err := r.Classify(ctx, "qualquer", nil)
	require.NoError(t, err)
	assert.Equal(t, core.CategoryInvestments, scores[0].Category)

	out, err := r.Compress(ctx, "um texto bem mais longo que o limite", 5)
	require.NoError(t, err)
	assert.Equal(t, "texto curto", out)

	desc, err := r.Summarize(ctx, memory.SummaryRequest{Category: core.CategoryRiskProfile, MaxWords: 25})
	require.NoError(t, err)
	assert.Equal(t, "Investidor conservador que valoriza segurança", desc)
}

func TestResilient_FallsBack(t *testing.T) {
	ctx := context.Background()
	text := "quero juntar R$50.000 para comprar um apartamento em 3 anos"

	t.Run("error", func(t *testing.T) {
		r := textsvc.NewResilient("stub", &stubText{err: errors.New("503")}, nil)
		scores, err := r.Classify(ctx, text, nil)
		require.NoError(t, err)
		assert.Equal(t, core.CategoryGoals, scores[0].Category)
	})

	t.Run("timeout", func(t *testing.T) {
		r := textsvc.NewResilient("stub", &stubText{delay: time.Second}, nil, textsvc.WithTimeout(10*time.Millisecond))
		out, err := r.Compress(ctx, text, 4)
		require.NoError(t, err)
		assert.Equal(t, "quero juntar R$50.000 para", out)
	})

	t.Run("word ceiling", func(t *testing.T) {
		r := textsvc.NewResilient("stub", &stubText{compress: strings.Repeat("palavra ", 10)}, nil)
		out, err := r.Compress(ctx, text, 4)
		require.NoError(t, err)
		assert.LessOrEqual(t, budget.Words(out), 4)
	})

	t.Run("unclean description", func(t *testing.T) {
		r := textsvc.NewResilient("stub", &stubText{summary: "Investe R$ 5.000 no Tesouro Direto"}, nil)
		desc, err := r.Summarize(ctx, memory.SummaryRequest{
			Category: core.CategoryInvestments,
			Items:    []string{"Investe em renda fixa"},
			MaxWords: 25,
		})
		require.NoError(t, err)
		assert.Equal(t, "Sobre investimentos: Investe em renda fixa", desc)
	})

	t.Run("rate limited", func(t *testing.T) {
		stub := &stubText{compress: "ok"}
		r := textsvc.NewResilient("stub", stub, nil, textsvc.WithRateLimit(0.001, 1))
		_, _ = r.Compress(ctx, text, 4)
		_, _ = r.Compress(ctx, text, 4)
		assert.Equal(t, 1, stub.calls)
	})
}

func TestAnthropic_ForcedToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5",
			"stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":5},
			"content":[{"type":"tool_use","id":"tu_1","name":"classify_categories",
				"input":{"categories":[
					{"category":"perfil_risco","score":120,"reason":"fala de risco"},
					{"category":"inexistente","score":50},
					{"category":"investimentos","score":70.25}
				]}}]}`))
	}))
	defer srv.Close()

	client := anthropic.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	svc := textsvc.NewAnthropic(client, "")

	scores, err := svc.Classify(context.Background(), "tenho medo de perder dinheiro", nil)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, core.CategoryRiskProfile, scores[0].Category)
	assert.Equal(t, 100.0, scores[0].Score)
	assert.Equal(t, 70.3, scores[1].Score)
}

func TestOpenAI_ForcedFunctionCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant",
				"tool_calls":[{"id":"call_1","type":"function","function":{
					"name":"compress_text","arguments":"{\"text\":\"renda de oito mil\"}"}}]}}]}`))
	}))
	defer srv.Close()

	svc, err := textsvc.NewOpenAI("test", srv.URL, "")
	require.NoError(t, err)

	out, err := svc.Compress(context.Background(), "Carlos tem uma renda mensal de oito mil reais", 5)
	require.NoError(t, err)
	assert.Equal(t, "renda de oito mil", out)

	_, err = textsvc.NewOpenAI("", "", "")
	assert.Error(t, err)
}
