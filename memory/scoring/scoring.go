// Package scoring computes the 0-1 impact score that gates long-term admission.
//
// The score is a weighted sum of five factors, each in [0,1]:
//
//	recurrence    0.25  distinct conversations, access count, explicit mentions
//	structural    0.30  domain keyword density plus quantified financial values;
//	                    a domain term with a quantified value scores in full
//	durability    0.20  persistence markers, recurring periods and standing facts
//	                    (income, debt, goals) minus ephemeral markers, from a
//	                    neutral base
//	specificity   0.15  numbers, percentages, currency, dates, named instruments
//	actionability 0.10  action verbs plus planning or conditional language
//
// The scorer is deterministic and has no side effects. It never fails:
// malformed or empty input scores zero.
package scoring

import (
	"math"
	"regexp"
	"strings"

	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

// Factor weights.
const (
	WeightRecurrence    = 0.25
	WeightStructural    = 0.30
	WeightDurability    = 0.20
	WeightSpecificity   = 0.15
	WeightActionability = 0.10
)

// Admission thresholds.
const (
	MinForLongTerm = 0.7
	MinToKeep      = 0.5
)

// Context carries the bookkeeping that feeds the recurrence factor.
// Zero values mean "first sighting in the current conversation".
type Context struct {
	AccessCount  int
	SourceChats  int
	MentionCount int
}

// Breakdown is the score with its factors, for logs and the CLI.
type Breakdown struct {
	Score         float64 `json:"score" yaml:"score"`
	Recurrence    float64 `json:"recurrence" yaml:"recurrence"`
	Structural    float64 `json:"structural" yaml:"structural"`
	Durability    float64 `json:"durability" yaml:"durability"`
	Specificity   float64 `json:"specificity" yaml:"specificity"`
	Actionability float64 `json:"actionability" yaml:"actionability"`
}

// Scorer is the signature the curation pipeline depends on. A semantic
// scorer can be substituted; Deterministic is the fallback.
type Scorer interface {
	Score(content string, ctx Context) float64
}

// Deterministic is the rule-based Scorer.
type Deterministic struct{}

// Score implements Scorer.
func (Deterministic) Score(content string, ctx Context) float64 {
	return Score(content, ctx)
}

// Score returns the weighted impact score of content.
func Score(content string, ctx Context) float64 {
	return Explain(content, ctx).Score
}

// Explain returns the score together with every factor.
func Explain(content string, ctx Context) Breakdown {
	if strings.TrimSpace(content) == "" {
		return Breakdown{}
	}
	folded := textnorm.Fold(content)

	b := Breakdown{
		Recurrence:    recurrence(ctx),
		Structural:    structural(folded),
		Durability:    durability(folded),
		Specificity:   specificity(folded),
		Actionability: actionability(folded),
	}
	b.Score = round(clamp(
		WeightRecurrence*b.Recurrence +
			WeightStructural*b.Structural +
			WeightDurability*b.Durability +
			WeightSpecificity*b.Specificity +
			WeightActionability*b.Actionability,
	))
	return b
}

var (
	domainKeywords = []string{
		"objetivo", "objetivos", "meta", "metas", "estrategia", "planejamento",
		"divida", "dividas", "emprestimo", "financiamento", "parcela", "cartao de credito",
		"renda", "salario", "ganha", "ganho", "recebo", "receita",
		"ativo", "ativos", "patrimonio", "imovel", "apartamento", "casa propria", "carro",
		"reserva de emergencia", "reserva",
		"decisao", "decidi", "investir", "investimento", "investimentos", "aplicar",
		"renda fixa", "renda variavel", "acoes", "volatilidade", "risco",
		"aposentadoria", "previdencia", "poupanca", "orcamento", "gastos", "despesas",
	}
	persistenceMarkers = []string{
		"sempre", "nunca", "prefiro", "preferencia", "jamais", "todo mes", "todos os meses",
		"mensal", "mensalmente", "anual", "por mes", "ao mes", "por ano", "ao ano", "todo ano",
		"habito", "costumo", "de longo prazo",
	}
	// Facts about the user's standing situation hold until they say otherwise.
	standingFacts = []string{
		"ganha", "ganho", "recebo", "salario", "renda", "divida", "dividas", "financiamento",
		"emprestimo", "patrimonio", "aposentadoria", "objetivo", "meta", "sonho",
	}
	ephemeralMarkers = []string{
		"agora", "hoje", "temporariamente", "temporario", "por enquanto", "neste momento",
		"so hoje", "amanha", "esta semana", "momentaneamente",
	}
	vagueMarkers = []string{
		"talvez", "acho que", "algum", "alguma", "alguns", "mais ou menos", "sei la",
		"qualquer", "tipo assim", "coisa", "meio que",
	}
	instrumentTerms = []string{
		"renda fixa", "renda variavel", "acoes", "tesouro direto", "tesouro", "cdb", "lci", "lca",
		"fii", "fundos imobiliarios", "fundo", "cripto", "bitcoin", "etf", "debentures", "poupanca",
	}
	actionVerbs = []string{
		"investir", "comprar", "vender", "pagar", "quitar", "juntar", "economizar", "guardar",
		"aplicar", "poupar", "resgatar", "transferir", "cortar", "reduzir", "aumentar", "abrir",
		"contratar", "renegociar", "diversificar",
	}
	planningMarkers = []string{
		"quero", "vou", "pretendo", "planejo", "planejando", "prefiro", "preciso", "se", "caso",
		"ate", "daqui a", "no proximo", "na proxima", "assim que", "quando",
	}

	reNumber   = regexp.MustCompile(`\d`)
	reCurrency = regexp.MustCompile(`(?:r\$|us\$|\$|€|\breais\b|\bdolares\b|\beuros\b|\bmil\b)`)
	rePercent  = regexp.MustCompile(`\d+(?:[.,]\d+)?\s*(?:%|por cento)`)
	reDate     = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b|\b(?:19|20)\d{2}\b|\b(?:janeiro|fevereiro|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\b|\bem \d+ (?:anos?|meses|mes)\b`)
	reQuantity = regexp.MustCompile(`(?:r\$|us\$)\s*\d|\d+(?:[.,]\d+)*\s*(?:%|reais|mil|k\b)`)
	// "/mes", "em 3 anos", "ate 2030"
	rePeriod = regexp.MustCompile(`/\s*(?:mes|ano)\b|\bem \d+ (?:anos?|meses)\b|\bate (?:19|20)\d{2}\b`)
)

// recurrence treats the current proposal as one conversation and one mention.
func recurrence(ctx Context) float64 {
	chats := max(ctx.SourceChats, 1)
	mentions := max(ctx.MentionCount, 1)
	return clamp(0.4*ratio(chats, 2) + 0.2*ratio(ctx.AccessCount, 5) + 0.4*ratio(mentions, 2))
}

func structural(folded string) float64 {
	keywords := textnorm.CountTerms(folded, domainKeywords)
	quantified := reQuantity.MatchString(folded)
	if keywords > 0 && quantified {
		return 1
	}
	score := 0.35 * float64(keywords)
	if quantified {
		score += 0.4
	}
	return clamp(score)
}

func durability(folded string) float64 {
	score := 0.5
	score += 0.25 * float64(textnorm.CountTerms(folded, persistenceMarkers))
	if rePeriod.MatchString(folded) {
		score += 0.25
	}
	if textnorm.CountTerms(folded, standingFacts) > 0 {
		score += 0.5
	}
	score -= 0.25 * float64(textnorm.CountTerms(folded, ephemeralMarkers))
	return clamp(score)
}

func specificity(folded string) float64 {
	score := 0.0
	if reNumber.MatchString(folded) {
		score += 0.3
	}
	if reCurrency.MatchString(folded) {
		score += 0.25
	}
	if reQuantity.MatchString(folded) {
		score += 0.2
	}
	if rePercent.MatchString(folded) {
		score += 0.2
	}
	if reDate.MatchString(folded) {
		score += 0.15
	}
	score += math.Min(0.3, 0.15*float64(textnorm.CountTerms(folded, instrumentTerms)))
	score -= 0.15 * float64(textnorm.CountTerms(folded, vagueMarkers))
	return clamp(score)
}

func actionability(folded string) float64 {
	score := 0.0
	if textnorm.CountTerms(folded, actionVerbs) > 0 {
		score += 0.6
	}
	if textnorm.CountTerms(folded, planningMarkers) > 0 {
		score += 0.4
	}
	return clamp(score)
}

func ratio(n, full int) float64 {
	if n <= 0 || full <= 0 {
		return 0
	}
	return math.Min(1, float64(n)/float64(full))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
