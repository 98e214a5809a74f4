// Package narrative reduces interactions to structured events and folds a
// conversation's events into one bounded narrative.
package narrative

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Intents, in matching priority order.
const (
	IntentRestriction  = "restricao"
	IntentPayDebt      = "quitar_divida"
	IntentInvest       = "investir"
	IntentSetGoal      = "definir_meta"
	IntentSave         = "economizar"
	IntentRiskProfile  = "perfil_risco"
	IntentReportIncome = "informar_renda"
	IntentSpending     = "analisar_gastos"
	IntentBalance      = "consultar_saldo"
	IntentLearn        = "aprender"
	IntentChat         = "conversa"
)

// Event is the structured reduction of one interaction.
type Event struct {
	ID              string            `json:"id" yaml:"id"`
	Intent          string            `json:"intent" yaml:"intent"`
	UserAction      string            `json:"user_action" yaml:"user_action"`
	MentionedValues map[string]string `json:"mentioned_values,omitempty" yaml:"mentioned_values,omitempty"`
	Decision        string            `json:"decision,omitempty" yaml:"decision,omitempty"`
	ConfidenceLevel string            `json:"confidence_level" yaml:"confidence_level"`
	Timestamp       time.Time         `json:"timestamp" yaml:"timestamp"`
	Category        core.Category     `json:"category" yaml:"category"`
}

// Pinned reports whether the event survives pruning regardless of priority.
func (e Event) Pinned() bool {
	return e.Category.Pinned()
}

type intentMatcher struct {
	intent   string
	category core.Category
	re       *regexp.Regexp
}

// Matchers run over folded text; the first hit wins.
var intentMatchers = []intentMatcher{
	{IntentRestriction, core.CategoryRestrictions, regexp.MustCompile(`\b(?:nao posso|nao quero|nao aceito|evito|nunca|jamais|sem)\b.{0,30}\b(?:investir|gastar|usar|cripto\w*|acoes|emprestimo|cartao|financiar|arriscar)`)},
	{IntentPayDebt, core.CategoryFinancialSituation, regexp.MustCompile(`\b(?:quero|vou|preciso|pretendo|devo)\b.{0,20}\b(?:quitar|pagar|renegociar|liquidar)\b.{0,30}\b(?:divida\w*|emprestimo|financiamento|cartao|fatura|parcela\w*)`)},
	{IntentInvest, core.CategoryInvestments, regexp.MustCompile(`\b(?:quero|vou|pretendo|planejo|penso em|devo|posso|gostaria de)\b.{0,20}\b(?:invest\w*|aplicar)`)},
	{IntentSetGoal, core.CategoryGoals, regexp.MustCompile(`\b(?:quero|pretendo|meu objetivo|minha meta|sonho|planejo)\b.{0,40}\b(?:juntar|comprar|guardar|conquistar|viajar|trocar)`)},
	{IntentSave, core.CategorySpendingBehavior, regexp.MustCompile(`\b(?:economizar|poupar|cortar gastos|reduzir gastos|guardar dinheiro|gastar menos)`)},
	{IntentRiskProfile, core.CategoryRiskProfile, regexp.MustCompile(`\b(?:conservador|moderado|arrojado|agressivo|risco|volatil\w*)`)},
	{IntentReportIncome, core.CategoryFinancialSituation, regexp.MustCompile(`\b(?:ganho|ganha|recebo|salario|renda)\b`)},
	{IntentSpending, core.CategorySpendingBehavior, regexp.MustCompile(`\b(?:gastos?|despesas?|gastei|gastando)\b`)},
	{IntentBalance, core.CategoryFinancialSituation, regexp.MustCompile(`\b(?:saldo|extrato|quanto (?:tenho|sobrou))`)},
	{IntentLearn, core.CategoryFinancialLiteracy, regexp.MustCompile(`\b(?:o que (?:e|sao)|como funciona|explica\w*|entender|aprender)\b`)},
}

var (
	reGreeting = regexp.MustCompile(`(?i)^(?:\s*(?:oi|ol[aá]|e a[ií]|bom dia|boa tarde|boa noite|tudo bem|tudo bom|por favor|obrigad[oa]|valeu|opa|hey|ei)(?:[\s,!.?]+|$))+`)
	reCourtesy = regexp.MustCompile(`(?i)\b(?:por favor|por gentileza|obrigad[oa]|valeu)\b[,!.]*`)
	reDecision = regexp.MustCompile(`(?i)\b(?:vou|decidi|resolvi|vamos|fechado|combinado|optei por|escolhi|farei|pode fazer)\b[^.!?\n]{0,80}`)
	reCurrency = regexp.MustCompile(`(?i)(?:R\$|US\$|€)\s*\d[\d.,]*(?:\s*(?:mil|milh[oõ]es|k)\b)?|\b\d[\d.,]*\s*(?:mil\s+)?reais\b`)
	rePercent  = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(?:%|por cento)`)
	reDigit    = regexp.MustCompile(`\d`)
)

var actionVerbs = map[string]bool{
	"quero": true, "vou": true, "preciso": true, "pretendo": true, "planejo": true, "gostaria": true,
	"investir": true, "aplicar": true, "comprar": true, "vender": true, "pagar": true, "quitar": true,
	"juntar": true, "guardar": true, "economizar": true, "poupar": true, "transferir": true,
	"gastei": true, "gasto": true, "ganho": true, "recebo": true, "tenho": true, "sou": true,
	"prefiro": true, "decidi": true, "resolvi": true, "renegociar": true, "cortar": true, "reduzir": true,
	"ver": true, "saber": true, "entender": true, "aprender": true, "mostrar": true, "mostre": true, "analisar": true,
}

// value labels, checked against the text preceding an amount.
var valueLabels = []struct {
	label string
	terms []string
}{
	{"divida", []string{"divida", "devo", "emprestimo", "financiamento", "fatura", "parcela"}},
	{"renda", []string{"ganho", "ganha", "recebo", "salario", "renda"}},
	{"investimento", []string{"investir", "invest", "aplicar", "aplicado", "aplicacao", "tesouro", "cdb"}},
	{"meta", []string{"juntar", "meta", "objetivo", "guardar"}},
	{"despesa", []string{"gasto", "gastei", "despesa", "conta", "pago", "custa", "aluguel"}},
	{"patrimonio", []string{"patrimonio", "reserva", "tenho guardado", "economias"}},
	{"taxa", []string{"juros", "taxa", "rende", "rendimento", "cdi", "selic"}},
}

var (
	possessives  = []string{"meu", "minha", "meus", "minhas", "nosso", "nossa"}
	confirmation = []string{"sim", "confirmo", "isso mesmo", "exato", "com certeza", "fechado", "combinado", "decidi", "certeza"}
	hedges       = []string{"talvez", "acho", "nao sei", "quem sabe", "possivelmente", "sei la", "pode ser"}
	interrogs    = []string{"como", "quanto", "qual", "quais", "quando", "onde", "por que", "sera", "o que"}
)

// Extractor turns interactions into events. The zero value is usable.
type Extractor struct{}

// Extract reduces a user message to an Event. hint is the classifier's top
// category; it is used when the intent itself does not imply one.
func (Extractor) Extract(userMessage string, ts time.Time, hint core.Category) Event {
	folded := textnorm.Fold(userMessage)

	intent, category := IntentChat, core.CategoryGeneral
	for _, m := range intentMatchers {
		if m.re.MatchString(folded) {
			intent, category = m.intent, m.category
			break
		}
	}
	if category == core.CategoryGeneral && hint.Valid() {
		category = hint
	}

	return Event{
		ID:              uuid.NewString(),
		Intent:          intent,
		UserAction:      UserAction(userMessage),
		MentionedValues: MentionedValues(userMessage),
		Decision:        Decision(userMessage),
		ConfidenceLevel: Confidence(userMessage),
		Timestamp:       ts,
		Category:        category,
	}
}

// UserAction strips greetings and courtesy phrases and keeps the span that
// starts at the first action verb, at most 10 words.
func UserAction(text string) string {
	cleaned := reGreeting.ReplaceAllString(text, "")
	cleaned = reCourtesy.ReplaceAllString(cleaned, "")
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}

	start := 0
	for i, tok := range tokens {
		if actionVerbs[strings.Trim(textnorm.Fold(tok), ",.!?;:")] {
			start = i
			break
		}
	}
	end := min(start+10, len(tokens))
	span := strings.Join(tokens[start:end], " ")
	return strings.TrimRight(span, ",.!?;: ")
}

// MentionedValues extracts currency and percentage amounts keyed by a
// semantic label. Repeated labels get a numeric suffix.
func MentionedValues(text string) map[string]string {
	var out map[string]string
	add := func(label, value string) {
		if out == nil {
			out = make(map[string]string)
		}
		key := label
		for n := 2; ; n++ {
			if _, taken := out[key]; !taken {
				break
			}
			key = fmt.Sprintf("%s_%d", label, n)
		}
		out[key] = strings.TrimRight(strings.TrimSpace(value), ".,")
	}

	for _, loc := range reCurrency.FindAllStringIndex(text, -1) {
		add(labelFor(text[:loc[0]], "valor"), text[loc[0]:loc[1]])
	}
	for _, loc := range rePercent.FindAllStringIndex(text, -1) {
		add(labelFor(text[:loc[0]], "taxa"), text[loc[0]:loc[1]])
	}
	return out
}

func labelFor(before, fallback string) string {
	window := textnorm.Fold(before)
	if len(window) > 40 {
		window = window[len(window)-40:]
	}
	best, bestPos := fallback, -1
	for _, l := range valueLabels {
		for _, term := range l.terms {
			if pos := strings.LastIndex(window, term); pos > bestPos {
				best, bestPos = l.label, pos
			}
		}
	}
	return best
}

// Decision returns the first first-person commitment clause, or "".
func Decision(text string) string {
	m := reDecision.FindString(text)
	return strings.TrimSpace(m)
}

// Confidence scores how reliable the statement is:
// +2 digits, +2 first-person possessive, +2 explicit currency,
// +3 confirmation word, -2 hedge, -1 very short, -1 question.
func Confidence(text string) string {
	folded := textnorm.Fold(text)
	points := 0
	if reDigit.MatchString(folded) {
		points += 2
	}
	if textnorm.CountTerms(folded, possessives) > 0 {
		points += 2
	}
	if reCurrency.MatchString(text) {
		points += 2
	}
	if textnorm.CountTerms(folded, confirmation) > 0 {
		points += 3
	}
	if textnorm.CountTerms(folded, hedges) > 0 {
		points -= 2
	}
	if len(strings.Fields(folded)) < 4 {
		points--
	}
	if isQuestion(folded) {
		points--
	}

	switch {
	case points >= 4:
		return ConfidenceHigh
	case points >= 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func isQuestion(folded string) bool {
	trimmed := strings.TrimSpace(folded)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	for _, w := range interrogs {
		if strings.HasPrefix(trimmed, w+" ") {
			return true
		}
	}
	return false
}

// Line renders the event as one narrative line.
func (e Event) Line() string {
	var b strings.Builder
	if !e.Timestamp.IsZero() {
		b.WriteString(e.Timestamp.Format("[02/01] "))
	}
	b.WriteString(strings.ReplaceAll(e.Intent, "_", " "))
	if e.Category != "" && e.Category != core.CategoryGeneral {
		fmt.Fprintf(&b, " (%s)", e.Category.Label())
	}
	if e.UserAction != "" {
		b.WriteString(": ")
		b.WriteString(e.UserAction)
	}
	if len(e.MentionedValues) > 0 {
		keys := make([]string, 0, len(e.MentionedValues))
		for k := range e.MentionedValues {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + strings.ReplaceAll(e.MentionedValues[k], " ", "")
		}
		b.WriteString(" | valores: ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if e.Decision != "" {
		b.WriteString(" | decisão: ")
		b.WriteString(e.Decision)
	}
	return b.String()
}
