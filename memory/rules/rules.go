// Package rules holds the deterministic admission checks every memory write
// passes through. They run before scoring and short-circuit the pipeline:
// a forbidden match is a hard rejection regardless of score.
package rules

import (
	"regexp"
	"strings"

	"github.com/becomeliminal/nim-memory/core"
)

// Kinds of forbidden content.
const (
	KindCredential       = "credential"
	KindNationalID       = "national_id"
	KindPaymentCard      = "payment_card"
	KindSecurityCode     = "security_code"
	KindConnectionString = "connection_string"
)

// Finding is the result of ContainsForbiddenContent.
type Finding struct {
	Found bool
	Kind  string
}

type pattern struct {
	kind string
	re   *regexp.Regexp
}

// Order matters only for the reported kind; any match rejects.
var forbidden = []pattern{
	{KindConnectionString, regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp|mssql|sqlserver)://\S+`)},
	{KindConnectionString, regexp.MustCompile(`(?i)\b(?:server|data source|host)\s*=\s*[^;\s]+;\s*(?:database|initial catalog|user id|uid)\s*=`)},
	{KindCredential, regexp.MustCompile(`(?i)\b(?:senha|password|passwd|pwd|token|api[_-]?key|secret|segredo|chave de acesso|access[_-]?key)\b\s*[:=]\s*\S+`)},
	// "minha senha é hunter22": a spoken assignment needs a secret-looking value.
	{KindCredential, regexp.MustCompile(`(?i)\b(?:senha|password|pwd|token|segredo|chave de acesso)\s+(?:é|eh|is)\s+\S*[0-9!@#$%&*_]\S*`)},
	{KindCredential, regexp.MustCompile(`\b(?:sk|pk|rk)-[A-Za-z0-9_-]{16,}\b`)},
	{KindCredential, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{KindNationalID, regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`)},                   // CPF
	{KindNationalID, regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b`)},             // CNPJ
	{KindNationalID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},                           // SSN
	{KindNationalID, regexp.MustCompile(`(?i)\b(?:cpf|rg|cnpj)\b\s*(?:n[ºo°.]*\s*)?[:=]?\s*\d{7,14}\b`)},
	{KindSecurityCode, regexp.MustCompile(`(?i)\b(?:cvv|cvc|cvv2|c[oó]digo de seguran[cç]a|security code)\b\D{0,12}\d{3,4}\b`)},
	{KindPaymentCard, regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)},
}

// ContainsForbiddenContent reports whether text carries credentials, raw
// national IDs, card numbers, security codes or connection strings.
func ContainsForbiddenContent(text string) Finding {
	if strings.TrimSpace(text) == "" {
		return Finding{}
	}
	for _, p := range forbidden {
		if p.kind == KindPaymentCard {
			for _, m := range p.re.FindAllString(text, -1) {
				if looksLikeCard(m) {
					return Finding{Found: true, Kind: p.kind}
				}
			}
			continue
		}
		if p.re.MatchString(text) {
			return Finding{Found: true, Kind: p.kind}
		}
	}
	return Finding{}
}

// looksLikeCard requires 13-19 digits and a valid Luhn checksum, so long
// amounts or phone numbers are not flagged.
func looksLikeCard(s string) bool {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// Markers of content that describes itself as temporary or as internal
// reasoning. Such content never belongs in long-term memory.
var unsuitableLongTerm = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:tempor[aá]ri[oa]s?|temporariamente|provis[oó]ri[oa]|s[oó] por (?:hoje|agora)|apenas (?:hoje|agora)|rascunho)\b`),
	regexp.MustCompile(`(?i)\b(?:temporary|temporarily|scratch|draft|for now only)\b`),
	regexp.MustCompile(`(?i)\b(?:racioc[ií]nio interno|pensamento interno|chain of thought|internal reasoning|debug)\b`),
	regexp.MustCompile(`(?i)\b(?:thought|observation|action)\s*:`),
	regexp.MustCompile(`(?i)^\s*(?:calc_|tmp_|temp_|_)`),
}

// IsSuitableForTier reports whether text may be stored in tier.
// Empty text is never suitable. Temporary and internal-reasoning content is
// only rejected for long-term storage.
func IsSuitableForTier(text string, tier core.Tier) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if tier != core.TierLongTerm {
		return true
	}
	for _, re := range unsuitableLongTerm {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}
