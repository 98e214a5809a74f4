package textsvc

import (
	"regexp"
	"strings"

	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

// Category descriptions must not carry dates, exact amounts or named
// financial instruments.

var (
	reAmountToken = regexp.MustCompile(`^(?:r\$|us\$|\$|€)?\d[\d.,]*(?:k|mil)?%?$`)
	reDateToken   = regexp.MustCompile(`^\d{1,2}/\d{1,2}(?:/\d{2,4})?$`)
	reTicker      = regexp.MustCompile(`^[a-z]{4}\d{1,2}$`)

	currencyWords = map[string]bool{
		"r$": true, "us$": true, "$": true, "€": true,
		"reais": true, "real": true, "dolares": true, "euros": true, "mil": true, "milhoes": true,
	}
	monthWords = map[string]bool{
		"janeiro": true, "fevereiro": true, "marco": true, "abril": true, "maio": true, "junho": true,
		"julho": true, "agosto": true, "setembro": true, "outubro": true, "novembro": true, "dezembro": true,
	}
	// Multi-word names come first so they win over their prefixes.
	instrumentNames = [][]string{
		{"tesouro", "direto"}, {"tesouro", "selic"}, {"tesouro", "ipca"}, {"tesouro", "prefixado"},
		{"fundos", "imobiliarios"}, {"fundo", "imobiliario"},
		{"cdb"}, {"lci"}, {"lca"}, {"cri"}, {"cra"}, {"fii"}, {"fiis"}, {"etf"}, {"etfs"},
		{"debentures"}, {"bitcoin"}, {"ethereum"}, {"nubank"}, {"itau"}, {"bradesco"}, {"xp"},
		{"btg"}, {"inter"}, {"santander"}, {"caixa"}, {"ibovespa"}, {"selic"},
	}
	danglingWords = map[string]bool{
		"de": true, "em": true, "no": true, "na": true, "com": true, "por": true, "ate": true, "e": true, "a": true,
	}
)

type token struct {
	raw    string
	folded string
}

// Sanitize removes dates, monetary amounts and instrument names from text
// and tidies the spacing left behind.
func Sanitize(text string) string {
	fields := strings.Fields(text)
	toks := make([]token, len(fields))
	for i, f := range fields {
		toks[i] = token{raw: f, folded: strings.Trim(textnorm.Fold(f), ".,;:!?()\"'")}
	}

	var kept []string
	afterAmount := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if n := instrumentAt(toks, i); n > 0 {
			i += n - 1
			afterAmount = false
			continue
		}
		switch {
		case reAmountToken.MatchString(t.folded), reDateToken.MatchString(t.folded):
			afterAmount = true
			continue
		case currencyWords[t.folded] && (afterAmount || strings.HasSuffix(t.folded, "$") || t.folded == "€"):
			continue
		case monthWords[t.folded], reTicker.MatchString(t.folded):
			afterAmount = true
			continue
		}
		afterAmount = false
		kept = append(kept, t.raw)
	}

	for len(kept) > 0 && danglingWords[strings.Trim(textnorm.Fold(kept[len(kept)-1]), ".,;:")] {
		kept = kept[:len(kept)-1]
	}
	out := strings.Join(kept, " ")
	return strings.TrimRight(out, ",;:")
}

// IsClean reports whether Sanitize would leave text unchanged.
func IsClean(text string) bool {
	return Sanitize(text) == strings.Join(strings.Fields(text), " ")
}

func instrumentAt(toks []token, i int) int {
	for _, name := range instrumentNames {
		if i+len(name) > len(toks) {
			continue
		}
		match := true
		for j, w := range name {
			if toks[i+j].folded != w {
				match = false
				break
			}
		}
		if match {
			return len(name)
		}
	}
	return 0
}
