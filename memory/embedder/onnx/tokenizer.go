package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token IDs shared by BERT-family vocabularies.
const (
	clsTokenID = 101
	sepTokenID = 102
	unkTokenID = 100
)

// Tokenizer handles BERT-style WordPiece tokenization.
type Tokenizer struct {
	vocab map[string]int
	lower bool
}

// LoadTokenizer reads the vocabulary from a Hugging Face tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer %s: %w", path, err)
	}

	var raw struct {
		Normalizer struct {
			Lowercase *bool `json:"lowercase"`
		} `json:"normalizer"`
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tokenizer %s: %w", path, err)
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocabulary", path)
	}

	lower := true
	if raw.Normalizer.Lowercase != nil {
		lower = *raw.Normalizer.Lowercase
	}
	return NewTokenizer(raw.Model.Vocab, lower), nil
}

// NewTokenizer builds a tokenizer over vocab.
func NewTokenizer(vocab map[string]int, lower bool) *Tokenizer {
	return &Tokenizer{vocab: vocab, lower: lower}
}

// Encode returns input IDs and attention mask padded to maxLen, with [CLS]
// and [SEP] around the truncated token sequence.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids[0], mask[0] = clsTokenID, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = sepTokenID, 1
	return ids, mask
}

// Tokenize converts text to token IDs. Punctuation becomes its own token,
// the way BERT's basic tokenizer splits it.
func (t *Tokenizer) Tokenize(text string) []int64 {
	if t.lower {
		text = strings.ToLower(text)
	}

	var tokens []int64
	for _, word := range splitWords(text) {
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, piece := range t.wordPiece(word) {
			if id, ok := t.vocab[piece]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, unkTokenID)
			}
		}
	}
	return tokens
}

func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPiece splits word greedily into the longest vocabulary prefixes.
// A word with an unmatchable remainder becomes a single [UNK].
func (t *Tokenizer) wordPiece(word string) []string {
	runes := []rune(word)
	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				found = sub
				break
			}
			end--
		}
		if found == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}
