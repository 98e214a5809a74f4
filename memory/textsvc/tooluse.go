package textsvc

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/tools"
)

const systemPrompt = "Você é o componente de memória de um assistente financeiro brasileiro. " +
	"Responda sempre chamando a ferramenta indicada, em português, sem inventar fatos."

// call is one forced tool invocation against a language model.
type call struct {
	def    tools.Definition
	prompt string
}

func classifyCall(text string, candidates []core.Category) call {
	if len(candidates) == 0 {
		candidates = core.AllCategories
	}
	return call{
		def:    tools.ClassifyDefinition(candidates),
		prompt: "Classifique a mensagem:\n\n" + text,
	}
}

func compressCall(text string, maxWords int) call {
	return call{
		def:    tools.CompressDefinition(maxWords),
		prompt: fmt.Sprintf("Comprima em no máximo %d palavras:\n\n%s", maxWords, text),
	}
}

func summarizeCall(category core.Category, items []string, maxWords int) call {
	prompt := fmt.Sprintf("Categoria: %s\nFatos conhecidos:\n", category.Label())
	for _, item := range items {
		prompt += "- " + item + "\n"
	}
	return call{def: tools.SummarizeDefinition(maxWords), prompt: prompt}
}

func decodeClassify(raw []byte, candidates []core.Category) ([]core.CategoryScore, error) {
	var in tools.ClassifyInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode %s: %w", tools.ClassifyTool, err)
	}

	var out []core.CategoryScore
	seen := make(map[core.Category]bool)
	for _, c := range in.Categories {
		cat, ok := core.ParseCategory(c.Category)
		if !ok || seen[cat] || (len(candidates) > 0 && !contains(candidates, cat)) {
			continue
		}
		seen[cat] = true
		out = append(out, core.CategoryScore{
			Category: cat,
			Score:    math.Round(math.Max(0, math.Min(100, c.Score))*10) / 10,
			Reason:   c.Reason,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func decodeCompress(raw []byte) (string, error) {
	var in tools.CompressInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("decode %s: %w", tools.CompressTool, err)
	}
	return in.Text, nil
}

func decodeSummarize(raw []byte) (string, error) {
	var in tools.SummarizeInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("decode %s: %w", tools.SummarizeTool, err)
	}
	return in.Description, nil
}
