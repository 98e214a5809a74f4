package tools

import (
	"fmt"

	"github.com/becomeliminal/nim-memory/core"
)

// Tool names used to force structured output from a language model.
const (
	ClassifyTool  = "classify_categories"
	CompressTool  = "compress_text"
	SummarizeTool = "summarize_category"
)

// Definition describes a tool offered to a language model.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ClassifyInput is the decoded input of ClassifyTool.
type ClassifyInput struct {
	Categories []struct {
		Category string  `json:"category"`
		Score    float64 `json:"score"`
		Reason   string  `json:"reason"`
	} `json:"categories"`
}

// CompressInput is the decoded input of CompressTool.
type CompressInput struct {
	Text string `json:"text"`
}

// SummarizeInput is the decoded input of SummarizeTool.
type SummarizeInput struct {
	Description string `json:"description"`
}

// ClassifyDefinition restricts the answer to candidates.
func ClassifyDefinition(candidates []core.Category) Definition {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = string(c)
	}
	return Definition{
		Name: ClassifyTool,
		Description: "Classifica a mensagem do usuário nas categorias de memória financeira. " +
			"Retorne somente categorias claramente presentes, com nota de 0 a 100.",
		InputSchema: ObjectSchema(map[string]any{
			"categories": ArrayProperty("Categorias detectadas, da mais para a menos relevante",
				ObjectSchema(map[string]any{
					"category": StringEnumProperty("Categoria", names...),
					"score":    RangeProperty("Confiança de 0 a 100", 0, 100),
					"reason":   StringProperty("Justificativa curta"),
				}, "category", "score")),
		}, "categories"),
	}
}

// CompressDefinition asks for a rewrite under maxWords.
func CompressDefinition(maxWords int) Definition {
	return Definition{
		Name: CompressTool,
		Description: "Reescreve o texto de forma compacta em português, preservando valores, " +
			"decisões e metas do usuário.",
		InputSchema: ObjectSchema(map[string]any{
			"text": WithWordLimit(StringProperty("Texto comprimido"), maxWords),
		}, "text"),
	}
}

// SummarizeDefinition asks for a category description under maxWords.
func SummarizeDefinition(maxWords int) Definition {
	return Definition{
		Name: SummarizeTool,
		Description: "Descreve o usuário nesta categoria em uma frase. Não inclua datas, " +
			"valores monetários exatos nem nomes de produtos ou instituições financeiras.",
		InputSchema: ObjectSchema(map[string]any{
			"description": WithWordLimit(StringProperty("Descrição da categoria"), maxWords),
		}, "description"),
	}
}

func wordLimitNote(maxWords int) string {
	return fmt.Sprintf("No máximo %d palavras.", maxWords)
}
