package core

// Category identifies one of the fixed long-term memory partitions.
// The set is closed: anything outside AllCategories is rejected by curation.
type Category string

const (
	CategoryProfessionalProfile  Category = "perfil_profissional"
	CategoryFinancialSituation   Category = "situacao_financeira"
	CategoryInvestments          Category = "investimentos"
	CategoryGoals                Category = "objetivos_metas"
	CategorySpendingBehavior     Category = "comportamento_gastos"
	CategoryRiskProfile          Category = "perfil_risco"
	CategoryFinancialLiteracy    Category = "educacao_financeira"
	CategoryFuturePlanning       Category = "planejamento_futuro"
	CategoryFamilyContext        Category = "contexto_familiar"
	CategoryPlatformRelationship Category = "relacionamento_plataforma"

	// CategoryRestrictions is only used for conversation events. It has no
	// long-term partition but is pinned by the narrative manager.
	CategoryRestrictions Category = "restricoes"

	// CategoryGeneral marks events that matched no category.
	CategoryGeneral Category = "geral"
)

// AllCategories lists the long-term categories in display order.
var AllCategories = []Category{
	CategoryProfessionalProfile,
	CategoryFinancialSituation,
	CategoryInvestments,
	CategoryGoals,
	CategorySpendingBehavior,
	CategoryRiskProfile,
	CategoryFinancialLiteracy,
	CategoryFuturePlanning,
	CategoryFamilyContext,
	CategoryPlatformRelationship,
}

var categoryLabels = map[Category]string{
	CategoryProfessionalProfile:  "perfil profissional",
	CategoryFinancialSituation:   "situação financeira",
	CategoryInvestments:          "investimentos",
	CategoryGoals:                "objetivos e metas",
	CategorySpendingBehavior:     "comportamento de gastos",
	CategoryRiskProfile:          "perfil de risco",
	CategoryFinancialLiteracy:    "educação financeira",
	CategoryFuturePlanning:       "planejamento futuro",
	CategoryFamilyContext:        "contexto familiar",
	CategoryPlatformRelationship: "relacionamento com a plataforma",
	CategoryRestrictions:         "restrições",
	CategoryGeneral:              "geral",
}

// Valid reports whether c is one of the ten long-term categories.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Label returns a human readable name used in prompts and fallback descriptions.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Pinned reports whether events of this category survive narrative pruning.
func (c Category) Pinned() bool {
	return c == CategoryGoals || c == CategoryRiskProfile || c == CategoryRestrictions
}

// ParseCategory converts a raw string into a Category. The second return value
// is false when the string does not name a long-term category.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// CategoryScore is one ranked classification result. Score is on a 0-100 scale.
type CategoryScore struct {
	Category Category `json:"category" yaml:"category"`
	Score    float64  `json:"score" yaml:"score"`
	Reason   string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}
