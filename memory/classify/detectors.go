package classify

import (
	"regexp"

	"github.com/becomeliminal/nim-memory/core"
)

// Points awarded per detector hit, before multipliers.
const (
	pointsHigh   = 25.0
	pointsMedium = 12.0
	pointsLow    = 5.0
	pointsIntent = 30.0
	pointsEntity = 10.0
)

// Contextual multipliers, applied only when a category already scored.
const (
	multVerbFirst     = 1.1
	multNumeric       = 1.1
	multSelfReference = 1.1
	multPriorActive   = 1.15
)

// Entity shapes, matched against folded text.
const (
	entityCurrency   = "currency"
	entityPercentage = "percentage"
	entityHorizon    = "horizon"
	entityMonthly    = "monthly"
	entityAge        = "age"
)

var entityPatterns = map[string]*regexp.Regexp{
	entityCurrency:   regexp.MustCompile(`(?:r\$|us\$|€)\s*\d[\d.,]*|\b\d[\d.,]*\s*(?:reais|mil|dolares|k)\b`),
	entityPercentage: regexp.MustCompile(`\d+(?:[.,]\d+)?\s*%`),
	entityHorizon:    regexp.MustCompile(`\b(?:em|daqui a|ate|dentro de|nos proximos)\s+\d+\s+(?:anos?|meses|mes)\b`),
	entityMonthly:    regexp.MustCompile(`/\s*mes\b|\bpor mes\b|\bao mes\b|\bmensa(?:l|is|lmente)\b`),
	entityAge:        regexp.MustCompile(`\b(?:tem|tenho|temos|com|de)\s+\d{1,2}\s+anos\b`),
}

// detector is the rule bundle for one category.
type detector struct {
	category core.Category
	high     []string
	medium   []string
	low      []string
	intents  []*regexp.Regexp
	entities []string
}

var detectors = []detector{
	{
		category: core.CategoryProfessionalProfile,
		high:     []string{"profissao", "carreira", "autonomo", "empreendedor", "servidor publico", "clt", "freelancer", "mei", "pj"},
		medium:   []string{"trabalho", "emprego", "cargo", "empresa", "promocao", "chefe", "contratado", "demitido"},
		low:      []string{"escritorio", "area", "setor", "cliente", "clientes"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\btrabalho (?:como|na|no|em)\b`),
			regexp.MustCompile(`\bsou (?:engenheir|medic|advogad|professor|analista|desenvolvedor|programador|gerente|dentista|enfermeir|contador|vendedor|designer|arquitet)\w*`),
			regexp.MustCompile(`\b(?:fui promovid\w*|mudei de emprego|perdi (?:o|meu) emprego|abri (?:uma|minha) empresa)`),
		},
		entities: []string{entityMonthly},
	},
	{
		category: core.CategoryFinancialSituation,
		high:     []string{"renda", "salario", "ganho", "ganha", "recebo", "divida", "dividas", "patrimonio", "saldo", "endividado"},
		medium:   []string{"cartao de credito", "emprestimo", "financiamento", "parcela", "parcelas", "boleto", "contas", "fatura", "aluguel"},
		low:      []string{"dinheiro", "grana", "conta"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:ganho|ganha|recebo|recebe|ganhamos)\b.{0,30}\d`),
			regexp.MustCompile(`\b(?:tenho|estou com|devo|temos)\b.{0,30}\b(?:divida|dividas|emprestimo|financiamento|r\$)`),
			regexp.MustCompile(`\brenda (?:mensal|familiar|liquida|bruta)\b`),
		},
		entities: []string{entityCurrency, entityMonthly},
	},
	{
		category: core.CategoryInvestments,
		high:     []string{"investir", "investimento", "investimentos", "investindo", "aplicacao", "carteira", "renda fixa", "renda variavel", "acoes", "tesouro direto", "cdb", "fii", "fundos imobiliarios", "dividendos", "bolsa"},
		medium:   []string{"rendimento", "rentabilidade", "cdi", "selic", "lci", "lca", "cripto", "bitcoin", "etf", "corretora", "tesouro", "fundo", "poupanca"},
		low:      []string{"aplicar", "render", "juros"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:quero|vou|pretendo|devo|posso|planejo)\b.{0,20}\b(?:investir|aplicar)\b`),
			regexp.MustCompile(`\b(?:tenho|possuo)\b.{0,30}(?:investid\w*|aplicad\w*|em acoes|no tesouro|em cdb|em fii)`),
		},
		entities: []string{entityCurrency, entityPercentage},
	},
	{
		category: core.CategoryGoals,
		high:     []string{"meta", "metas", "objetivo", "objetivos", "juntar", "sonho", "conquistar", "alcancar"},
		medium:   []string{"comprar", "apartamento", "casa propria", "viagem", "carro", "economizar", "intercambio", "reforma"},
		low:      []string{"plano", "planos", "desejo"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:quero|pretendo|planejo|preciso|sonho em|meu objetivo e|minha meta e)\b.{0,40}\b(?:juntar|comprar|conquistar|guardar|economizar|alcancar|quitar|viajar)\b`),
			regexp.MustCompile(`\b(?:em|daqui a|ate|dentro de)\s+\d+\s+(?:anos?|meses)\b`),
		},
		entities: []string{entityCurrency, entityHorizon},
	},
	{
		category: core.CategorySpendingBehavior,
		high:     []string{"gasto", "gastos", "gastar", "gastei", "compras", "consumo", "impulso", "delivery", "assinaturas"},
		medium:   []string{"mercado", "restaurante", "ifood", "shopping", "lazer", "orcamento", "despesa", "despesas", "cartao"},
		low:      []string{"comprei", "pagar", "paguei"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:gasto|gastei|gastamos|gasta)\b.{0,30}\b(?:com|em|por)\b`),
			regexp.MustCompile(`\b(?:compro|comprei|gasto) por impulso\b`),
			regexp.MustCompile(`\b(?:nao consigo|dificuldade (?:de|em)) (?:economizar|controlar|poupar)`),
		},
		entities: []string{entityCurrency, entityMonthly},
	},
	{
		category: core.CategoryRiskProfile,
		high:     []string{"risco", "riscos", "arriscado", "conservador", "moderado", "arrojado", "agressivo", "volatilidade", "perder dinheiro"},
		medium:   []string{"renda fixa", "estavel", "garantido", "oscilacao", "perdas", "tolerancia", "seguranca"},
		low:      []string{"medo", "tranquilo", "seguro"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:prefiro|gosto de|nao gosto de|evito|tenho medo de)\b.{0,40}\b(?:risco|renda fixa|acoes|volatil\w*|seguranca|perder)`),
			regexp.MustCompile(`\bsou (?:mais |bem |muito )?(?:conservador|moderado|arrojado|agressivo)`),
			regexp.MustCompile(`\b(?:sempre|nunca|jamais)\b.{0,30}\b(?:investir|arriscar|renda fixa|acoes)\b`),
		},
		entities: []string{entityPercentage},
	},
	{
		category: core.CategoryFinancialLiteracy,
		high:     []string{"aprender", "entender", "como funciona", "explicar", "educacao financeira", "diferenca entre"},
		medium:   []string{"conceito", "significa", "duvida", "curso", "livro", "iniciante"},
		low:      []string{"saber", "basico"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:o que (?:e|sao)|como funciona|qual a diferenca)\b`),
			regexp.MustCompile(`\b(?:quero|gostaria de|preciso) (?:aprender|entender)\b`),
		},
	},
	{
		category: core.CategoryFuturePlanning,
		high:     []string{"aposentadoria", "aposentar", "previdencia", "longo prazo", "heranca", "sucessao", "independencia financeira"},
		medium:   []string{"futuro", "planejamento", "daqui a", "velhice", "seguro de vida"},
		low:      []string{"anos", "decadas"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:me aposentar|aposentadoria|aposentar)\b`),
			regexp.MustCompile(`\b(?:longo prazo|daqui a \d+ anos|aos \d{2} anos)\b`),
		},
		entities: []string{entityHorizon},
	},
	{
		category: core.CategoryFamilyContext,
		high:     []string{"filho", "filhos", "filha", "filhas", "esposa", "marido", "casado", "casada", "familia", "dependentes", "bebe", "gravida"},
		medium:   []string{"casamento", "divorcio", "pensao", "escola", "conjuge", "namorada", "namorado", "pais"},
		low:      []string{"casa", "irmao", "irma", "mae", "pai"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:tenho|temos)\s+(?:\d+|um|uma|dois|duas|tres)\s+(?:filh\w*|dependente\w*|crianca\w*)`),
			regexp.MustCompile(`\b(?:sou|estou) (?:casad|divorciad|solteir|gravida|noiv)\w*`),
			regexp.MustCompile(`\b(?:minha (?:esposa|mulher|mae|filha|familia)|meu (?:marido|filho|pai))\b`),
		},
		entities: []string{entityAge},
	},
	{
		category: core.CategoryPlatformRelationship,
		high:     []string{"app", "aplicativo", "plataforma", "nim", "assistente", "notificacao", "notificacoes", "suporte", "funcionalidade"},
		medium:   []string{"cadastro", "atendimento", "configuracao", "relatorio", "alerta", "alertas", "resumo"},
		low:      []string{"usar", "ajuda"},
		intents: []*regexp.Regexp{
			regexp.MustCompile(`\b(?:gosto|nao gosto|prefiro) (?:que|quando) (?:voce|o app|o assistente)`),
			regexp.MustCompile(`\b(?:me (?:avise|lembre|notifique)|quero receber)\b`),
		},
	},
}

var (
	firstPersonVerbs = map[string]bool{
		"quero": true, "vou": true, "preciso": true, "pretendo": true, "tenho": true, "prefiro": true,
		"gostaria": true, "planejo": true, "estou": true, "ganho": true, "gasto": true, "sou": true,
		"comprei": true, "investi": true, "juntei": true, "recebo": true, "devo": true, "trabalho": true,
		"temos": true, "sonho": true,
	}
	selfReference = map[string]bool{
		"eu": true, "meu": true, "minha": true, "meus": true, "minhas": true, "comigo": true,
		"nos": true, "nosso": true, "nossa": true, "nossos": true, "nossas": true,
	}
	reDigit = regexp.MustCompile(`\d`)
)
