package textsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// Anthropic is a TextService backed by Claude with forced tool use.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic service. An empty model selects Haiku.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	if model == "" {
		model = string(anthropic.ModelClaudeHaiku4_5)
	}
	return &Anthropic{client: client, model: model, maxTokens: 1024}
}

var _ memory.TextService = (*Anthropic)(nil)

func (a *Anthropic) Classify(ctx context.Context, text string, candidates []core.Category) ([]core.CategoryScore, error) {
	raw, err := a.invoke(ctx, classifyCall(text, candidates))
	if err != nil {
		return nil, err
	}
	return decodeClassify(raw, candidates)
}

func (a *Anthropic) Compress(ctx context.Context, text string, maxWords int) (string, error) {
	raw, err := a.invoke(ctx, compressCall(text, maxWords))
	if err != nil {
		return "", err
	}
	return decodeCompress(raw)
}

func (a *Anthropic) Summarize(ctx context.Context, req memory.SummaryRequest) (string, error) {
	raw, err := a.invoke(ctx, summarizeCall(req.Category, req.Items, req.MaxWords))
	if err != nil {
		return "", err
	}
	return decodeSummarize(raw)
}

// invoke forces the model to call c.def and returns the tool input.
func (a *Anthropic) invoke(ctx context.Context, c call) (json.RawMessage, error) {
	schema, err := encodeSchema(c.def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %s schema: %w", c.def.Name, err)
	}

	tool := anthropic.ToolParam{
		Name:        c.def.Name,
		Description: anthropic.String(c.def.Description),
		InputSchema: schema,
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(c.prompt)),
		},
		Tools:      []anthropic.ToolUnionParam{{OfTool: &tool}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(c.def.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == c.def.Name {
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("claude returned no %s call", c.def.Name)
}

func encodeSchema(raw map[string]any) (anthropic.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return anthropic.ToolInputSchemaParam{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(data, &schema); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return schema, nil
}
