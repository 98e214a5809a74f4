package textsvc

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

// OpenAI is a TextService backed by the chat completions API with a forced
// function call.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI service. An empty model selects gpt-4o-mini.
func NewOpenAI(apiKey, baseURL, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAI{client: openai.NewClientWithConfig(config), model: model}, nil
}

var _ memory.TextService = (*OpenAI)(nil)

func (o *OpenAI) Classify(ctx context.Context, text string, candidates []core.Category) ([]core.CategoryScore, error) {
	args, err := o.invoke(ctx, classifyCall(text, candidates))
	if err != nil {
		return nil, err
	}
	return decodeClassify(args, candidates)
}

func (o *OpenAI) Compress(ctx context.Context, text string, maxWords int) (string, error) {
	args, err := o.invoke(ctx, compressCall(text, maxWords))
	if err != nil {
		return "", err
	}
	return decodeCompress(args)
}

func (o *OpenAI) Summarize(ctx context.Context, req memory.SummaryRequest) (string, error) {
	args, err := o.invoke(ctx, summarizeCall(req.Category, req.Items, req.MaxWords))
	if err != nil {
		return "", err
	}
	return decodeSummarize(args)
}

func (o *OpenAI) invoke(ctx context.Context, c call) ([]byte, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: c.prompt},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        c.def.Name,
				Description: c.def.Description,
				Parameters:  c.def.InputSchema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: c.def.Name},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Function.Name == c.def.Name {
			return []byte(tc.Function.Arguments), nil
		}
	}
	return nil, fmt.Errorf("openai returned no %s call", c.def.Name)
}
