package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// DeepSeekBaseURL is the OpenAI-compatible endpoint of DeepSeek.
const DeepSeekBaseURL = "https://api.deepseek.com/v1"

var openaiModels = map[string]string{
	"gpt-mini":      "gpt-4o-mini",
	"deepseek-chat": "deepseek-chat",
}

// OpenAIProvider talks to OpenAI or any API that speaks the same protocol.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	// strictSchema is off for compatible APIs that only understand
	// json_object output.
	strictSchema bool
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(c),
		model:        resolveModel(cfg.Model, openaiModels),
		strictSchema: cfg.BaseURL == "",
	}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    openaiMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.Schema != nil {
		if p.strictSchema {
			def, err := json.Marshal(req.Schema.Definition)
			if err != nil {
				return nil, fmt.Errorf("marshal schema: %w", err)
			}
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   req.Schema.Name,
					Schema: json.RawMessage(def),
					Strict: true,
				},
			}
		} else {
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ErrInvalidResponse{Err: errors.New("no choices in response")}
	}

	content := json.RawMessage(resp.Choices[0].Message.Content)
	if err := Validate(req.Schema, content); err != nil {
		return nil, err
	}

	stop := "end"
	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		stop = "max_tokens"
	}
	return &Response{
		Content:    content,
		Model:      resp.Model,
		StopReason: stop,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (p *OpenAIProvider) ModelID() string { return p.model }

func openaiMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &ErrRateLimit{Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}
