package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// OpenAIBackend executes eval cases against the OpenAI chat completions
// API. Only the narrow Backend surface is exposed; SDK types never leak.
type OpenAIBackend struct {
	client  openai.Client
	model   string
	workers int
}

// OpenAIConfig configures an OpenAIBackend.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Workers int
}

// NewOpenAIBackend builds a backend from config. Model is required.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai backend: APIKey is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai backend: Model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &OpenAIBackend{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		workers: workers,
	}, nil
}

func (o *OpenAIBackend) Name() string { return "openai" }

func (o *OpenAIBackend) Workers() int { return o.workers }

func (o *OpenAIBackend) Invoke(ctx context.Context, req *Request) (*Response, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for i := range req.Messages {
		m := &req.Messages[i]
		switch m.Role {
		case types.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Text()))
		case types.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Text()))
		default:
			msgs = append(msgs, openai.UserMessage(m.Text()))
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, &types.TransportError{Status: apierr.StatusCode, Err: err}
		}
		return nil, &types.TransportError{Err: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &types.TransportError{Err: fmt.Errorf("openai: empty choices for case %s", req.CaseID)}
	}

	choice := completion.Choices[0].Message
	out := types.Message{Role: types.RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		call := types.ToolCall{Tool: tc.Function.Name, ID: tc.ID}
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
			call.Args = args
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}

	return &Response{
		CaseID:         req.CaseID,
		Text:           choice.Content,
		OutputMessages: []types.Message{out},
	}, nil
}
