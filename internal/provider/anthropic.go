package provider

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicBackend executes eval cases against the Anthropic Messages API.
type AnthropicBackend struct {
	client    sdk.Client
	model     string
	maxTokens int64
	workers   int
}

// AnthropicConfig configures an AnthropicBackend.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Workers   int
}

// NewAnthropicBackend builds a backend from config. Model is required.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic backend: APIKey is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic backend: Model is required")
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &AnthropicBackend{
		client:    sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: maxTokens,
		workers:   workers,
	}, nil
}

func (a *AnthropicBackend) Name() string { return "anthropic" }

func (a *AnthropicBackend) Workers() int { return a.workers }

func (a *AnthropicBackend) Invoke(ctx context.Context, req *Request) (*Response, error) {
	var system []sdk.TextBlockParam
	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for i := range req.Messages {
		m := &req.Messages[i]
		switch m.Role {
		case types.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Text()})
		case types.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Text())))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Text())))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apierr *sdk.Error
		if errors.As(err, &apierr) {
			return nil, &types.TransportError{Status: apierr.StatusCode, Err: err}
		}
		return nil, &types.TransportError{Err: err}
	}

	out := types.Message{Role: types.RoleAssistant}
	var text string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			call := types.ToolCall{Tool: block.Name, ID: block.ID}
			var args map[string]any
			if err := json.Unmarshal([]byte(block.Input), &args); err == nil {
				call.Args = args
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	out.Content = text

	return &Response{
		CaseID:         req.CaseID,
		Text:           text,
		OutputMessages: []types.Message{out},
	}, nil
}
