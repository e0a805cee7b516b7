package runner

import (
	"context"

	"github.com/arbiterlabs/arbiter/internal/evaluator"
	"github.com/arbiterlabs/arbiter/internal/provider"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

// backendModel adapts a provider Backend to the evaluator's ModelClient
// so judge evaluators can reuse the run's configured backend. The backend
// owns the actual model selection; the name here is advisory.
type backendModel struct {
	backend provider.Backend
	model   string
}

// NewModelClient wraps a backend for judge use. model is the name
// reported by DefaultModel.
func NewModelClient(b provider.Backend, model string) evaluator.ModelClient {
	if model == "" {
		model = b.Name()
	}
	return &backendModel{backend: b, model: model}
}

func (m *backendModel) Complete(ctx context.Context, req *evaluator.ModelRequest) (*evaluator.ModelResponse, error) {
	msgs := make([]types.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: req.System})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: req.Prompt})

	resp, err := m.backend.Invoke(ctx, &provider.Request{CaseID: "judge", Messages: msgs})
	if err != nil {
		return nil, err
	}
	return &evaluator.ModelResponse{Content: resp.Text}, nil
}

func (m *backendModel) DefaultModel() string { return m.model }
