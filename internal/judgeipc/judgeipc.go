// Package judgeipc runs judge scripts as one-shot subprocesses. The
// parent writes a single JSON object to the child's stdin, closes it, and
// reads a single JSON object back from stdout. There is no long-lived
// protocol; every evaluation is a fresh process.
package judgeipc

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// maxStderrLen bounds how much child stderr is kept for diagnostics.
const maxStderrLen = 2048

// Runner executes judge subprocesses.
type Runner struct {
	logger     *slog.Logger
	proxyURL   string
	proxyToken string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProxy exposes the target proxy to judge subprocesses via the
// ARBITER_PROXY_URL and ARBITER_PROXY_TOKEN environment variables.
func WithProxy(url, token string) RunnerOption {
	return func(r *Runner) {
		r.proxyURL = url
		r.proxyToken = token
	}
}

// NewRunner creates a Runner. logger may be nil for the default logger.
func NewRunner(logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RunJudge executes the script and exchanges the judge envelope. Script
// failure never propagates as a bare error: the returned output is always
// usable, synthesized as a zero-score verdict when the child misbehaved,
// with the error alongside for logging.
func (r *Runner) RunJudge(ctx context.Context, script string, args []string, timeout time.Duration, input *types.JudgeInput) (*types.JudgeOutput, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return synthesize(fmt.Errorf("marshal judge input: %w", err))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, script, args...)
	cmd.Stdin = bytes.NewReader(payload)
	if r.proxyURL != "" {
		cmd.Env = append(os.Environ(),
			"ARBITER_PROXY_URL="+r.proxyURL,
			"ARBITER_PROXY_TOKEN="+r.proxyToken,
		)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.Warn("judge script timed out", "script", script, "elapsed", elapsed)
		return synthesize(fmt.Errorf("judge script timed out after %s", elapsed.Round(time.Millisecond)))
	}
	if runErr != nil {
		r.logger.Warn("judge script failed", "script", script, "err", runErr, "stderr", truncate(stderr.String()))
		return synthesize(fmt.Errorf("judge script failed: %w", runErr))
	}

	out, err := decodeOutput(stdout.Bytes())
	if err != nil {
		r.logger.Warn("judge script output malformed", "script", script, "err", err)
		return synthesize(err)
	}
	out.Sanitize()
	return out, nil
}

// decodeOutput parses the child's stdout as a single JudgeOutput object.
func decodeOutput(raw []byte) (*types.JudgeOutput, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &types.MalformedJudgeOutputError{Detail: "empty stdout"}
	}
	var out types.JudgeOutput
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, &types.MalformedJudgeOutputError{Detail: err.Error(), Raw: string(trimmed)}
	}
	return &out, nil
}

// synthesize builds the zero-score output carried back when the child
// process could not produce a verdict.
func synthesize(err error) (*types.JudgeOutput, error) {
	return &types.JudgeOutput{
		Score:     0,
		Verdict:   types.VerdictFail,
		Misses:    []string{err.Error()},
		Reasoning: err.Error(),
	}, err
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrLen {
		return s[:maxStderrLen] + "..."
	}
	return s
}
