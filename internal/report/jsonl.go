// Package report writes evaluation results as a newline-delimited JSON
// stream, one EvaluationResult per line, plus run-level summaries.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// Writer appends evaluation results to an output stream. Results are
// written once, append-only, and may arrive from concurrent workers.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	n   int
}

// NewWriter creates a Writer emitting to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// OpenFile creates a Writer appending to the file at path.
func OpenFile(path string) (*Writer, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open results file: %w", err)
	}
	return NewWriter(f), f, nil
}

// Write emits one result as a compact JSON line.
func (w *Writer) Write(result *types.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for case %s: %w", result.CaseID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write result for case %s: %w", result.CaseID, err)
	}
	w.n++
	return nil
}

// Count returns how many results have been written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}
