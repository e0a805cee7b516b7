package runner

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/pkg/types"
)

// LoadCases reads eval cases from path. The file may be a JSON array of
// cases or JSONL with one case per line; blank lines are skipped.
func LoadCases(path string) ([]types.EvalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("cases file %s is empty", path)
	}

	if trimmed[0] == '[' {
		var cases []types.EvalCase
		if err := json.Unmarshal(trimmed, &cases); err != nil {
			return nil, fmt.Errorf("parse cases: %w", err)
		}
		return validateCases(path, cases)
	}

	var cases []types.EvalCase
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var c types.EvalCase
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("parse case on line %d: %w", line, err)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	return validateCases(path, cases)
}

func validateCases(path string, cases []types.EvalCase) ([]types.EvalCase, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("cases file %s holds no cases", path)
	}
	seen := make(map[string]struct{}, len(cases))
	for i := range cases {
		c := &cases[i]
		if c.ID == "" {
			return nil, fmt.Errorf("case %d has no ID", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate case ID %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if len(c.Input) == 0 {
			return nil, fmt.Errorf("case %s has no input messages", c.ID)
		}
	}
	return cases, nil
}
