package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const generator = "dupescan"

// Document wraps a tool result saved to disk.
type Document[T any] struct {
	Generator string    `json:"generator"`
	Tool      string    `json:"tool"`
	Created   time.Time `json:"created"`
	Result    T         `json:"result"`
}

func Save[T any](path, tool string, result T) error {
	doc := Document[T]{
		Generator: generator,
		Tool:      tool,
		Created:   time.Now(),
		Result:    result,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func Load[T any](path string) (*Document[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var doc Document[T]
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	if doc.Generator != generator {
		return nil, fmt.Errorf("not a %s report: generator %q", generator, doc.Generator)
	}

	return &doc, nil
}
