package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
)

// WriteState writes the diagnostic exit snapshot. It is never read back by
// the pipeline.
func WriteState(path string, state domain.PipelineState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadState loads a snapshot written by WriteState
func ReadState(path string) (domain.PipelineState, error) {
	var state domain.PipelineState
	data, err := os.ReadFile(path)
	if err != nil {
		return state, err
	}
	err = json.Unmarshal(data, &state)
	return state, err
}
