package jsonreport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bytemomo/narwhal/internal/domain"
)

type Writer struct {
	OutDir string // e.g., ./output
}

func New(out string) *Writer { return &Writer{OutDir: out} }

// Save writes the run to <out>/<client>/<run_id>.json and returns the path.
func (w *Writer) Save(run *domain.RunResult) (string, error) {
	dir := filepath.Join(w.OutDir, run.Client.Slug())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, run.RunID+".json")
	return path, writeJSON(path, run)
}

// Load reads a run previously written by Save.
func Load(path string) (*domain.RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var run domain.RunResult
	if err := json.NewDecoder(f).Decode(&run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", path, err)
	}
	if run.Results == nil {
		run.Results = domain.NewStepResults()
	}
	return &run, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
