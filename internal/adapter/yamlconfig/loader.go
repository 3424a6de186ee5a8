package yamlconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"bytemomo/narwhal/internal/domain"

	"gopkg.in/yaml.v3"
)

// Loader reads workflow and client profile files relative to a base path.
type Loader struct {
	basePath string
}

// NewLoader creates a loader; relative paths resolve against basePath.
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{basePath: basePath}
}

// LoadWorkflow loads a workflow definition. An empty step list is valid.
func (l *Loader) LoadWorkflow(path string) (*domain.Workflow, error) {
	fullPath := l.resolvePath(path)

	data, err := l.readFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", fullPath, err)
	}

	var wf domain.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", fullPath, err)
	}
	if wf.Name == "" {
		wf.Name = trimExt(filepath.Base(fullPath))
	}
	for i, s := range wf.Steps {
		if s == "" {
			return nil, fmt.Errorf("workflow %s: step %d is empty", fullPath, i)
		}
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("workflow validation failed for %s: %w", fullPath, err)
	}
	return &wf, nil
}

// LoadProfile loads a client profile. Missing sections stay zero.
func (l *Loader) LoadProfile(path string) (domain.ContextSpec, error) {
	fullPath := l.resolvePath(path)

	data, err := l.readFile(fullPath)
	if err != nil {
		return domain.ContextSpec{}, fmt.Errorf("failed to read profile file %s: %w", fullPath, err)
	}

	var spec domain.ContextSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return domain.ContextSpec{}, fmt.Errorf("failed to parse profile file %s: %w", fullPath, err)
	}
	if spec.Client.Category != "" {
		c, err := NormalizeCategory(spec.Client.Category)
		if err != nil {
			return domain.ContextSpec{}, fmt.Errorf("profile %s: %w", fullPath, err)
		}
		spec.Client.Category = c
	}
	return spec, nil
}

// FindWorkflows lists the YAML files of a directory.
func (l *Loader) FindWorkflows(dir string) ([]string, error) {
	searchDir := l.resolvePath(dir)
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(searchDir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.basePath, path)
}

// readFile reads a file and expands ${VAR} references.
func (l *Loader) readFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []byte(os.ExpandEnv(string(data))), nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
