// Package manifest reads declarative job graphs from YAML or HCL files and
// registers them into a scheduler.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/geetools/exportsched/internal/platform"
)

var (
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrUnsupportedFile = errors.New("unsupported manifest file type")
)

// Manifest is a named graph of platform tasks.
type Manifest struct {
	Name    string `yaml:"name"`
	Project string `yaml:"project"`
	Jobs    []Job  `yaml:"jobs"`
}

// Job declares one task of the graph.
type Job struct {
	ID      string   `yaml:"id"`
	Kind    string   `yaml:"kind"`
	Depends []string `yaml:"depends"`
	// Output is the URI the task writes, used to skip work that exists.
	Output string `yaml:"output"`
	// Request is sent to the platform as is.
	Request map[string]any `yaml:"request"`
	// Simulate shapes the simulated job used by dry runs.
	Simulate *Simulation `yaml:"simulate"`
}

// Simulation configures a dry-run stand-in for a job.
type Simulation struct {
	Polls int  `yaml:"polls"`
	Fail  bool `yaml:"fail"`
}

// Load reads a manifest, choosing the format by file extension.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m *Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		m, err = ParseYAML(data)
	case ".hcl":
		m, err = ParseHCL(data, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// Validate checks that ids are present and unique and kinds are known.
// Dependencies on unknown ids are left for the scheduler to report.
func (m *Manifest) Validate() error {
	var errs []error
	if len(m.Jobs) == 0 {
		errs = append(errs, errors.New("no jobs"))
	}
	seen := make(map[string]bool, len(m.Jobs))
	for i, job := range m.Jobs {
		if job.ID == "" {
			errs = append(errs, fmt.Errorf("job #%d: id is required", i+1))
			continue
		}
		if seen[job.ID] {
			errs = append(errs, fmt.Errorf("job %s: duplicate id", job.ID))
		}
		seen[job.ID] = true
		if _, err := platform.ParseKind(job.Kind); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, errors.Join(errs...))
	}
	return nil
}
