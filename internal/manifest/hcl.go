package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

type hclRoot struct {
	Name    string   `hcl:"name,optional"`
	Project string   `hcl:"project,optional"`
	Jobs    []hclJob `hcl:"job,block"`
}

type hclJob struct {
	ID       string         `hcl:"id,label"`
	Kind     string         `hcl:"kind"`
	Depends  []string       `hcl:"depends,optional"`
	Output   string         `hcl:"output,optional"`
	Request  cty.Value      `hcl:"request,optional"`
	Simulate *hclSimulation `hcl:"simulate,block"`
}

type hclSimulation struct {
	Polls int  `hcl:"polls,optional"`
	Fail  bool `hcl:"fail,optional"`
}

// ParseHCL decodes an HCL manifest of job "<id>" { ... } blocks. filename
// is only used in diagnostics.
func ParseHCL(data []byte, filename string) (*Manifest, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, diags)
	}

	m := &Manifest{Name: root.Name, Project: root.Project}
	for _, hj := range root.Jobs {
		request, err := ctyToMap(hj.Request)
		if err != nil {
			return nil, fmt.Errorf("%w: job %s: request: %w", ErrInvalidManifest, hj.ID, err)
		}
		job := Job{
			ID:      hj.ID,
			Kind:    hj.Kind,
			Depends: hj.Depends,
			Output:  hj.Output,
			Request: request,
		}
		if hj.Simulate != nil {
			job.Simulate = &Simulation{Polls: hj.Simulate.Polls, Fail: hj.Simulate.Fail}
		}
		m.Jobs = append(m.Jobs, job)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ctyToMap converts an HCL object value to plain Go values through JSON.
func ctyToMap(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not fully known")
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("must be an object, got %s", v.Type().FriendlyName())
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
