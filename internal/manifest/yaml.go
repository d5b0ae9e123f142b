package manifest

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// ParseYAML decodes a YAML manifest and validates it.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalWithOptions(data, &m, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, yaml.FormatError(err, false, true))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
