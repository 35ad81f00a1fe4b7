package device

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSpecs decodes a JSON array of device specifications.
func LoadSpecs(data []byte) ([]Spec, error) {
	var specs []Spec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode device specs: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("device spec file declares no devices")
	}
	return specs, nil
}

// LoadSpecsFile reads device specifications from a JSON file.
func LoadSpecsFile(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device specs: %w", err)
	}
	return LoadSpecs(data)
}

// NewRegistryFromFile builds a validated registry from a JSON spec file.
func NewRegistryFromFile(path string) (*StaticRegistry, error) {
	specs, err := LoadSpecsFile(path)
	if err != nil {
		return nil, err
	}
	return NewStaticRegistry(specs...)
}
