package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/mirrornode/pkg/adapters"
)

// SupportedSchema is the range of adapter file versions this build reads.
const SupportedSchema = ">= 1.0.0, < 2.0.0"

var ErrUnsupportedSchema = errors.New("unsupported adapters file schema")

// AdaptersFile is the on-disk adapter pool description.
type AdaptersFile struct {
	SchemaVersion string          `yaml:"schema_version"`
	Adapters      []adapters.Spec `yaml:"adapters"`
}

// LoadAdapterSpecs reads an adapters file. An empty path yields the
// built-in pool.
func LoadAdapterSpecs(path string) ([]adapters.Spec, error) {
	if path == "" {
		return adapters.DefaultSpecs(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load adapters file %q: %w", path, err)
	}
	return ParseAdapterSpecs(data)
}

// ParseAdapterSpecs decodes and checks an adapters file.
func ParseAdapterSpecs(data []byte) ([]adapters.Spec, error) {
	var f AdaptersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse adapters file: %w", err)
	}
	if err := CheckSchema(f.SchemaVersion); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(f.Adapters))
	for i, s := range f.Adapters {
		if s.Name == "" || s.Kind == "" {
			return nil, fmt.Errorf("%w: entry %d needs name and kind", adapters.ErrInvalidSpec, i)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate adapter name %q", adapters.ErrInvalidSpec, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return f.Adapters, nil
}

// CheckSchema verifies a schema_version against SupportedSchema.
func CheckSchema(version string) error {
	if version == "" {
		return fmt.Errorf("%w: schema_version missing", ErrUnsupportedSchema)
	}
	constraint, err := semver.NewConstraint(SupportedSchema)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: invalid schema_version %s: %v", ErrUnsupportedSchema, version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: file is %s, this build reads %s", ErrUnsupportedSchema, version, SupportedSchema)
	}
	return nil
}
