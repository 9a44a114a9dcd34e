package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stackql/stackql-deploy/pkg/errors"
	v1 "github.com/stackql/stackql-deploy/pkg/schema/manifest/v1"
)

// versionDetectingLoader implements the Loader interface.
type versionDetectingLoader struct {
	parsers      map[int]*v1.Parser
	validators   map[int]*v1.Validator
	transformers map[int]*v1.Transformer
}

// NewLoader creates a new manifest loader.
func NewLoader() Loader {
	return &versionDetectingLoader{
		parsers: map[int]*v1.Parser{
			1: v1.NewParser(),
		},
		validators: map[int]*v1.Validator{
			1: v1.NewValidator(),
		},
		transformers: map[int]*v1.Transformer{
			1: v1.NewTransformer(),
		},
	}
}

// Load parses a manifest from the given path.
func (l *versionDetectingLoader) Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("failed to read %s", path), err)
	}
	return l.LoadFromBytes(data, path)
}

// LoadFromStackDir parses the manifest inside a stack directory.
func (l *versionDetectingLoader) LoadFromStackDir(stackDir string) (Manifest, error) {
	return l.Load(filepath.Join(stackDir, FileName))
}

// LoadFromBytes parses a manifest from raw bytes.
func (l *versionDetectingLoader) LoadFromBytes(data []byte, sourcePath string) (Manifest, error) {
	// All current manifests parse with the v1 parser.
	parser := l.parsers[1]

	schema, err := parser.ParseBytes(data)
	if err != nil {
		return nil, errors.ParseError(sourcePath, err)
	}

	// Detect version (absent means 1).
	version := schema.Version
	if version == 0 {
		version = 1
	}

	validator, ok := l.validators[version]
	if !ok {
		return nil, errors.New(errors.ErrCodeConfig, fmt.Sprintf("unsupported manifest version: %d", version))
	}

	validationErrors := validator.Validate(schema)
	if len(validationErrors) > 0 {
		first := validationErrors[0]
		return nil, errors.ConfigError(
			fmt.Sprintf("%s: %s", first.Field, first.Message),
			map[string]interface{}{"field": first.Field, "path": sourcePath},
		)
	}

	transformer, ok := l.transformers[version]
	if !ok {
		return nil, errors.New(errors.ErrCodeConfig, fmt.Sprintf("unsupported manifest version: %d", version))
	}

	m, err := transformer.Transform(schema)
	if err != nil {
		return nil, errors.ParseError(sourcePath, err)
	}
	m.SourcePath = sourcePath

	return &manifestWrapper{m: m}, nil
}
