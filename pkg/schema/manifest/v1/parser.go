package v1

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parser parses v1 stack manifests.
type Parser struct{}

// NewParser creates a new v1 parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseBytes parses raw YAML into the v1 schema.
func (p *Parser) ParseBytes(data []byte) (*ManifestV1, error) {
	var schema ManifestV1
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("invalid manifest YAML: %w", err)
	}
	return &schema, nil
}
