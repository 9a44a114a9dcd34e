package v1

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stackql/stackql-deploy/pkg/internal"
)

// Transformer converts v1 schemas to the internal representation.
type Transformer struct{}

// NewTransformer creates a new v1 manifest transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform converts a v1 schema to the internal representation.
func (t *Transformer) Transform(schema *ManifestV1) (*internal.Manifest, error) {
	m := &internal.Manifest{
		Name:          schema.Name,
		Description:   schema.Description,
		Providers:     schema.Providers,
		Exports:       schema.Exports,
		SourceVersion: "1",
	}

	for _, global := range schema.Globals {
		value, err := decodeNode(global.Value)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", global.Name, err)
		}
		m.Globals = append(m.Globals, internal.Global{
			Name:        global.Name,
			Description: global.Description,
			Value:       value,
		})
	}

	for _, res := range schema.Resources {
		transformed, err := t.transformResource(res)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", res.Name, err)
		}
		m.Resources = append(m.Resources, transformed)
	}

	return m, nil
}

func (t *Transformer) transformResource(res ResourceV1) (internal.Resource, error) {
	kind := internal.Kind(res.Type)
	if res.Type == "" {
		kind = internal.KindResource
	}

	out := internal.Resource{
		Name:           res.Name,
		Kind:           kind,
		Description:    res.Description,
		File:           res.File,
		SQL:            res.SQL,
		Run:            res.Run,
		Condition:      res.If,
		SkipValidation: res.SkipValidation,
		Auth:           res.Auth,
		Protected:      res.Protected,
	}

	for _, prop := range res.Props {
		transformed, err := t.transformProperty(prop)
		if err != nil {
			return out, err
		}
		out.Props = append(out.Props, transformed)
	}

	for _, node := range res.Exports {
		exports, err := t.transformExport(node)
		if err != nil {
			return out, err
		}
		out.Exports = append(out.Exports, exports...)
	}

	return out, nil
}

func (t *Transformer) transformProperty(prop PropertyV1) (internal.Property, error) {
	out := internal.Property{
		Name:        prop.Name,
		Description: prop.Description,
		Merge:       prop.Merge,
	}

	if !prop.Value.IsZero() {
		value, err := decodeNode(prop.Value)
		if err != nil {
			return out, fmt.Errorf("property %s: %w", prop.Name, err)
		}
		out.Value = value
		out.HasValue = true
	}

	if prop.Values != nil {
		out.EnvValues = make(map[string]any, len(prop.Values))
		for env, envVal := range prop.Values {
			value, err := decodeNode(envVal.Value)
			if err != nil {
				return out, fmt.Errorf("property %s values.%s: %w", prop.Name, env, err)
			}
			out.EnvValues[env] = value
		}
	}

	return out, nil
}

// transformExport expands one exports entry. A scalar exports the
// column under its own name; a mapping reads the key column and stores
// it under the value name.
func (t *Transformer) transformExport(node yaml.Node) ([]internal.Export, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return nil, fmt.Errorf("export entry: %w", err)
		}
		return []internal.Export{{Name: name, SourceColumn: name}}, nil
	case yaml.MappingNode:
		var exports []internal.Export
		for i := 0; i+1 < len(node.Content); i += 2 {
			var column, name string
			if err := node.Content[i].Decode(&column); err != nil {
				return nil, fmt.Errorf("export column: %w", err)
			}
			if err := node.Content[i+1].Decode(&name); err != nil {
				return nil, fmt.Errorf("export name for column %s: %w", column, err)
			}
			exports = append(exports, internal.Export{Name: name, SourceColumn: column, Renamed: true})
		}
		return exports, nil
	default:
		return nil, fmt.Errorf("export entries must be names or rename maps")
	}
}

func decodeNode(node yaml.Node) (any, error) {
	if node.IsZero() {
		return nil, nil
	}
	var value any
	if err := node.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}
