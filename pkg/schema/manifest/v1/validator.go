package v1

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stackql/stackql-deploy/pkg/internal"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator validates v1 stack manifests.
type Validator struct{}

// NewValidator creates a new v1 manifest validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a parsed manifest for structural problems.
func (v *Validator) Validate(schema *ManifestV1) []ValidationError {
	var errs []ValidationError

	if schema.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "stack name is required"})
	}
	if len(schema.Providers) == 0 {
		errs = append(errs, ValidationError{Field: "providers", Message: "at least one provider is required"})
	}

	for i, global := range schema.Globals {
		if global.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("globals[%d].name", i),
				Message: "global variable name is required",
			})
		}
	}

	for i, res := range schema.Resources {
		errs = append(errs, v.validateResource(i, res)...)
	}

	return errs
}

func (v *Validator) validateResource(i int, res ResourceV1) []ValidationError {
	var errs []ValidationError
	prefix := fmt.Sprintf("resources[%d]", i)

	if res.Name == "" {
		errs = append(errs, ValidationError{Field: prefix + ".name", Message: "resource name is required"})
	}

	if res.Type != "" && !internal.Kind(res.Type).Valid() {
		errs = append(errs, ValidationError{
			Field:   prefix + ".type",
			Message: fmt.Sprintf("must be 'resource', 'script', 'multi', 'query', or 'command', got '%s'", res.Type),
		})
	}

	if internal.Kind(res.Type) == internal.KindScript && res.Run == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".run",
			Message: "script resources require a run command",
		})
	}

	for j, prop := range res.Props {
		propField := fmt.Sprintf("%s.props[%d]", prefix, j)
		if prop.Name == "" {
			errs = append(errs, ValidationError{Field: propField + ".name", Message: "property name is required"})
		}
		if prop.Value.IsZero() && prop.Values == nil && prop.Merge == nil {
			errs = append(errs, ValidationError{
				Field:   propField,
				Message: fmt.Sprintf("property '%s' has no value, values, or merge", prop.Name),
			})
		}
	}

	errs = append(errs, v.validateExports(prefix, res.Exports)...)

	return errs
}

// validateExports rejects malformed export declarations, including
// lists that mix plain names with rename maps.
func (v *Validator) validateExports(prefix string, exports []yaml.Node) []ValidationError {
	var errs []ValidationError

	plain := 0
	renamed := 0
	for j, node := range exports {
		field := fmt.Sprintf("%s.exports[%d]", prefix, j)
		switch node.Kind {
		case yaml.ScalarNode:
			plain++
		case yaml.MappingNode:
			renamed++
			if len(node.Content) != 2 {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "rename maps must contain exactly one column: name pair",
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "export entries must be names or single-pair rename maps",
			})
		}
	}

	if plain > 0 && renamed > 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".exports",
			Message: "cannot mix plain names and rename maps in one exports list",
		})
	}

	return errs
}
