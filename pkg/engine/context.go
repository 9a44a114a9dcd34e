package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/exportstore"
	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

// Reserved metadata keys written to every export document. They are
// never imported back into a context.
var reservedExportKeys = map[string]bool{
	"stack_name":   true,
	"stack_env":    true,
	"elapsed_time": true,
}

// buildGlobalContext renders the manifest's global variables in
// declaration order. stack_name, stack_env, and a per-run uuid are
// seeded first, then any imported export documents, so globals may
// reference all of them. Environment variables are visible to global
// templates but only enter the context through a global that renders
// them.
func (e *Engine) buildGlobalContext(ctx context.Context, imports []string) error {
	gc := template.NewContext()
	gc.Set("stack_name", e.stackName, template.SourceBuiltin)
	gc.Set("stack_env", e.stackEnv, template.SourceBuiltin)
	gc.Set("uuid", runUUID(), template.SourceBuiltin)

	for _, location := range imports {
		if err := e.importExports(ctx, gc, location); err != nil {
			return err
		}
	}

	for _, g := range e.manifest.Globals() {
		combined := template.NewContext()
		for name, value := range e.envVars {
			// Visible bare and under the vars. prefix, so both
			// {{ AWS_REGION }} and {{ vars.AWS_REGION }} resolve.
			combined.Set(name, value, template.SourceEnv)
			combined.Set("vars."+name, value, template.SourceEnv)
		}
		combined.Merge(gc)

		rendered, err := e.renderValue(g.Value, combined)
		if err != nil {
			return errors.Newf(errors.ErrCodeTemplate, "failed to render global variable %q: %v", g.Name, err)
		}
		if rendered == "" {
			return errors.Newf(errors.ErrCodeConfig, "global variable %q cannot be empty", g.Name)
		}
		e.logger.Debugf("setting global variable [%s] to %s", g.Name, rendered)
		gc.Set(g.Name, rendered, template.SourceGlobal)
	}

	e.globalContext = gc
	return nil
}

// importExports loads a previously written export document and seeds
// its variables into the context. Structured values are stored in
// their compact JSON form, matching how exports are stored when
// captured live.
func (e *Engine) importExports(ctx context.Context, gc *template.Context, location string) error {
	data, err := exportstore.Read(ctx, location)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("failed to read import %s", location), err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("import %s is not a JSON object", location), err)
	}

	count := 0
	for name, value := range doc {
		if reservedExportKeys[name] {
			continue
		}
		raw, err := stringifyImported(value)
		if err != nil {
			return errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("import %s: variable %q", location, name), err)
		}
		gc.Set(name, raw, template.SourceExport)
		count++
	}

	e.logger.Infof("imported %d variables from %s", count, location)
	return nil
}

func stringifyImported(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// resourceContext renders a resource's properties over a copy of the
// global context. Property templates see the globals, exports from
// earlier resources, and properties declared earlier in the same
// resource.
func (e *Engine) resourceContext(res *internal.Resource) (*template.Context, error) {
	rc := e.globalContext.Clone()

	for i := range res.Props {
		p := &res.Props[i]
		propValue := ""
		hasOwnValue := false

		switch {
		case p.HasValue:
			rendered, err := e.renderValue(p.Value, rc)
			if err != nil {
				return nil, errors.Newf(errors.ErrCodeTemplate,
					"failed to render property %q for resource %q: %v", p.Name, res.Name, err)
			}
			e.logger.Debugf("setting property [%s] to %s", p.Name, rendered)
			rc.Set(p.Name, rendered, template.SourceProperty)
			propValue, hasOwnValue = rendered, true

		case len(p.EnvValues) > 0:
			value, ok := p.EnvValues[e.stackEnv]
			if !ok {
				return nil, errors.Newf(errors.ErrCodeConfig,
					"no value specified for property %q in stack_env %q", p.Name, e.stackEnv)
			}
			rendered, err := e.renderValue(value, rc)
			if err != nil {
				return nil, errors.Newf(errors.ErrCodeTemplate,
					"failed to render property %q for resource %q: %v", p.Name, res.Name, err)
			}
			e.logger.Debugf("setting property [%s] using env-specific value to %s", p.Name, rendered)
			rc.Set(p.Name, rendered, template.SourceProperty)
			propValue, hasOwnValue = rendered, true
		}

		if len(p.Merge) > 0 {
			if err := e.mergeProperty(rc, p, propValue, hasOwnValue); err != nil {
				return nil, err
			}
		}
	}

	return rc, nil
}

// mergeProperty folds the named context values into the property's
// base value. Lists union with left-biased order and no duplicates;
// objects merge shallowly with the right side winning.
func (e *Engine) mergeProperty(rc *template.Context, p *internal.Property, base string, hasBase bool) error {
	e.logger.Debugf("processing merge for [%s]", p.Name)

	var current any
	if hasBase && base != "" {
		// An unparseable base is treated as absent so the first merge
		// item replaces it.
		var parsed any
		if err := json.Unmarshal([]byte(base), &parsed); err == nil {
			current = parsed
		}
	}

	for _, itemName := range p.Merge {
		raw, ok := rc.Lookup(itemName)
		if !ok {
			return errors.Newf(errors.ErrCodeConfig, "merge item %q not found in context", itemName)
		}
		var item any
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return errors.Newf(errors.ErrCodeConfig, "merge item %q value is not valid JSON", itemName)
		}

		merged, err := mergeJSONValues(current, item)
		if err != nil {
			return errors.Newf(errors.ErrCodeConfig,
				"type mismatch or unsupported merge operation on property %q", p.Name)
		}
		current = merged
	}

	data, err := json.Marshal(current)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("failed to serialize merged property %q", p.Name), err)
	}
	rc.Set(p.Name, string(data), template.SourceProperty)
	return nil
}

// mergeJSONValues combines two parsed JSON values. A nil base takes
// the incoming value as-is.
func mergeJSONValues(base, incoming any) (any, error) {
	if base == nil {
		return incoming, nil
	}

	switch b := base.(type) {
	case []any:
		list, ok := incoming.([]any)
		if !ok {
			return nil, fmt.Errorf("cannot merge %T into a list", incoming)
		}
		seen := make(map[string]bool, len(b))
		out := make([]any, 0, len(b)+len(list))
		for _, item := range b {
			key := serializeElement(item)
			if !seen[key] {
				seen[key] = true
				out = append(out, item)
			}
		}
		for _, item := range list {
			key := serializeElement(item)
			if !seen[key] {
				seen[key] = true
				out = append(out, item)
			}
		}
		return out, nil

	case map[string]any:
		obj, ok := incoming.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot merge %T into an object", incoming)
		}
		out := make(map[string]any, len(b)+len(obj))
		for k, v := range b {
			out[k] = v
		}
		for k, v := range obj {
			out[k] = v
		}
		return out, nil

	default:
		return nil, fmt.Errorf("cannot merge into %T", base)
	}
}

func serializeElement(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// renderValue renders a manifest value to its context string form.
// Strings render as templates; mappings and sequences render every
// string leaf and serialize to compact JSON; scalars stringify.
func (e *Engine) renderValue(value any, rc *template.Context) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return e.renderer.Render(v, rc)
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		rendered, err := e.renderStructured(v, rc)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(rendered)
		if err != nil {
			return "", fmt.Errorf("failed to serialize structured value: %w", err)
		}
		return string(data), nil
	}
}

// renderStructured walks a mapping or sequence, rendering each string
// leaf. A rendered leaf that itself holds JSON embeds as structure
// rather than as a quoted string.
func (e *Engine) renderStructured(value any, rc *template.Context) (any, error) {
	switch v := value.(type) {
	case string:
		out, err := e.renderer.Render(v, rc)
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(out)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var embedded any
			if err := json.Unmarshal([]byte(trimmed), &embedded); err == nil {
				return embedded, nil
			}
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rendered, err := e.renderStructured(item, rc)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil

	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			rendered, err := e.renderStructured(item, rc)
			if err != nil {
				return nil, err
			}
			out[key] = rendered
		}
		return out, nil

	default:
		return v, nil
	}
}

// queryVars prepares a context for SQL rendering: values holding JSON
// objects or arrays are re-serialized to their compact form so they
// embed cleanly in statements.
func queryVars(rc *template.Context) *template.Context {
	out := rc.Clone()
	for _, name := range rc.Names() {
		v, _ := rc.Get(name)
		trimmed := strings.TrimSpace(v.Raw)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			continue
		}
		data, err := json.Marshal(parsed)
		if err != nil {
			continue
		}
		v.Raw = string(data)
		out.SetValue(name, v)
	}
	return out
}
