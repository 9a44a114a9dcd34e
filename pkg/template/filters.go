package template

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// stringify converts a filter pipeline value to its rendered form.
// Structured values serialize to compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// parseJSON decodes s preserving number literals.
func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// asList coerces a pipeline value to a JSON array, parsing strings.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case string:
		parsed, err := parseJSON(t)
		if err != nil {
			return nil, false
		}
		list, ok := parsed.([]any)
		return list, ok
	default:
		return nil, false
	}
}

// asObject coerces a pipeline value to a JSON object, parsing strings.
func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		parsed, err := parseJSON(t)
		if err != nil {
			return nil, false
		}
		obj, ok := parsed.(map[string]any)
		return obj, ok
	default:
		return nil, false
	}
}

func filterFromJSON(value any, _ []any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string")
	}
	parsed, err := parseJSON(s)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func filterBase64Encode(value any, _ []any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string")
	}
	return base64.StdEncoding.EncodeToString([]byte(s)), nil
}

// filterMergeLists returns the union of the piped list and the argument
// list, de-duplicated by JSON serialization, left side first.
func filterMergeLists(value any, args []any) (any, error) {
	list1, ok := asList(value)
	if !ok {
		return nil, fmt.Errorf("expected an array")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("missing 'other' argument")
	}
	list2, ok := asList(args[0])
	if !ok {
		return nil, fmt.Errorf("'other' must be an array")
	}

	seen := make(map[string]bool)
	merged := make([]any, 0, len(list1)+len(list2))
	for _, item := range append(append([]any{}, list1...), list2...) {
		key, err := json.Marshal(item)
		if err != nil {
			continue
		}
		if !seen[string(key)] {
			seen[string(key)] = true
			merged = append(merged, item)
		}
	}
	return merged, nil
}

// filterMergeObjects shallow-merges the argument object over the piped
// object. Argument keys win.
func filterMergeObjects(value any, args []any) (any, error) {
	obj1, ok := asObject(value)
	if !ok {
		return nil, fmt.Errorf("expected an object")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("missing 'other' argument")
	}
	obj2, ok := asObject(args[0])
	if !ok {
		return nil, fmt.Errorf("'other' must be an object")
	}

	merged := make(map[string]any, len(obj1)+len(obj2))
	for k, v := range obj1 {
		merged[k] = v
	}
	for k, v := range obj2 {
		merged[k] = v
	}
	return merged, nil
}

// filterGeneratePatchDocument builds a Cloud Control API patch document
// from an object: one "add" operation per top-level key. String values
// that parse as JSON are embedded structurally. The result is a JSON
// string, ready to inline into a SQL statement.
func filterGeneratePatchDocument(value any, _ []any) (any, error) {
	obj, ok := asObject(value)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object or JSON string")
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	patch := make([]any, 0, len(obj))
	for _, key := range keys {
		val := obj[key]
		if s, ok := val.(string); ok {
			if parsed, err := parseJSON(s); err == nil {
				val = parsed
			}
		}
		patch = append(patch, map[string]any{
			"op":    "add",
			"path":  "/" + key,
			"value": val,
		})
	}

	b, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// filterSQLList renders a list as a SQL IN clause: ('a','b'). Empty or
// non-list input yields (NULL).
func filterSQLList(value any, _ []any) (any, error) {
	var items []string
	switch v := value.(type) {
	case []any:
		items = make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			} else {
				items = append(items, strings.Trim(stringify(item), `"`))
			}
		}
	case string:
		var parsed []string
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			items = parsed
		} else {
			items = []string{v}
		}
	default:
		return "(NULL)", nil
	}

	if len(items) == 0 {
		return "(NULL)", nil
	}

	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + item + "'"
	}
	return "(" + strings.Join(quoted, ",") + ")", nil
}

func filterSQLEscape(value any, _ []any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string")
	}
	return strings.ReplaceAll(s, "'", "''"), nil
}

// filterDefault substitutes the argument when the piped value is absent
// or empty.
func filterDefault(value any, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing default argument")
	}
	if value == nil {
		return args[0], nil
	}
	if s, ok := value.(string); ok && s == "" {
		return args[0], nil
	}
	return value, nil
}

func filterUpper(value any, _ []any) (any, error) {
	return strings.ToUpper(stringify(value)), nil
}

func filterLower(value any, _ []any) (any, error) {
	return strings.ToLower(stringify(value)), nil
}

func filterTrim(value any, _ []any) (any, error) {
	return strings.TrimSpace(stringify(value)), nil
}
