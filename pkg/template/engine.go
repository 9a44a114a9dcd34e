// Package template renders the {{ variable | filter }} substitution
// language used in manifests and query files. Rendering is strict: a
// reference to a variable that is not in the context is an error rather
// than an empty string, so a typo surfaces before any statement reaches
// the server.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FilterFunc transforms a piped value. Arguments are the already
// resolved filter arguments, in order.
type FilterFunc func(value any, args []any) (any, error)

// Engine renders template strings against a Context.
type Engine struct {
	filters map[string]FilterFunc
}

// New creates an engine with the standard filter set registered.
func New() *Engine {
	return &Engine{
		filters: map[string]FilterFunc{
			"from_json":               filterFromJSON,
			"base64_encode":           filterBase64Encode,
			"merge_lists":             filterMergeLists,
			"merge_objects":           filterMergeObjects,
			"generate_patch_document": filterGeneratePatchDocument,
			"sql_list":                filterSQLList,
			"sql_escape":              filterSQLEscape,
			"default":                 filterDefault,
			"upper":                   filterUpper,
			"lower":                   filterLower,
			"trim":                    filterTrim,
		},
	}
}

// RegisterFilter adds or replaces a named filter.
func (e *Engine) RegisterFilter(name string, fn FilterFunc) {
	e.filters[name] = fn
}

// Render substitutes every {{ ... }} span in template using ctx. The
// builtin "uuid" variable yields a fresh value per Render call and is
// stable across multiple references within the same template.
func (e *Engine) Render(template string, ctx *Context) (string, error) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}

	spans := findSpans(template)
	if len(spans) == 0 {
		return template, nil
	}

	// One uuid per render call, shared by every reference in the template.
	var renderUUID string
	lookup := func(name string) (string, bool) {
		if v, ok := ctx.Lookup(name); ok {
			return v, true
		}
		if name == "uuid" {
			if renderUUID == "" {
				renderUUID = uuid.NewString()
			}
			return renderUUID, true
		}
		return "", false
	}

	var out strings.Builder
	lastEnd := 0
	for _, span := range spans {
		out.WriteString(template[lastEnd:span[0]])

		body := template[span[0]+2 : span[1]-2]
		value, err := e.evaluate(body, lookup)
		if err != nil {
			return "", err
		}
		out.WriteString(stringify(value))
		lastEnd = span[1]
	}
	out.WriteString(template[lastEnd:])

	return out.String(), nil
}

// RenderMap renders a plain string/string context, without provenance.
func (e *Engine) RenderMap(template string, vars map[string]string) (string, error) {
	ctx := NewContext()
	for name, v := range vars {
		ctx.Set(name, v, SourceBuiltin)
	}
	return e.Render(template, ctx)
}

// Spans returns the [start, end) offsets of every {{ ... }} span in s,
// delimiters included. Callers that need to substitute rendered spans
// into a larger expression use this to locate them.
func Spans(s string) [][2]int {
	return findSpans(s)
}

// findSpans locates all {{ ... }} spans in s. Each returned [2]int is
// [start, end) covering the delimiters. Quoted sections inside a span
// are skipped so literals like '}}' do not terminate it early.
func findSpans(s string) [][2]int {
	var spans [][2]int

	i := 0
	for i+1 < len(s) {
		if s[i] != '{' || s[i+1] != '{' {
			i++
			continue
		}

		end := -1
		inSingle := false
		inDouble := false
		for j := i + 2; j < len(s); j++ {
			c := s[j]
			switch {
			case c == '\'' && !inDouble:
				inSingle = !inSingle
			case c == '"' && !inSingle:
				inDouble = !inDouble
			case c == '}' && !inSingle && !inDouble && j+1 < len(s) && s[j+1] == '}':
				end = j + 2
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			// Unterminated span, leave the remainder untouched.
			break
		}
		spans = append(spans, [2]int{i, end})
		i = end
	}

	return spans
}

// evaluate resolves a single expression body: a variable reference
// followed by zero or more pipe filters.
func (e *Engine) evaluate(body string, lookup func(string) (string, bool)) (any, error) {
	segments := splitPipes(body)
	if len(segments) == 0 || strings.TrimSpace(segments[0]) == "" {
		return nil, fmt.Errorf("empty template expression")
	}

	name := strings.TrimSpace(segments[0])

	var value any
	raw, found := lookup(name)
	if found {
		value = raw
	} else if !isVariableName(name) {
		return nil, fmt.Errorf("unsupported template expression %q", name)
	}

	if !found && len(segments) == 1 {
		return nil, fmt.Errorf("variable %q not found in context", name)
	}

	for idx, seg := range segments[1:] {
		filterName, args, err := e.parseFilterCall(seg, lookup)
		if err != nil {
			return nil, err
		}

		// An absent variable is only tolerated when the first filter is
		// default, which supplies the fallback.
		if !found {
			if idx == 0 && filterName == "default" {
				value = nil
				found = true
			} else {
				return nil, fmt.Errorf("variable %q not found in context", name)
			}
		}

		fn, ok := e.filters[filterName]
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", filterName)
		}
		value, err = fn(value, args)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", filterName, err)
		}
	}

	return value, nil
}

// parseFilterCall parses "name" or "name(arg, arg)" and resolves each
// argument: quoted text is a literal, a bare word is a context lookup,
// and digits are numbers.
func (e *Engine) parseFilterCall(seg string, lookup func(string) (string, bool)) (string, []any, error) {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return "", nil, fmt.Errorf("empty filter in pipeline")
	}

	open := strings.IndexByte(seg, '(')
	if open < 0 {
		if !isIdentifier(seg) {
			return "", nil, fmt.Errorf("invalid filter %q", seg)
		}
		return seg, nil, nil
	}

	if !strings.HasSuffix(seg, ")") {
		return "", nil, fmt.Errorf("unterminated filter call %q", seg)
	}
	name := strings.TrimSpace(seg[:open])
	if !isIdentifier(name) {
		return "", nil, fmt.Errorf("invalid filter %q", name)
	}

	var args []any
	for _, rawArg := range splitArgs(seg[open+1 : len(seg)-1]) {
		arg := strings.TrimSpace(rawArg)
		if arg == "" {
			continue
		}
		// Keyword style (other=value) is accepted; only the value matters.
		if eq := strings.IndexByte(arg, '='); eq > 0 && isIdentifier(strings.TrimSpace(arg[:eq])) && !strings.ContainsAny(arg[:eq], "'\"") {
			arg = strings.TrimSpace(arg[eq+1:])
		}

		resolved, err := resolveArg(arg, lookup)
		if err != nil {
			return "", nil, err
		}
		args = append(args, resolved)
	}

	return name, args, nil
}

func resolveArg(arg string, lookup func(string) (string, bool)) (any, error) {
	if len(arg) >= 2 {
		if (arg[0] == '\'' && arg[len(arg)-1] == '\'') || (arg[0] == '"' && arg[len(arg)-1] == '"') {
			return arg[1 : len(arg)-1], nil
		}
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f, nil
	}
	if arg == "true" {
		return true, nil
	}
	if arg == "false" {
		return false, nil
	}
	if isVariableName(arg) {
		v, ok := lookup(arg)
		if !ok {
			return nil, fmt.Errorf("variable %q not found in context", arg)
		}
		return v, nil
	}
	return nil, fmt.Errorf("invalid filter argument %q", arg)
}

// splitPipes splits on | at the top level, honoring quotes and parens.
func splitPipes(s string) []string {
	return splitTopLevel(s, '|')
}

// splitArgs splits on , at the top level, honoring quotes and parens.
func splitArgs(s string) []string {
	return splitTopLevel(s, ',')
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inSingle := false
	inDouble := false
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// isVariableName accepts dotted chains of identifiers. Context keys
// are flat, so a dotted reference looks up its full name.
func isVariableName(s string) bool {
	for _, seg := range strings.Split(s, ".") {
		if !isIdentifier(seg) {
			return false
		}
	}
	return true
}
