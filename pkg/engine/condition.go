package engine

import (
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

// evaluateCondition decides whether a resource takes part in the run.
// An absent condition always passes. Template spans inside the
// expression render first and substitute as typed literals, so both of
// these forms work:
//
//	if: "{{ stack_env }} == 'prd'"
//	if: "stack_env == 'prd'"
//
// A false condition logs a skip; a condition that fails to evaluate or
// does not yield a boolean is fatal.
func (e *Engine) evaluateCondition(res *internal.Resource, rc *template.Context) (bool, error) {
	condition := strings.TrimSpace(res.Condition)
	if condition == "" {
		return true, nil
	}

	prepared, err := e.prepareConditionExpr(condition, rc)
	if err != nil {
		return false, errors.Newf(errors.ErrCodeConfig,
			"error evaluating condition for resource [%s]: %v", res.Name, err)
	}

	env := make(map[string]any)
	for name, value := range rc.StringMap() {
		env[name] = value
	}

	result, err := expr.Eval(prepared, env)
	if err != nil {
		return false, errors.Newf(errors.ErrCodeConfig,
			"error evaluating condition for resource [%s]: %v", res.Name, err)
	}

	pass, ok := result.(bool)
	if !ok {
		return false, errors.Newf(errors.ErrCodeConfig,
			"error evaluating condition for resource [%s]: expression %q is not a boolean", res.Name, prepared)
	}

	if !pass {
		e.logger.Infof("skipping resource [%s] due to condition: %s", res.Name, res.Condition)
	}
	return pass, nil
}

// prepareConditionExpr renders each {{ ... }} span in the condition
// and substitutes the result as a literal the expression language
// understands: booleans and numbers stay bare, everything else becomes
// a quoted string.
func (e *Engine) prepareConditionExpr(condition string, rc *template.Context) (string, error) {
	spans := template.Spans(condition)
	if len(spans) == 0 {
		return condition, nil
	}

	var out strings.Builder
	lastEnd := 0
	for _, span := range spans {
		out.WriteString(condition[lastEnd:span[0]])

		rendered, err := e.renderer.Render(condition[span[0]:span[1]], rc)
		if err != nil {
			return "", err
		}
		out.WriteString(conditionLiteral(rendered))
		lastEnd = span[1]
	}
	out.WriteString(condition[lastEnd:])

	return out.String(), nil
}

// conditionLiteral converts a rendered span value into an expression
// literal.
func conditionLiteral(value string) string {
	trimmed := strings.TrimSpace(value)
	switch trimmed {
	case "True", "true":
		return "true"
	case "False", "false":
		return "false"
	}
	if _, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return trimmed
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return trimmed
	}

	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}
