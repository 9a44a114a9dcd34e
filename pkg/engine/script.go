package engine

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

// runScriptResource renders and runs a script resource's command.
// When the resource declares exports, the script's stdout must be a
// flat JSON object covering every declared name. Dry runs log the
// rendered script and seed placeholder exports so later templates
// resolve.
func (e *Engine) runScriptResource(ctx context.Context, res *internal.Resource, rc *template.Context) error {
	e.logger.Infof("running script for %s...", res.Name)

	if res.Run == "" {
		return errors.New(errors.ErrCodeConfig, "script resource must include 'run' key")
	}

	script, err := e.renderer.Render(res.Run, rc)
	if err != nil {
		return errors.Newf(errors.ErrCodeTemplate,
			"error rendering script for [%s]: %v", res.Name, err)
	}

	if e.dryRun {
		placeholder := make(map[string]string, len(res.Exports))
		for _, exp := range res.Exports {
			placeholder[exp.Name] = "<evaluated>"
		}
		e.exportVars(res, placeholder)

		display := strings.ReplaceAll(script, `""`, `"<evaluated>"`)
		e.logger.Infof("dry run script for [%s]:\n\n%s\n", res.Name, display)
		return nil
	}

	e.logger.Infof("running script for [%s]...", res.Name)

	var exportNames []string
	for _, exp := range res.Exports {
		if !exp.Renamed {
			exportNames = append(exportNames, exp.Name)
		}
	}

	exported, err := e.runExternalScript(ctx, script, exportNames)
	if err != nil {
		return err
	}

	if exported != nil && len(res.Exports) > 0 {
		e.logger.Infof("exported variables from script: %v", exported)
		e.exportVars(res, exported)
	}

	return nil
}

// runExternalScript runs a shell command and, when exports are
// expected, parses its stdout as a flat JSON string map.
func (e *Engine) runExternalScript(ctx context.Context, script string, expectedExports []string) (map[string]string, error) {
	e.logger.Debugf("running external script: %s", script)

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil, errors.Newf(errors.ErrCodeConfig,
				"script failed with status %d: %s", cmd.ProcessState.ExitCode(), stderr.String())
		}
		return nil, errors.Newf(errors.ErrCodeConfig, "script failed: %v", err)
	}

	out := stdout.String()
	e.logger.Debugf("script output: %s", out)

	if len(expectedExports) == 0 {
		return nil, nil
	}

	var exported map[string]string
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		return nil, errors.Newf(errors.ErrCodeConfig, "external scripts must return valid JSON: %s", out)
	}

	for _, name := range expectedExports {
		if _, ok := exported[name]; !ok {
			return nil, errors.Newf(errors.ErrCodeExport,
				"exported variable %q not found in script output", name)
		}
	}

	return exported, nil
}
