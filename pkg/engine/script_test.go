package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

func scriptResource(run string, exports ...string) *internal.Resource {
	res := &internal.Resource{Name: "setup", Kind: internal.KindScript, Run: run}
	for _, name := range exports {
		res.Exports = append(res.Exports, internal.Export{Name: name})
	}
	return res
}

func TestRunScriptResourceCapturesJSONExports(t *testing.T) {
	e := newBareEngine(nil)
	res := scriptResource(`echo '{"build_id": "bld-1", "extra": "kept"}'`, "build_id")

	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.NoError(t, err)

	// Every key in the script's output is exported, not just the
	// declared ones.
	value, ok := e.globalContext.Get("build_id")
	require.True(t, ok)
	assert.Equal(t, "bld-1", value.Raw)
}

func TestRunScriptResourceRendersTemplates(t *testing.T) {
	e := newBareEngine(nil)
	rc := template.NewContext()
	rc.Set("greeting", "hello", template.SourceGlobal)
	res := scriptResource(`echo "{\"message\": \"{{ greeting }}\"}"`, "message")

	err := e.runScriptResource(context.Background(), res, rc)
	require.NoError(t, err)

	value, ok := e.globalContext.Get("message")
	require.True(t, ok)
	assert.Equal(t, "hello", value.Raw)
}

func TestRunScriptResourceMissingRunFails(t *testing.T) {
	e := newBareEngine(nil)
	res := &internal.Resource{Name: "setup", Kind: internal.KindScript}

	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script resource must include 'run' key")
}

func TestRunScriptResourceRenderFailureFails(t *testing.T) {
	e := newBareEngine(nil)
	res := scriptResource(`echo "{{ never_defined }}"`)

	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error rendering script for [setup]")
}

func TestRunScriptResourceExitCodeFails(t *testing.T) {
	e := newBareEngine(nil)
	res := scriptResource(`echo "boom" >&2; exit 3`)

	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script failed with status 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestRunScriptResourceInvalidJSONFails(t *testing.T) {
	e := newBareEngine(nil)
	res := scriptResource(`echo "not json"`, "build_id")

	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external scripts must return valid JSON")
}

func TestRunScriptResourceMissingExportFails(t *testing.T) {
	e := newBareEngine(nil)
	res := scriptResource(`echo '{"other": "x"}'`, "build_id")

	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `exported variable "build_id" not found in script output`)
}

func TestRunScriptResourceWithoutExportsIgnoresOutput(t *testing.T) {
	e := newBareEngine(nil)
	res := scriptResource(`echo "plain text, not json"`)

	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.NoError(t, err)
	assert.Empty(t, e.exportedValues())
}

func TestRunScriptResourceDryRunSeedsPlaceholders(t *testing.T) {
	e := newBareEngine(nil)
	e.dryRun = true
	res := scriptResource(`exit 1`, "build_id")

	// The script itself never runs during a dry run.
	err := e.runScriptResource(context.Background(), res, template.NewContext())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"build_id": "<evaluated>"}, e.exportedValues())
}
