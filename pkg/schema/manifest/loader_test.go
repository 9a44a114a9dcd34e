package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackql/stackql-deploy/pkg/internal"
)

const sampleManifest = `
version: 1
name: activity-monitor
description: AWS activity monitor stack
providers:
  - aws
  - google::v24.06.00251
globals:
  - name: region
    description: default region
    value: "{{ AWS_REGION }}"
  - name: global_tags
    value:
      - Key: Provisioner
        Value: stackql
resources:
  - name: example_vpc
    description: example vpc
    props:
      - name: vpc_cidr_block
        values:
          prd:
            value: "10.0.0.0/16"
          sit:
            value: "10.1.0.0/16"
      - name: vpc_tags
        value:
          - Key: Name
            Value: "{{ stack_name }}-{{ stack_env }}-vpc"
        merge:
          - global_tags
    exports:
      - vpc_id
  - name: route_table_main
    type: query
    if: "stack_env == 'prd'"
    exports:
      - route_table_id: main_route_table_id
    protected:
      - main_route_table_id
  - name: setup_script
    type: script
    run: ./scripts/setup.sh
exports:
  - vpc_id
`

func TestLoader_LoadFromBytes(t *testing.T) {
	loader := NewLoader()

	m, err := loader.LoadFromBytes([]byte(sampleManifest), "stackql_manifest.yml")
	require.NoError(t, err)

	assert.Equal(t, "activity-monitor", m.Name())
	assert.Equal(t, []string{"aws", "google::v24.06.00251"}, m.Providers())
	assert.Equal(t, "1", m.SchemaVersion())
	assert.Equal(t, []string{"vpc_id"}, m.StackExports())

	globals := m.Globals()
	require.Len(t, globals, 2)
	assert.Equal(t, "region", globals[0].Name)
	assert.Equal(t, "{{ AWS_REGION }}", globals[0].Value)

	resources := m.Resources()
	require.Len(t, resources, 3)

	vpc := resources[0]
	assert.Equal(t, internal.KindResource, vpc.Kind, "type defaults to resource")
	assert.Equal(t, "example_vpc.iql", vpc.QueryFileName())
	require.Len(t, vpc.Props, 2)

	cidr := vpc.Props[0]
	assert.False(t, cidr.HasValue)
	require.Contains(t, cidr.EnvValues, "prd")
	assert.Equal(t, "10.0.0.0/16", cidr.EnvValues["prd"])

	tags := vpc.Props[1]
	assert.True(t, tags.HasValue)
	assert.Equal(t, []string{"global_tags"}, tags.Merge)

	require.Len(t, vpc.Exports, 1)
	assert.Equal(t, internal.Export{Name: "vpc_id", SourceColumn: "vpc_id"}, vpc.Exports[0])

	rt := resources[1]
	assert.Equal(t, internal.KindQuery, rt.Kind)
	assert.Equal(t, "stack_env == 'prd'", rt.Condition)
	require.Len(t, rt.Exports, 1)
	assert.Equal(t, internal.Export{
		Name:         "main_route_table_id",
		SourceColumn: "route_table_id",
		Renamed:      true,
	}, rt.Exports[0])
	assert.True(t, rt.IsProtected("main_route_table_id"))
	assert.False(t, rt.IsProtected("route_table_id"))

	script := resources[2]
	assert.Equal(t, internal.KindScript, script.Kind)
	assert.Equal(t, "./scripts/setup.sh", script.Run)
}

func TestLoader_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantIn   string
	}{
		{
			name:     "missing stack name",
			manifest: "providers: [aws]\n",
			wantIn:   "stack name is required",
		},
		{
			name:     "missing providers",
			manifest: "name: demo\n",
			wantIn:   "at least one provider is required",
		},
		{
			name: "unknown resource type",
			manifest: `
name: demo
providers: [aws]
resources:
  - name: thing
    type: widget
`,
			wantIn: "got 'widget'",
		},
		{
			name: "script without run",
			manifest: `
name: demo
providers: [aws]
resources:
  - name: setup
    type: script
`,
			wantIn: "require a run command",
		},
		{
			name: "property without value",
			manifest: `
name: demo
providers: [aws]
resources:
  - name: thing
    props:
      - name: empty_prop
`,
			wantIn: "has no value, values, or merge",
		},
		{
			name: "mixed export forms",
			manifest: `
name: demo
providers: [aws]
resources:
  - name: thing
    exports:
      - plain_name
      - col: renamed
`,
			wantIn: "cannot mix plain names and rename maps",
		},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadFromBytes([]byte(tt.manifest), "stackql_manifest.yml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantIn)
		})
	}
}

func TestLoader_UnsupportedVersion(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadFromBytes([]byte("version: 2\nname: demo\nproviders: [aws]\n"), "stackql_manifest.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported manifest version: 2")
}

func TestLoader_LoadFromStackDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(sampleManifest), 0o644))

	loader := NewLoader()
	m, err := loader.LoadFromStackDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), m.SourcePath())

	_, err = loader.LoadFromStackDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
