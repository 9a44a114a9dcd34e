package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

func prop(name string, value any) internal.Property {
	return internal.Property{Name: name, Value: value, HasValue: true}
}

func TestResourceContextRendersProperties(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("region", "us-east-1", template.SourceGlobal)

	res := &internal.Resource{
		Name: "example_vpc",
		Props: []internal.Property{
			prop("vpc_name", "{{ stack_name }}-vpc"),
			prop("subnet_name", "{{ vpc_name }}-subnet-{{ region }}"),
		},
	}
	e.globalContext.Set("stack_name", "demo-stack", template.SourceBuiltin)

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	name, _ := rc.Lookup("vpc_name")
	assert.Equal(t, "demo-stack-vpc", name)

	// Properties declared earlier in the same resource are visible.
	subnet, _ := rc.Lookup("subnet_name")
	assert.Equal(t, "demo-stack-vpc-subnet-us-east-1", subnet)

	// The global context itself is untouched.
	assert.False(t, e.globalContext.Has("vpc_name"))
}

func TestResourceContextScalarValues(t *testing.T) {
	e := newBareEngine(nil)

	res := &internal.Resource{
		Name: "cluster",
		Props: []internal.Property{
			prop("node_count", 3),
			prop("auto_scale", true),
			prop("cpu_limit", 1.5),
		},
	}

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	count, _ := rc.Lookup("node_count")
	assert.Equal(t, "3", count)
	scale, _ := rc.Lookup("auto_scale")
	assert.Equal(t, "true", scale)
	cpu, _ := rc.Lookup("cpu_limit")
	assert.Equal(t, "1.5", cpu)
}

func TestResourceContextStructuredValue(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("stack_env", "dev", template.SourceBuiltin)

	res := &internal.Resource{
		Name: "example_vpc",
		Props: []internal.Property{
			prop("vpc_tags", []any{
				map[string]any{"Key": "Name", "Value": "vpc-{{ stack_env }}"},
			}),
		},
	}

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	tags, _ := rc.Lookup("vpc_tags")
	assert.JSONEq(t, `[{"Key":"Name","Value":"vpc-dev"}]`, tags)
}

func TestResourceContextEmbedsRenderedJSONLeaf(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("extra_tag", `{"Key":"Team","Value":"platform"}`, template.SourceGlobal)

	res := &internal.Resource{
		Name: "example_vpc",
		Props: []internal.Property{
			prop("vpc_tags", []any{"{{ extra_tag }}"}),
		},
	}

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	// A leaf that renders to JSON embeds as structure, not as a quoted
	// string.
	tags, _ := rc.Lookup("vpc_tags")
	assert.JSONEq(t, `[{"Key":"Team","Value":"platform"}]`, tags)
}

func TestResourceContextEnvironmentValues(t *testing.T) {
	e := newBareEngine(nil)
	e.stackEnv = "prd"

	res := &internal.Resource{
		Name: "example_vpc",
		Props: []internal.Property{
			{
				Name: "vpc_cidr_block",
				EnvValues: map[string]any{
					"prd": "10.0.0.0/16",
					"sit": "10.1.0.0/16",
				},
			},
		},
	}

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	cidr, _ := rc.Lookup("vpc_cidr_block")
	assert.Equal(t, "10.0.0.0/16", cidr)
}

func TestResourceContextMissingEnvironmentValueFails(t *testing.T) {
	e := newBareEngine(nil)
	e.stackEnv = "dev"

	res := &internal.Resource{
		Name: "example_vpc",
		Props: []internal.Property{
			{
				Name:      "vpc_cidr_block",
				EnvValues: map[string]any{"prd": "10.0.0.0/16"},
			},
		},
	}

	_, err := e.resourceContext(res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no value specified for property "vpc_cidr_block" in stack_env "dev"`)
}

func TestResourceContextUnknownVariableFails(t *testing.T) {
	e := newBareEngine(nil)

	res := &internal.Resource{
		Name:  "example_vpc",
		Props: []internal.Property{prop("vpc_name", "{{ not_defined }}")},
	}

	_, err := e.resourceContext(res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to render property "vpc_name"`)
}

func TestMergePropertyListUnion(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("global_tags",
		`[{"Key":"Provisioner","Value":"stackql"},{"Key":"Name","Value":"base"}]`, template.SourceGlobal)

	res := &internal.Resource{
		Name: "example_vpc",
		Props: []internal.Property{
			{
				Name:     "vpc_tags",
				Value:    []any{map[string]any{"Key": "Name", "Value": "base"}},
				HasValue: true,
				Merge:    []string{"global_tags"},
			},
		},
	}

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	// Union keeps the base order and drops duplicate elements.
	tags, _ := rc.Lookup("vpc_tags")
	assert.JSONEq(t,
		`[{"Key":"Name","Value":"base"},{"Key":"Provisioner","Value":"stackql"}]`, tags)
}

func TestMergePropertyObjects(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("base_config", `{"size":"small","tier":"free"}`, template.SourceGlobal)

	res := &internal.Resource{
		Name: "db",
		Props: []internal.Property{
			{
				Name:     "config",
				Value:    map[string]any{"size": "large"},
				HasValue: true,
				Merge:    []string{"base_config"},
			},
		},
	}

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	// The merged item wins on key collisions.
	config, _ := rc.Lookup("config")
	assert.JSONEq(t, `{"size":"small","tier":"free"}`, config)
}

func TestMergePropertyWithoutBase(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("first", `["a","b"]`, template.SourceGlobal)
	e.globalContext.Set("second", `["b","c"]`, template.SourceGlobal)

	res := &internal.Resource{
		Name: "thing",
		Props: []internal.Property{
			{Name: "combined", Merge: []string{"first", "second"}},
		},
	}

	rc, err := e.resourceContext(res)
	require.NoError(t, err)

	combined, _ := rc.Lookup("combined")
	assert.JSONEq(t, `["a","b","c"]`, combined)
}

func TestMergePropertyItemNotFoundFails(t *testing.T) {
	e := newBareEngine(nil)

	res := &internal.Resource{
		Name: "thing",
		Props: []internal.Property{
			{Name: "combined", Merge: []string{"missing_item"}},
		},
	}

	_, err := e.resourceContext(res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `merge item "missing_item" not found in context`)
}

func TestMergePropertyItemNotJSONFails(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("broken", "not json at all", template.SourceGlobal)

	res := &internal.Resource{
		Name: "thing",
		Props: []internal.Property{
			{Name: "combined", Merge: []string{"broken"}},
		},
	}

	_, err := e.resourceContext(res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `merge item "broken" value is not valid JSON`)
}

func TestMergePropertyTypeMismatchFails(t *testing.T) {
	e := newBareEngine(nil)
	e.globalContext.Set("an_object", `{"a":1}`, template.SourceGlobal)

	res := &internal.Resource{
		Name: "thing",
		Props: []internal.Property{
			{
				Name:     "combined",
				Value:    []any{"x"},
				HasValue: true,
				Merge:    []string{"an_object"},
			},
		},
	}

	_, err := e.resourceContext(res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `type mismatch or unsupported merge operation on property "combined"`)
}

func TestQueryVarsCompactsJSONValues(t *testing.T) {
	rc := template.NewContext()
	rc.Set("tags", "[\n  {\"Key\": \"Name\",  \"Value\": \"demo\"}\n]", template.SourceProperty)
	rc.Set("config", "{\n  \"size\": \"small\"\n}", template.SourceProperty)
	rc.Set("plain", "hello world", template.SourceProperty)
	rc.Set("almost", "{not valid json", template.SourceProperty)

	out := queryVars(rc)

	tags, _ := out.Lookup("tags")
	assert.Equal(t, `[{"Key":"Name","Value":"demo"}]`, tags)

	config, _ := out.Lookup("config")
	assert.Equal(t, `{"size":"small"}`, config)

	// Non-JSON values pass through untouched.
	plain, _ := out.Lookup("plain")
	assert.Equal(t, "hello world", plain)
	almost, _ := out.Lookup("almost")
	assert.Equal(t, "{not valid json", almost)

	// The input context is not modified.
	original, _ := rc.Lookup("tags")
	assert.Contains(t, original, "\n")
}
