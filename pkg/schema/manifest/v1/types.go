// Package v1 implements version 1 of the stack manifest schema.
package v1

import "gopkg.in/yaml.v3"

// ManifestV1 is the YAML shape of a version 1 stackql_manifest.yml.
type ManifestV1 struct {
	Version     int    `yaml:"version,omitempty"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Providers pulled into the server before any resource runs.
	// Entries may pin a version: "google::v24.06.00251".
	Providers []string `yaml:"providers"`

	Globals   []GlobalV1   `yaml:"globals,omitempty"`
	Resources []ResourceV1 `yaml:"resources,omitempty"`

	// Stack-level exports written to the deployment output document.
	Exports []string `yaml:"exports,omitempty"`
}

// GlobalV1 is a stack-level variable declaration.
type GlobalV1 struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Value       yaml.Node `yaml:"value,omitempty"`
}

// ResourceV1 is a single manifest entry.
type ResourceV1 struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`

	// File overrides the query file name derived from Name.
	File string `yaml:"file,omitempty"`

	// SQL is an inline statement for query type resources.
	SQL string `yaml:"sql,omitempty"`

	// Run is the program line for script type resources.
	Run string `yaml:"run,omitempty"`

	// If guards processing; the resource is skipped when it evaluates
	// false.
	If string `yaml:"if,omitempty"`

	SkipValidation bool           `yaml:"skip_validation,omitempty"`
	Auth           map[string]any `yaml:"auth,omitempty"`

	Props []PropertyV1 `yaml:"props,omitempty"`

	// Exports entries are plain names or single-pair {column: name}
	// rename maps. Mixing both forms in one list is rejected.
	Exports   []yaml.Node `yaml:"exports,omitempty"`
	Protected []string    `yaml:"protected,omitempty"`
}

// PropertyV1 is one entry under props.
type PropertyV1 struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Value  yaml.Node                `yaml:"value,omitempty"`
	Values map[string]PropertyValV1 `yaml:"values,omitempty"`
	Merge  []string                 `yaml:"merge,omitempty"`
}

// PropertyValV1 is an environment-keyed property value.
type PropertyValV1 struct {
	Value yaml.Node `yaml:"value"`
}
