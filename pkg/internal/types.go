// Package internal holds the version-independent manifest model. The
// engine works against these types; versioned schemas transform into
// them at load time.
package internal

// Kind is the processing category of a manifest entry.
type Kind string

const (
	// KindResource is a singular cloud resource reconciled toward
	// desired state.
	KindResource Kind = "resource"

	// KindMulti is a resource whose statements affect a variable number
	// of underlying objects. Mutations run best-effort and existence is
	// never probed before deletion.
	KindMulti Kind = "multi"

	// KindQuery only reads: it exports values without mutating anything.
	KindQuery Kind = "query"

	// KindScript runs an external program and may capture its JSON
	// output as exports.
	KindScript Kind = "script"

	// KindCommand issues statements without existence or state checks.
	KindCommand Kind = "command"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindResource, KindMulti, KindQuery, KindScript, KindCommand:
		return true
	}
	return false
}

// Manifest is the internal representation of a stack manifest.
type Manifest struct {
	Name        string
	Description string
	Providers   []string
	Globals     []Global
	Resources   []Resource
	Exports     []string

	SourceVersion string
	SourcePath    string
}

// FindResource returns the named resource, or nil.
func (m *Manifest) FindResource(name string) *Resource {
	for i := range m.Resources {
		if m.Resources[i].Name == name {
			return &m.Resources[i]
		}
	}
	return nil
}

// Global is a stack-level variable. Its value may be a scalar or a
// structured YAML value and may reference earlier globals.
type Global struct {
	Name        string
	Description string
	Value       any
}

// Resource is a single manifest entry, processed in declaration order.
type Resource struct {
	Name           string
	Kind           Kind
	Description    string
	File           string
	SQL            string
	Run            string
	Condition      string
	SkipValidation bool
	Auth           map[string]any
	Props          []Property
	Exports        []Export
	Protected      []string
}

// QueryFileName returns the file name holding this resource's query
// fragments, honoring an explicit file override.
func (r *Resource) QueryFileName() string {
	if r.File != "" {
		return r.File
	}
	return r.Name + ".iql"
}

// IsProtected reports whether the named export must be masked in logs.
func (r *Resource) IsProtected(exportName string) bool {
	for _, p := range r.Protected {
		if p == exportName {
			return true
		}
	}
	return false
}

// Property is one entry under a resource's props list. Exactly one of
// Value (HasValue), EnvValues, or Merge-only must drive it; Merge may
// also refine a Value or EnvValues result.
type Property struct {
	Name        string
	Description string
	Value       any
	HasValue    bool
	EnvValues   map[string]any
	Merge       []string
}

// Export declares a value captured from a resource's exports result.
// A plain declaration exports the column under its own name; a rename
// declaration reads SourceColumn and stores it as Name.
type Export struct {
	Name         string
	SourceColumn string
	Renamed      bool
}
