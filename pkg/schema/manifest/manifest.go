// Package manifest provides parsing and validation for stack
// manifests (stackql_manifest.yml).
package manifest

import (
	"github.com/stackql/stackql-deploy/pkg/internal"
)

// FileName is the manifest file name expected inside a stack directory.
const FileName = "stackql_manifest.yml"

// Manifest represents a parsed and validated stack manifest.
type Manifest interface {
	// Name returns the stack name.
	Name() string

	// Description returns the stack description.
	Description() string

	// Providers returns the providers to pull before processing,
	// optionally version-pinned ("google::v24.06.00251").
	Providers() []string

	// Globals returns stack-level variable declarations in order.
	Globals() []internal.Global

	// Resources returns the manifest entries in declaration order.
	Resources() []internal.Resource

	// StackExports returns the names written to the deployment output
	// document.
	StackExports() []string

	// SchemaVersion returns the manifest schema version.
	SchemaVersion() string

	// SourcePath returns where the manifest was loaded from.
	SourcePath() string

	// Internal exposes the backing model for engine use.
	Internal() *internal.Manifest
}

// Loader loads stack manifests from disk or raw bytes.
type Loader interface {
	Load(path string) (Manifest, error)
	LoadFromBytes(data []byte, sourcePath string) (Manifest, error)
	LoadFromStackDir(stackDir string) (Manifest, error)
}
