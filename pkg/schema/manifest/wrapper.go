package manifest

import (
	"github.com/stackql/stackql-deploy/pkg/internal"
)

// manifestWrapper adapts an internal.Manifest to the Manifest
// interface.
type manifestWrapper struct {
	m *internal.Manifest
}

func (w *manifestWrapper) Name() string                  { return w.m.Name }
func (w *manifestWrapper) Description() string           { return w.m.Description }
func (w *manifestWrapper) Providers() []string           { return w.m.Providers }
func (w *manifestWrapper) Globals() []internal.Global    { return w.m.Globals }
func (w *manifestWrapper) Resources() []internal.Resource { return w.m.Resources }
func (w *manifestWrapper) StackExports() []string        { return w.m.Exports }
func (w *manifestWrapper) SchemaVersion() string         { return w.m.SourceVersion }
func (w *manifestWrapper) SourcePath() string            { return w.m.SourcePath }
func (w *manifestWrapper) Internal() *internal.Manifest  { return w.m }
