package template

import (
	"sort"
	"strings"
)

// Source identifies where a context value came from. Later sources
// shadow earlier ones when contexts are merged.
type Source string

const (
	SourceBuiltin  Source = "builtin"
	SourceEnv      Source = "env"
	SourceGlobal   Source = "global"
	SourceProperty Source = "property"
	SourceExport   Source = "export"
)

// Value is a single template variable with its provenance.
type Value struct {
	Raw       string
	Source    Source
	Protected bool
}

// Display returns the value as it should appear in logs. Protected
// values are masked character for character.
func (v Value) Display() string {
	if v.Protected {
		return strings.Repeat("*", len(v.Raw))
	}
	return v.Raw
}

// Context holds the variables available to template rendering.
type Context struct {
	values map[string]Value
}

// NewContext creates an empty rendering context.
func NewContext() *Context {
	return &Context{values: make(map[string]Value)}
}

// Set stores a value under name, replacing any previous value.
func (c *Context) Set(name, raw string, source Source) {
	c.values[name] = Value{Raw: raw, Source: source}
}

// SetProtected stores a value that must be masked in any log output.
// The raw value is still used verbatim during rendering.
func (c *Context) SetProtected(name, raw string, source Source) {
	c.values[name] = Value{Raw: raw, Source: source, Protected: true}
}

// SetValue stores a prebuilt value under name.
func (c *Context) SetValue(name string, v Value) {
	c.values[name] = v
}

// Get returns the value stored under name.
func (c *Context) Get(name string) (Value, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Lookup returns the raw string stored under name.
func (c *Context) Lookup(name string) (string, bool) {
	v, ok := c.values[name]
	return v.Raw, ok
}

// Has reports whether name is present in the context.
func (c *Context) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Delete removes name from the context.
func (c *Context) Delete(name string) {
	delete(c.values, name)
}

// Len returns the number of variables in the context.
func (c *Context) Len() int {
	return len(c.values)
}

// Names returns all variable names in sorted order.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.values))
	for name := range c.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the context.
func (c *Context) Clone() *Context {
	clone := &Context{values: make(map[string]Value, len(c.values))}
	for name, v := range c.values {
		clone.values[name] = v
	}
	return clone
}

// Merge copies every value from other into this context. Values from
// other win on name collisions.
func (c *Context) Merge(other *Context) {
	if other == nil {
		return
	}
	for name, v := range other.values {
		c.values[name] = v
	}
}

// StringMap returns the raw values keyed by name. Protected values are
// returned unmasked; callers that log must go through Display.
func (c *Context) StringMap() map[string]string {
	m := make(map[string]string, len(c.values))
	for name, v := range c.values {
		m[name] = v.Raw
	}
	return m
}
