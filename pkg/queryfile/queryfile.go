// Package queryfile parses resource query files (.iql). A query file
// holds one or more SQL templates, each introduced by an anchor comment
// of the form:
//
//	/*+ create, retries=5, retry_delay=10 */
//
// The text after an anchor, up to the next anchor or end of file, is
// the fragment's template. Templates are stored unrendered; variable
// substitution happens at execution time.
package queryfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Well-known fragment names. Files may carry additional anchors; they
// are parsed and kept but nothing dispatches them.
const (
	FragmentExists         = "exists"
	FragmentCreate         = "create"
	FragmentUpdate         = "update"
	FragmentCreateOrUpdate = "createorupdate"
	FragmentStateCheck     = "statecheck"
	FragmentExports        = "exports"
	FragmentDelete         = "delete"
	FragmentCommand        = "command"
)

// Options are the per-fragment retry knobs parsed from anchor
// key=value pairs.
type Options struct {
	Retries              int
	RetryDelay           int
	PostDeleteRetries    int
	PostDeleteRetryDelay int
}

// DefaultOptions returns the options applied when an anchor carries no
// overrides.
func DefaultOptions() Options {
	return Options{
		Retries:              1,
		RetryDelay:           0,
		PostDeleteRetries:    10,
		PostDeleteRetryDelay: 5,
	}
}

// Fragment is one named SQL template from a query file.
type Fragment struct {
	Name     string
	Template string
	Options  Options
}

// File maps fragment names to fragments. Names are lowercased, with
// the preflight and postdeploy aliases normalized to exists and
// statecheck.
type File map[string]Fragment

// Get returns the named fragment.
func (f File) Get(name string) (Fragment, bool) {
	frag, ok := f[name]
	return frag, ok
}

// Has reports whether the named fragment is present.
func (f File) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Load reads and parses a query file from disk.
func Load(path string) (File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file %s: %w", path, err)
	}
	return Parse(string(content)), nil
}

// Parse extracts all anchored fragments from content. Text before the
// first anchor is ignored. An anchor with an empty body yields no
// fragment. Duplicate anchors keep the last occurrence.
func Parse(content string) File {
	file := make(File)

	var current *Fragment
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		sql := strings.TrimSpace(strings.Join(body, "\n"))
		if sql != "" {
			current.Template = sql
			file[current.Name] = *current
		}
		current = nil
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "/*+") && strings.Contains(trimmed, "*/") {
			flush()

			start := strings.Index(trimmed, "/*+") + 3
			end := strings.Index(trimmed, "*/")
			name, opts := parseAnchor(trimmed[start:end])
			if name != "" {
				current = &Fragment{Name: name, Options: opts}
			}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	return file
}

// parseAnchor splits an anchor body into its fragment name and
// options. Unknown option keys and unparseable values are ignored.
func parseAnchor(anchor string) (string, Options) {
	opts := DefaultOptions()

	parts := strings.Split(anchor, ",")
	name := strings.ToLower(strings.TrimSpace(parts[0]))

	switch name {
	case "preflight":
		name = FragmentExists
	case "postdeploy":
		name = FragmentStateCheck
	}

	for _, part := range parts[1:] {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			continue
		}
		switch strings.TrimSpace(key) {
		case "retries":
			opts.Retries = n
		case "retry_delay":
			opts.RetryDelay = n
		case "postdelete_retries":
			opts.PostDeleteRetries = n
		case "postdelete_retry_delay":
			opts.PostDeleteRetryDelay = n
		}
	}

	return name, opts
}
