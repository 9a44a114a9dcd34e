package engine

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/queryfile"
	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

// statement is a rendered SQL string with the retry budget of the
// fragment that produced it.
type statement struct {
	sql        string
	retries    int
	retryDelay int
}

// loadResourceQueries loads the fragments for a resource from its
// query file under <stackDir>/resources. Fragments stay unrendered
// until the moment they are dispatched, so an anchor that references a
// variable produced later in the run does not fail prematurely.
func (e *Engine) loadResourceQueries(res *internal.Resource) (queryfile.File, error) {
	path := filepath.Join(e.stackDir, "resources", res.QueryFileName())
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Newf(errors.ErrCodeConfig, "query file not found: %s", path)
	}

	file, err := queryfile.Load(path)
	if err != nil {
		return nil, errors.ParseError(path, err)
	}

	e.logger.Debugf("queries for [%s]: %v", res.Name, fragmentNames(file))
	return file, nil
}

// renderFragment renders one fragment against the prepared query
// context.
func (e *Engine) renderFragment(res *internal.Resource, frag queryfile.Fragment, qctx *template.Context) (string, error) {
	e.logger.Debugf("[%s] [%s] query template:\n\n%s\n", res.Name, frag.Name, frag.Template)

	rendered, err := e.renderer.Render(frag.Template, qctx)
	if err != nil {
		return "", errors.Newf(errors.ErrCodeTemplate,
			"error rendering query for [%s] [%s]: %v", res.Name, frag.Name, err)
	}

	e.logger.Debugf("[%s] [%s] rendered query:\n\n%s\n", res.Name, frag.Name, rendered)
	return rendered, nil
}

// renderFragmentStatement renders a fragment and pairs it with its
// retry budget.
func (e *Engine) renderFragmentStatement(res *internal.Resource, frag queryfile.Fragment, qctx *template.Context) (statement, error) {
	sql, err := e.renderFragment(res, frag, qctx)
	if err != nil {
		return statement{}, err
	}
	return statement{
		sql:        sql,
		retries:    frag.Options.Retries,
		retryDelay: frag.Options.RetryDelay,
	}, nil
}

// renderInline renders SQL declared directly on a resource. Inline
// statements run once with no retry delay.
func (e *Engine) renderInline(res *internal.Resource, qctx *template.Context) (statement, error) {
	e.logger.Debugf("[%s] inline template:\n\n%s\n", res.Name, res.SQL)

	rendered, err := e.renderer.Render(res.SQL, qctx)
	if err != nil {
		return statement{}, errors.Newf(errors.ErrCodeTemplate,
			"error rendering inline template for [%s]: %v", res.Name, err)
	}

	e.logger.Debugf("[%s] rendered inline template:\n\n%s\n", res.Name, rendered)
	return statement{sql: rendered, retries: 1, retryDelay: 0}, nil
}

func fragmentNames(file queryfile.File) []string {
	names := make([]string, 0, len(file))
	for name := range file {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
