package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/stackql/stackql-deploy/pkg/display"
	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/queryfile"
	"github.com/stackql/stackql-deploy/pkg/internal"
)

// TestOptions control a single test run.
type TestOptions struct {
	// OutputFile, when set, receives the stack's exported variables as
	// a JSON document once the run completes.
	OutputFile string
}

// TestResult summarizes a completed test run.
type TestResult struct {
	// Exports holds every variable exported during the run, unmasked.
	Exports map[string]string

	// Duration is the total wall clock time of the run.
	Duration time.Duration
}

// Test validates that every resource in the manifest is in its desired
// state without mutating anything. Exports still propagate, so a test
// run produces the same exported variables as a build run.
func (e *Engine) Test(ctx context.Context, opts TestOptions) (*TestResult, error) {
	start := time.Now()

	e.banner(fmt.Sprintf("Testing stack: [%s] in environment: [%s]", e.stackName, e.stackEnv), display.Yellow)
	e.logger.Infof("testing [%s] in [%s] environment %s", e.stackName, e.stackEnv, e.dryRunSuffix())

	resources := e.manifest.Resources()
	for i := range resources {
		if err := e.testResource(ctx, &resources[i]); err != nil {
			return nil, err
		}
	}

	elapsed := formatElapsed(time.Since(start))
	e.logger.Infof("test completed in %s", elapsed)

	if err := e.writeStackExports(ctx, opts.OutputFile, elapsed); err != nil {
		return nil, err
	}

	return &TestResult{Exports: e.exportedValues(), Duration: time.Since(start)}, nil
}

func (e *Engine) testResource(ctx context.Context, res *internal.Resource) error {
	e.banner(fmt.Sprintf("Processing resource: [%s]", res.Name), display.Blue)

	switch res.Kind {
	case internal.KindQuery:
		e.logger.Infof("exporting variables for [%s]", res.Name)
	case internal.KindResource, internal.KindMulti:
		e.logger.Infof("testing resource [%s], type: %s", res.Name, res.Kind)
	case internal.KindCommand:
		return nil
	default:
		// Scripts only run during a build, there is nothing to assert.
		e.logger.Debugf("skipping resource [%s] (type: %s)", res.Name, res.Kind)
		return nil
	}

	rc, err := e.resourceContext(res)
	if err != nil {
		return err
	}
	qctx := queryVars(rc)

	var inline statement
	hasInline := false
	var queries queryfile.File
	if res.SQL != "" && res.Kind == internal.KindQuery {
		inline, err = e.renderInline(res, qctx)
		if err != nil {
			return err
		}
		hasInline = true
		queries = queryfile.File{}
	} else {
		queries, err = e.loadResourceQueries(res)
		if err != nil {
			return err
		}
	}

	stateFrag, hasState := queries.Get(queryfile.FragmentStateCheck)

	exportsFrag, hasExportsFrag := queries.Get(queryfile.FragmentExports)
	exportsFromInline := false
	hasExportsQuery := hasExportsFrag
	if res.Kind == internal.KindQuery && !hasExportsFrag {
		if !hasInline {
			return errors.New(errors.ErrCodeConfig,
				"inline sql must be supplied or an iql file must be present with an 'exports' anchor for query type resources")
		}
		exportsFromInline = true
		hasExportsQuery = true
	}
	renderExports := func() (statement, error) {
		if exportsFromInline {
			return inline, nil
		}
		return e.renderFragmentStatement(res, exportsFrag, qctx)
	}

	var proxyRows []map[string]string

	if res.Kind == internal.KindResource || res.Kind == internal.KindMulti {
		correctState := false

		switch {
		case res.SkipValidation:
			e.logger.Infof("Skipping statecheck for %s", res.Name)
			correctState = true

		case hasState:
			st, err := e.renderFragmentStatement(res, stateFrag, qctx)
			if err != nil {
				return err
			}
			correctState, err = e.checkResourceState(ctx, res.Name, st)
			if err != nil {
				return err
			}

		case hasExportsQuery:
			e.logger.Infof("using exports query as proxy for statecheck test for [%s]", res.Name)
			st, err := renderExports()
			if err != nil {
				return err
			}
			correct, rows, err := e.checkStateViaExports(ctx, res.Name, st.sql, 1, 0)
			if err != nil {
				return err
			}
			correctState = correct
			proxyRows = rows

		default:
			return errors.New(errors.ErrCodeConfig,
				"iql file must include either 'statecheck' or 'exports' anchor for validation")
		}

		if !correctState && !e.dryRun {
			return errors.Newf(errors.ErrCodeConvergence, "test failed for %s", res.Name)
		}
	}

	if hasExportsQuery {
		if proxyRows != nil && (res.Kind == internal.KindResource || res.Kind == internal.KindMulti) {
			e.logger.Infof("reusing exports result from proxy for [%s]...", res.Name)
			if len(res.Exports) > 0 {
				if err := e.processExportsFromResult(res, proxyRows); err != nil {
					return err
				}
			}
		} else {
			st, err := renderExports()
			if err != nil {
				return err
			}
			if err := e.processExports(ctx, res, st, false); err != nil {
				return err
			}
		}
	}

	if res.Kind == internal.KindResource && !e.dryRun {
		e.logger.Infof("test passed for %s", res.Name)
	}

	return nil
}
