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

// BuildOptions configures a single deployment run.
type BuildOptions struct {
	// OutputFile, when set, receives the stack export document once
	// the run completes. It may be a local path or a store URL.
	OutputFile string
}

// BuildResult summarizes a completed deployment run.
type BuildResult struct {
	// Exports holds every variable exported during the run, unmasked.
	Exports map[string]string

	// Duration is the total wall clock time of the run.
	Duration time.Duration
}

// Build reconciles every resource in manifest order toward its desired
// state, propagating exports between resources as it goes.
func (e *Engine) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	start := time.Now()

	e.banner(fmt.Sprintf("Deploying stack: [%s] to environment: [%s]", e.stackName, e.stackEnv), display.Yellow)
	e.logger.Infof("deploying [%s] in [%s] environment %s", e.stackName, e.stackEnv, e.dryRunSuffix())

	resources := e.manifest.Resources()
	for i := range resources {
		if err := e.buildResource(ctx, &resources[i]); err != nil {
			return nil, err
		}
	}

	elapsed := formatElapsed(time.Since(start))
	e.logger.Infof("deployment completed in %s", elapsed)

	if err := e.writeStackExports(ctx, opts.OutputFile, elapsed); err != nil {
		return nil, err
	}

	return &BuildResult{
		Exports:  e.exportedValues(),
		Duration: time.Since(start),
	}, nil
}

// buildResource runs the reconciliation state machine for one
// resource.
func (e *Engine) buildResource(ctx context.Context, res *internal.Resource) error {
	e.banner(fmt.Sprintf("Processing resource: [%s]", res.Name), display.Blue)
	e.logger.Infof("processing resource [%s], type: %s", res.Name, res.Kind)

	rc, err := e.resourceContext(res)
	if err != nil {
		return err
	}

	proceed, err := e.evaluateCondition(res, rc)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	if res.Kind == internal.KindScript {
		return e.runScriptResource(ctx, res, rc)
	}

	qctx := queryVars(rc)

	// Inline SQL takes the query file's place for command and query
	// resources.
	var inline statement
	hasInline := false
	var queries queryfile.File
	if res.SQL != "" && (res.Kind == internal.KindCommand || res.Kind == internal.KindQuery) {
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

	isProvisioned := res.Kind == internal.KindResource || res.Kind == internal.KindMulti

	// Provisioning fragments. A createorupdate anchor serves as both
	// create and update.
	var createFrag, updateFrag queryfile.Fragment
	hasCreate, hasUpdate := false, false
	if isProvisioned {
		if frag, ok := queries.Get(queryfile.FragmentCreateOrUpdate); ok {
			createFrag, updateFrag = frag, frag
			hasCreate, hasUpdate = true, true
		} else {
			if frag, ok := queries.Get(queryfile.FragmentCreate); ok {
				createFrag, hasCreate = frag, true
			}
			if frag, ok := queries.Get(queryfile.FragmentUpdate); ok {
				updateFrag, hasUpdate = frag, true
			}
		}
		if !hasCreate {
			return errors.New(errors.ErrCodeConfig, "iql file must include either 'create' or 'createorupdate' anchor")
		}
	}

	// The exports statement comes from the exports anchor, or for
	// query resources from their inline SQL.
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

	if isProvisioned {
		ignoreErrors := res.Kind == internal.KindMulti

		strategy, err := selectStrategy(queries, hasExportsQuery)
		if err != nil {
			return err
		}
		e.logger.Debugf("[%s] using %s strategy", res.Name, strategy)

		resourceExists := false
		correctState := false

		switch strategy {
		case StrategyUpsert:
			// No checks: the upsert statement dispatches below,
			// unconditionally.

		case StrategyStateCheck:
			statecheckFrag, _ := queries.Get(queryfile.FragmentStateCheck)

			if existsFrag, ok := queries.Get(queryfile.FragmentExists); ok {
				st, err := e.renderFragmentStatement(res, existsFrag, qctx)
				if err != nil {
					return err
				}
				resourceExists, err = e.checkResourceExists(ctx, res.Name, st, false)
				if err != nil {
					return err
				}
			} else {
				st, err := e.renderFragmentStatement(res, statecheckFrag, qctx)
				if err != nil {
					return err
				}
				correctState, err = e.checkResourceState(ctx, res.Name, st)
				if err != nil {
					return err
				}
				resourceExists = correctState
			}

			if resourceExists && !correctState {
				if res.SkipValidation {
					e.logger.Infof("skipping validation for [%s] as skip_validation is set to true.", res.Name)
					correctState = true
				} else {
					st, err := e.renderFragmentStatement(res, statecheckFrag, qctx)
					if err != nil {
						return err
					}
					correctState, err = e.checkResourceState(ctx, res.Name, st)
					if err != nil {
						return err
					}
				}
			}

		case StrategyExportsProxy:
			e.logger.Infof("trying exports query first (fast-fail) for optimal validation for [%s]", res.Name)
			st, err := renderExports()
			if err != nil {
				return err
			}
			// The fast probe runs once; the fragment's budget applies
			// only to the post-deploy check.
			correct, rows, err := e.checkStateViaExports(ctx, res.Name, st.sql, 1, 0)
			if err != nil {
				return err
			}
			correctState = correct
			resourceExists = correct

			if correct {
				e.logger.Infof("[%s] validated successfully with fast exports query", res.Name)
				proxyRows = rows
			} else {
				e.logger.Infof("fast exports validation failed, falling back to exists check for [%s]", res.Name)
				if existsFrag, ok := queries.Get(queryfile.FragmentExists); ok {
					st, err := e.renderFragmentStatement(res, existsFrag, qctx)
					if err != nil {
						return err
					}
					resourceExists, err = e.checkResourceExists(ctx, res.Name, st, false)
					if err != nil {
						return err
					}
				}
			}

		case StrategyExistsOnly:
			existsFrag, _ := queries.Get(queryfile.FragmentExists)
			st, err := e.renderFragmentStatement(res, existsFrag, qctx)
			if err != nil {
				return err
			}
			resourceExists, err = e.checkResourceExists(ctx, res.Name, st, false)
			if err != nil {
				return err
			}
		}

		// Mutation
		mutated := false
		if !resourceExists {
			st, err := e.renderFragmentStatement(res, createFrag, qctx)
			if err != nil {
				return err
			}
			mutated, err = e.createResource(ctx, res.Name, st, ignoreErrors)
			if err != nil {
				return err
			}
		} else if !correctState {
			if hasUpdate {
				st, err := e.renderFragmentStatement(res, updateFrag, qctx)
				if err != nil {
					return err
				}
				mutated, err = e.updateResource(ctx, res.Name, st, ignoreErrors)
				if err != nil {
					return err
				}
			} else {
				e.logger.Infof("update query not configured for [%s], skipping update...", res.Name)
			}
		}

		// Post-deploy validation. The upsert strategy never issues a
		// check, and exists-only has nothing to check with.
		if mutated {
			switch strategy {
			case StrategyStateCheck:
				statecheckFrag, _ := queries.Get(queryfile.FragmentStateCheck)
				st, err := e.renderFragmentStatement(res, statecheckFrag, qctx)
				if err != nil {
					return err
				}
				correctState, err = e.checkResourceState(ctx, res.Name, st)
				if err != nil {
					return err
				}

			case StrategyExportsProxy:
				e.logger.Infof("using exports query as post-deploy statecheck for [%s]", res.Name)
				st, err := renderExports()
				if err != nil {
					return err
				}
				correct, rows, err := e.checkStateViaExports(ctx, res.Name, st.sql, st.retries, st.retryDelay)
				if err != nil {
					return err
				}
				correctState = correct
				if rows != nil {
					proxyRows = rows
				}
			}
		}

		// Convergence gate: only strategies with a validation avenue
		// can fail it.
		if (strategy == StrategyStateCheck || strategy == StrategyExportsProxy) && !correctState && !e.dryRun {
			return errors.Newf(errors.ErrCodeConvergence, "deployment failed for %s after post-deploy checks", res.Name)
		}
	}

	if res.Kind == internal.KindCommand {
		var st statement
		switch {
		case hasInline:
			st = inline
		default:
			frag, ok := queries.Get(queryfile.FragmentCommand)
			if !ok {
				return errors.New(errors.ErrCodeConfig,
					"'sql' should be defined in the resource or the 'command' anchor needs to be supplied in the corresponding iql file for command type resources")
			}
			st, err = e.renderFragmentStatement(res, frag, qctx)
			if err != nil {
				return err
			}
		}
		if err := e.runCommandStatement(ctx, st); err != nil {
			return err
		}
	}

	// Export processing, reusing the proxy result when the state probe
	// already fetched it.
	if hasExportsQuery {
		if proxyRows != nil && isProvisioned {
			e.logger.Infof("reusing exports result from proxy for [%s]...", res.Name)
			if len(res.Exports) > 0 {
				if err := e.processExportsFromResult(res, proxyRows); err != nil {
					return err
				}
			}
		} else if len(res.Exports) > 0 {
			st, err := renderExports()
			if err != nil {
				return err
			}
			if err := e.processExports(ctx, res, st, false); err != nil {
				return err
			}
		}
	}

	if !e.dryRun {
		switch res.Kind {
		case internal.KindResource:
			e.logger.Infof("successfully deployed %s", res.Name)
		case internal.KindQuery:
			e.logger.Infof("successfully exported variables for query in %s", res.Name)
		}
	}

	return nil
}
