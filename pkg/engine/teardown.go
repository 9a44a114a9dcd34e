package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/stackql/stackql-deploy/pkg/display"
	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/queryfile"
	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

// TeardownResult summarizes a completed teardown run.
type TeardownResult struct {
	// Duration is the total wall clock time of the run.
	Duration time.Duration
}

// Teardown deletes the stack's resources in reverse manifest order.
// Exports for every resource are collected up front, because a delete
// query may reference values exported by a resource that is destroyed
// later in the pass.
func (e *Engine) Teardown(ctx context.Context) (*TeardownResult, error) {
	start := time.Now()

	e.banner(fmt.Sprintf("Tearing down stack: [%s] in environment: [%s]", e.stackName, e.stackEnv), display.Yellow)
	e.logger.Infof("tearing down [%s] in [%s] environment %s", e.stackName, e.stackEnv, e.dryRunSuffix())

	if err := e.collectExports(ctx); err != nil {
		return nil, err
	}

	resources := e.manifest.Resources()
	for i := len(resources) - 1; i >= 0; i-- {
		if err := e.teardownResource(ctx, &resources[i]); err != nil {
			return nil, err
		}
	}

	e.logger.Infof("teardown completed in %s", formatElapsed(time.Since(start)))
	return &TeardownResult{Duration: time.Since(start)}, nil
}

// collectExports walks the resources in declaration order and runs
// each exports query, tolerating missing results for resources that
// were never provisioned.
func (e *Engine) collectExports(ctx context.Context) error {
	e.logger.Infof("collecting exports for [%s] in [%s] environment", e.stackName, e.stackEnv)

	resources := e.manifest.Resources()
	for i := range resources {
		res := &resources[i]
		e.logger.Infof("getting exports for resource [%s]", res.Name)

		rc, err := e.resourceContext(res)
		if err != nil {
			return err
		}

		// Commands export nothing and scripts only export when run.
		if res.Kind == internal.KindCommand || res.Kind == internal.KindScript {
			continue
		}

		qctx := queryVars(rc)

		var st statement
		hasExports := false
		if res.SQL != "" && res.Kind == internal.KindQuery {
			st, err = e.renderInline(res, qctx)
			if err != nil {
				return err
			}
			hasExports = true
		} else {
			queries, err := e.loadResourceQueries(res)
			if err != nil {
				return err
			}
			if frag, ok := queries.Get(queryfile.FragmentExports); ok {
				st, err = e.renderFragmentStatement(res, frag, qctx)
				if err != nil {
					return err
				}
				hasExports = true
			}
		}

		if hasExports && len(res.Exports) > 0 {
			if err := e.processExports(ctx, res, st, true); err != nil {
				return err
			}
		}
	}

	return nil
}

// teardownResource deletes one resource: existence pre-check, delete,
// then a post-delete confirmation with the fragment's more patient
// retry budget.
func (e *Engine) teardownResource(ctx context.Context, res *internal.Resource) error {
	e.banner(fmt.Sprintf("Processing resource: [%s]", res.Name), display.Red)

	if res.Kind != internal.KindResource && res.Kind != internal.KindMulti {
		e.logger.Debugf("skipping resource [%s] (type: %s)", res.Name, res.Kind)
		return nil
	}

	e.logger.Infof("de-provisioning resource [%s], type: %s", res.Name, res.Kind)

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

	// Renamed exports also expose their source column name, so delete
	// queries written against the column still resolve.
	for _, exp := range res.Exports {
		if !exp.Renamed {
			continue
		}
		if value, ok := rc.Get(exp.Name); ok {
			rc.SetValue(exp.SourceColumn, template.Value{
				Raw:       value.Raw,
				Source:    template.SourceExport,
				Protected: value.Protected,
			})
		}
	}

	qctx := queryVars(rc)

	queries, err := e.loadResourceQueries(res)
	if err != nil {
		return err
	}

	// The exists probe falls back to statecheck. The chosen fragment
	// also supplies the post-delete budget.
	existsFrag, ok := queries.Get(queryfile.FragmentExists)
	if !ok {
		if existsFrag, ok = queries.Get(queryfile.FragmentStateCheck); ok {
			e.logger.Infof("exists query not defined for [%s], trying statecheck query as exists query.", res.Name)
		} else {
			e.logger.Infof("No exists or statecheck query for [%s], skipping...", res.Name)
			return nil
		}
	}
	existsStmt, err := e.renderFragmentStatement(res, existsFrag, qctx)
	if err != nil {
		return err
	}

	deleteFrag, ok := queries.Get(queryfile.FragmentDelete)
	if !ok {
		e.logger.Infof("delete query not defined for [%s], skipping...", res.Name)
		return nil
	}
	deleteStmt, err := e.renderFragmentStatement(res, deleteFrag, qctx)
	if err != nil {
		return err
	}

	ignoreErrors := res.Kind == internal.KindMulti

	// Pre-delete existence check. Multi resources affect an unknown
	// number of objects, so existence is never probed for them.
	exists := true
	if res.Kind == internal.KindMulti {
		e.logger.Info("pre-delete check not supported for multi resources, skipping...")
	} else {
		exists, err = e.checkResourceExists(ctx, res.Name, existsStmt, false)
		if err != nil {
			return err
		}
	}

	if !exists {
		e.logger.Infof("resource [%s] does not exist, skipping delete", res.Name)
		return nil
	}

	if err := e.deleteResource(ctx, res.Name, deleteStmt, ignoreErrors); err != nil {
		return err
	}

	// Post-delete confirmation with the patient budget.
	postDelete := statement{
		sql:        existsStmt.sql,
		retries:    existsFrag.Options.PostDeleteRetries,
		retryDelay: existsFrag.Options.PostDeleteRetryDelay,
	}
	deleted, err := e.checkResourceExists(ctx, res.Name, postDelete, true)
	if err != nil {
		return err
	}

	switch {
	case deleted:
		e.logger.Infof("successfully deleted %s", res.Name)
	case e.dryRun:
		// Nothing was dispatched, nothing to confirm.
	case res.Kind == internal.KindMulti:
		// Best-effort deletes cannot be confirmed reliably.
		e.logger.Warnf("could not confirm deletion of %s", res.Name)
	default:
		return errors.Newf(errors.ErrCodeConvergence, "failed to delete %s", res.Name)
	}

	return nil
}
