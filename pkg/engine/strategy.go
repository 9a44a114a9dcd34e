package engine

import (
	"context"

	"github.com/stackql/stackql-deploy/pkg/engine/executor"
	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/queryfile"
)

// Strategy is how a resource's existence and state are established
// before and after mutation. It is selected once per resource from the
// anchors its query file carries.
type Strategy int

const (
	// StrategyUpsert dispatches the createorupdate statement
	// unconditionally and performs no checks at all. The statement is
	// assumed idempotent at the SQL layer.
	StrategyUpsert Strategy = iota

	// StrategyStateCheck probes existence, compares live state against
	// desired with the statecheck query, and re-runs the statecheck
	// after mutating.
	StrategyStateCheck

	// StrategyExportsProxy runs the exports query as a fast state
	// probe. A clean row means present and correct, and the row is
	// retained for export processing; anything else falls back to the
	// exists query.
	StrategyExportsProxy

	// StrategyExistsOnly only probes existence. With no way to compare
	// state, an existing resource is always updated and a mutation is
	// not re-validated.
	StrategyExistsOnly
)

func (s Strategy) String() string {
	switch s {
	case StrategyUpsert:
		return "upsert"
	case StrategyStateCheck:
		return "statecheck"
	case StrategyExportsProxy:
		return "exports-proxy"
	case StrategyExistsOnly:
		return "exists-only"
	}
	return "unknown"
}

// selectStrategy picks the convergence strategy for a resource. The
// precedence order is fixed: createorupdate, then statecheck, then
// exports, then exists. A resource with none of those anchors cannot
// be reconciled.
func selectStrategy(queries queryfile.File, hasExportsQuery bool) (Strategy, error) {
	switch {
	case queries.Has(queryfile.FragmentCreateOrUpdate):
		return StrategyUpsert, nil
	case queries.Has(queryfile.FragmentStateCheck):
		return StrategyStateCheck, nil
	case hasExportsQuery:
		return StrategyExportsProxy, nil
	case queries.Has(queryfile.FragmentExists):
		return StrategyExistsOnly, nil
	default:
		return 0, errors.New(errors.ErrCodeConfig,
			"iql file must include either 'exists', 'statecheck', or 'exports' anchor")
	}
}

// checkResourceExists probes for the resource with the exists query.
// With deleteTest set the probe is inverted: it passes once the
// resource is gone. A dry run logs the query and reports the probe as
// failed so the caller's dry-run path continues.
func (e *Engine) checkResourceExists(ctx context.Context, name string, st statement, deleteTest bool) (bool, error) {
	checkType := "exists"
	if deleteTest {
		checkType = "post-delete"
	}

	if e.dryRun {
		e.logger.Infof("dry run %s check for [%s]:\n\n/* exists query */\n%s\n", checkType, name, st.sql)
		return false, nil
	}

	e.logger.Infof("running %s check for [%s]...", checkType, name)
	return e.exec.PerformRetries(ctx, name, st.sql, st.retries, secs(st.retryDelay), deleteTest)
}

// checkResourceState runs the statecheck query and reports whether the
// live state matches desired. Dry runs report the state as already
// correct.
func (e *Engine) checkResourceState(ctx context.Context, name string, st statement) (bool, error) {
	if e.dryRun {
		e.logger.Infof("dry run state check for [%s]:\n\n/* state check query */\n%s\n", name, st.sql)
		return true, nil
	}

	e.logger.Infof("running state check for [%s]...", name)
	correct, err := e.exec.PerformRetries(ctx, name, st.sql, st.retries, secs(st.retryDelay), false)
	if err != nil {
		return false, err
	}

	if correct {
		e.logger.Infof("[%s] is in the desired state", name)
	} else {
		e.logger.Infof("[%s] is not in the desired state", name)
	}
	return correct, nil
}

// checkStateViaExports runs the exports query as a state probe. A
// non-empty result with no error marker means the resource is present
// and correct; the rows are returned so export processing can reuse
// them without a second round trip.
func (e *Engine) checkStateViaExports(ctx context.Context, name, sql string, retries, retryDelay int) (bool, []map[string]string, error) {
	if e.dryRun {
		e.logger.Infof("dry run state check using exports proxy for [%s]:\n\n/* exports as statecheck proxy */\n%s\n", name, sql)
		return true, nil, nil
	}

	e.logger.Infof("running state check using exports proxy for [%s]...", name)
	rows, err := e.exec.Query(ctx, sql, executor.QueryOptions{
		Retries:        retries,
		RetryDelay:     secs(retryDelay),
		SuppressErrors: true,
	})
	if err != nil {
		return false, nil, err
	}

	if len(rows) > 0 && !rowIndicatesError(rows[0]) {
		e.logger.Infof("[%s] exports proxy indicates resource is in the desired state", name)
		return true, rows, nil
	}

	e.logger.Infof("[%s] exports proxy indicates resource is not in the desired state", name)
	return false, nil, nil
}

// createResource dispatches the create statement. The returned bool
// reports whether a mutation actually went to the server.
func (e *Engine) createResource(ctx context.Context, name string, st statement, ignoreErrors bool) (bool, error) {
	if e.dryRun {
		e.logger.Infof("dry run create for [%s]:\n\n/* insert (create) query */\n%s\n", name, st.sql)
		return false, nil
	}

	e.logger.Infof("[%s] does not exist, creating...", name)
	msg, err := e.exec.Command(ctx, st.sql, executor.CommandOptions{
		Retries:      st.retries,
		RetryDelay:   secs(st.retryDelay),
		IgnoreErrors: ignoreErrors,
	})
	if err != nil {
		return false, err
	}

	e.logger.Debugf("create response: %s", msg)
	return true, nil
}

// updateResource dispatches the update statement. The returned bool
// reports whether a mutation actually went to the server.
func (e *Engine) updateResource(ctx context.Context, name string, st statement, ignoreErrors bool) (bool, error) {
	if e.dryRun {
		e.logger.Infof("dry run update for [%s]:\n\n/* update query */\n%s\n", name, st.sql)
		return false, nil
	}

	e.logger.Infof("updating [%s]...", name)
	msg, err := e.exec.Command(ctx, st.sql, executor.CommandOptions{
		Retries:      st.retries,
		RetryDelay:   secs(st.retryDelay),
		IgnoreErrors: ignoreErrors,
	})
	if err != nil {
		return false, err
	}

	e.logger.Debugf("update response: %s", msg)
	return true, nil
}

// deleteResource dispatches the delete statement.
func (e *Engine) deleteResource(ctx context.Context, name string, st statement, ignoreErrors bool) error {
	if e.dryRun {
		e.logger.Infof("dry run delete for [%s]:\n\n%s\n", name, st.sql)
		return nil
	}

	e.logger.Infof("deleting [%s]...", name)
	msg, err := e.exec.Command(ctx, st.sql, executor.CommandOptions{
		Retries:      st.retries,
		RetryDelay:   secs(st.retryDelay),
		IgnoreErrors: ignoreErrors,
	})
	if err != nil {
		return err
	}

	e.logger.Debugf("delete response: %s", msg)
	return nil
}

// runCommandStatement dispatches a command resource's statement.
func (e *Engine) runCommandStatement(ctx context.Context, st statement) error {
	if e.dryRun {
		e.logger.Infof("dry run command:\n\n%s\n", st.sql)
		return nil
	}

	e.logger.Info("running command...")
	_, err := e.exec.Command(ctx, st.sql, executor.CommandOptions{
		Retries:    st.retries,
		RetryDelay: secs(st.retryDelay),
	})
	return err
}

// rowIndicatesError reports whether a result row carries an error
// marker instead of data.
func rowIndicatesError(row map[string]string) bool {
	if _, ok := row[executor.ErrorMarkerKey]; ok {
		return true
	}
	_, ok := row["error"]
	return ok
}
