package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stackql/stackql-deploy/pkg/engine/executor"
	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/exportstore"
	"github.com/stackql/stackql-deploy/pkg/internal"
	"github.com/stackql/stackql-deploy/pkg/template"
)

// processExports dispatches the exports query and propagates the
// resulting row into the global context. The result must be a single
// clean row; ignoreMissing tolerates an empty result, which teardown
// collection relies on for resources that no longer exist.
func (e *Engine) processExports(ctx context.Context, res *internal.Resource, st statement, ignoreMissing bool) error {
	if len(res.Exports) == 0 {
		return nil
	}

	if e.dryRun {
		// Seed every declared export so later templates resolve.
		placeholder := make(map[string]string, len(res.Exports))
		for _, exp := range res.Exports {
			placeholder[exp.Name] = "<evaluated>"
		}
		e.exportVars(res, placeholder)
		e.logger.Infof("dry run exports query for [%s]:\n\n/* exports query */\n%s\n", res.Name, st.sql)
		return nil
	}

	e.logger.Infof("exporting variables for [%s]...", res.Name)

	rows, err := e.exec.Query(ctx, st.sql, executor.QueryOptions{
		Retries:        st.retries,
		RetryDelay:     secs(st.retryDelay),
		SuppressErrors: true,
	})
	if err != nil {
		return err
	}

	e.logger.Debugf("exports result: %v", rows)

	if len(rows) == 0 {
		if ignoreMissing {
			return nil
		}
		e.logger.Infof("query:\n\n%s\n", st.sql)
		return errors.Newf(errors.ErrCodeExport, "exports query failed for %s", res.Name)
	}

	for _, key := range []string{executor.ErrorMarkerKey, "error"} {
		if msg, ok := rows[0][key]; ok {
			e.logger.Infof("query:\n\n%s\n", st.sql)
			return errors.Newf(errors.ErrCodeExport,
				"exports query failed for %s\n\nerror details:\n%s", res.Name, msg)
		}
	}

	if len(rows) > 1 {
		return errors.Newf(errors.ErrCodeExport,
			"exports should include one row only, received %d rows", len(rows))
	}

	e.processExportRow(res, rows[0])
	return nil
}

// processExportsFromResult propagates exports from rows already
// fetched by the exports proxy probe, avoiding a second round trip.
func (e *Engine) processExportsFromResult(res *internal.Resource, rows []map[string]string) error {
	if len(res.Exports) == 0 || len(rows) == 0 {
		return nil
	}

	if len(rows) > 1 {
		return errors.Newf(errors.ErrCodeExport,
			"exports should include one row only, received %d rows", len(rows))
	}

	e.processExportRow(res, rows[0])
	return nil
}

// processExportRow extracts the declared exports from a result row. A
// renamed declaration reads its source column and stores under the
// declared name; a missing column exports an empty string.
func (e *Engine) processExportRow(res *internal.Resource, row map[string]string) {
	data := make(map[string]string, len(res.Exports))
	for _, exp := range res.Exports {
		column := exp.Name
		if exp.Renamed {
			column = exp.SourceColumn
		}
		data[exp.Name] = row[column]
	}
	e.exportVars(res, data)
}

// exportVars stores exported values in the global context. Protected
// values log masked but are stored unmasked so later templates render
// the real value.
func (e *Engine) exportVars(res *internal.Resource, data map[string]string) {
	for name, value := range data {
		if res.IsProtected(name) {
			e.logger.Infof("set protected variable [%s] to [%s] in exports", name, strings.Repeat("*", len(value)))
			e.globalContext.SetProtected(name, value, template.SourceExport)
		} else {
			e.logger.Infof("set [%s] to [%s] in exports", name, value)
			e.globalContext.Set(name, value, template.SourceExport)
		}
	}
}

// writeStackExports writes the stack-level export document. The
// document always carries stack_name and stack_env first and
// elapsed_time last; every other name must be present in the context.
func (e *Engine) writeStackExports(ctx context.Context, outputFile, elapsed string) error {
	if outputFile == "" {
		return nil
	}

	e.logger.Info("processing stack exports...")

	declared := e.manifest.StackExports()

	if e.dryRun {
		e.logger.Infof(
			"dry run: would export %d variables to %s (including automatic stack_name, stack_env, and elapsed_time)",
			len(declared)+3, outputFile)
		return nil
	}

	doc := make(map[string]any, len(declared)+3)
	doc["stack_name"] = e.stackName
	doc["stack_env"] = e.stackEnv

	var missing []string
	for _, name := range declared {
		if name == "stack_name" || name == "stack_env" {
			continue
		}
		value, ok := e.globalContext.Lookup(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		doc[name] = exportDocValue(value)
	}

	if len(missing) > 0 {
		return errors.Newf(errors.ErrCodeExport,
			"exports failed: variables not found in context: %v", missing)
	}

	doc["elapsed_time"] = elapsed

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeExport, "failed to serialize stack exports", err)
	}

	if err := exportstore.Write(ctx, outputFile, data); err != nil {
		return errors.Wrap(errors.ErrCodeExport, fmt.Sprintf("failed to write exports file %s", outputFile), err)
	}

	e.logger.Infof("exported %d variables to %s", len(doc), outputFile)
	return nil
}

// exportDocValue embeds a context value into the export document,
// preserving structure when the value holds JSON.
func exportDocValue(value string) any {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return value
}
