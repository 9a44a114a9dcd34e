// Package executor dispatches statements to a StackQL server with the
// retry discipline the reconciler depends on. Read statements retry on
// empty or failed results up to a per-fragment budget; write statements
// retry on not-ready notices; existence probes reduce result sets to a
// boolean.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stackql/stackql-deploy/pkg/errors"
	"github.com/stackql/stackql-deploy/pkg/stackql"
)

// ErrorMarkerKey marks a synthesized row carrying the last suppressed
// error after a read's retry budget is exhausted.
const ErrorMarkerKey = "_stackql_deploy_error"

// QueryOptions control one read dispatch. Retries is the number of
// additional attempts after the first.
type QueryOptions struct {
	Retries        int
	RetryDelay     time.Duration
	SuppressErrors bool
}

// CommandOptions control one write dispatch.
type CommandOptions struct {
	Retries      int
	RetryDelay   time.Duration
	IgnoreErrors bool
}

// Executor runs statements over a session.
type Executor struct {
	session     stackql.Session
	logger      *log.Logger
	showQueries bool
}

// New creates an executor. When showQueries is set, every dispatched
// statement is logged at info level.
func New(session stackql.Session, logger *log.Logger, showQueries bool) *Executor {
	return &Executor{session: session, logger: logger, showQueries: showQueries}
}

// Query runs a read statement and returns its rows.
//
// Behavior per attempt: error notices and an "error" column in the
// first row record a failure that is fatal once the budget is spent
// (suppressed failures instead return a single ErrorMarkerKey row); an
// empty result sleeps and retries, returning no rows on exhaustion; a
// "count" value above 1 violates the zero-or-one cardinality invariant
// and aborts immediately, retries and suppression notwithstanding.
func (e *Executor) Query(ctx context.Context, sql string, opts QueryOptions) ([]map[string]string, error) {
	var lastError string

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		e.logStatement("query", attempt, sql)

		result, err := e.session.Execute(ctx, sql)
		if err != nil {
			lastError = err.Error()
			if attempt == opts.Retries {
				if !opts.SuppressErrors {
					return nil, errors.Newf(errors.ErrCodeQuery, "exception during stackql query execution:\n\n%v", err)
				}
			} else {
				e.logger.Errorf("exception on attempt %d:\n\n%v", attempt+1, err)
			}
			if err := e.sleep(ctx, opts.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}

		switch result.Kind {
		case stackql.KindData:
			for _, notice := range result.Notices {
				if strings.Contains(notice, "error") || strings.HasPrefix(notice, "ERROR") {
					lastError = notice
					if !opts.SuppressErrors && attempt == opts.Retries {
						return nil, errors.Newf(errors.ErrCodeQuery, "error during stackql query execution:\n\n%s", notice)
					}
				}
			}

			if result.RowCount() == 0 {
				e.logger.Debug("query returned 0 items")
				if attempt < opts.Retries {
					if err := e.sleep(ctx, opts.RetryDelay); err != nil {
						return nil, err
					}
					continue
				}
				break
			}

			rows := result.Rows
			if errText, ok := rows[0]["error"]; ok {
				lastError = errText
				if !opts.SuppressErrors {
					if attempt == opts.Retries {
						return nil, errors.Newf(errors.ErrCodeQuery, "error during stackql query execution:\n\n%s", errText)
					}
					e.logger.Errorf("attempt %d failed:\n\n%s", attempt+1, errText)
				}
				if err := e.sleep(ctx, opts.RetryDelay); err != nil {
					return nil, err
				}
				continue
			}

			if countText, ok := rows[0]["count"]; ok {
				e.logger.Debugf("query returned count: %s", countText)
				if count, err := strconv.ParseInt(countText, 10, 64); err == nil && count > 1 {
					return nil, errors.New(errors.ErrCodeInvariant, fmt.Sprintf(
						"detected more than one resource matching query criteria, expected 0 or 1, got %d", count))
				}
				return rows, nil
			}

			e.logger.Debugf("query returned %d items", len(rows))
			return rows, nil

		case stackql.KindCommand:
			e.logger.Debugf("command result: %s", result.Command)
			return nil, nil

		default:
			e.logger.Debug("empty result from query")
			if attempt < opts.Retries {
				if err := e.sleep(ctx, opts.RetryDelay); err != nil {
					return nil, err
				}
				continue
			}
		}
	}

	e.logger.Debugf("all attempts (%d) to execute the query completed", opts.Retries+1)

	if opts.SuppressErrors && lastError != "" {
		return []map[string]string{{ErrorMarkerKey: lastError}}, nil
	}
	return nil, nil
}

// Command runs a write statement. REGISTRY PULL statements are
// normalized to the server's two-token form first. The returned string
// is the server's completion message or its notices joined by
// newlines.
func (e *Executor) Command(ctx context.Context, sql string, opts CommandOptions) (string, error) {
	processed := sql
	if strings.HasPrefix(sql, "REGISTRY PULL") {
		processed = stackql.NormalizeRegistryPull(sql)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		e.logStatement("command", attempt, processed)

		result, err := e.session.Execute(ctx, processed)
		if err != nil {
			if opts.IgnoreErrors {
				e.logger.Debugf("command failed (ignored): %v", err)
				return "", nil
			}
			if attempt < opts.Retries {
				e.logger.Warnf("command failed, retrying in %v (attempt %d of %d)...",
					opts.RetryDelay, attempt+1, opts.Retries+1)
				if err := e.sleep(ctx, opts.RetryDelay); err != nil {
					return "", err
				}
				continue
			}
			return "", errors.Newf(errors.ErrCodeQuery, "exception during stackql command execution:\n\n%v", err)
		}

		switch result.Kind {
		case stackql.KindData:
			retry := false
			for _, notice := range result.Notices {
				if stackql.NoticeIndicatesError(notice) && !opts.IgnoreErrors {
					if attempt < opts.Retries {
						e.logger.Warnf("dependent resource(s) may not be ready, retrying in %v (attempt %d of %d)...",
							opts.RetryDelay, attempt+1, opts.Retries+1)
						retry = true
						break
					}
					return "", errors.Newf(errors.ErrCodeQuery, "error during stackql command execution:\n\n%s", notice)
				}
			}
			if retry {
				if err := e.sleep(ctx, opts.RetryDelay); err != nil {
					return "", err
				}
				continue
			}

			msg := strings.Join(result.Notices, "\n")
			if msg != "" {
				e.logger.Debugf("command executed successfully:\n\n%s", msg)
			}
			return msg, nil

		case stackql.KindCommand:
			e.logger.Debugf("command executed successfully:\n\n%s", result.Command)
			return result.Command, nil

		default:
			e.logger.Debug("command executed with empty result")
			return "", nil
		}
	}

	return "", nil
}

// RunTest runs an existence probe and reduces its rows to a boolean.
// With deleteTest set the expectation inverts: absence is success. A
// cardinality invariant violation still aborts.
func (e *Executor) RunTest(ctx context.Context, resourceName, sql string, deleteTest bool) (bool, error) {
	rows, err := e.Query(ctx, sql, QueryOptions{
		SuppressErrors: true,
		Retries:        0,
		RetryDelay:     5 * time.Second,
	})
	if err != nil {
		return false, err
	}

	if len(rows) == 0 {
		e.logger.Debugf("test result %t for [%s]", deleteTest, resourceName)
		return deleteTest, nil
	}

	if _, ok := rows[0][ErrorMarkerKey]; ok {
		return deleteTest, nil
	}
	if _, ok := rows[0]["error"]; ok {
		return deleteTest, nil
	}

	if countText, ok := rows[0]["count"]; ok {
		if count, err := strconv.ParseInt(countText, 10, 64); err == nil {
			if deleteTest {
				if count == 0 {
					e.logger.Debugf("delete test result true for [%s]", resourceName)
					return true, nil
				}
				e.logger.Debugf("delete test result false for [%s], expected 0 got %d", resourceName, count)
				return false, nil
			}
			if count == 1 {
				e.logger.Debugf("test result true for [%s]", resourceName)
				return true, nil
			}
			e.logger.Debugf("test result false for [%s], expected 1 got %d", resourceName, count)
			return false, nil
		}
	}

	// Without a count column any result counts as existing.
	if !deleteTest {
		return true, nil
	}
	return false, nil
}

// PerformRetries repeats a probe until it passes or the budget is
// spent. The budget counts total attempts, so a zero budget never
// probes at all.
func (e *Executor) PerformRetries(ctx context.Context, resourceName, sql string, retries int, delay time.Duration, deleteTest bool) (bool, error) {
	start := time.Now()

	for attempt := 0; attempt < retries; attempt++ {
		ok, err := e.RunTest(ctx, resourceName, sql, deleteTest)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		e.logger.Infof("attempt %d/%d: retrying in %v (%d seconds elapsed)",
			attempt+1, retries, delay, int(time.Since(start).Seconds()))
		if err := e.sleep(ctx, delay); err != nil {
			return false, err
		}
	}

	return false, nil
}

func (e *Executor) logStatement(kind string, attempt int, sql string) {
	if e.showQueries && attempt == 0 {
		e.logger.Infof("%s:\n\n%s\n", kind, sql)
	}
	e.logger.Debugf("executing stackql %s on attempt %d:\n\n%s\n", kind, attempt+1, sql)
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
