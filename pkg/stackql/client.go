// Package stackql speaks the postgres wire protocol to a StackQL
// server. Statements go over a pgconn connection in simple protocol
// mode; results come back classified as data, command, or empty, with
// server notices captured alongside the rows that produced them.
package stackql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stackql/stackql-deploy/pkg/errors"
)

// DefaultHost and DefaultPort locate a locally running server.
const (
	DefaultHost = "localhost"
	DefaultPort = 5444
)

// Config holds connection settings for a StackQL server.
type Config struct {
	Host string
	Port int
}

// Address returns the host:port form of the config.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// connString builds the pgconn connection string. The server runs
// unauthenticated on loopback, so TLS stays off.
func (c Config) connString() string {
	return fmt.Sprintf("host=%s port=%d user=stackql dbname=stackql application_name=stackql sslmode=disable",
		c.Host, c.Port)
}

// Session executes statements against a StackQL server. The engine
// depends on this interface so tests can substitute a fake.
type Session interface {
	Execute(ctx context.Context, sql string) (*Result, error)
	Close(ctx context.Context) error
}

// Client is a pgconn-backed Session.
type Client struct {
	conn    *pgconn.PgConn
	cfg     Config
	notices []string
}

var _ Session = (*Client)(nil)

// Connect opens a connection to the server described by cfg.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	pgcfg, err := pgconn.ParseConfig(cfg.connString())
	if err != nil {
		return nil, errors.ConnectionError(cfg.Address(), err)
	}

	client := &Client{cfg: cfg}
	pgcfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		client.notices = append(client.notices, formatNotice(n))
	}

	conn, err := pgconn.ConnectConfig(ctx, pgcfg)
	if err != nil {
		return nil, errors.ConnectionError(cfg.Address(), err)
	}
	client.conn = conn

	return client, nil
}

// Address returns the server address this client talks to.
func (c *Client) Address() string {
	return c.cfg.Address()
}

// Execute runs one statement and classifies its outcome. Notices
// raised while the statement ran are attached to the result.
func (c *Client) Execute(ctx context.Context, sql string) (*Result, error) {
	c.notices = c.notices[:0]

	results, err := c.conn.Exec(ctx, sql).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	return buildResult(results, c.notices), nil
}

// Close terminates the connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// buildResult merges the per-statement results of an Exec round trip
// and tags the outcome: rows or notices mean data, affected rows mean
// command, anything else is empty.
func buildResult(results []*pgconn.Result, notices []string) *Result {
	out := &Result{Notices: append([]string(nil), notices...)}

	var affected int64
	for _, res := range results {
		if len(res.FieldDescriptions) > 0 {
			if out.Columns == nil {
				out.Columns = make([]string, 0, len(res.FieldDescriptions))
				for _, fd := range res.FieldDescriptions {
					out.Columns = append(out.Columns, fd.Name)
				}
			}
			for _, raw := range res.Rows {
				row := make(map[string]string, len(res.FieldDescriptions))
				for i, fd := range res.FieldDescriptions {
					if i >= len(raw) || raw[i] == nil {
						row[fd.Name] = "NULL"
					} else {
						row[fd.Name] = string(raw[i])
					}
				}
				out.Rows = append(out.Rows, row)
			}
		} else {
			affected += res.CommandTag.RowsAffected()
		}
	}

	switch {
	case len(out.Rows) > 0 || len(out.Notices) > 0:
		out.Kind = KindData
	case affected > 0:
		out.Kind = KindCommand
		out.Command = fmt.Sprintf("Command completed successfully (affected %d rows)", affected)
	default:
		out.Kind = KindEmpty
	}

	return out
}

// formatNotice renders a server notice as the message followed by its
// detail and hint lines when present.
func formatNotice(n *pgconn.Notice) string {
	if n == nil {
		return "Unknown notice"
	}
	text := n.Message
	if text == "" {
		text = "Unknown notice"
	}
	if n.Detail != "" {
		text += "\nDETAIL: " + n.Detail
	}
	if n.Hint != "" {
		text += "\nHINT: " + n.Hint
	}
	return text
}
