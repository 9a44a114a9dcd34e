package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackql/stackql-deploy/pkg/display"
	"github.com/stackql/stackql-deploy/pkg/stackql"
)

func newShellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run a stackql shell",
		Long: `Open an interactive session against the configured server.

Statements are terminated by ';' and may span multiple lines. Type
'exit', 'quit', or '\q' to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			fmt.Println(display.RenderBox("🔍 stackql interactive shell", display.Cyan))

			logger, err := newLogger()
			if err != nil {
				return err
			}
			if err := ensureServer(ctx, logger); err != nil {
				return err
			}

			session, err := connect(ctx)
			if err != nil {
				return err
			}
			defer session.Close(ctx)

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			return runShell(ctx, session, os.Stdin, os.Stdout, interactive)
		},
	}

	return cmd
}

// runShell reads statements from in and executes them against the
// session until EOF or an exit command. Prompts and the goodbye line
// are suppressed when stdin is not a terminal, so piped scripts get
// results only.
func runShell(ctx context.Context, session stackql.Session, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var buffer []string
	for {
		if interactive {
			if len(buffer) == 0 {
				fmt.Fprint(out, "stackql > ")
			} else {
				fmt.Fprint(out, "      ... ")
			}
		}

		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(out)
			}
			break
		}
		line := scanner.Text()

		if len(buffer) == 0 {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if isExitCommand(line) {
				break
			}
		}

		buffer = append(buffer, line)
		statement := strings.Join(buffer, "\n")
		if !strings.HasSuffix(strings.TrimSpace(statement), ";") {
			continue
		}
		buffer = buffer[:0]

		res, err := session.Execute(ctx, statement)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprint(out, formatResultTable(res))
	}

	if interactive {
		fmt.Fprintln(out, "Exiting stackql shell.")
	}
	return scanner.Err()
}

// isExitCommand reports whether a line asks to leave the shell.
func isExitCommand(line string) bool {
	switch strings.ToLower(strings.TrimSuffix(strings.TrimSpace(line), ";")) {
	case "exit", "quit", `\q`:
		return true
	}
	return false
}

// formatResultTable renders a result the way psql lays out rows: a
// header, a separator, left-aligned cells, and a row count footer.
func formatResultTable(res *stackql.Result) string {
	var b strings.Builder

	for _, notice := range res.Notices {
		b.WriteString(notice)
		b.WriteByte('\n')
	}

	switch res.Kind {
	case stackql.KindCommand:
		b.WriteString(res.Command)
		b.WriteByte('\n')

	case stackql.KindData:
		cols := res.Columns
		if len(cols) == 0 && len(res.Rows) > 0 {
			for name := range res.Rows[0] {
				cols = append(cols, name)
			}
			sort.Strings(cols)
		}
		if len(cols) == 0 {
			break
		}

		widths := make([]int, len(cols))
		for i, col := range cols {
			widths[i] = len(col)
		}
		for _, row := range res.Rows {
			for i, col := range cols {
				if n := len(row[col]); n > widths[i] {
					widths[i] = n
				}
			}
		}

		// The last column is written unpadded to avoid trailing spaces.
		for i, col := range cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			if i == len(cols)-1 {
				b.WriteString(col)
			} else {
				fmt.Fprintf(&b, "%-*s", widths[i], col)
			}
		}
		b.WriteByte('\n')
		for i, w := range widths {
			if i > 0 {
				b.WriteString("-+-")
			}
			b.WriteString(strings.Repeat("-", w))
		}
		b.WriteByte('\n')
		for _, row := range res.Rows {
			for i, col := range cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				if i == len(cols)-1 {
					b.WriteString(row[col])
				} else {
					fmt.Fprintf(&b, "%-*s", widths[i], row[col])
				}
			}
			b.WriteByte('\n')
		}

		if len(res.Rows) == 1 {
			b.WriteString("(1 row)\n")
		} else {
			fmt.Fprintf(&b, "(%d rows)\n", len(res.Rows))
		}
	}

	return b.String()
}
