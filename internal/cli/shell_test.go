package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stackql/stackql-deploy/pkg/stackql"
)

// scriptedSession implements stackql.Session with canned results.
type scriptedSession struct {
	results    map[string]*stackql.Result
	statements []string
}

func (s *scriptedSession) Execute(ctx context.Context, sql string) (*stackql.Result, error) {
	s.statements = append(s.statements, sql)
	if res, ok := s.results[strings.TrimSpace(sql)]; ok {
		return res, nil
	}
	return &stackql.Result{Kind: stackql.KindEmpty}, nil
}

func (s *scriptedSession) Close(ctx context.Context) error {
	return nil
}

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"exit", true},
		{"quit", true},
		{`\q`, true},
		{"EXIT", true},
		{"  exit  ", true},
		{"exit;", true},
		{"select 1", false},
		{"", false},
		{"exited", false},
	}

	for _, test := range tests {
		if got := isExitCommand(test.input); got != test.expected {
			t.Errorf("isExitCommand(%q) = %v, expected %v", test.input, got, test.expected)
		}
	}
}

func TestFormatResultTable_Data(t *testing.T) {
	res := &stackql.Result{
		Kind:    stackql.KindData,
		Columns: []string{"name", "status"},
		Rows: []map[string]string{
			{"name": "aws", "status": "ok"},
			{"name": "google", "status": "pending"},
		},
	}

	got := formatResultTable(res)

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), got)
	}
	if lines[0] != "name   | status" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != "-------+--------" {
		t.Errorf("unexpected separator: %q", lines[1])
	}
	if lines[2] != "aws    | ok" {
		t.Errorf("unexpected first row: %q", lines[2])
	}
	if lines[3] != "google | pending" {
		t.Errorf("unexpected second row: %q", lines[3])
	}
	if lines[4] != "(2 rows)" {
		t.Errorf("unexpected footer: %q", lines[4])
	}
}

func TestFormatResultTable_SingleRow(t *testing.T) {
	res := &stackql.Result{
		Kind:    stackql.KindData,
		Columns: []string{"count"},
		Rows:    []map[string]string{{"count": "1"}},
	}

	got := formatResultTable(res)
	if !strings.HasSuffix(got, "(1 row)\n") {
		t.Errorf("expected singular row footer, got:\n%s", got)
	}
}

func TestFormatResultTable_Command(t *testing.T) {
	res := &stackql.Result{
		Kind:    stackql.KindCommand,
		Command: "OK",
		Notices: []string{"provider, version downloaded"},
	}

	got := formatResultTable(res)
	if got != "provider, version downloaded\nOK\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestRunShell(t *testing.T) {
	session := &scriptedSession{
		results: map[string]*stackql.Result{
			"SELECT 1 as num;": {
				Kind:    stackql.KindData,
				Columns: []string{"num"},
				Rows:    []map[string]string{{"num": "1"}},
			},
		},
	}

	in := strings.NewReader("SELECT 1 as num;\nexit\n")
	var out bytes.Buffer

	if err := runShell(context.Background(), session, in, &out, true); err != nil {
		t.Fatalf("runShell failed: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, "stackql > ") {
		t.Error("expected the prompt in output")
	}
	if !strings.Contains(output, "(1 row)") {
		t.Errorf("expected a result table, got:\n%s", output)
	}
	if !strings.Contains(output, "Exiting stackql shell.") {
		t.Error("expected the exit message")
	}
	if len(session.statements) != 1 {
		t.Fatalf("expected 1 statement executed, got %d", len(session.statements))
	}
}

func TestRunShell_MultiLineStatement(t *testing.T) {
	session := &scriptedSession{}

	in := strings.NewReader("SELECT *\nFROM aws.ec2.instances\nWHERE region = 'us-east-1';\nquit\n")
	var out bytes.Buffer

	if err := runShell(context.Background(), session, in, &out, true); err != nil {
		t.Fatalf("runShell failed: %v", err)
	}

	if len(session.statements) != 1 {
		t.Fatalf("expected 1 statement executed, got %d", len(session.statements))
	}
	if !strings.Contains(session.statements[0], "FROM aws.ec2.instances") {
		t.Errorf("statement lost its continuation lines: %q", session.statements[0])
	}
}

func TestRunShell_EOFExits(t *testing.T) {
	session := &scriptedSession{}

	var out bytes.Buffer
	if err := runShell(context.Background(), session, strings.NewReader(""), &out, true); err != nil {
		t.Fatalf("runShell failed: %v", err)
	}
	if !strings.Contains(out.String(), "Exiting stackql shell.") {
		t.Error("expected the exit message on EOF")
	}
}

func TestRunShell_PipedInputSuppressesPrompts(t *testing.T) {
	session := &scriptedSession{
		results: map[string]*stackql.Result{
			"SHOW PROVIDERS;": {
				Kind:    stackql.KindData,
				Columns: []string{"name", "version"},
				Rows:    []map[string]string{{"name": "aws", "version": "v24.06.00251"}},
			},
		},
	}

	in := strings.NewReader("SHOW PROVIDERS;\n")
	var out bytes.Buffer

	if err := runShell(context.Background(), session, in, &out, false); err != nil {
		t.Fatalf("runShell failed: %v", err)
	}

	output := out.String()
	if strings.Contains(output, "stackql > ") {
		t.Errorf("expected no prompt for piped input, got:\n%s", output)
	}
	if strings.Contains(output, "Exiting stackql shell.") {
		t.Error("expected no exit message for piped input")
	}
	if !strings.Contains(output, "(1 row)") {
		t.Errorf("expected the result table, got:\n%s", output)
	}
}
