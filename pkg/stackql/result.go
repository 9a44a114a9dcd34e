package stackql

// ResultKind classifies what a statement execution produced.
type ResultKind int

const (
	// KindData carries rows, notices, or both.
	KindData ResultKind = iota

	// KindCommand is a statement that affected rows without returning
	// any.
	KindCommand

	// KindEmpty is a statement that returned nothing at all.
	KindEmpty
)

// Result is the outcome of executing one statement. NULL column values
// surface as the literal string "NULL", matching the wire text format.
type Result struct {
	Kind    ResultKind
	Columns []string
	Rows    []map[string]string
	Notices []string

	// Command is the completion message for KindCommand results.
	Command string
}

// RowCount returns the number of data rows.
func (r *Result) RowCount() int {
	return len(r.Rows)
}

// FirstRow returns the first data row, or nil.
func (r *Result) FirstRow() map[string]string {
	if len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}
