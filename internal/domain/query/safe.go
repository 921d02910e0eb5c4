package query

// SafeQuery is an authorized, fully parameterized read-only statement.
// Every literal lives in Args; the SQL text contains only allow-list-verified
// identifiers and positional placeholders.
type SafeQuery struct {
	sql    string
	args   []any
	rowCap int
}

// NewSafeQuery creates an authorized statement with its enforced row cap.
func NewSafeQuery(sql string, args []any, rowCap int) SafeQuery {
	return SafeQuery{sql: sql, args: args, rowCap: rowCap}
}

// SQL returns the statement text.
func (q SafeQuery) SQL() string { return q.sql }

// Args returns the positional arguments.
func (q SafeQuery) Args() []any { return q.args }

// RowCap returns the maximum number of rows execution may return.
func (q SafeQuery) RowCap() int { return q.rowCap }
