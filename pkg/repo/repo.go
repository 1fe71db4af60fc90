package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the minimal query surface shared by pgx.Tx and pgxpool.Pool.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Join concatenates non-empty SQL fragments with single spaces.
func Join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// JoinWhere builds a WHERE clause AND-ing the given conditions.
// Returns an empty string when there are no conditions.
func JoinWhere(conditions ...string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// Insert builds an INSERT statement with positional placeholders for the
// given fields. Returning columns are appended as a RETURNING clause.
func Insert(table string, fields []string, returning ...string) string {
	placeholders := make([]string, len(fields))
	for i := range fields {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(fields, ", "),
		strings.Join(placeholders, ", "),
	)
	if len(returning) > 0 {
		q += " RETURNING " + strings.Join(returning, ", ")
	}
	return q
}

// Update builds an UPDATE statement assigning positional placeholders to
// the given fields, with the caller-supplied conditions AND-ed together.
// Condition placeholders come after the field placeholders.
func Update(table string, fields []string, conditions ...string) string {
	assignments := make([]string, len(fields))
	for i, f := range fields {
		assignments[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	q := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(assignments, ", "))
	if len(conditions) > 0 {
		q += " WHERE " + strings.Join(conditions, " AND ")
	}
	return q
}

// Exists wraps a base query in SELECT EXISTS.
func Exists(baseQuery string) string {
	return fmt.Sprintf("SELECT EXISTS (%s)", baseQuery)
}

// FormatLimitOffset renders LIMIT/OFFSET, omitting non-positive values.
func FormatLimitOffset(limit, offset int) string {
	if limit > 0 && offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	if limit > 0 {
		return fmt.Sprintf("LIMIT %d", limit)
	}
	if offset > 0 {
		return fmt.Sprintf("OFFSET %d", offset)
	}
	return ""
}

// BatchInsertQueryN extends an INSERT ... VALUES prefix with one
// placeholder tuple per row and returns the flattened argument list.
func BatchInsertQueryN(prefix string, rows [][]any) (string, []any) {
	if len(rows) == 0 {
		return prefix, nil
	}
	width := len(rows[0])
	tuples := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*width)
	for i, row := range rows {
		placeholders := make([]string, width)
		for j := range row {
			placeholders[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		tuples = append(tuples, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, row...)
	}
	return prefix + " " + strings.Join(tuples, ", "), args
}
