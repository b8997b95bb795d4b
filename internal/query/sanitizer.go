// Package query translates structured filter objects into bounded,
// injection-safe analytical SQL for the column store. Two schemas are
// supported: the event log table and the span/trace table. All values are
// escaped or coerced before interpolation and every list query carries a
// hard row cap.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRegex validates column and table identifiers. Must start with a
// letter or underscore, followed by alphanumeric or underscore.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// sqlReservedWords contains keywords rejected as identifiers. Escaping
// handles value injection; this prevents query structure attacks through
// caller-supplied column names (the distinct-field enumeration path).
var sqlReservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"UNION": true, "INTO": true, "FROM": true, "WHERE": true,
	"TABLE": true, "DATABASE": true, "GRANT": true, "REVOKE": true,
	"SYSTEM": true, "ATTACH": true, "DETACH": true, "RENAME": true,
}

// ValidateIdentifier ensures a column identifier is safe to interpolate.
// It rejects empty strings, strings over 128 characters, strings that don't
// match the identifier pattern, and SQL reserved words.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("identifier too long (max 128 chars): %q", name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	if sqlReservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// escapeString makes a value safe inside a single-quoted ClickHouse string
// literal. Backslashes are doubled first so the quote escape survives.
var stringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeString(val string) string {
	// Null bytes confuse the HTTP interface's plain-text query body.
	val = strings.ReplaceAll(val, "\x00", "")
	return stringEscaper.Replace(val)
}

// quoteString returns a fully escaped single-quoted literal.
func quoteString(val string) string {
	return "'" + escapeString(val) + "'"
}

// quoteList renders a value set for an IN (...) membership predicate.
func quoteList(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = quoteString(v)
	}
	return strings.Join(quoted, ",")
}

// sanitizeTimestamp normalizes an ISO-8601 timestamp to the column store's
// "YYYY-MM-DD hh:mm:ss[.sss]" form: the T separator becomes a space and any
// trailing Z or UTC offset is stripped.
func sanitizeTimestamp(ts string) string {
	ts = strings.Replace(ts, "T", " ", 1)
	ts = strings.Replace(ts, "Z", "", 1)
	if i := strings.Index(ts, "+"); i >= 0 {
		ts = ts[:i]
	}
	return ts
}

// intervalRegex validates bucket interval expressions like "5 MINUTE".
var intervalRegex = regexp.MustCompile(`^(?i)(\d{1,6})\s+(SECOND|MINUTE|HOUR|DAY|WEEK)S?$`)

// sanitizeInterval validates a caller-supplied bucketing interval. Anything
// that is not "<n> <unit>" falls back to the default 5 minute bucket; the
// interval lands inside an INTERVAL expression and cannot be escaped as a
// string literal.
func sanitizeInterval(interval string) string {
	m := intervalRegex.FindStringSubmatch(strings.TrimSpace(interval))
	if m == nil {
		return "5 MINUTE"
	}
	return m[1] + " " + strings.ToUpper(m[2])
}
