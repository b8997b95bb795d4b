package query

import (
	"encoding/json"
	"fmt"
)

// Cursor identifies the last row of a page by the ordering tuple
// (timestamp, primary id, secondary id). The next page's boundary predicate
// is a composite comparison against this tuple, never an offset, so
// pagination stays correct under concurrent inserts.
//
// The wire form is a three-element JSON array: [ts, trace_id, span_id].
type Cursor struct {
	Ts      string
	TraceID string
	SpanID  string
}

func (c *Cursor) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("invalid cursor: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("invalid cursor: expected 3 elements, got %d", len(parts))
	}
	c.Ts, c.TraceID, c.SpanID = parts[0], parts[1], parts[2]
	return nil
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{c.Ts, c.TraceID, c.SpanID})
}

// Predicate compiles the cursor into the strict boundary comparison for the
// given schema, to be AND-ed onto the WHERE list of the next page's query.
func (c Cursor) Predicate(s Schema) string {
	return fmt.Sprintf("(%s, %s, %s) < (toDateTime64(%s, %d), %s, %s)",
		s.TimeColumn, s.PrimaryID, s.SecondaryID,
		quoteString(sanitizeTimestamp(c.Ts)), s.TimePrecision,
		quoteString(c.TraceID), quoteString(c.SpanID))
}

// EncodeCursor extracts the ordering tuple from the last row of a page.
// Rows come back from the executor as JSON objects keyed by column name.
func EncodeCursor(row map[string]interface{}, s Schema) (Cursor, error) {
	ts, ok := row[s.TimeColumn].(string)
	if !ok {
		return Cursor{}, fmt.Errorf("row has no %s column", s.TimeColumn)
	}
	primary, ok := row[s.PrimaryID].(string)
	if !ok {
		return Cursor{}, fmt.Errorf("row has no %s column", s.PrimaryID)
	}
	secondary, ok := row[s.SecondaryID].(string)
	if !ok {
		return Cursor{}, fmt.Errorf("row has no %s column", s.SecondaryID)
	}
	return Cursor{Ts: ts, TraceID: primary, SpanID: secondary}, nil
}
