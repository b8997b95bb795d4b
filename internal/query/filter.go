package query

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Schema describes one of the two column-store tables and the ordering
// tuple shared by list queries and cursors.
type Schema struct {
	Table         string
	TimeColumn    string
	TimePrecision int // DateTime64 sub-second digits
	PrimaryID     string
	SecondaryID   string
}

// The two supported schemas: events indexed by time and spans indexed by
// trace. Event timestamps carry millisecond precision, span timestamps
// nanosecond.
var (
	Events = Schema{
		Table:         "observability.logs",
		TimeColumn:    "ts",
		TimePrecision: 3,
		PrimaryID:     "trace_id",
		SecondaryID:   "span_id",
	}
	Spans = Schema{
		Table:         "observability.traces",
		TimeColumn:    "Timestamp",
		TimePrecision: 9,
		PrimaryID:     "TraceId",
		SecondaryID:   "SpanId",
	}
)

// OptionalInt is a JSON integer that tolerates string-typed input. Numeric
// strings parse; anything unparseable degrades to 0 rather than surfacing
// caller text into the query.
type OptionalInt struct {
	Set   bool
	Value int64
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		o.Set = false
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			n = int64(f)
		} else {
			n = 0
		}
	}
	o.Set = true
	o.Value = n
	return nil
}

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(o.Value, 10)), nil
}

// Filter is the request-scoped filter object carried by query requests.
// Fields apply per schema; the builder ignores the ones a kind does not use.
type Filter struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Interval string `json:"interval,omitempty"`

	Service       []string `json:"service,omitempty"`
	Level         []string `json:"level,omitempty"`
	ContainerName []string `json:"container_name,omitempty"`
	Target        []string `json:"target,omitempty"`
	Image         []string `json:"image,omitempty"`
	StatusCode    []string `json:"status_code,omitempty"`
	SpanKind      []string `json:"span_kind,omitempty"`

	TraceID       string      `json:"trace_id,omitempty"`
	SpanID        string      `json:"span_id,omitempty"`
	RoundID       OptionalInt `json:"round_id,omitempty"`
	OperatorName  string      `json:"operator_name,omitempty"`
	SpanName      string      `json:"span_name,omitempty"`
	StatusMessage string      `json:"status_message,omitempty"`
	Search        string      `json:"search,omitempty"`

	// Span durations are caller-facing milliseconds; the builder converts
	// to the store's native nanoseconds.
	DurationMinMs OptionalInt `json:"duration_min,omitempty"`
	DurationMaxMs OptionalInt `json:"duration_max,omitempty"`

	Cursor *Cursor `json:"cursor,omitempty"`
	Limit  int     `json:"limit,omitempty"`

	// Exclude negates the membership predicate for a multi-valued field
	// without changing its value set.
	Exclude map[string]bool `json:"excludeFilters,omitempty"`

	// Distinct-field enumeration parameters.
	Field string `json:"field,omitempty"`
	Table string `json:"table,omitempty"`
}

// ParseFilter decodes the raw params payload of a query request.
func ParseFilter(params json.RawMessage) (Filter, error) {
	var f Filter
	if len(params) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(params, &f); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// excluded reports whether the membership predicate for field is negated.
func (f Filter) excluded(field string) bool {
	return f.Exclude[field]
}
