package query

import (
	"errors"
	"fmt"
	"strings"
)

// Query kinds accepted by the gateway. Ping is listed for completeness but
// handled before authentication; PingSQL is the query it issues.
const (
	KindLogsVolume         = "logsVolume"
	KindTracesVolume       = "tracesVolume"
	KindErrorRateByService = "errorRateByService"
	KindLatencyPercentiles = "latencyPercentiles"
	KindLogsList           = "logsList"
	KindTracesList         = "tracesList"
	KindTraceDetail        = "traceDetail"
	KindCorrelatedLogs     = "correlatedLogs"
	KindFilterOptions      = "filterOptions"
	KindLogsCount          = "logsCount"
	KindTracesCount        = "tracesCount"
	KindAnomalyDetection   = "anomalyDetection"
	KindPing               = "ping"
)

// PingSQL is the trivial reachability probe issued by the ping kind and the
// readiness check.
const PingSQL = "SELECT 1 AS ok FORMAT JSON"

var (
	// ErrUnknownKind is returned for an unrecognized query kind.
	ErrUnknownKind = errors.New("unknown query type")
	// ErrInvalidFilter is returned when a filter is missing a required
	// field or carries an unusable value.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Row caps for list queries. The hard cap applies regardless of the
// caller-requested page size.
const (
	DefaultRows = 50
	MaxRows     = 200
)

// clampLimit bounds a requested page size to [1, MaxRows], defaulting when
// unset.
func clampLimit(requested int) int {
	if requested <= 0 {
		return DefaultRows
	}
	if requested > MaxRows {
		return MaxRows
	}
	return requested
}

// durationNsPerMs converts caller-facing millisecond duration filters to
// the store's native nanoseconds.
const durationNsPerMs = 1_000_000

// Build compiles a query kind and filter into executable SQL text. The
// returned string is echoed back to callers for auditability.
func Build(kind string, f Filter) (string, error) {
	switch kind {
	case KindLogsVolume:
		return buildLogsVolume(f), nil
	case KindTracesVolume:
		return buildTracesVolume(f), nil
	case KindErrorRateByService:
		return buildErrorRateByService(f), nil
	case KindLatencyPercentiles:
		return buildLatencyPercentiles(f), nil
	case KindLogsList:
		return buildLogsList(f), nil
	case KindTracesList:
		return buildTracesList(f), nil
	case KindTraceDetail:
		return buildTraceDetail(f)
	case KindCorrelatedLogs:
		return buildCorrelatedLogs(f), nil
	case KindFilterOptions:
		return buildFilterOptions(f)
	case KindLogsCount:
		return buildLogsCount(f), nil
	case KindTracesCount:
		return buildTracesCount(f), nil
	case KindAnomalyDetection:
		return buildAnomalyDetection(f), nil
	case KindPing:
		return PingSQL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// timeWindow compiles the mandatory inclusive-inclusive time range against
// the schema's timestamp column at its native sub-second precision.
func timeWindow(s Schema, from, to string) string {
	return fmt.Sprintf("%s >= toDateTime64(%s, %d) AND %s <= toDateTime64(%s, %d)",
		s.TimeColumn, quoteString(sanitizeTimestamp(from)), s.TimePrecision,
		s.TimeColumn, quoteString(sanitizeTimestamp(to)), s.TimePrecision)
}

// membership compiles a multi-valued equality filter. The exclude flag
// negates the predicate without changing the value set.
func membership(col string, vals []string, exclude bool) string {
	op := "IN"
	if exclude {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, op, quoteList(vals))
}

// substring compiles a case-insensitive substring predicate.
func substring(expr, needle string) string {
	return fmt.Sprintf("%s ILIKE '%%%s%%'", expr, escapeString(needle))
}

// logConditions assembles the shared WHERE list for event-schema list and
// count queries.
func logConditions(f Filter) []string {
	conds := []string{timeWindow(Events, f.From, f.To)}
	if len(f.Service) > 0 {
		conds = append(conds, membership("service", f.Service, f.excluded("service")))
	}
	if len(f.Level) > 0 {
		conds = append(conds, membership("level", f.Level, f.excluded("level")))
	}
	if f.TraceID != "" {
		conds = append(conds, "trace_id = "+quoteString(f.TraceID))
	}
	if f.SpanID != "" {
		conds = append(conds, "span_id = "+quoteString(f.SpanID))
	}
	if f.RoundID.Set {
		conds = append(conds, fmt.Sprintf("round_id = %d", f.RoundID.Value))
	}
	if len(f.ContainerName) > 0 {
		conds = append(conds, membership("container_name", f.ContainerName, f.excluded("container_name")))
	}
	if len(f.Target) > 0 {
		conds = append(conds, membership("target", f.Target, f.excluded("target")))
	}
	if len(f.Image) > 0 {
		conds = append(conds, membership("image", f.Image, f.excluded("image")))
	}
	if f.Search != "" {
		conds = append(conds, substring("toString(event_json)", f.Search))
	}
	return conds
}

// spanConditions assembles the shared WHERE list for span-schema list and
// count queries.
func spanConditions(f Filter) []string {
	conds := []string{timeWindow(Spans, f.From, f.To)}
	if len(f.Service) > 0 {
		conds = append(conds, membership("ServiceName", f.Service, f.excluded("service")))
	}
	if f.TraceID != "" {
		conds = append(conds, "TraceId = "+quoteString(f.TraceID))
	}
	if f.SpanID != "" {
		conds = append(conds, "SpanId = "+quoteString(f.SpanID))
	}
	if f.RoundID.Set {
		conds = append(conds, fmt.Sprintf("round_id = %d", f.RoundID.Value))
	}
	if f.OperatorName != "" {
		conds = append(conds, substring("operator_name", f.OperatorName))
	}
	if len(f.StatusCode) > 0 {
		conds = append(conds, membership("StatusCode", f.StatusCode, f.excluded("status_code")))
	}
	if len(f.SpanKind) > 0 {
		conds = append(conds, membership("SpanKind", f.SpanKind, f.excluded("span_kind")))
	}
	if f.SpanName != "" {
		conds = append(conds, substring("SpanName", f.SpanName))
	}
	if f.StatusMessage != "" {
		conds = append(conds, substring("StatusMessage", f.StatusMessage))
	}
	if f.DurationMinMs.Set {
		conds = append(conds, fmt.Sprintf("Duration >= %d", f.DurationMinMs.Value*durationNsPerMs))
	}
	if f.DurationMaxMs.Set {
		conds = append(conds, fmt.Sprintf("Duration <= %d", f.DurationMaxMs.Value*durationNsPerMs))
	}
	return conds
}

func where(conds []string) string {
	return strings.Join(conds, " AND ")
}

func buildLogsVolume(f Filter) string {
	conds := []string{timeWindow(Events, f.From, f.To)}
	if len(f.Service) > 0 {
		conds = append(conds, membership("service", f.Service, false))
	}
	if len(f.Level) > 0 {
		conds = append(conds, membership("level", f.Level, false))
	}
	return fmt.Sprintf(`SELECT toStartOfInterval(ts, INTERVAL %s) AS bucket, level, count() AS cnt
FROM %s
WHERE %s
GROUP BY bucket, level
ORDER BY bucket ASC
FORMAT JSON`, sanitizeInterval(f.Interval), Events.Table, where(conds))
}

func buildTracesVolume(f Filter) string {
	conds := []string{timeWindow(Spans, f.From, f.To)}
	if len(f.Service) > 0 {
		conds = append(conds, membership("ServiceName", f.Service, false))
	}
	return fmt.Sprintf(`SELECT toStartOfInterval(Timestamp, INTERVAL %s) AS bucket, ServiceName, count() AS cnt
FROM %s
WHERE %s
GROUP BY bucket, ServiceName
ORDER BY bucket ASC
FORMAT JSON`, sanitizeInterval(f.Interval), Spans.Table, where(conds))
}

func buildErrorRateByService(f Filter) string {
	return fmt.Sprintf(`SELECT ServiceName,
  countIf(StatusCode = 'STATUS_CODE_ERROR') AS errors,
  count() AS total,
  round(countIf(StatusCode = 'STATUS_CODE_ERROR') / count() * 100, 2) AS error_rate
FROM %s
WHERE %s
GROUP BY ServiceName
ORDER BY error_rate DESC
LIMIT 20
FORMAT JSON`, Spans.Table, timeWindow(Spans, f.From, f.To))
}

func buildLatencyPercentiles(f Filter) string {
	conds := []string{timeWindow(Spans, f.From, f.To)}
	if len(f.Service) > 0 {
		conds = append(conds, membership("ServiceName", f.Service, false))
	}
	return fmt.Sprintf(`SELECT ServiceName,
  quantile(0.50)(Duration / 1000000) AS p50_ms,
  quantile(0.95)(Duration / 1000000) AS p95_ms,
  quantile(0.99)(Duration / 1000000) AS p99_ms,
  count() AS cnt
FROM %s
WHERE %s
GROUP BY ServiceName
ORDER BY p99_ms DESC
LIMIT 20
FORMAT JSON`, Spans.Table, where(conds))
}

func buildLogsList(f Filter) string {
	conds := logConditions(f)
	if f.Cursor != nil {
		conds = append(conds, f.Cursor.Predicate(Events))
	}
	return fmt.Sprintf(`SELECT ts, service, level, trace_id, span_id, round_id, container_id, container_name, target, image, event_json
FROM %s
WHERE %s
ORDER BY ts DESC, trace_id DESC, span_id DESC
LIMIT %d
FORMAT JSON`, Events.Table, where(conds), clampLimit(f.Limit))
}

func buildTracesList(f Filter) string {
	conds := spanConditions(f)
	if f.Cursor != nil {
		conds = append(conds, f.Cursor.Predicate(Spans))
	}
	return fmt.Sprintf(`SELECT Timestamp, TraceId, SpanId, ParentSpanId, SpanName, SpanKind,
  ServiceName, Duration, StatusCode, StatusMessage,
  round_id, operator_name, ResourceAttributes, SpanAttributes
FROM %s
WHERE %s
ORDER BY Timestamp DESC, TraceId DESC, SpanId DESC
LIMIT %d
FORMAT JSON`, Spans.Table, where(conds), clampLimit(f.Limit))
}

func buildTraceDetail(f Filter) (string, error) {
	if f.TraceID == "" {
		return "", fmt.Errorf("%w: trace_id is required", ErrInvalidFilter)
	}
	conds := []string{"TraceId = " + quoteString(f.TraceID)}
	if f.From != "" && f.To != "" {
		conds = append(conds, timeWindow(Spans, f.From, f.To))
	}
	return fmt.Sprintf(`SELECT Timestamp, TraceId, SpanId, ParentSpanId, TraceState,
  SpanName, SpanKind, ServiceName,
  ResourceAttributes, ScopeName, ScopeVersion, ScopeAttributes, SpanAttributes,
  Duration, StatusCode, StatusMessage,
  Events.Timestamp AS EventTimestamps, Events.Name AS EventNames, Events.Attributes AS EventAttributes,
  Links.TraceId AS LinkTraceIds, Links.SpanId AS LinkSpanIds,
  round_id, operator_name
FROM %s
WHERE %s
ORDER BY Timestamp ASC
FORMAT JSON`, Spans.Table, where(conds)), nil
}

// buildCorrelatedLogs fetches the event rows attached to a trace or round:
// the cross-schema correlation path used by the trace detail drawer.
func buildCorrelatedLogs(f Filter) string {
	conds := []string{timeWindow(Events, f.From, f.To)}
	var or []string
	if f.TraceID != "" {
		or = append(or, "trace_id = "+quoteString(f.TraceID))
	}
	if f.RoundID.Set {
		or = append(or, fmt.Sprintf("round_id = %d", f.RoundID.Value))
	}
	if len(or) > 0 {
		conds = append(conds, "("+strings.Join(or, " OR ")+")")
	}
	return fmt.Sprintf(`SELECT ts, service, level, trace_id, span_id, round_id, container_name, target, event_json
FROM %s
WHERE %s
ORDER BY ts ASC
LIMIT %d
FORMAT JSON`, Events.Table, where(conds), clampLimit(f.Limit))
}

func buildFilterOptions(f Filter) (string, error) {
	if err := ValidateIdentifier(f.Field); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	schema := Events
	if f.Table == "traces" {
		schema = Spans
	}
	return fmt.Sprintf(`SELECT DISTINCT %s AS val
FROM %s
WHERE %s
  AND %s != ''
ORDER BY val
LIMIT %d
FORMAT JSON`, f.Field, schema.Table, timeWindow(schema, f.From, f.To), f.Field, MaxRows), nil
}

func buildLogsCount(f Filter) string {
	return fmt.Sprintf(`SELECT count() AS cnt FROM %s
WHERE %s
FORMAT JSON`, Events.Table, where(logConditions(f)))
}

func buildTracesCount(f Filter) string {
	return fmt.Sprintf(`SELECT count() AS cnt FROM %s
WHERE %s
FORMAT JSON`, Spans.Table, where(spanConditions(f)))
}

func buildAnomalyDetection(f Filter) string {
	return fmt.Sprintf(`SELECT
  toStartOfInterval(ts, INTERVAL 5 MINUTE) AS bucket,
  countIf(level = 'error') AS error_count,
  count() AS total_count
FROM %s
WHERE %s
GROUP BY bucket
ORDER BY bucket ASC
FORMAT JSON`, Events.Table, timeWindow(Events, f.From, f.To))
}
