package model

// QueryResponse is the envelope for analytical query results. SQL carries
// the exact executed query text for transparency and debugging; the query
// inspector in the UI renders it verbatim.
type QueryResponse struct {
	Data                   []map[string]interface{} `json:"data"`
	Rows                   int64                    `json:"rows"`
	RowsBeforeLimitAtLeast int64                    `json:"rows_before_limit_at_least"`
	QueryDurationMs        int64                    `json:"queryDuration"`
	SQL                    string                   `json:"sql"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
