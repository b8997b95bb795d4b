// Package clickhouse executes analytical SQL over the ClickHouse HTTP
// interface and decodes its FORMAT JSON response envelope.
package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrUpstream wraps any failure reaching or executing against the column
// store. Handlers map it to 502.
var ErrUpstream = errors.New("upstream query error")

const defaultTimeout = 30 * time.Second

// Result is the decoded FORMAT JSON envelope plus the wall-clock duration
// of the round trip.
type Result struct {
	Data                   []map[string]interface{} `json:"data"`
	Rows                   int64                    `json:"rows"`
	RowsBeforeLimitAtLeast int64                    `json:"rows_before_limit_at_least"`
	QueryDurationMs        int64                    `json:"-"`
}

// Client issues queries against one ClickHouse server over HTTP.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
}

var trailingPort = regexp.MustCompile(`:\d+$`)

// normalizeHost makes a bare hostname usable: a missing scheme defaults to
// plain HTTP and a missing port to the ClickHouse HTTP default 8123.
func normalizeHost(host string) string {
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	if u, err := url.Parse(host); err == nil && !trailingPort.MatchString(u.Host) {
		host += ":8123"
	}
	return host
}

// NewClient builds a client for the given host. Credentials are passed via
// the X-ClickHouse-User / X-ClickHouse-Key headers on every request.
func NewClient(host, user, password string) *Client {
	return &Client{
		baseURL:  normalizeHost(host),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: defaultTimeout},
	}
}

// Query posts SQL text and decodes the JSON envelope. Non-2xx responses
// surface the server's error text wrapped in ErrUpstream. An OK response
// whose body is not JSON (DDL, empty result sets) decodes to an empty
// result rather than an error.
func (c *Client) Query(ctx context.Context, sql string) (*Result, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: no host configured", ErrUpstream)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	q := u.Query()
	// Keep 64-bit counters as JSON numbers instead of quoted strings.
	q.Set("output_format_json_quote_64bit_integers", "0")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(sql))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("X-ClickHouse-User", c.user)
	req.Header.Set("X-ClickHouse-Key", c.password)
	req.Header.Set("Content-Type", "text/plain")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	elapsed := time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, strings.TrimSpace(string(body)))
	}

	result := &Result{QueryDurationMs: elapsed}
	if err := json.Unmarshal(body, result); err != nil {
		// Successful non-JSON responses yield an empty result set.
		return &Result{QueryDurationMs: elapsed}, nil
	}
	if result.Data == nil {
		result.Data = []map[string]interface{}{}
	}
	return result, nil
}

// Ping verifies the server is reachable and answering queries.
func (c *Client) Ping(ctx context.Context) (*Result, error) {
	return c.Query(ctx, "SELECT 1 AS ok FORMAT JSON")
}
