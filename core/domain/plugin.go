package domain

import "net/http"

// QueryPayload is a fully substituted query ready for dispatch.
// SQL executors use Statement and Args; HTTP executors use the rest.
type QueryPayload struct {
	Statement string
	Args      []any

	Method   string
	Endpoint string
	Query    map[string]string
	Headers  map[string]string
	Body     any
}

// RawResult is what an executor hands back before normalization
type RawResult struct {
	Data       any
	StatusCode int
	SizeBytes  int
	Diagnostics
}

// Diagnostics is request metadata safe to log: auth headers are redacted
type Diagnostics struct {
	Method  string
	URL     string
	Headers http.Header
}
