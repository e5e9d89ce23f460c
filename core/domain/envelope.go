package domain

import "time"

// EntityIDKey is the reserved execution-context key holding the current entity id
const EntityIDKey = "entityId"

// ExecutionContext describes where a widget is being viewed. It is built fresh
// per request and never persisted.
type ExecutionContext map[string]string

// Get returns the value for key and whether it is present and non-empty
func (c ExecutionContext) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// EntityID returns the current entity id, if any
func (c ExecutionContext) EntityID() (string, bool) {
	return c.Get(EntityIDKey)
}

// ResultEnvelope is the uniform result of one widget execution.
// Success=false implies Data is nil and Error is set.
type ResultEnvelope struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *EnvelopeError `json:"error,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// EnvelopeError is the user-visible failure description
type EnvelopeError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Transient    bool   `json:"transient"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
	StatusCode   int    `json:"statusCode,omitempty"`
}

// Metadata describes how the execution went
type Metadata struct {
	ExecutionID       string    `json:"executionId"`
	WidgetID          string    `json:"widgetId"`
	Plugin            string    `json:"plugin,omitempty"`
	InstanceID        string    `json:"instanceId,omitempty"`
	StartedAt         time.Time `json:"startedAt"`
	ExecutionTimeMs   int64     `json:"executionTimeMs"`
	StatusCode        int       `json:"statusCode,omitempty"`
	ResponseSizeBytes int       `json:"responseSizeBytes"`
	RecordCount       int       `json:"recordCount"`
}

// RetryAfter returns the advertised wait for rate-limited failures
func (e *ResultEnvelope) RetryAfter() time.Duration {
	if e == nil || e.Error == nil {
		return 0
	}
	return time.Duration(e.Error.RetryAfterMs) * time.Millisecond
}
