package observability

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	AttrServiceName         = "service.name"
	AttrServiceVersion      = "service.version"
	AttrDeploymentEnv       = "deployment.environment"
	AttrTraceID             = "trace_id"
	AttrSpanID              = "span_id"
	AttrRequestID           = "request.id"
	AttrExecutionID         = "widget.execution_id"
	AttrWidgetID            = "widget.id"
	AttrPluginName          = "plugin.name"
	AttrInstanceID          = "plugin.instance"
	AttrProtocol            = "plugin.protocol"
	AttrGateKey             = "ratelimit.key"
	AttrHTTPMethod          = "http.request.method"
	AttrHTTPRoute           = "http.route"
	AttrHTTPStatusCode      = "http.response.status_code"
	AttrErrorType           = "error.type"
	AttrErrorMessage        = "error.message"
	AttrExceptionStacktrace = "exception.stacktrace"
)

const redacted = "[REDACTED]"

var secretKeySubstrings = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"api-key",
	"authorization",
	"cookie",
	"connection_string",
	"dsn",
}

// IsSensitiveKey reports whether a header, query or attribute name is
// likely to carry a credential
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, needle := range secretKeySubstrings {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// RedactAttributeValue masks values for known-sensitive attribute keys.
func RedactAttributeValue(key string, value string) string {
	if IsSensitiveKey(key) {
		return redacted
	}
	return value
}

// RedactHeaders returns a copy of h with credential-bearing values masked
func RedactHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, values := range h {
		if IsSensitiveKey(k) {
			out[k] = []string{redacted}
			continue
		}
		out[k] = append([]string(nil), values...)
	}
	return out
}

// RedactURL drops userinfo and masks sensitive query parameters
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	if clean.User != nil {
		clean.User = url.User(redacted)
	}
	if clean.RawQuery != "" {
		q := clean.Query()
		for k := range q {
			if IsSensitiveKey(k) {
				q.Set(k, redacted)
			}
		}
		clean.RawQuery = q.Encode()
	}
	return clean.String()
}
