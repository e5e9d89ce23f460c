package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/observability"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 16 << 20
	errorExcerptBytes  = 256
)

// httpCaller is the transport shared by the ticket-system and REST executors.
// Credentials are applied per request and never copied into results.
type httpCaller struct {
	client  *http.Client
	baseURL *url.URL
	auth    AuthConfig
	log     logging.Logger
}

func newHTTPCaller(cfg InstanceConfig, tag string) (*httpCaller, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s instance '%s' has no base_url", cfg.Plugin, cfg.ID)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s instance '%s' has an invalid base_url", cfg.Plugin, cfg.ID)
	}
	if err := validateAuth(cfg.Auth); err != nil {
		return nil, fmt.Errorf("%s instance '%s': %w", cfg.Plugin, cfg.ID, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &httpCaller{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		baseURL: base,
		auth:    cfg.Auth,
		log:     logging.New(tag),
	}, nil
}

func validateAuth(auth AuthConfig) error {
	switch auth.Type {
	case "", AuthNone:
	case AuthBasic:
		if auth.Username == "" {
			return fmt.Errorf("basic auth needs a username")
		}
	case AuthBearer, AuthAPIKey:
		if auth.Token == "" {
			return fmt.Errorf("%s auth needs a token", auth.Type)
		}
	default:
		return fmt.Errorf("unknown auth type '%s'", auth.Type)
	}
	return nil
}

func (c *httpCaller) applyAuth(req *http.Request) {
	switch c.auth.Type {
	case AuthBasic:
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	case AuthAPIKey:
		header := c.auth.Header
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		req.Header.Set(header, c.auth.Token)
	}
}

// resolve joins endpoint onto the base URL. Absolute endpoints are rejected
// so a template cannot redirect credentials to another host.
func (c *httpCaller) resolve(endpoint string, query map[string]string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "invalid endpoint", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "endpoint must be relative to the instance base_url", nil)
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	if ref.RawPath != "" {
		u.RawPath = strings.TrimSuffix(c.baseURL.EscapedPath(), "/") + "/" + strings.TrimPrefix(ref.RawPath, "/")
	} else {
		u.RawPath = ""
	}

	q := u.Query()
	for k, vs := range ref.Query() {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return &u, nil
}

type httpResponse struct {
	status int
	body   []byte
	diag   domain.Diagnostics
}

// do sends one request. Network failures become TRANSPORT_ERROR; context
// errors are returned unwrapped so the caller can tell timeout from cancel.
func (c *httpCaller) do(ctx context.Context, method, endpoint string, query, headers map[string]string, body any) (*httpResponse, error) {
	u, err := c.resolve(endpoint, query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := encodeBody(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.applyAuth(req)

	diag := domain.Diagnostics{
		Method:  method,
		URL:     observability.RedactURL(u),
		Headers: observability.RedactHeaders(req.Header),
	}
	c.log.Debugf("%s %s", diag.Method, diag.URL)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cause := err
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			// url.Error repeats the method and URL already in the message
			cause = urlErr.Err
		}
		msg := fmt.Sprintf("%s %s failed", method, diag.URL)
		if neverSent(err) {
			return nil, apperrors.NotDispatched(msg, cause)
		}
		return nil, apperrors.Transport(msg, 0, cause)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Transport("failed to read response body", resp.StatusCode, err)
	}
	if len(data) > maxResponseBytes {
		return nil, apperrors.NewAppError(apperrors.ErrCodeMalformedResponse, fmt.Sprintf("response exceeds %d bytes", maxResponseBytes), nil)
	}

	return &httpResponse{status: resp.StatusCode, body: data, diag: diag}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case json.RawMessage:
		return b, nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "failed to encode request body", err)
		}
		return encoded, nil
	}
}

// statusError turns a non-2xx response into TRANSPORT_ERROR carrying the status
func statusError(resp *httpResponse, detail string) error {
	msg := fmt.Sprintf("%s %s returned %d %s", resp.diag.Method, resp.diag.URL, resp.status, http.StatusText(resp.status))
	if detail != "" {
		msg += ": " + detail
	}
	return apperrors.Transport(msg, resp.status, nil)
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorExcerptBytes {
		s = s[:errorExcerptBytes] + "..."
	}
	return s
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func (c *httpCaller) close() {
	c.client.CloseIdleConnections()
}
