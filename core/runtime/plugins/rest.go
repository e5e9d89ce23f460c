package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/runtime/template"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// RESTExecutor calls arbitrary JSON HTTP APIs. The widget template is the
// endpoint path relative to the instance base URL.
type RESTExecutor struct {
	http *httpCaller
}

// NewRESTExecutor binds base URL and credentials for one REST instance
func NewRESTExecutor(_ context.Context, cfg InstanceConfig) (interfaces.QueryExecutor, error) {
	caller, err := newHTTPCaller(cfg, "plugin:rest")
	if err != nil {
		return nil, err
	}
	return &RESTExecutor{http: caller}, nil
}

func (e *RESTExecutor) Protocol() domain.Protocol {
	return domain.ProtocolREST
}

// Prepare escapes endpoint values for the URL part they land in,
// JSON-escapes them in the body and inserts them unchanged into query and
// header values, which are encoded by the HTTP layer
func (e *RESTExecutor) Prepare(tpl string, req domain.RequestSpec, values map[string]string) (*domain.QueryPayload, error) {
	endpoint, err := substituteEndpoint(tpl, values)
	if err != nil {
		return nil, err
	}
	query, err := substituteMap(req.Query, values, template.DialectRaw)
	if err != nil {
		return nil, err
	}
	headers, err := substituteMap(req.Headers, values, template.DialectRaw)
	if err != nil {
		return nil, err
	}

	var body any
	if req.Body != "" {
		rendered, err := template.Substitute(req.Body, values, template.DialectJSON)
		if err != nil {
			return nil, err
		}
		if !json.Valid([]byte(rendered)) {
			return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "request body is not valid JSON after substitution", nil)
		}
		body = json.RawMessage(rendered)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	return &domain.QueryPayload{
		Method:   method,
		Endpoint: endpoint,
		Query:    query,
		Headers:  headers,
		Body:     body,
	}, nil
}

// ExecuteQuery performs the call and returns the decoded JSON body with the
// upstream status
func (e *RESTExecutor) ExecuteQuery(ctx context.Context, payload *domain.QueryPayload, _ string) (*domain.RawResult, error) {
	if payload == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "empty rest payload", nil)
	}

	resp, err := e.http.do(ctx, payload.Method, payload.Endpoint, payload.Query, payload.Headers, payload.Body)
	if err != nil {
		return nil, err
	}

	if !isSuccess(resp.status) {
		return nil, statusError(resp, excerpt(resp.body))
	}

	var data any
	if len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, &data); err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrCodeMalformedResponse, "response body is not JSON", err)
		}
	}

	return &domain.RawResult{
		Data:        data,
		StatusCode:  resp.status,
		SizeBytes:   len(resp.body),
		Diagnostics: resp.diag,
	}, nil
}

func (e *RESTExecutor) Close() error {
	e.http.close()
	return nil
}

// substituteMap renders every value of m; nil in, nil out
// substituteEndpoint path-escapes values before the first '?' and
// query-escapes them after it, so a value can never add query parameters
func substituteEndpoint(tpl string, values map[string]string) (string, error) {
	path, rawQuery, hasQuery := strings.Cut(tpl, "?")
	endpoint, err := template.Substitute(path, values, template.DialectURLPath)
	if err != nil || !hasQuery {
		return endpoint, err
	}
	query, err := template.Substitute(rawQuery, values, template.DialectURLQuery)
	if err != nil {
		return "", err
	}
	return endpoint + "?" + query, nil
}

func substituteMap(m map[string]string, values map[string]string, dialect template.Dialect) (map[string]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		rendered, err := template.Substitute(v, values, dialect)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}
