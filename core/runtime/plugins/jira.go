package plugins

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/runtime/template"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

const (
	// DefaultSearchPath is the ticket-system search endpoint
	DefaultSearchPath = "/rest/api/2/search"
	// DefaultMaxResults caps issues per search when the widget sets no limit
	DefaultMaxResults = 50
)

// TicketExecutor runs JQL searches against a Jira-compatible ticket system
type TicketExecutor struct {
	http       *httpCaller
	searchPath string
	maxResults int
}

// NewTicketExecutor binds base URL and credentials for one ticket-system instance.
// options: search_path overrides DefaultSearchPath.
func NewTicketExecutor(_ context.Context, cfg InstanceConfig) (interfaces.QueryExecutor, error) {
	caller, err := newHTTPCaller(cfg, "plugin:jira")
	if err != nil {
		return nil, err
	}
	searchPath := DefaultSearchPath
	if p := cfg.Options["search_path"]; p != "" {
		searchPath = p
	}
	return &TicketExecutor{
		http:       caller,
		searchPath: searchPath,
		maxResults: DefaultMaxResults,
	}, nil
}

func (e *TicketExecutor) Protocol() domain.Protocol {
	return domain.ProtocolJQL
}

// Prepare renders the template as JQL, quoting every value as a string
// literal, and wraps it in a search body
func (e *TicketExecutor) Prepare(tpl string, req domain.RequestSpec, values map[string]string) (*domain.QueryPayload, error) {
	jql, err := template.Substitute(tpl, values, template.DialectJQL)
	if err != nil {
		return nil, err
	}

	endpoint := e.searchPath
	if req.Endpoint != "" {
		endpoint, err = template.Substitute(req.Endpoint, values, template.DialectURLPath)
		if err != nil {
			return nil, err
		}
	}
	headers, err := substituteMap(req.Headers, values, template.DialectRaw)
	if err != nil {
		return nil, err
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = e.maxResults
	}
	body := map[string]any{
		"jql":        jql,
		"maxResults": maxResults,
	}
	if len(req.Fields) > 0 {
		body["fields"] = req.Fields
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	return &domain.QueryPayload{
		Statement: jql,
		Method:    method,
		Endpoint:  endpoint,
		Headers:   headers,
		Body:      body,
	}, nil
}

type searchResponse struct {
	Issues []json.RawMessage `json:"issues"`
	Total  *int              `json:"total"`
}

type jiraErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// ExecuteQuery sends the search and returns {issues, total}
func (e *TicketExecutor) ExecuteQuery(ctx context.Context, payload *domain.QueryPayload, _ string) (*domain.RawResult, error) {
	if payload == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "empty ticket-system payload", nil)
	}

	var query map[string]string
	var body any = payload.Body
	if payload.Method == http.MethodGet {
		// GET search carries the JQL as query parameters
		query = map[string]string{"jql": payload.Statement}
		if m, ok := payload.Body.(map[string]any); ok {
			if n, ok := m["maxResults"].(int); ok {
				query["maxResults"] = strconv.Itoa(n)
			}
		}
		body = nil
	}

	resp, err := e.http.do(ctx, payload.Method, payload.Endpoint, query, payload.Headers, body)
	if err != nil {
		return nil, err
	}

	if !isSuccess(resp.status) {
		return nil, statusError(resp, jiraErrorDetail(resp.body))
	}

	var decoded searchResponse
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeMalformedResponse, "ticket-system response is not JSON", err)
	}
	if decoded.Issues == nil || decoded.Total == nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeMalformedResponse, "ticket-system response lacks issues or total", nil)
	}

	issues := make([]any, 0, len(decoded.Issues))
	for _, raw := range decoded.Issues {
		var issue any
		if err := json.Unmarshal(raw, &issue); err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrCodeMalformedResponse, "ticket-system issue is not valid JSON", err)
		}
		issues = append(issues, issue)
	}

	return &domain.RawResult{
		Data: map[string]any{
			"issues": issues,
			"total":  *decoded.Total,
		},
		StatusCode:  resp.status,
		SizeBytes:   len(resp.body),
		Diagnostics: resp.diag,
	}, nil
}

func jiraErrorDetail(body []byte) string {
	var decoded jiraErrorResponse
	if err := json.Unmarshal(body, &decoded); err == nil {
		msgs := append([]string(nil), decoded.ErrorMessages...)
		for field, msg := range decoded.Errors {
			msgs = append(msgs, field+": "+msg)
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return excerpt(body)
}

func (e *TicketExecutor) Close() error {
	e.http.close()
	return nil
}
