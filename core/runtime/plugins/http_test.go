package plugins

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/widgetquery/core/domain"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

func newTicketExecutor(t *testing.T, url string, auth AuthConfig) *TicketExecutor {
	t.Helper()
	exec, err := NewTicketExecutor(context.Background(), InstanceConfig{Plugin: PluginJira, ID: "main", BaseURL: url, Auth: auth})
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	return exec.(*TicketExecutor)
}

func newRESTExecutor(t *testing.T, url string, auth AuthConfig) *RESTExecutor {
	t.Helper()
	exec, err := NewRESTExecutor(context.Background(), InstanceConfig{Plugin: PluginREST, ID: "cmdb", BaseURL: url, Auth: auth})
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	return exec.(*RESTExecutor)
}

func TestTicketExecutor_SearchScenario(t *testing.T) {
	var gotBody map[string]any
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultSearchPath, r.URL.Path)
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"startAt":0,"total":2,"issues":[{"key":"DEP-1"},{"key":"DEP-2"}]}`)
	}))
	defer srv.Close()

	e := newTicketExecutor(t, srv.URL, AuthConfig{Type: AuthBasic, Username: "bot", Password: "s3cr3t"})

	payload, err := e.Prepare(`project = "DEP" AND labels ~ ${clientLabel}`, domain.RequestSpec{}, map[string]string{"clientLabel": "SITE"})
	require.NoError(t, err)
	assert.Equal(t, `project = "DEP" AND labels ~ "SITE"`, payload.Statement)

	result, err := e.ExecuteQuery(context.Background(), payload, "main")
	require.NoError(t, err)

	assert.Equal(t, `project = "DEP" AND labels ~ "SITE"`, gotBody["jql"])
	assert.EqualValues(t, DefaultMaxResults, gotBody["maxResults"])
	assert.Equal(t, "bot", gotUser)
	assert.Equal(t, "s3cr3t", gotPass)

	data := result.Data.(map[string]any)
	assert.Len(t, data["issues"], 2)
	assert.Equal(t, 2, data["total"])
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "[REDACTED]", result.Diagnostics.Headers.Get("Authorization"))
}

func TestTicketExecutor_QuotesInjection(t *testing.T) {
	e := newTicketExecutor(t, "http://jira.invalid", AuthConfig{})

	payload, err := e.Prepare(`labels ~ ${label}`, domain.RequestSpec{}, map[string]string{"label": `x" OR project = "SECRET`})
	require.NoError(t, err)
	assert.Equal(t, `labels ~ "x\" OR project = \"SECRET"`, payload.Statement)
}

func TestTicketExecutor_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>login</html>`},
		{"missing total", `{"issues":[]}`},
		{"missing issues", `{"total":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			e := newTicketExecutor(t, srv.URL, AuthConfig{})
			payload, err := e.Prepare(`project = DEP`, domain.RequestSpec{}, nil)
			require.NoError(t, err)

			_, err = e.ExecuteQuery(context.Background(), payload, "main")
			assert.Equal(t, apperrors.ErrCodeMalformedResponse, apperrors.CodeOf(err))
		})
	}
}

func TestTicketExecutor_ErrorMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errorMessages":["Field 'labelz' does not exist"],"errors":{}}`)
	}))
	defer srv.Close()

	e := newTicketExecutor(t, srv.URL, AuthConfig{})
	payload, err := e.Prepare(`labelz = x`, domain.RequestSpec{}, nil)
	require.NoError(t, err)

	_, err = e.ExecuteQuery(context.Background(), payload, "main")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTransportError, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.UpstreamStatus)
	assert.Contains(t, appErr.Message, "labelz")
}

func TestRESTExecutor_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"bad token"}`)
	}))
	defer srv.Close()

	e := newRESTExecutor(t, srv.URL, AuthConfig{Type: AuthBearer, Token: "tok-123"})
	payload, err := e.Prepare("/api/assets", domain.RequestSpec{}, nil)
	require.NoError(t, err)

	_, err = e.ExecuteQuery(context.Background(), payload, "cmdb")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTransportError, appErr.Code)
	assert.Equal(t, http.StatusUnauthorized, appErr.UpstreamStatus)
	assert.True(t, apperrors.IsTransient(err))
	assert.NotContains(t, err.Error(), "tok-123")
}

func TestRESTExecutor_FullRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/base/api/clients/acme%2Fcorp/assets", r.URL.EscapedPath())
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "acme/corp", r.URL.Query().Get("client"))
		assert.Equal(t, "k-1", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "SITE", r.Header.Get("X-Tenant"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `say "hi"`, body["note"])

		_, _ = io.WriteString(w, `[{"id":1},{"id":2},{"id":3}]`)
	}))
	defer srv.Close()

	e := newRESTExecutor(t, srv.URL+"/base", AuthConfig{Type: AuthAPIKey, Token: "k-1"})
	values := map[string]string{"client": "acme/corp", "tenant": "SITE", "note": `say "hi"`}

	payload, err := e.Prepare("/api/clients/${client}/assets", domain.RequestSpec{
		Method:  "post",
		Query:   map[string]string{"status": "open", "client": "${client}"},
		Headers: map[string]string{"X-Tenant": "${tenant}"},
		Body:    `{"note":"${note}"}`,
	}, values)
	require.NoError(t, err)

	result, err := e.ExecuteQuery(context.Background(), payload, "cmdb")
	require.NoError(t, err)
	assert.Len(t, result.Data, 3)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "[REDACTED]", result.Diagnostics.Headers.Get("X-Api-Key"))
}

func TestRESTExecutor_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	e := newRESTExecutor(t, srv.URL, AuthConfig{})
	_, err := e.ExecuteQuery(context.Background(), &domain.QueryPayload{Method: http.MethodGet, Endpoint: "/"}, "cmdb")
	assert.Equal(t, apperrors.ErrCodeMalformedResponse, apperrors.CodeOf(err))
}

func TestRESTExecutor_RejectsAbsoluteEndpoint(t *testing.T) {
	e := newRESTExecutor(t, "http://cmdb.invalid", AuthConfig{Type: AuthBearer, Token: "t"})
	_, err := e.ExecuteQuery(context.Background(), &domain.QueryPayload{Method: http.MethodGet, Endpoint: "http://evil.example/steal"}, "cmdb")
	assert.Equal(t, apperrors.ErrCodeValidationError, apperrors.CodeOf(err))
}

func TestRESTExecutor_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := newRESTExecutor(t, srv.URL, AuthConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.ExecuteQuery(ctx, &domain.QueryPayload{Method: http.MethodGet, Endpoint: "/slow"}, "cmdb")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRESTExecutor_EndpointQueryValuesStayInOneParameter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/a%2Fb", r.URL.EscapedPath())
		assert.Equal(t, []string{"x&admin=1+2"}, r.URL.Query()["q"])
		assert.Empty(t, r.URL.Query().Get("admin"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	e := newRESTExecutor(t, srv.URL, AuthConfig{})
	payload, err := e.Prepare("/search/${dir}?q=${term}&limit=5", domain.RequestSpec{},
		map[string]string{"dir": "a/b", "term": "x&admin=1+2"})
	require.NoError(t, err)
	assert.Equal(t, "/search/a%2Fb?q=x%26admin%3D1%2B2&limit=5", payload.Endpoint)

	_, err = e.ExecuteQuery(context.Background(), payload, "cmdb")
	require.NoError(t, err)
}

func TestRESTExecutor_ConnectionRefusedIsNotSent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	e := newRESTExecutor(t, "http://"+addr, AuthConfig{})
	_, err = e.ExecuteQuery(context.Background(), &domain.QueryPayload{Method: http.MethodGet, Endpoint: "/assets"}, "cmdb")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransportError, apperrors.CodeOf(err))
	assert.True(t, apperrors.WasNotSent(err))

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.Detail(), "connection refused")
}

func TestRESTExecutor_UpstreamErrorWasSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := newRESTExecutor(t, srv.URL, AuthConfig{})
	_, err := e.ExecuteQuery(context.Background(), &domain.QueryPayload{Method: http.MethodGet, Endpoint: "/"}, "cmdb")
	assert.Equal(t, apperrors.ErrCodeTransportError, apperrors.CodeOf(err))
	assert.False(t, apperrors.WasNotSent(err))
}

func TestRESTExecutor_InvalidBodyAfterSubstitution(t *testing.T) {
	e := newRESTExecutor(t, "http://cmdb.invalid", AuthConfig{})
	_, err := e.Prepare("/x", domain.RequestSpec{Body: `{"n": ${n}}`}, map[string]string{"n": "not a number"})
	assert.Equal(t, apperrors.ErrCodeValidationError, apperrors.CodeOf(err))
}

func TestNewHTTPCaller_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  InstanceConfig
	}{
		{"no base url", InstanceConfig{Plugin: PluginREST, ID: "x"}},
		{"relative base url", InstanceConfig{Plugin: PluginREST, ID: "x", BaseURL: "/api"}},
		{"bearer without token", InstanceConfig{Plugin: PluginREST, ID: "x", BaseURL: "http://h", Auth: AuthConfig{Type: AuthBearer}}},
		{"unknown auth", InstanceConfig{Plugin: PluginREST, ID: "x", BaseURL: "http://h", Auth: AuthConfig{Type: "oauth"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRESTExecutor(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}
