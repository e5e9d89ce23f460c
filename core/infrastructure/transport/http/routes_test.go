package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/infrastructure/transport/http/dto"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) ExecuteWidgetQuery(ctx context.Context, widgetID string, execCtx domain.ExecutionContext) *domain.ResultEnvelope {
	args := m.Called(ctx, widgetID, execCtx)
	return args.Get(0).(*domain.ResultEnvelope)
}

func (m *mockService) GetWidget(ctx context.Context, widgetID string) (*domain.WidgetDefinition, error) {
	args := m.Called(ctx, widgetID)
	w, _ := args.Get(0).(*domain.WidgetDefinition)
	return w, args.Error(1)
}

func (m *mockService) ListWidgets(ctx context.Context) ([]*domain.WidgetDefinition, error) {
	args := m.Called(ctx)
	ws, _ := args.Get(0).([]*domain.WidgetDefinition)
	return ws, args.Error(1)
}

func newTestServer(t *testing.T, svc *mockService) *httptest.Server {
	t.Helper()
	s := NewServer("0", nil)
	RegisterRoutes(s.Router(), svc)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) domain.ResultEnvelope {
	t.Helper()
	var env domain.ResultEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestExecute_Success(t *testing.T) {
	svc := &mockService{}
	svc.On("ExecuteWidgetQuery", mock.Anything, "licenses", domain.ExecutionContext{"clientShortName": "SITE"}).
		Return(&domain.ResultEnvelope{Success: true, Data: []any{map[string]any{"name": "Office"}}, Metadata: domain.Metadata{RecordCount: 1}})
	ts := newTestServer(t, svc)

	resp := post(t, ts.URL+"/widgets/licenses/execute", `{"context":{"clientShortName":"SITE"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.Metadata.RecordCount)
	svc.AssertExpectations(t)
}

func TestExecute_EmptyBody(t *testing.T) {
	svc := &mockService{}
	svc.On("ExecuteWidgetQuery", mock.Anything, "global", domain.ExecutionContext(nil)).
		Return(&domain.ResultEnvelope{Success: true, Data: []any{}})
	ts := newTestServer(t, svc)

	resp := post(t, ts.URL+"/widgets/global/execute", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExecute_FailureStatuses(t *testing.T) {
	tests := []struct {
		name       string
		envErr     *domain.EnvelopeError
		wantStatus int
		wantRetry  string
	}{
		{"rate limited", &domain.EnvelopeError{Code: string(apperrors.ErrCodeRateLimited), Transient: true, RetryAfterMs: 42_500}, http.StatusTooManyRequests, "43"},
		{"rate limited under a second", &domain.EnvelopeError{Code: string(apperrors.ErrCodeRateLimited), RetryAfterMs: 10}, http.StatusTooManyRequests, "1"},
		{"not found", &domain.EnvelopeError{Code: string(apperrors.ErrCodeNotFound)}, http.StatusNotFound, ""},
		{"missing context", &domain.EnvelopeError{Code: string(apperrors.ErrCodeMissingContextValue)}, http.StatusBadRequest, ""},
		{"upstream failure", &domain.EnvelopeError{Code: string(apperrors.ErrCodeTransportError), StatusCode: 401}, http.StatusBadGateway, ""},
		{"timeout", &domain.EnvelopeError{Code: string(apperrors.ErrCodeTimeout)}, http.StatusGatewayTimeout, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("ExecuteWidgetQuery", mock.Anything, "w", mock.Anything).
				Return(&domain.ResultEnvelope{Success: false, Error: tt.envErr})
			ts := newTestServer(t, svc)

			resp := post(t, ts.URL+"/widgets/w/execute", `{}`)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantRetry, resp.Header.Get("Retry-After"))

			env := decodeEnvelope(t, resp)
			assert.False(t, env.Success)
			assert.Nil(t, env.Data)
			assert.Equal(t, tt.envErr.Code, env.Error.Code)
		})
	}
}

func TestExecute_BadRequests(t *testing.T) {
	svc := &mockService{}
	ts := newTestServer(t, svc)

	resp := post(t, ts.URL+"/widgets/w/execute", `{"context":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, ts.URL+"/widgets/w/execute", `{"context":{"n":1}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, ts.URL+"/widgets/w/execute", `{"context":{"":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var verr dto.ValidationErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verr))
	assert.NotEmpty(t, verr.Details)

	svc.AssertNotCalled(t, "ExecuteWidgetQuery", mock.Anything, mock.Anything, mock.Anything)
}

func TestListAndGetWidgets(t *testing.T) {
	global := &domain.WidgetDefinition{ID: "assets", Name: "Assets", Plugin: domain.PluginDescriptor{PluginName: "rest", InstanceID: "cmdb"}}
	entity := &domain.WidgetDefinition{ID: "tickets", Scope: domain.ScopeEntity, DisplayConfig: map[string]any{"chart": "bar"}}

	svc := &mockService{}
	svc.On("ListWidgets", mock.Anything).Return([]*domain.WidgetDefinition{global, entity}, nil)
	svc.On("GetWidget", mock.Anything, "tickets").Return(entity, nil)
	svc.On("GetWidget", mock.Anything, "ghost").Return(nil, apperrors.NewAppError(apperrors.ErrCodeNotFound, "widget 'ghost' not found", nil))
	ts := newTestServer(t, svc)

	var list dto.ListWidgetsResponse
	require.NoError(t, json.NewDecoder(get(t, ts.URL+"/widgets").Body).Decode(&list))
	assert.Len(t, list.Widgets, 2)

	list = dto.ListWidgetsResponse{}
	require.NoError(t, json.NewDecoder(get(t, ts.URL+"/widgets?scope=global").Body).Decode(&list))
	require.Len(t, list.Widgets, 1)
	assert.Equal(t, "assets", list.Widgets[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/widgets?scope=page").StatusCode)

	resp := get(t, ts.URL+"/widgets/tickets")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var w domain.WidgetDefinition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&w))
	assert.Equal(t, "bar", w.DisplayConfig["chart"])

	resp = get(t, ts.URL+"/widgets/ghost")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "NOT_FOUND", errResp.Code)
}

func TestHeartbeatAndMetrics(t *testing.T) {
	ts := newTestServer(t, &mockService{})

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/heartbeat").StatusCode)

	resp := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body strings.Builder
	_, err := io.Copy(&body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "widgetquery_http_requests_total")
}
