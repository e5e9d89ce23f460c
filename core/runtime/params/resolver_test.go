package params

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/widgetquery/core/domain"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) LookupScalar(ctx context.Context, table, column, keyColumn, entityID string) (string, error) {
	args := m.Called(ctx, table, column, keyColumn, entityID)
	return args.String(0), args.Error(1)
}

func staticDecl(name, value string) domain.ParameterDeclaration {
	return domain.ParameterDeclaration{Name: name, Source: domain.StaticSource{Value: value}}
}

func contextDecl(name, key string) domain.ParameterDeclaration {
	return domain.ParameterDeclaration{Name: name, Source: domain.ContextSource{Key: key}}
}

func dbDecl(name, table, column string) domain.ParameterDeclaration {
	return domain.ParameterDeclaration{Name: name, Source: domain.DatabaseSource{Table: table, Column: column, KeyColumn: "id"}}
}

func TestResolve_StaticIgnoresContext(t *testing.T) {
	r := NewResolver(nil)
	contexts := []domain.ExecutionContext{
		nil,
		{},
		{"region": "US"},
		{domain.EntityIDKey: "7", "region": "APAC"},
	}
	for _, execCtx := range contexts {
		value, err := r.Resolve(context.Background(), staticDecl("region", "EU"), execCtx)
		require.NoError(t, err)
		assert.Equal(t, "EU", value)
	}
}

func TestResolve_Context(t *testing.T) {
	r := NewResolver(nil)

	value, err := r.Resolve(context.Background(), contextDecl("clientLabel", "clientShortName"), domain.ExecutionContext{"clientShortName": "SITE"})
	require.NoError(t, err)
	assert.Equal(t, "SITE", value)

	for _, execCtx := range []domain.ExecutionContext{nil, {}, {"other": "x"}, {"clientShortName": ""}} {
		_, err := r.Resolve(context.Background(), contextDecl("clientLabel", "clientShortName"), execCtx)
		assert.Equal(t, apperrors.ErrCodeMissingContextValue, apperrors.CodeOf(err))
	}
}

func TestResolve_Database(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("LookupScalar", mock.Anything, "clients", "domain", "id", "42").Return("acme.example", nil)
	r := NewResolver(lookup)

	value, err := r.Resolve(context.Background(), dbDecl("domain", "clients", "domain"), domain.ExecutionContext{domain.EntityIDKey: "42"})
	require.NoError(t, err)
	assert.Equal(t, "acme.example", value)
	lookup.AssertExpectations(t)
}

func TestResolve_DatabaseNeedsEntity(t *testing.T) {
	lookup := &mockLookup{}
	r := NewResolver(lookup)

	_, err := r.Resolve(context.Background(), dbDecl("domain", "clients", "domain"), domain.ExecutionContext{})
	assert.Equal(t, apperrors.ErrCodeMissingContextValue, apperrors.CodeOf(err))
	lookup.AssertNotCalled(t, "LookupScalar", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_DatabaseLookupErrorsPassThrough(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"not found", apperrors.NewAppError(apperrors.ErrCodeLookupNotFound, "no row", nil), apperrors.ErrCodeLookupNotFound},
		{"ambiguous", apperrors.NewAppError(apperrors.ErrCodeAmbiguousLookup, "2 rows", nil), apperrors.ErrCodeAmbiguousLookup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &mockLookup{}
			lookup.On("LookupScalar", mock.Anything, "clients", "domain", "id", "1").Return("", tt.err)
			r := NewResolver(lookup)

			_, err := r.Resolve(context.Background(), dbDecl("domain", "clients", "domain"), domain.ExecutionContext{domain.EntityIDKey: "1"})
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestResolve_DatabaseWithoutLookupStore(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), dbDecl("domain", "clients", "domain"), domain.ExecutionContext{domain.EntityIDKey: "1"})
	assert.Equal(t, apperrors.ErrCodeValidationError, apperrors.CodeOf(err))
}

func TestResolve_NilSource(t *testing.T) {
	r := NewResolver(nil)
	_, err := r.Resolve(context.Background(), domain.ParameterDeclaration{Name: "x"}, nil)
	assert.Equal(t, apperrors.ErrCodeValidationError, apperrors.CodeOf(err))
}

func TestResolveAll(t *testing.T) {
	lookup := &mockLookup{}
	lookup.On("LookupScalar", mock.Anything, "clients", "domain", "id", "9").Return("acme.example", nil)
	r := NewResolver(lookup)

	values, err := r.ResolveAll(context.Background(), []domain.ParameterDeclaration{
		staticDecl("project", "DEP"),
		contextDecl("clientLabel", "clientShortName"),
		dbDecl("domain", "clients", "domain"),
	}, domain.ExecutionContext{"clientShortName": "SITE", domain.EntityIDKey: "9"})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"project": "DEP", "clientLabel": "SITE", "domain": "acme.example"}, values)
}

func TestResolveAll_Empty(t *testing.T) {
	values, err := NewResolver(nil).ResolveAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestResolveAll_ReportsFirstFailureInDeclarationOrder(t *testing.T) {
	lookup := &mockLookup{}
	// the first declaration fails slowly, the second fails immediately
	lookup.On("LookupScalar", mock.Anything, "clients", "domain", "id", "1").
		After(50*time.Millisecond).
		Return("", apperrors.NewAppError(apperrors.ErrCodeLookupNotFound, "no row", nil))
	r := NewResolver(lookup)

	_, err := r.ResolveAll(context.Background(), []domain.ParameterDeclaration{
		dbDecl("domain", "clients", "domain"),
		contextDecl("clientLabel", "clientShortName"),
	}, domain.ExecutionContext{domain.EntityIDKey: "1"})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeLookupNotFound, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "parameter 'domain'")
}

func TestResolveAll_IgnoresSiblingCancellation(t *testing.T) {
	blocking := &blockingLookup{}
	r := NewResolver(blocking)

	_, err := r.ResolveAll(context.Background(), []domain.ParameterDeclaration{
		dbDecl("domain", "clients", "domain"),
		contextDecl("clientLabel", "clientShortName"),
	}, domain.ExecutionContext{domain.EntityIDKey: "1"})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMissingContextValue, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "parameter 'clientLabel'")
	assert.Equal(t, int32(1), blocking.calls.Load())
}

func TestResolveAll_RunsConcurrently(t *testing.T) {
	slow := &sleepingLookup{delay: 100 * time.Millisecond}
	r := NewResolver(slow)

	decls := make([]domain.ParameterDeclaration, 5)
	for i := range decls {
		decls[i] = dbDecl(string(rune('a'+i)), "clients", "domain")
	}

	start := time.Now()
	values, err := r.ResolveAll(context.Background(), decls, domain.ExecutionContext{domain.EntityIDKey: "1"})
	require.NoError(t, err)
	assert.Len(t, values, 5)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestResolveAll_DuplicateNames(t *testing.T) {
	_, err := NewResolver(nil).ResolveAll(context.Background(), []domain.ParameterDeclaration{
		staticDecl("a", "1"),
		staticDecl("a", "2"),
	}, nil)
	assert.Equal(t, apperrors.ErrCodeValidationError, apperrors.CodeOf(err))
}

// blockingLookup waits until its context is cancelled
type blockingLookup struct {
	calls atomic.Int32
}

func (b *blockingLookup) LookupScalar(ctx context.Context, _, _, _, _ string) (string, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return "", ctx.Err()
}

type sleepingLookup struct {
	delay time.Duration
}

func (s *sleepingLookup) LookupScalar(ctx context.Context, _, _, _, _ string) (string, error) {
	select {
	case <-time.After(s.delay):
		return "v", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
