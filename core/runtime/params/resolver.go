// Package params resolves widget parameter declarations to concrete values.
package params

import (
	"context"
	stderrors "errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// Resolver turns declarations into values using the execution context and,
// for database sources, the lookup collaborator
type Resolver struct {
	lookup interfaces.LookupStore
	log    logging.Logger
}

// NewResolver creates a resolver. lookup may be nil when no widget uses
// database-sourced parameters.
func NewResolver(lookup interfaces.LookupStore) *Resolver {
	return &Resolver{
		lookup: lookup,
		log:    logging.New("resolver"),
	}
}

// Resolve produces the value of a single declaration
func (r *Resolver) Resolve(ctx context.Context, decl domain.ParameterDeclaration, execCtx domain.ExecutionContext) (string, error) {
	switch src := decl.Source.(type) {
	case domain.StaticSource:
		return src.Value, nil

	case domain.ContextSource:
		value, ok := execCtx.Get(src.Key)
		if !ok {
			return "", apperrors.MissingContextValue(src.Key)
		}
		return value, nil

	case domain.DatabaseSource:
		entityID, ok := execCtx.EntityID()
		if !ok {
			return "", apperrors.MissingContextValue(domain.EntityIDKey)
		}
		if r.lookup == nil {
			return "", apperrors.NewAppError(apperrors.ErrCodeValidationError, "database-sourced parameters need a lookup store, none is configured", nil)
		}
		r.log.Debugf("Looking up %s.%s where %s = %s", src.Table, src.Column, src.KeyColumn, entityID)
		return r.lookup.LookupScalar(ctx, src.Table, src.Column, src.KeyColumn, entityID)

	case nil:
		return "", apperrors.NewAppError(apperrors.ErrCodeValidationError, "parameter has no source", nil)

	default:
		return "", apperrors.NewAppError(apperrors.ErrCodeValidationError, fmt.Sprintf("unsupported parameter source %T", src), nil)
	}
}

// ResolveAll resolves every declaration concurrently. On failure it reports
// the failing parameter that comes first in declaration order; no partial
// map is returned.
func (r *Resolver) ResolveAll(ctx context.Context, decls []domain.ParameterDeclaration, execCtx domain.ExecutionContext) (map[string]string, error) {
	values := make([]string, len(decls))
	errs := make([]error, len(decls))

	g, gctx := errgroup.WithContext(ctx)
	for i, decl := range decls {
		g.Go(func() error {
			value, err := r.Resolve(gctx, decl, execCtx)
			if err != nil {
				errs[i] = apperrors.Annotate(err, fmt.Sprintf("parameter '%s'", decl.Name))
				return errs[i]
			}
			values[i] = value
			return nil
		})
	}

	if groupErr := g.Wait(); groupErr != nil {
		return nil, firstCause(ctx, errs, groupErr)
	}

	resolved := make(map[string]string, len(decls))
	for i, decl := range decls {
		if _, dup := resolved[decl.Name]; dup {
			return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, fmt.Sprintf("parameter '%s' declared more than once", decl.Name), nil)
		}
		resolved[decl.Name] = values[i]
	}
	return resolved, nil
}

// firstCause picks the earliest error that is not just a side effect of the
// group cancelling siblings after another parameter failed
func firstCause(parent context.Context, errs []error, fallback error) error {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if parent.Err() == nil && stderrors.Is(err, context.Canceled) {
			continue
		}
		return err
	}
	return fallback
}
