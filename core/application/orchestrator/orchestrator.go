// Package orchestrator runs one widget execution from execution context to
// result envelope.
package orchestrator

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/observability"
	"github.com/hyperterse/widgetquery/core/runtime/params"
	sharedctx "github.com/hyperterse/widgetquery/core/shared/context"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// DefaultTimeout bounds dispatch when neither the widget nor the caller sets one
const DefaultTimeout = 30 * time.Second

// State is a step of a single execution
type State string

const (
	StateResolving    State = "resolving"
	StateSubstituting State = "substituting"
	StateRateGate     State = "rate_gate"
	StateDispatching  State = "dispatching"
	StateNormalizing  State = "normalizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithDefaultTimeout sets the dispatch timeout for widgets without their own
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator ties resolver, plugin registry and rate limiter together. It
// holds no per-execution state and is safe for concurrent use.
type Orchestrator struct {
	resolver       *params.Resolver
	registry       interfaces.PluginRegistry
	limiter        interfaces.RateLimiter
	defaultTimeout time.Duration
	now            func() time.Time
	log            logging.Logger
}

// New creates an orchestrator
func New(resolver *params.Resolver, registry interfaces.PluginRegistry, limiter interfaces.RateLimiter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:       resolver,
		registry:       registry,
		limiter:        limiter,
		defaultTimeout: DefaultTimeout,
		now:            time.Now,
		log:            logging.New("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// execution carries the state of one Run
type execution struct {
	widget   *domain.WidgetDefinition
	env      *domain.ResultEnvelope
	log      logging.Logger
	span     trace.Span
	state    State
	started  time.Time
	dispatch time.Duration
}

func (x *execution) enter(s State) {
	x.log.Debugf("%s -> %s", x.state, s)
	x.span.AddEvent(string(s))
	x.state = s
}

// Run executes widget for execCtx. It always returns an envelope; failures
// of any step, including executor panics, are reported inside it.
func (o *Orchestrator) Run(ctx context.Context, widget *domain.WidgetDefinition, execCtx domain.ExecutionContext) (env *domain.ResultEnvelope) {
	executionID := sharedctx.GetExecutionID(ctx)
	if executionID == "" {
		executionID = sharedctx.GenerateID()
		ctx = sharedctx.WithExecutionID(ctx, executionID)
	}

	ctx, span := observability.Tracer().Start(ctx, "widget.execute")
	defer span.End()

	x := &execution{
		widget: widget,
		env: &domain.ResultEnvelope{
			Metadata: domain.Metadata{ExecutionID: executionID, StartedAt: o.now()},
		},
		log:     o.log.With("execution_id", executionID),
		span:    span,
		started: o.now(),
	}
	if widget != nil {
		x.env.Metadata.WidgetID = widget.ID
		x.env.Metadata.Plugin = widget.Plugin.PluginName
		x.env.Metadata.InstanceID = widget.Plugin.InstanceID
		x.log = x.log.With("widget", widget.ID)
		span.SetAttributes(
			attribute.String(observability.AttrExecutionID, executionID),
			attribute.String(observability.AttrWidgetID, widget.ID),
			attribute.String(observability.AttrPluginName, widget.Plugin.PluginName),
			attribute.String(observability.AttrInstanceID, widget.Plugin.InstanceID),
		)
	}

	defer func() {
		if r := recover(); r != nil {
			x.log.Errorf("Recovered from panic in state %s: %v\n%s", x.state, r, debug.Stack())
			env = o.fail(ctx, x, apperrors.NewAppError(apperrors.ErrCodeInternalError, fmt.Sprintf("internal error during %s", x.state), nil))
		}
		code := ""
		if env.Error != nil {
			code = env.Error.Code
		}
		observability.RecordWidgetExecution(ctx, env.Metadata.WidgetID, env.Metadata.Plugin, code, float64(o.now().Sub(x.started).Milliseconds()))
	}()

	return o.run(ctx, x, execCtx)
}

func (o *Orchestrator) run(ctx context.Context, x *execution, execCtx domain.ExecutionContext) *domain.ResultEnvelope {
	w := x.widget
	if w == nil {
		return o.fail(ctx, x, apperrors.NewAppError(apperrors.ErrCodeValidationError, "widget definition is nil", nil))
	}

	x.enter(StateResolving)
	if w.IsEntityScoped() {
		if _, ok := execCtx.EntityID(); !ok {
			return o.fail(ctx, x, apperrors.Annotate(apperrors.MissingContextValue(domain.EntityIDKey), "entity-scoped widget"))
		}
	}
	values, err := o.resolver.ResolveAll(ctx, w.Parameters, execCtx)
	if err != nil {
		return o.fail(ctx, x, err)
	}

	x.enter(StateSubstituting)
	exec, err := o.registry.Get(w.Plugin.PluginName, w.Plugin.InstanceID)
	if err != nil {
		return o.fail(ctx, x, err)
	}
	if w.Plugin.Protocol != "" && w.Plugin.Protocol != exec.Protocol() {
		return o.fail(ctx, x, apperrors.NewAppError(apperrors.ErrCodeValidationError,
			fmt.Sprintf("widget declares protocol '%s' but '%s' speaks '%s'", w.Plugin.Protocol, w.Plugin, exec.Protocol()), nil))
	}
	payload, err := exec.Prepare(w.Template, w.Request, values)
	if err != nil {
		return o.fail(ctx, x, err)
	}

	x.enter(StateRateGate)
	gateKey := w.GateKey()
	x.span.SetAttributes(attribute.String(observability.AttrGateKey, gateKey))
	reservation, wait, err := o.limiter.Reserve(ctx, gateKey)
	if err != nil {
		return o.fail(ctx, x, apperrors.WrapError(apperrors.ErrCodeInternalError, "rate limiter unavailable", err))
	}
	if reservation == nil {
		observability.RecordRateLimitRejection(ctx, gateKey)
		return o.fail(ctx, x, apperrors.RateLimited(gateKey, wait))
	}

	// a request abandoned before it was sent gives its slot back
	if ctx.Err() != nil {
		o.release(reservation, x)
		return o.fail(ctx, x, ctx.Err())
	}

	x.enter(StateDispatching)
	timeout := w.Timeout(o.defaultTimeout)
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dispatchStart := o.now()
	result, err := o.dispatch(dctx, exec, payload, w.Plugin.InstanceID)
	x.dispatch = o.now().Sub(dispatchStart)
	observability.RecordPluginCall(ctx, w.Plugin.PluginName, w.Plugin.InstanceID, err == nil, float64(x.dispatch.Milliseconds()))
	if err != nil {
		// nothing reached the target, so the slot goes back
		if apperrors.IsValidationError(err) || apperrors.WasNotSent(err) {
			o.release(reservation, x)
		}
		return o.fail(ctx, x, o.classifyDispatchError(ctx, dctx, err, timeout))
	}

	x.enter(StateNormalizing)
	return o.normalize(ctx, x, result)
}

// dispatch calls the executor, turning a panic into INTERNAL_ERROR
func (o *Orchestrator) dispatch(ctx context.Context, exec interfaces.QueryExecutor, payload *domain.QueryPayload, instanceID string) (result *domain.RawResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorf("Executor for '%s' panicked: %v\n%s", instanceID, r, debug.Stack())
			result = nil
			err = apperrors.NewAppError(apperrors.ErrCodeInternalError, "executor failed unexpectedly", nil)
		}
	}()
	result, err = exec.ExecuteQuery(ctx, payload, instanceID)
	if err == nil && result == nil {
		err = apperrors.NewAppError(apperrors.ErrCodeMalformedResponse, "executor returned no result", nil)
	}
	return result, err
}

func (o *Orchestrator) release(r interfaces.Reservation, x *execution) {
	// the caller's context may be gone already
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Cancel(ctx); err != nil {
		x.log.Warnf("Failed to release rate-limit reservation: %v", err)
	}
}

func (o *Orchestrator) classifyDispatchError(parent, dctx context.Context, err error, timeout time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if dctx.Err() == context.DeadlineExceeded {
		return apperrors.NewAppError(apperrors.ErrCodeTimeout, fmt.Sprintf("dispatch exceeded %s", timeout), err)
	}
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return apperrors.NewAppError(apperrors.ErrCodeTimeout, fmt.Sprintf("dispatch exceeded %s", timeout), err)
	case stderrors.Is(err, context.Canceled):
		return apperrors.NewAppError(apperrors.ErrCodeCancelled, "request cancelled", err)
	default:
		return apperrors.Transport(err.Error(), 0, err)
	}
}

func (o *Orchestrator) normalize(ctx context.Context, x *execution, result *domain.RawResult) *domain.ResultEnvelope {
	encoded, err := json.Marshal(result.Data)
	if err != nil {
		return o.fail(ctx, x, apperrors.NewAppError(apperrors.ErrCodeMalformedResponse, "result is not serializable", err))
	}

	x.enter(StateDone)
	env := x.env
	env.Success = true
	env.Data = result.Data
	env.Error = nil
	env.Metadata.ExecutionTimeMs = x.dispatch.Milliseconds()
	env.Metadata.StatusCode = result.StatusCode
	env.Metadata.ResponseSizeBytes = len(encoded)
	env.Metadata.RecordCount = RecordCount(result.Data)

	x.span.SetStatus(codes.Ok, "")
	x.log.Debugf("Done in %dms, %d record(s)", env.Metadata.ExecutionTimeMs, env.Metadata.RecordCount)
	return env
}

// fail converts err into a failed envelope. Context errors become TIMEOUT
// or CANCELLED; anything without a code becomes INTERNAL_ERROR.
func (o *Orchestrator) fail(ctx context.Context, x *execution, err error) *domain.ResultEnvelope {
	appErr := toAppError(err)
	failedIn := x.state
	x.enter(StateFailed)

	env := x.env
	env.Success = false
	env.Data = nil
	env.Metadata.ExecutionTimeMs = x.dispatch.Milliseconds()
	env.Metadata.RecordCount = 0
	env.Metadata.ResponseSizeBytes = 0
	env.Metadata.StatusCode = appErr.UpstreamStatus
	env.Error = envelopeError(appErr)

	x.span.SetStatus(codes.Error, string(appErr.Code))
	x.span.SetAttributes(attribute.String(observability.AttrErrorType, string(appErr.Code)))
	if appErr.Code == apperrors.ErrCodeInternalError {
		x.log.Errorf("Failed during %s: %v", failedIn, err)
	} else {
		x.log.Debugf("Failed during %s: %v", failedIn, err)
	}
	return env
}

// FailureEnvelope builds a failed envelope for errors raised before an
// execution starts, such as an unknown widget id
func FailureEnvelope(ctx context.Context, widgetID string, err error) *domain.ResultEnvelope {
	executionID := sharedctx.GetExecutionID(ctx)
	if executionID == "" {
		executionID = sharedctx.GenerateID()
	}
	appErr := toAppError(err)
	return &domain.ResultEnvelope{
		Success: false,
		Error:   envelopeError(appErr),
		Metadata: domain.Metadata{
			ExecutionID: executionID,
			WidgetID:    widgetID,
			StartedAt:   time.Now(),
			StatusCode:  appErr.UpstreamStatus,
		},
	}
}

func envelopeError(appErr *apperrors.AppError) *domain.EnvelopeError {
	e := &domain.EnvelopeError{
		Code:       string(appErr.Code),
		Message:    appErr.Detail(),
		Transient:  apperrors.IsTransient(appErr),
		StatusCode: appErr.UpstreamStatus,
	}
	if appErr.Code == apperrors.ErrCodeRateLimited {
		e.RetryAfterMs = appErr.RetryAfter.Milliseconds()
		if e.RetryAfterMs == 0 && appErr.RetryAfter > 0 {
			e.RetryAfterMs = 1
		}
	}
	return e
}

func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return apperrors.NewAppError(apperrors.ErrCodeTimeout, "deadline exceeded", err)
	case stderrors.Is(err, context.Canceled):
		return apperrors.NewAppError(apperrors.ErrCodeCancelled, "request cancelled", err)
	default:
		return apperrors.WrapError(apperrors.ErrCodeInternalError, err.Error(), err)
	}
}

// RecordCount is the length of an array payload, zero for no payload, and
// one for any other value
func RecordCount(data any) int {
	switch v := data.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	case []map[string]any:
		return len(v)
	case []string:
		return len(v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return 1
		}
		return RecordCount(decoded)
	default:
		return 1
	}
}
