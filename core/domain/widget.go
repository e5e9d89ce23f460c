package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Protocol identifies the downstream call shape of a plugin
type Protocol string

const (
	ProtocolSQL  Protocol = "sql"
	ProtocolJQL  Protocol = "jql"
	ProtocolREST Protocol = "rest"
)

// Scope controls whether a widget needs an entity in its execution context
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeEntity Scope = "entity"
)

// PluginDescriptor identifies which executor and which configured instance serve a widget
type PluginDescriptor struct {
	PluginName string   `yaml:"plugin" json:"plugin" validate:"required"`
	InstanceID string   `yaml:"instance" json:"instance" validate:"required"`
	Protocol   Protocol `yaml:"protocol,omitempty" json:"protocol,omitempty" validate:"omitempty,oneof=sql jql rest"`
}

// GateKey is the default rate-limit key for calls through this descriptor
func (p PluginDescriptor) GateKey() string {
	return p.PluginName + "/" + p.InstanceID
}

func (p PluginDescriptor) String() string {
	return p.GateKey()
}

// RequestSpec carries the HTTP call shape for ticket-system and REST plugins.
// Query values, header values and Body may contain placeholders.
type RequestSpec struct {
	Method     string            `yaml:"method,omitempty" json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Endpoint   string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Query      map[string]string `yaml:"query,omitempty" json:"query,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body       string            `yaml:"body,omitempty" json:"body,omitempty"`
	MaxResults int               `yaml:"max_results,omitempty" json:"max_results,omitempty" validate:"gte=0"`
	Fields     []string          `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// WidgetDefinition is a dashboard widget as held by the configuration store.
// DisplayConfig and Filters are opaque to the engine and passed through.
type WidgetDefinition struct {
	ID                     string                 `yaml:"id" json:"id" validate:"required"`
	Name                   string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Description            string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Template               string                 `yaml:"template" json:"template" validate:"required"`
	Parameters             []ParameterDeclaration `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Plugin                 PluginDescriptor       `yaml:"plugin" json:"plugin"`
	Request                RequestSpec            `yaml:"request,omitempty" json:"request,omitempty"`
	DisplayConfig          map[string]any         `yaml:"display,omitempty" json:"display,omitempty"`
	Filters                []map[string]any       `yaml:"filters,omitempty" json:"filters,omitempty"`
	RefreshIntervalSeconds int                    `yaml:"refresh_interval_seconds,omitempty" json:"refresh_interval_seconds,omitempty" validate:"gte=0"`
	Scope                  Scope                  `yaml:"scope,omitempty" json:"scope,omitempty" validate:"omitempty,oneof=global entity"`
	TimeoutSeconds         int                    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" validate:"gte=0"`
	RateLimitKey           string                 `yaml:"rate_limit_key,omitempty" json:"rate_limit_key,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural invariants of a widget definition.
// Placeholder coverage is checked by the config validator, which owns the template grammar.
func (w *WidgetDefinition) Validate() error {
	if w == nil {
		return ErrInvalidWidget
	}
	if err := validate.Struct(w); err != nil {
		return &DomainError{Message: fmt.Sprintf("widget '%s': %s", w.ID, describeValidation(err))}
	}

	seen := make(map[string]bool, len(w.Parameters))
	for _, p := range w.Parameters {
		if p.Source == nil {
			return &DomainError{Message: fmt.Sprintf("widget '%s': parameter '%s' has no source", w.ID, p.Name)}
		}
		if seen[p.Name] {
			return &DomainError{Message: fmt.Sprintf("widget '%s': parameter '%s' declared more than once", w.ID, p.Name)}
		}
		seen[p.Name] = true
	}
	return nil
}

// GateKey returns the rate-limit key for this widget
func (w *WidgetDefinition) GateKey() string {
	if w.RateLimitKey != "" {
		return w.RateLimitKey
	}
	return w.Plugin.GateKey()
}

// Timeout returns the widget's dispatch timeout, or fallback when unset
func (w *WidgetDefinition) Timeout(fallback time.Duration) time.Duration {
	if w.TimeoutSeconds > 0 {
		return time.Duration(w.TimeoutSeconds) * time.Second
	}
	return fallback
}

// IsEntityScoped reports whether the widget must be viewed from an entity page
func (w *WidgetDefinition) IsEntityScoped() bool {
	return w.Scope == ScopeEntity
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "WidgetDefinition.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Domain errors
var (
	ErrInvalidWidget = &DomainError{Message: "widget cannot be nil"}
)

// DomainError represents a domain-level error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}
