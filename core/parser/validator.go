package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/infrastructure/sqldb"
	"github.com/hyperterse/widgetquery/core/infrastructure/store"
	"github.com/hyperterse/widgetquery/core/logger"
	"github.com/hyperterse/widgetquery/core/runtime/plugins"
)

var (
	// log is the logger instance for the validator package
	log = logger.New("parser")

	validate = validator.New(validator.WithRequiredStructEnabled())

	// lower-snake-case or lower-kebab-case, starting with a letter
	namePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors struct {
	Errors []string
}

// Error implements the error interface
// Returns a simple message since detailed errors are already logged
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("validation failed with %d error(s)", len(ve.Errors))
}

// Format returns every error, one per line
func (ve *ValidationErrors) Format() string {
	return strings.Join(ve.Errors, "\n")
}

// Validate checks the config and its inline widgets
func Validate(cfg *Config) error {
	log.Debugf("Starting validation")
	var errors []string

	if err := validate.Struct(cfg); err != nil {
		errors = append(errors, describe(err)...)
	}
	if cfg.Name != "" && !namePattern.MatchString(cfg.Name) {
		errors = append(errors, fmt.Sprintf("name '%s' is invalid. Must start with a letter and be in lower-snake-case or lower-kebab-case", cfg.Name))
	}

	if cfg.Store.Type == StoreSQL && cfg.Store.Driver == "" {
		errors = append(errors, "store.driver is required when store.type is 'sql'")
	}
	errors = append(errors, validatePlugins(cfg.Plugins)...)

	if len(cfg.Widgets) > 0 && cfg.Store.Type != StoreInline {
		errors = append(errors, fmt.Sprintf("widgets are defined inline but store.type is '%s'", cfg.Store.Type))
	}
	errors = append(errors, widgetErrors(cfg, cfg.Widgets)...)

	if len(errors) > 0 {
		log.PrintValidationErrors(errors)
		return &ValidationErrors{Errors: errors}
	}
	log.Debugf("Validation successful")
	return nil
}

// ValidateWidgets checks widgets loaded from an external store against the config
func ValidateWidgets(cfg *Config, widgets []*domain.WidgetDefinition) error {
	if errors := widgetErrors(cfg, widgets); len(errors) > 0 {
		log.PrintValidationErrors(errors)
		return &ValidationErrors{Errors: errors}
	}
	return nil
}

func validatePlugins(instances []plugins.InstanceConfig) []string {
	var errors []string
	seen := make(map[string]bool)
	for i, p := range instances {
		if p.Plugin == "" || p.ID == "" {
			// reported by struct validation
			continue
		}
		prefix := fmt.Sprintf("Plugin '%s'", p.Key())
		if seen[p.Key()] {
			errors = append(errors, fmt.Sprintf("%s - already defined. Instances must be unique", prefix))
		}
		seen[p.Key()] = true

		if _, ok := plugins.BuiltinProtocol(p.Plugin); !ok {
			errors = append(errors, fmt.Sprintf("plugins[%d] - unknown plugin '%s'. Must be one of: %s, %s, %s", i, p.Plugin, plugins.PluginSQL, plugins.PluginJira, plugins.PluginREST))
			continue
		}

		switch p.Plugin {
		case plugins.PluginSQL:
			if p.Driver == "" {
				errors = append(errors, fmt.Sprintf("%s - driver is required", prefix))
			}
			if p.DSN == "" && p.Driver != sqldb.DriverSQLite {
				errors = append(errors, fmt.Sprintf("%s - dsn is required", prefix))
			}
		default:
			if p.BaseURL == "" {
				errors = append(errors, fmt.Sprintf("%s - base_url is required", prefix))
			}
		}
	}
	return errors
}

func widgetErrors(cfg *Config, widgets []*domain.WidgetDefinition) []string {
	var errors []string

	instances := make(map[string]string, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		instances[p.Key()] = p.Plugin
	}

	seen := make(map[string]bool)
	for i, w := range widgets {
		if w == nil {
			errors = append(errors, fmt.Sprintf("widgets[%d] is empty", i))
			continue
		}
		if err := store.Check(w); err != nil {
			errors = append(errors, err.Error())
			continue
		}
		prefix := fmt.Sprintf("Widget '%s'", w.ID)
		if seen[w.ID] {
			errors = append(errors, fmt.Sprintf("%s - already defined. Widget ids must be unique", prefix))
		}
		seen[w.ID] = true

		if _, ok := instances[w.Plugin.GateKey()]; !ok {
			errors = append(errors, fmt.Sprintf("%s - plugin instance '%s' is not configured", prefix, w.Plugin.GateKey()))
		} else if w.Plugin.Protocol != "" {
			if want, _ := plugins.BuiltinProtocol(w.Plugin.PluginName); want != w.Plugin.Protocol {
				errors = append(errors, fmt.Sprintf("%s - protocol '%s' does not match plugin '%s' (%s)", prefix, w.Plugin.Protocol, w.Plugin.PluginName, want))
			}
		}

		for _, p := range w.Parameters {
			if _, ok := p.Source.(domain.DatabaseSource); ok && cfg.Lookup == nil {
				errors = append(errors, fmt.Sprintf("%s - parameter '%s' reads from the database but no lookup is configured", prefix, p.Name))
			}
		}
	}
	return errors
}

func describe(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", field, fe.Tag()))
		}
	}
	return msgs
}
