package parser

import (
	"time"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/runtime/plugins"
	"github.com/hyperterse/widgetquery/core/runtime/ratelimit"
)

// Store backends
const (
	StoreInline  = "inline"
	StoreFile    = "file"
	StoreSQL     = "sql"
	StoreMongoDB = "mongodb"
)

// Rate limiter backends
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

const DefaultPort = "8080"

// Config is the root of a widgetquery configuration file
type Config struct {
	Name      string                     `yaml:"name" validate:"required"`
	Server    ServerConfig               `yaml:"server"`
	RateLimit RateLimitConfig            `yaml:"ratelimit"`
	Lookup    *LookupConfig              `yaml:"lookup,omitempty"`
	Store     StoreConfig                `yaml:"store"`
	Plugins   []plugins.InstanceConfig   `yaml:"plugins" validate:"dive"`
	Widgets   []*domain.WidgetDefinition `yaml:"widgets,omitempty"`

	// Dir is the directory of the loaded file. Relative store paths resolve against it.
	Dir string `yaml:"-"`
}

// ServerConfig configures the HTTP transport
type ServerConfig struct {
	Port           string        `yaml:"port,omitempty"`
	LogLevel       int           `yaml:"log_level,omitempty" validate:"gte=0,lte=4"`
	DefaultTimeout time.Duration `yaml:"default_timeout,omitempty" validate:"gte=0"`
	CORSOrigins    []string      `yaml:"cors_origins,omitempty"`
}

// RateLimitConfig selects the limiter backend and its intervals. Intervals
// maps gate-key prefixes such as "jira/" or "jira/main" to minimum spacing.
type RateLimitConfig struct {
	Backend         string                   `yaml:"backend,omitempty" validate:"omitempty,oneof=memory redis"`
	RedisURL        string                   `yaml:"redis_url,omitempty" validate:"required_if=Backend redis"`
	Prefix          string                   `yaml:"prefix,omitempty"`
	DefaultInterval time.Duration            `yaml:"default_interval,omitempty" validate:"gte=0"`
	Intervals       map[string]time.Duration `yaml:"intervals,omitempty"`
}

// LookupConfig points at the business-record database used by database-sourced parameters
type LookupConfig struct {
	Driver  string            `yaml:"driver" validate:"required,oneof=postgres mysql sqlite"`
	DSN     string            `yaml:"dsn"`
	Options map[string]string `yaml:"options,omitempty"`
}

// StoreConfig selects where widget definitions live
type StoreConfig struct {
	Type       string `yaml:"type,omitempty" validate:"omitempty,oneof=inline file sql mongodb"`
	Path       string `yaml:"path,omitempty" validate:"required_if=Type file"`
	Watch      bool   `yaml:"watch,omitempty"`
	Driver     string `yaml:"driver,omitempty" validate:"omitempty,oneof=postgres mysql sqlite"`
	DSN        string `yaml:"dsn,omitempty"`
	URI        string `yaml:"uri,omitempty" validate:"required_if=Type mongodb"`
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// applyDefaults fills unset fields
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = RateLimitMemory
	}
	if c.RateLimit.Prefix == "" {
		c.RateLimit.Prefix = "widgetquery:ratelimit:"
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreInline
	}
}

// IntervalOverrides returns the configured interval overrides plus the built-in
// ticket-system default, which explicit entries replace
func (r RateLimitConfig) IntervalOverrides() map[string]time.Duration {
	out := map[string]time.Duration{plugins.PluginJira + "/": ratelimit.DefaultTicketInterval}
	for prefix, d := range r.Intervals {
		out[prefix] = d
	}
	return out
}
