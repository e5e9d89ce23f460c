package plugins

import (
	"fmt"
	"time"
)

// Auth types understood by the HTTP executors
const (
	AuthNone   = "none"
	AuthBasic  = "basic"
	AuthBearer = "bearer"
	AuthAPIKey = "api_key"
)

// DefaultAPIKeyHeader is used when an api_key auth config names no header
const DefaultAPIKeyHeader = "X-API-Key"

// AuthConfig holds the credentials an executor is bound to at construction.
// It never leaves the executor.
type AuthConfig struct {
	Type     string `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=none basic bearer api_key"`
	Username string `yaml:"username,omitempty" json:"-"`
	Password string `yaml:"password,omitempty" json:"-"`
	Token    string `yaml:"token,omitempty" json:"-"`
	Header   string `yaml:"header,omitempty" json:"header,omitempty"`
}

// InstanceConfig configures one (plugin, instance) pair
type InstanceConfig struct {
	Plugin  string            `yaml:"plugin" json:"plugin" validate:"required"`
	ID      string            `yaml:"id" json:"id" validate:"required"`
	Driver  string            `yaml:"driver,omitempty" json:"driver,omitempty" validate:"omitempty,oneof=postgres mysql sqlite"`
	DSN     string            `yaml:"dsn,omitempty" json:"-"`
	BaseURL string            `yaml:"base_url,omitempty" json:"base_url,omitempty" validate:"omitempty,url"`
	Auth    AuthConfig        `yaml:"auth,omitempty" json:"auth,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Key is the registry key and default rate-limit gate key of the instance
func (c InstanceConfig) Key() string {
	return c.Plugin + "/" + c.ID
}

func (c InstanceConfig) String() string {
	return fmt.Sprintf("%s (driver=%s base_url=%s auth=%s)", c.Key(), c.Driver, c.BaseURL, c.authType())
}

func (c InstanceConfig) authType() string {
	if c.Auth.Type == "" {
		return AuthNone
	}
	return c.Auth.Type
}
