package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	// Environment variable pattern: {{ env.VARIABLE_NAME }}
	envVarPattern = regexp.MustCompile(`\{\{\s*env\.(\w+)\s*\}\}`)
)

// substituteEnvVars replaces {{ env.VARIABLE_NAME }} placeholders with environment variable values
func substituteEnvVars(value string) (string, error) {
	result := value
	seen := make(map[string]bool)

	for _, match := range envVarPattern.FindAllStringSubmatch(value, -1) {
		placeholder, name := match[0], match[1]
		if seen[placeholder] {
			continue
		}
		seen[placeholder] = true

		envValue, exists := os.LookupEnv(name)
		if !exists {
			return "", fmt.Errorf("environment variable '%s' not found", name)
		}
		result = strings.ReplaceAll(result, placeholder, envValue)
	}
	return result, nil
}

// substituteField substitutes in place, naming the field on failure
func substituteField(target *string, field string) error {
	if *target == "" {
		return nil
	}
	substituted, err := substituteEnvVars(*target)
	if err != nil {
		return fmt.Errorf("configuration error: failed to substitute environment variables in %s: %w", field, err)
	}
	*target = substituted
	return nil
}

// SubstituteEnvVarsInConfig performs environment variable substitution on the
// connection and credential fields of the config. Widget templates are left
// alone so their ${name} placeholders stay distinct from environment values.
func SubstituteEnvVarsInConfig(cfg *Config) error {
	fields := []struct {
		target *string
		name   string
	}{
		{&cfg.Server.Port, "server.port"},
		{&cfg.RateLimit.RedisURL, "ratelimit.redis_url"},
		{&cfg.Store.Path, "store.path"},
		{&cfg.Store.DSN, "store.dsn"},
		{&cfg.Store.URI, "store.uri"},
	}
	if cfg.Lookup != nil {
		fields = append(fields, struct {
			target *string
			name   string
		}{&cfg.Lookup.DSN, "lookup.dsn"})
	}
	for _, f := range fields {
		if err := substituteField(f.target, f.name); err != nil {
			return err
		}
	}

	if cfg.Lookup != nil {
		if err := substituteMap(cfg.Lookup.Options, "lookup.options"); err != nil {
			return err
		}
	}

	for i := range cfg.Plugins {
		p := &cfg.Plugins[i]
		prefix := "plugin '" + p.Key() + "'"
		for _, f := range []struct {
			target *string
			name   string
		}{
			{&p.DSN, "dsn"},
			{&p.BaseURL, "base_url"},
			{&p.Auth.Username, "auth.username"},
			{&p.Auth.Password, "auth.password"},
			{&p.Auth.Token, "auth.token"},
		} {
			if err := substituteField(f.target, prefix+" "+f.name); err != nil {
				return err
			}
		}
		if err := substituteMap(p.Options, prefix+" options"); err != nil {
			return err
		}
	}
	return nil
}

func substituteMap(m map[string]string, field string) error {
	for key, value := range m {
		if err := substituteField(&value, fmt.Sprintf("%s.%s", field, key)); err != nil {
			return err
		}
		m[key] = value
	}
	return nil
}
