package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/parser"
	"github.com/hyperterse/widgetquery/core/runtime/plugins"
	"github.com/hyperterse/widgetquery/core/runtime/ratelimit"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

const inlineConfig = `
name: smoke
plugins:
  - plugin: sql
    id: local
    driver: sqlite
widgets:
  - id: answer
    template: SELECT ${n} AS answer
    parameters:
      - name: n
        source: static
        value: "42"
    plugin:
      plugin: sql
      instance: local
`

func loadConfig(t *testing.T, content string) *parser.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "widgetquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := parser.LoadFile(path)
	require.NoError(t, err)
	return cfg
}

func TestNewContainer_InlineEndToEnd(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, loadConfig(t, inlineConfig))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []string{"sql/local"}, c.Registry.Keys())
	limiter, ok := c.Limiter.(*ratelimit.MinIntervalLimiter)
	require.True(t, ok)
	assert.Equal(t, ratelimit.DefaultTicketInterval, limiter.Interval("jira/main"))

	env := c.Service.ExecuteWidgetQuery(ctx, "answer", domain.ExecutionContext{})
	require.True(t, env.Success, "%+v", env.Error)
	assert.Equal(t, 1, env.Metadata.RecordCount)

	rows := env.Data.([]map[string]any)
	assert.EqualValues(t, "42", rows[0]["answer"])

	env = c.Service.ExecuteWidgetQuery(ctx, "missing", nil)
	assert.Equal(t, string(apperrors.ErrCodeNotFound), env.Error.Code)
}

func TestNewContainer_FileStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "widgets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widgets", "ops.yaml"), []byte(`
widgets:
  - id: tickets
    template: project = DEP
    plugin:
      plugin: jira
      instance: unknown
`), 0o644))
	path := filepath.Join(dir, "widgetquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: files
store:
  type: file
  path: widgets
plugins:
  - plugin: jira
    id: main
    base_url: https://jira.example.com
`), 0o644))

	cfg, err := parser.LoadFile(path)
	require.NoError(t, err)

	_, err = NewContainer(context.Background(), cfg)
	var verr *parser.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Format(), "plugin instance 'jira/unknown' is not configured")
}

func TestNewContainer_PluginFailureCleansUp(t *testing.T) {
	cfg := &parser.Config{
		Name:    "broken",
		Plugins: []plugins.InstanceConfig{{Plugin: plugins.PluginREST, ID: "x"}},
	}
	c, err := NewContainer(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, c)
}
