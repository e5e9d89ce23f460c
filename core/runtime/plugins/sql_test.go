package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/infrastructure/sqldb"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

func newSQLiteExecutor(t *testing.T) *SQLExecutor {
	t.Helper()
	exec, err := NewSQLExecutor(context.Background(), InstanceConfig{Plugin: PluginSQL, ID: "local", Driver: sqldb.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	e := exec.(*SQLExecutor)
	_, err = e.db.Exec(`CREATE TABLE licenses (id INTEGER PRIMARY KEY, client TEXT, product TEXT, seats INTEGER)`)
	require.NoError(t, err)
	_, err = e.db.Exec(`INSERT INTO licenses (client, product, seats) VALUES
		('SITE', 'edr', 40), ('SITE', 'siem', 10), ('OTHER', 'edr', 5)`)
	require.NoError(t, err)
	return e
}

func TestSQLExecutor_PrepareBindsValues(t *testing.T) {
	e := newSQLiteExecutor(t)

	payload, err := e.Prepare("SELECT product FROM licenses WHERE client = ${client}", domain.RequestSpec{}, map[string]string{
		"client": "SITE' OR '1'='1",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT product FROM licenses WHERE client = ?", payload.Statement)
	assert.Equal(t, []any{"SITE' OR '1'='1"}, payload.Args)
}

func TestSQLExecutor_ExecuteQuery(t *testing.T) {
	e := newSQLiteExecutor(t)

	payload, err := e.Prepare("SELECT product, seats FROM licenses WHERE client = ${client} ORDER BY seats DESC", domain.RequestSpec{}, map[string]string{"client": "SITE"})
	require.NoError(t, err)

	result, err := e.ExecuteQuery(context.Background(), payload, "local")
	require.NoError(t, err)

	rows, ok := result.Data.([]map[string]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "edr", rows[0]["product"])
	assert.EqualValues(t, 40, rows[0]["seats"])
	assert.Equal(t, "siem", rows[1]["product"])
}

func TestSQLExecutor_InjectionAttemptMatchesNothing(t *testing.T) {
	e := newSQLiteExecutor(t)

	payload, err := e.Prepare("SELECT product FROM licenses WHERE client = ${client}", domain.RequestSpec{}, map[string]string{"client": "x' OR '1'='1"})
	require.NoError(t, err)

	result, err := e.ExecuteQuery(context.Background(), payload, "local")
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.NotNil(t, result.Data)
}

func TestSQLExecutor_MissingParameter(t *testing.T) {
	e := newSQLiteExecutor(t)
	_, err := e.Prepare("SELECT * FROM licenses WHERE client = ${client}", domain.RequestSpec{}, nil)
	assert.Equal(t, apperrors.ErrCodeMissingParameter, apperrors.CodeOf(err))
}

func TestSQLExecutor_QueryErrorIsTransport(t *testing.T) {
	e := newSQLiteExecutor(t)
	_, err := e.ExecuteQuery(context.Background(), &domain.QueryPayload{Statement: "SELECT * FROM nope"}, "local")
	assert.Equal(t, apperrors.ErrCodeTransportError, apperrors.CodeOf(err))
}

func TestSQLExecutor_CancelledContext(t *testing.T) {
	e := newSQLiteExecutor(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := e.ExecuteQuery(ctx, &domain.QueryPayload{Statement: "SELECT 1"}, "local")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSQLExecutor_Validation(t *testing.T) {
	_, err := NewSQLExecutor(context.Background(), InstanceConfig{Plugin: PluginSQL, ID: "pg", Driver: sqldb.DriverPostgres})
	assert.ErrorContains(t, err, "no dsn")

	_, err = NewSQLExecutor(context.Background(), InstanceConfig{Plugin: PluginSQL, ID: "x", Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestSQLExecutor_PostgresBindStyle(t *testing.T) {
	e := &SQLExecutor{driver: sqldb.DriverPostgres}
	e.style = NewSQLExecutorFromDB(sqldb.DriverPostgres, nil).style

	payload, err := e.Prepare("SELECT * FROM t WHERE a = ${x} OR b = ${x} AND c = ${y}", domain.RequestSpec{}, map[string]string{"x": "1", "y": "2"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 OR b = $1 AND c = $2", payload.Statement)
	assert.Equal(t, []any{"1", "2"}, payload.Args)
}
