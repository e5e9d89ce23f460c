package plugins

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/infrastructure/sqldb"
	"github.com/hyperterse/widgetquery/core/runtime/template"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// SQLExecutor runs bound statements. Postgres goes through a pgx pool;
// mysql and sqlite through database/sql.
type SQLExecutor struct {
	driver string
	pool   *pgxpool.Pool
	db     *sql.DB
	style  template.BindStyle
	log    logging.Logger
}

// NewSQLExecutor opens the instance's database and verifies it with a ping
func NewSQLExecutor(ctx context.Context, cfg InstanceConfig) (interfaces.QueryExecutor, error) {
	if cfg.DSN == "" && cfg.Driver != sqldb.DriverSQLite {
		return nil, fmt.Errorf("sql instance '%s' has no dsn", cfg.ID)
	}

	e := &SQLExecutor{
		driver: cfg.Driver,
		log:    logging.New("plugin:sql"),
	}

	switch cfg.Driver {
	case sqldb.DriverPostgres:
		dsn, err := sqldb.PostgresDSN(cfg.DSN, cfg.Options)
		if err != nil {
			return nil, err
		}
		pool, err := openPgxPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		e.pool = pool
		e.style = template.BindDollar

	case sqldb.DriverMySQL, sqldb.DriverSQLite:
		db, err := sqldb.Open(ctx, cfg.Driver, cfg.DSN, cfg.Options)
		if err != nil {
			return nil, err
		}
		e.db = db
		e.style = template.BindQuestion

	default:
		return nil, fmt.Errorf("sql instance '%s': unsupported driver '%s'", cfg.ID, cfg.Driver)
	}

	return e, nil
}

// NewSQLExecutorFromDB wraps an open database/sql handle
func NewSQLExecutorFromDB(driver string, db *sql.DB) *SQLExecutor {
	style := template.BindQuestion
	if driver == sqldb.DriverPostgres {
		style = template.BindDollar
	}
	return &SQLExecutor{
		driver: driver,
		db:     db,
		style:  style,
		log:    logging.New("plugin:sql"),
	}
}

func openPgxPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	log := logging.New("plugin:sql")
	log.Debugf("Opening PostgreSQL connection pool (pgx/v5)")

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	log.Debugf("PostgreSQL connection pool opened successfully")
	return pool, nil
}

func (e *SQLExecutor) Protocol() domain.Protocol {
	return domain.ProtocolSQL
}

// Prepare binds every placeholder as a driver argument
func (e *SQLExecutor) Prepare(tpl string, _ domain.RequestSpec, values map[string]string) (*domain.QueryPayload, error) {
	bound, err := template.Bind(tpl, values, e.style)
	if err != nil {
		return nil, err
	}
	return &domain.QueryPayload{Statement: bound.Text, Args: bound.Args}, nil
}

// ExecuteQuery runs the statement and returns its rows in order
func (e *SQLExecutor) ExecuteQuery(ctx context.Context, payload *domain.QueryPayload, instanceID string) (*domain.RawResult, error) {
	if payload == nil || payload.Statement == "" {
		return nil, apperrors.NewAppError(apperrors.ErrCodeValidationError, "empty sql statement", nil)
	}
	e.log.Debugf("Executing statement on '%s' with %d argument(s)", instanceID, len(payload.Args))

	var (
		rows []map[string]any
		err  error
	)
	if e.pool != nil {
		rows, err = e.queryPgx(ctx, payload)
	} else {
		rows, err = e.querySQL(ctx, payload)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := fmt.Sprintf("%s query on '%s' failed", e.driver, instanceID)
		if neverSent(err) {
			return nil, apperrors.NotDispatched(msg, err)
		}
		return nil, apperrors.Transport(msg, 0, err)
	}
	return &domain.RawResult{Data: rows}, nil
}

func (e *SQLExecutor) queryPgx(ctx context.Context, payload *domain.QueryPayload) ([]map[string]any, error) {
	rows, err := e.pool.Query(ctx, payload.Statement, payload.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescriptions))
	for i, fd := range fieldDescriptions {
		columns[i] = fd.Name
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to get row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(values) {
				rowMap[col] = normalizeValue(values[i])
			}
		}
		results = append(results, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

func (e *SQLExecutor) querySQL(ctx context.Context, payload *domain.QueryPayload) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, payload.Statement, payload.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = normalizeValue(values[i])
		}
		results = append(results, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// normalizeValue converts []byte to string for JSON output
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Close releases the pool or handle
func (e *SQLExecutor) Close() error {
	if e.pool != nil {
		e.log.Debugf("Closing PostgreSQL connection pool")
		e.pool.Close()
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}
