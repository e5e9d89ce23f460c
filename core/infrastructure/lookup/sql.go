// Package lookup implements the database collaborator behind database-sourced
// parameters.
package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/infrastructure/sqldb"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLLookup reads single scalar values from the business-record database
type SQLLookup struct {
	db     *sql.DB
	driver string
	log    logging.Logger
}

var _ interfaces.LookupStore = (*SQLLookup)(nil)

// Open connects to the lookup database
func Open(ctx context.Context, driver, dsn string, options map[string]string) (*SQLLookup, error) {
	db, err := sqldb.Open(ctx, driver, dsn, options)
	if err != nil {
		return nil, err
	}
	return New(driver, db), nil
}

// New wraps an open handle. The lookup owns db from here on.
func New(driver string, db *sql.DB) *SQLLookup {
	return &SQLLookup{db: db, driver: driver, log: logging.New("lookup:" + driver)}
}

func (l *SQLLookup) quote(ident string) (string, error) {
	if !identifierPattern.MatchString(ident) {
		return "", apperrors.NewAppError(apperrors.ErrCodeValidationError, fmt.Sprintf("invalid identifier '%s'", ident), nil)
	}
	switch l.driver {
	case sqldb.DriverPostgres:
		return pq.QuoteIdentifier(ident), nil
	case sqldb.DriverMySQL:
		return "`" + ident + "`", nil
	default:
		return `"` + ident + `"`, nil
	}
}

func (l *SQLLookup) statement(table, column, keyColumn string) (string, error) {
	var quoted [3]string
	for i, ident := range []string{table, column, keyColumn} {
		q, err := l.quote(ident)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	arg := "?"
	if l.driver == sqldb.DriverPostgres {
		arg = "$1"
	}
	// LIMIT 2 is enough to tell one row from many
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 2", quoted[1], quoted[0], quoted[2], arg), nil
}

// LookupScalar returns column from table for the single row whose keyColumn
// equals entityID. NULL counts as no value.
func (l *SQLLookup) LookupScalar(ctx context.Context, table, column, keyColumn, entityID string) (string, error) {
	stmt, err := l.statement(table, column, keyColumn)
	if err != nil {
		return "", err
	}

	start := time.Now()
	rows, err := l.db.QueryContext(ctx, stmt, entityID)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperrors.Transport(fmt.Sprintf("lookup of %s.%s failed", table, column), 0, err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return "", apperrors.Transport("failed to read lookup row", 0, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperrors.Transport("failed to read lookup rows", 0, err)
	}
	l.log.Debugf("%s.%s lookup returned %d row(s) in %s", table, column, len(values), time.Since(start))

	switch {
	case len(values) == 0:
		return "", apperrors.NewAppError(apperrors.ErrCodeLookupNotFound,
			fmt.Sprintf("no %s row where %s = '%s'", table, keyColumn, entityID), nil)
	case len(values) > 1:
		return "", apperrors.NewAppError(apperrors.ErrCodeAmbiguousLookup,
			fmt.Sprintf("more than one %s row where %s = '%s'", table, keyColumn, entityID), nil)
	case values[0] == nil:
		return "", apperrors.NewAppError(apperrors.ErrCodeLookupNotFound,
			fmt.Sprintf("%s.%s is NULL where %s = '%s'", table, column, keyColumn, entityID), nil)
	}
	return scalarString(values[0]), nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Close closes the database handle
func (l *SQLLookup) Close() error {
	return l.db.Close()
}
