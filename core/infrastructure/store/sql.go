package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	"github.com/hyperterse/widgetquery/core/infrastructure/sqldb"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// SQLStore keeps widget definitions as JSON documents in a `widgets` table
type SQLStore struct {
	db     *sql.DB
	driver string
	log    logging.Logger
}

var (
	_ interfaces.WidgetStore  = (*SQLStore)(nil)
	_ interfaces.WidgetWriter = (*SQLStore)(nil)
)

// OpenSQLStore connects to the database and creates the widgets table if needed
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqldb.Open(ctx, driver, dsn, nil)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLStore(ctx, driver, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open handle. The store owns db from here on.
func NewSQLStore(ctx context.Context, driver string, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver, log: logging.New("store:sql")}
	if _, err := db.ExecContext(ctx, s.schema()); err != nil {
		return nil, fmt.Errorf("failed to create widgets table: %w", err)
	}
	return s, nil
}

func (s *SQLStore) schema() string {
	if s.driver == sqldb.DriverMySQL {
		return `CREATE TABLE IF NOT EXISTS widgets (
	id VARCHAR(255) NOT NULL PRIMARY KEY,
	definition TEXT NOT NULL
)`
	}
	return `CREATE TABLE IF NOT EXISTS widgets (
	id TEXT NOT NULL PRIMARY KEY,
	definition TEXT NOT NULL
)`
}

func (s *SQLStore) arg(n int) string {
	if s.driver == sqldb.DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// GetWidgetDefinition returns the widget or NOT_FOUND
func (s *SQLStore) GetWidgetDefinition(ctx context.Context, id string) (*domain.WidgetDefinition, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT definition FROM widgets WHERE id = "+s.arg(1), id).Scan(&raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load widget '%s': %w", id, err)
	}
	return decodeWidget(id, []byte(raw))
}

// ListWidgetDefinitions returns all widgets ordered by id
func (s *SQLStore) ListWidgetDefinitions(ctx context.Context) ([]*domain.WidgetDefinition, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, definition FROM widgets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	defer rows.Close()

	var out []*domain.WidgetDefinition
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		w, err := decodeWidget(id, []byte(raw))
		if err != nil {
			s.log.Warnf("Skipping widget '%s': %v", id, err)
			continue
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// PutWidgetDefinition validates w and upserts it
func (s *SQLStore) PutWidgetDefinition(ctx context.Context, w *domain.WidgetDefinition) error {
	if err := Check(w); err != nil {
		return apperrors.NewAppError(apperrors.ErrCodeValidationError, err.Error(), err)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}

	var stmt string
	if s.driver == sqldb.DriverMySQL {
		stmt = "INSERT INTO widgets (id, definition) VALUES (?, ?) ON DUPLICATE KEY UPDATE definition = VALUES(definition)"
	} else {
		stmt = fmt.Sprintf("INSERT INTO widgets (id, definition) VALUES (%s, %s) ON CONFLICT (id) DO UPDATE SET definition = excluded.definition", s.arg(1), s.arg(2))
	}
	if _, err := s.db.ExecContext(ctx, stmt, w.ID, string(raw)); err != nil {
		return fmt.Errorf("failed to store widget '%s': %w", w.ID, err)
	}
	s.log.Debugf("Stored widget '%s'", w.ID)
	return nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// decodeWidget parses and validates a stored JSON definition
func decodeWidget(id string, raw []byte) (*domain.WidgetDefinition, error) {
	var w domain.WidgetDefinition
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("widget '%s' has an invalid stored definition: %w", id, err)
	}
	if err := Check(&w); err != nil {
		return nil, err
	}
	return &w, nil
}
