// Package store holds the widget configuration stores. Every store validates
// definitions before they become visible to the engine.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/runtime/template"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// Check validates a widget definition, including that every placeholder in
// its template and request shape has a parameter declaration.
func Check(w *domain.WidgetDefinition) error {
	if err := w.Validate(); err != nil {
		return err
	}

	declared := make(map[string]bool, len(w.Parameters))
	for _, p := range w.Parameters {
		declared[p.Name] = true
	}

	for _, tpl := range templatesOf(w) {
		names, err := template.Placeholders(tpl)
		if err != nil {
			return fmt.Errorf("widget '%s': %w", w.ID, err)
		}
		for _, name := range names {
			if !declared[name] {
				return fmt.Errorf("widget '%s': placeholder '${%s}' has no parameter declaration", w.ID, name)
			}
		}
	}
	return nil
}

func templatesOf(w *domain.WidgetDefinition) []string {
	out := []string{w.Template, w.Request.Endpoint, w.Request.Body}
	for _, v := range w.Request.Query {
		out = append(out, v)
	}
	for _, v := range w.Request.Headers {
		out = append(out, v)
	}
	return out
}

func notFound(id string) error {
	return apperrors.NewAppError(apperrors.ErrCodeNotFound, fmt.Sprintf("widget '%s' not found", id), nil)
}

// MemoryStore keeps definitions in a map. FileStore swaps its contents on reload.
type MemoryStore struct {
	mu      sync.RWMutex
	widgets map[string]*domain.WidgetDefinition
}

var (
	_ interfaces.WidgetStore  = (*MemoryStore)(nil)
	_ interfaces.WidgetWriter = (*MemoryStore)(nil)
)

// NewMemoryStore validates widgets and indexes them by id
func NewMemoryStore(widgets []*domain.WidgetDefinition) (*MemoryStore, error) {
	index, err := indexWidgets(widgets)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{widgets: index}, nil
}

func indexWidgets(widgets []*domain.WidgetDefinition) (map[string]*domain.WidgetDefinition, error) {
	index := make(map[string]*domain.WidgetDefinition, len(widgets))
	for _, w := range widgets {
		if err := Check(w); err != nil {
			return nil, err
		}
		if _, dup := index[w.ID]; dup {
			return nil, fmt.Errorf("widget '%s' defined more than once", w.ID)
		}
		index[w.ID] = w
	}
	return index, nil
}

func (s *MemoryStore) replace(index map[string]*domain.WidgetDefinition) {
	s.mu.Lock()
	s.widgets = index
	s.mu.Unlock()
}

// GetWidgetDefinition returns the widget or NOT_FOUND
func (s *MemoryStore) GetWidgetDefinition(_ context.Context, id string) (*domain.WidgetDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.widgets[id]
	if !ok {
		return nil, notFound(id)
	}
	return w, nil
}

// ListWidgetDefinitions returns all widgets ordered by id
func (s *MemoryStore) ListWidgetDefinitions(_ context.Context) ([]*domain.WidgetDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.WidgetDefinition, 0, len(s.widgets))
	for _, w := range s.widgets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutWidgetDefinition validates and stores w, replacing any widget with the same id
func (s *MemoryStore) PutWidgetDefinition(_ context.Context, w *domain.WidgetDefinition) error {
	if err := Check(w); err != nil {
		return apperrors.NewAppError(apperrors.ErrCodeValidationError, err.Error(), err)
	}
	s.mu.Lock()
	s.widgets[w.ID] = w
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.widgets)
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
