package domain

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SourceKind names where a parameter's value comes from
type SourceKind string

const (
	SourceStatic   SourceKind = "static"
	SourceContext  SourceKind = "context"
	SourceDatabase SourceKind = "database"
)

// ParameterSource is the closed set of value sources. The unexported marker
// keeps implementations inside this package so resolvers can switch on them
// exhaustively.
type ParameterSource interface {
	Kind() SourceKind
	isParameterSource()
}

// StaticSource carries a literal fixed at widget-definition time
type StaticSource struct {
	Value string
}

// ContextSource reads a key from the caller-supplied execution context
type ContextSource struct {
	Key string
}

// DatabaseSource fetches Column from Table for the row whose KeyColumn equals
// the context's current entity id
type DatabaseSource struct {
	Table     string
	Column    string
	KeyColumn string
}

func (StaticSource) Kind() SourceKind   { return SourceStatic }
func (ContextSource) Kind() SourceKind  { return SourceContext }
func (DatabaseSource) Kind() SourceKind { return SourceDatabase }

func (StaticSource) isParameterSource()   {}
func (ContextSource) isParameterSource()  {}
func (DatabaseSource) isParameterSource() {}

// DefaultKeyColumn is used when a database source does not name its key column
const DefaultKeyColumn = "id"

// ParameterDeclaration binds a placeholder name to its value source
type ParameterDeclaration struct {
	Name   string
	Source ParameterSource
}

// parameterWire is the flat YAML/JSON representation of a declaration
type parameterWire struct {
	Name       string     `yaml:"name" json:"name"`
	Source     SourceKind `yaml:"source" json:"source"`
	Value      *string    `yaml:"value,omitempty" json:"value,omitempty"`
	ContextVar string     `yaml:"context_var,omitempty" json:"context_var,omitempty"`
	Table      string     `yaml:"table,omitempty" json:"table,omitempty"`
	Column     string     `yaml:"column,omitempty" json:"column,omitempty"`
	KeyColumn  string     `yaml:"key_column,omitempty" json:"key_column,omitempty"`
}

func (w parameterWire) toDeclaration() (ParameterDeclaration, error) {
	decl := ParameterDeclaration{Name: w.Name}
	if w.Name == "" {
		return decl, fmt.Errorf("parameter name is required")
	}

	switch w.Source {
	case SourceStatic:
		if w.Value == nil {
			return decl, fmt.Errorf("parameter '%s': static source requires 'value'", w.Name)
		}
		decl.Source = StaticSource{Value: *w.Value}
	case SourceContext:
		key := w.ContextVar
		if key == "" {
			key = w.Name
		}
		decl.Source = ContextSource{Key: key}
	case SourceDatabase:
		if w.Table == "" || w.Column == "" {
			return decl, fmt.Errorf("parameter '%s': database source requires 'table' and 'column'", w.Name)
		}
		keyColumn := w.KeyColumn
		if keyColumn == "" {
			keyColumn = DefaultKeyColumn
		}
		decl.Source = DatabaseSource{Table: w.Table, Column: w.Column, KeyColumn: keyColumn}
	case "":
		return decl, fmt.Errorf("parameter '%s': source is required", w.Name)
	default:
		return decl, fmt.Errorf("parameter '%s': unknown source '%s' (must be static, context or database)", w.Name, w.Source)
	}
	return decl, nil
}

func (d ParameterDeclaration) toWire() parameterWire {
	w := parameterWire{Name: d.Name}
	switch src := d.Source.(type) {
	case StaticSource:
		value := src.Value
		w.Source = SourceStatic
		w.Value = &value
	case ContextSource:
		w.Source = SourceContext
		w.ContextVar = src.Key
	case DatabaseSource:
		w.Source = SourceDatabase
		w.Table = src.Table
		w.Column = src.Column
		w.KeyColumn = src.KeyColumn
	}
	return w
}

// UnmarshalYAML decodes the flat form into the tagged source
func (d *ParameterDeclaration) UnmarshalYAML(node *yaml.Node) error {
	var w parameterWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	decl, err := w.toDeclaration()
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = decl
	return nil
}

// MarshalYAML encodes the declaration in its flat form
func (d ParameterDeclaration) MarshalYAML() (any, error) {
	return d.toWire(), nil
}

// UnmarshalJSON decodes the flat form into the tagged source
func (d *ParameterDeclaration) UnmarshalJSON(data []byte) error {
	var w parameterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decl, err := w.toDeclaration()
	if err != nil {
		return err
	}
	*d = decl
	return nil
}

// MarshalJSON encodes the declaration in its flat form
func (d ParameterDeclaration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toWire())
}
