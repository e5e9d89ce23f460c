// Package template implements ${name} placeholder substitution for widget
// query templates. Every function here is pure.
package template

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

// Dialect selects the escaping applied to substituted values
type Dialect int

const (
	// DialectRaw inserts values unchanged
	DialectRaw Dialect = iota
	// DialectJQL inserts values as double-quoted JQL string literals
	DialectJQL
	// DialectURLPath path-escapes values
	DialectURLPath
	// DialectURLQuery query-escapes values
	DialectURLQuery
	// DialectJSON escapes values for use inside a JSON string literal
	DialectJSON
)

func (d Dialect) String() string {
	switch d {
	case DialectRaw:
		return "raw"
	case DialectJQL:
		return "jql"
	case DialectURLPath:
		return "url-path"
	case DialectURLQuery:
		return "url-query"
	case DialectJSON:
		return "json"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// BindStyle selects the SQL bind marker syntax
type BindStyle int

const (
	// BindDollar emits $1, $2, ... (postgres); repeated names share a marker
	BindDollar BindStyle = iota
	// BindQuestion emits ? per occurrence (mysql, sqlite)
	BindQuestion
)

// Bound is a statement with driver bind markers and their arguments
type Bound struct {
	Text string
	Args []any
}

// segment is either literal text or a placeholder reference
type segment struct {
	literal     string
	placeholder string
}

// scan splits tpl into segments in a single left-to-right pass.
// A "${" that is not closed, or that encloses an invalid name, is an error.
func scan(tpl string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder

	for i := 0; i < len(tpl); {
		if tpl[i] != '$' || i+1 >= len(tpl) || tpl[i+1] != '{' {
			lit.WriteByte(tpl[i])
			i++
			continue
		}

		end := strings.IndexByte(tpl[i+2:], '}')
		if end < 0 {
			return nil, malformed(i, "unterminated placeholder")
		}
		name := tpl[i+2 : i+2+end]
		if !isIdentifier(name) {
			return nil, malformed(i, fmt.Sprintf("invalid placeholder name %q", name))
		}

		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
		segs = append(segs, segment{placeholder: name})
		i += end + 3
	}

	if lit.Len() > 0 {
		segs = append(segs, segment{literal: lit.String()})
	}
	return segs, nil
}

func malformed(offset int, msg string) error {
	return apperrors.NewAppError(apperrors.ErrCodeValidationError, fmt.Sprintf("template offset %d: %s", offset, msg), nil)
}

// isIdentifier reports whether s matches [A-Za-z_][A-Za-z0-9_.-]*
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '.' || r == '-'):
		default:
			return false
		}
	}
	return true
}

// Placeholders returns the distinct placeholder names of tpl in first-seen order
func Placeholders(tpl string) ([]string, error) {
	segs, err := scan(tpl)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, s := range segs {
		if s.placeholder != "" && !seen[s.placeholder] {
			seen[s.placeholder] = true
			names = append(names, s.placeholder)
		}
	}
	return names, nil
}

// Substitute replaces every ${name} in tpl with the escaped value from values.
// A missing value fails the whole call; no partial output is returned.
func Substitute(tpl string, values map[string]string, dialect Dialect) (string, error) {
	segs, err := scan(tpl)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	out.Grow(len(tpl))
	for _, s := range segs {
		if s.placeholder == "" {
			out.WriteString(s.literal)
			continue
		}
		value, ok := values[s.placeholder]
		if !ok {
			return "", apperrors.MissingParameter(s.placeholder)
		}
		escaped, err := escape(value, dialect)
		if err != nil {
			return "", err
		}
		out.WriteString(escaped)
	}
	return out.String(), nil
}

// Bind turns every placeholder into a driver bind marker and collects the
// values as arguments, so values never reach the SQL text.
func Bind(tpl string, values map[string]string, style BindStyle) (Bound, error) {
	segs, err := scan(tpl)
	if err != nil {
		return Bound{}, err
	}

	var out strings.Builder
	var args []any
	positions := make(map[string]int)
	for _, s := range segs {
		if s.placeholder == "" {
			out.WriteString(s.literal)
			continue
		}
		value, ok := values[s.placeholder]
		if !ok {
			return Bound{}, apperrors.MissingParameter(s.placeholder)
		}

		switch style {
		case BindDollar:
			pos, seen := positions[s.placeholder]
			if !seen {
				args = append(args, value)
				pos = len(args)
				positions[s.placeholder] = pos
			}
			out.WriteString("$" + strconv.Itoa(pos))
		case BindQuestion:
			args = append(args, value)
			out.WriteByte('?')
		default:
			return Bound{}, fmt.Errorf("unknown bind style %d", style)
		}
	}
	return Bound{Text: out.String(), Args: args}, nil
}

func escape(value string, dialect Dialect) (string, error) {
	switch dialect {
	case DialectRaw:
		return value, nil
	case DialectJQL:
		return QuoteJQL(value), nil
	case DialectURLPath:
		return url.PathEscape(value), nil
	case DialectURLQuery:
		return url.QueryEscape(value), nil
	case DialectJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		// strip the surrounding quotes; the template supplies them
		return string(encoded[1 : len(encoded)-1]), nil
	default:
		return "", apperrors.NewAppError(apperrors.ErrCodeValidationError, "unsupported escaping dialect "+dialect.String(), nil)
	}
}

var jqlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// QuoteJQL renders value as a double-quoted JQL string literal
func QuoteJQL(value string) string {
	return `"` + jqlEscaper.Replace(value) + `"`
}
