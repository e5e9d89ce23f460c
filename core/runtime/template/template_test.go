package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]string
		dialect  Dialect
		expected string
	}{
		{
			name:     "no placeholders",
			template: `project = "DEP"`,
			dialect:  DialectJQL,
			expected: `project = "DEP"`,
		},
		{
			name:     "jql label",
			template: `project = "DEP" AND labels ~ ${clientLabel}`,
			values:   map[string]string{"clientLabel": "SITE"},
			dialect:  DialectJQL,
			expected: `project = "DEP" AND labels ~ "SITE"`,
		},
		{
			name:     "jql escapes quotes and backslashes",
			template: `summary ~ ${q}`,
			values:   map[string]string{"q": `a" OR project = "X\`},
			dialect:  DialectJQL,
			expected: `summary ~ "a\" OR project = \"X\\"`,
		},
		{
			name:     "repeated placeholder",
			template: "${a}-${a}-${b}",
			values:   map[string]string{"a": "1", "b": "2"},
			dialect:  DialectRaw,
			expected: "1-1-2",
		},
		{
			name:     "url path",
			template: "/api/clients/${domain}/assets",
			values:   map[string]string{"domain": "acme corp/eu"},
			dialect:  DialectURLPath,
			expected: "/api/clients/acme%20corp%2Feu/assets",
		},
		{
			name:     "url query",
			template: "/search?q=${q}",
			values:   map[string]string{"q": "a&b=c"},
			dialect:  DialectURLQuery,
			expected: "/search?q=a%26b%3Dc",
		},
		{
			name:     "json body",
			template: `{"name":"${name}"}`,
			values:   map[string]string{"name": "say \"hi\"\n"},
			dialect:  DialectJSON,
			expected: `{"name":"say \"hi\"\n"}`,
		},
		{
			name:     "dollar without brace is literal",
			template: "SELECT $1, $$body$$ WHERE x = ${x}",
			values:   map[string]string{"x": "v"},
			dialect:  DialectRaw,
			expected: "SELECT $1, $$body$$ WHERE x = v",
		},
		{
			name:     "dotted and dashed names",
			template: "${client.short-name}",
			values:   map[string]string{"client.short-name": "SITE"},
			dialect:  DialectRaw,
			expected: "SITE",
		},
		{
			name:     "unicode literal text",
			template: "größe = ${v}",
			values:   map[string]string{"v": "ü"},
			dialect:  DialectRaw,
			expected: "größe = ü",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Substitute(tt.template, tt.values, tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSubstitute_MissingValueFailsClosed(t *testing.T) {
	got, err := Substitute("a=${a} b=${b}", map[string]string{"a": "1"}, DialectRaw)
	require.Error(t, err)
	assert.Empty(t, got)

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeMissingParameter, appErr.Code)
	assert.Contains(t, appErr.Message, "${b}")
}

func TestSubstitute_EmptyValueIsNotMissing(t *testing.T) {
	got, err := Substitute("x=${x}", map[string]string{"x": ""}, DialectJQL)
	require.NoError(t, err)
	assert.Equal(t, `x=""`, got)
}

func TestSubstitute_Malformed(t *testing.T) {
	for _, tpl := range []string{"a ${unterminated", "${}", "${bad name}", "${1abc}", "${a${b}}"} {
		t.Run(tpl, func(t *testing.T) {
			_, err := Substitute(tpl, map[string]string{"a": "1", "b": "2", "unterminated": "x"}, DialectRaw)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeValidationError, apperrors.CodeOf(err))
		})
	}
}

func TestSubstitute_CompleteValuesLeaveNoPlaceholders(t *testing.T) {
	templates := []string{
		"${a}",
		"pre ${a} mid ${b} post",
		"${a}${b}${a}",
		`project = "X" AND assignee = ${a} OR reporter = ${b}`,
	}
	values := map[string]string{"a": "one", "b": "two"}

	for _, tpl := range templates {
		for _, d := range []Dialect{DialectRaw, DialectJQL, DialectURLPath, DialectURLQuery, DialectJSON} {
			first, err := Substitute(tpl, values, d)
			require.NoError(t, err)
			assert.NotContains(t, first, "${")

			second, err := Substitute(tpl, values, d)
			require.NoError(t, err)
			assert.Equal(t, first, second, "substitution must be deterministic")
		}
	}
}

func TestSubstitute_ValueContainingPlaceholderSyntaxIsNotRescanned(t *testing.T) {
	got, err := Substitute("${a}", map[string]string{"a": "${b}"}, DialectRaw)
	require.NoError(t, err)
	assert.Equal(t, "${b}", got)
}

func TestPlaceholders(t *testing.T) {
	names, err := Placeholders("${b} ${a} ${b} $notone ${c}")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, names)

	names, err = Placeholders("SELECT 1")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBind(t *testing.T) {
	values := map[string]string{"id": "42", "status": "open"}

	t.Run("dollar reuses markers", func(t *testing.T) {
		b, err := Bind("SELECT * FROM t WHERE id = ${id} AND (status = ${status} OR parent = ${id})", values, BindDollar)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE id = $1 AND (status = $2 OR parent = $1)", b.Text)
		assert.Equal(t, []any{"42", "open"}, b.Args)
	})

	t.Run("question per occurrence", func(t *testing.T) {
		b, err := Bind("SELECT * FROM t WHERE id = ${id} AND (status = ${status} OR parent = ${id})", values, BindQuestion)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE id = ? AND (status = ? OR parent = ?)", b.Text)
		assert.Equal(t, []any{"42", "open", "42"}, b.Args)
	})

	t.Run("injection stays in args", func(t *testing.T) {
		b, err := Bind("SELECT * FROM t WHERE name = ${name}", map[string]string{"name": "x'; DROP TABLE t; --"}, BindQuestion)
		require.NoError(t, err)
		assert.False(t, strings.Contains(b.Text, "DROP"))
		assert.Equal(t, []any{"x'; DROP TABLE t; --"}, b.Args)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Bind("SELECT ${nope}", values, BindDollar)
		assert.Equal(t, apperrors.ErrCodeMissingParameter, apperrors.CodeOf(err))
	})
}
