package formatter

import (
	"bytes"
	"encoding/json"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/gnolang/coerce/internal/types"
)

func init() {
	color.NoColor = true
}

func TestGenerateFormattedIssue(t *testing.T) {
	t.Parallel()

	code := &SourceCode{
		Lines: []string{
			"package main",
			"",
			"func main() {",
			"    x := 1",
			"    if true {}",
			"}",
		},
	}

	issues := []tt.Issue{
		{
			Rule:     CheckerRule,
			Filename: "test.go",
			Start:    token.Position{Line: 4, Column: 5},
			End:      token.Position{Line: 4, Column: 6},
			Message:  "unbound name: undefined: y",
		},
		{
			Rule:     GeneratorRule,
			Category: "unbound",
			Filename: "test.go",
			Start:    token.Position{Line: 5, Column: 10},
			End:      token.Position{Line: 5, Column: 12},
			Message:  "y is not bound by the pattern",
		},
	}

	expected := `error: coercecheck
 --> test.go:4:5
  |
4 | x := 1
  | ~~
  = unbound name: undefined: y

error: coercegen
 --> test.go:5:10
  |
5 | if true {}
  |      ~~~
  = y is not bound by the pattern
  = kind: unbound

`

	assert.Equal(t, expected, GenerateFormattedIssue(issues, code))
}

func TestGenerateFormattedIssueWithTabs(t *testing.T) {
	t.Parallel()

	code := &SourceCode{
		Lines: []string{
			"package main",
			"",
			"func main() {",
			"\tx := 1",
			"}",
		},
	}

	issues := []tt.Issue{
		{
			Rule:     CheckerRule,
			Filename: "test.go",
			Start:    token.Position{Line: 4, Column: 2},
			End:      token.Position{Line: 4, Column: 3},
			Message:  "impossible",
			Note:     "the value is never a Point",
		},
	}

	expected := `error: coercecheck
 --> test.go:4:2
  |
4 | x := 1
  | ~~
  = impossible
note: the value is never a Point

`

	assert.Equal(t, expected, GenerateFormattedIssue(issues, code))
}

func TestGenerateFormattedIssueOutOfRange(t *testing.T) {
	t.Parallel()

	issues := []tt.Issue{
		{
			Rule:     CheckerRule,
			Filename: "test.go",
			Start:    token.Position{Line: 10, Column: 1},
			End:      token.Position{Line: 10, Column: 1},
			Message:  "gone",
		},
	}

	expected := `error: coercecheck
  --> test.go:10:1
   |
   | gone

`

	assert.Equal(t, expected, GenerateFormattedIssue(issues, &SourceCode{}))
}

func TestPrint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n\nvar x = 1\n"), 0o644))

	issues := []tt.Issue{
		{
			Rule:     CheckerRule,
			Filename: path,
			Start:    token.Position{Filename: path, Line: 3, Column: 5},
			End:      token.Position{Filename: path, Line: 3, Column: 5},
			Message:  "bad",
		},
		{
			Rule:     CheckerRule,
			Filename: filepath.Join(dir, "missing.go"),
			Start:    token.Position{Line: 1, Column: 1},
			End:      token.Position{Line: 1, Column: 1},
			Message:  "still printed",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, issues))
	out := buf.String()
	assert.Contains(t, out, "3 | var x = 1")
	assert.Contains(t, out, "    ~")
	assert.Contains(t, out, "still printed")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("bad")), bytes.Index(buf.Bytes(), []byte("still printed")))
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	issues := []tt.Issue{
		{Rule: CheckerRule, Filename: "a.go", Message: "one", Severity: tt.SeverityError},
		{Rule: GeneratorRule, Filename: "a.go", Message: "two", Severity: tt.SeverityWarning},
		{Rule: CheckerRule, Filename: "b.go", Message: "three"},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, issues))

	var got map[string][]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got["a.go"], 2)
	require.Len(t, got["b.go"], 1)
	assert.Equal(t, "two", got["a.go"][1]["Message"])
	assert.Equal(t, "WARNING", got["a.go"][1]["Severity"])
}

func TestCalculateVisualColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		column int
		want   int
	}{
		{"abc", 1, 0},
		{"abc", 3, 2},
		{"\tx", 2, 8},
		{"a\tx", 3, 8},
		{"  \t\tx", 5, 16},
		{"abc", -1, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateVisualColumn(tt.line, tt.column), "%q:%d", tt.line, tt.column)
	}
}

func TestFindCommonIndent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "\t", findCommonIndent([]string{"\t\tx", "", "\ty"}))
	assert.Equal(t, "  ", findCommonIndent([]string{"    a", "  b"}))
	assert.Equal(t, "", findCommonIndent([]string{"a", "  b"}))
	assert.Equal(t, "", findCommonIndent(nil))
}
