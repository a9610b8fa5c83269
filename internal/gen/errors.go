package gen

import (
	"fmt"
	"go/token"
	"strings"

	tt "github.com/gnolang/coerce/internal/types"
	"github.com/gnolang/coerce/pattern"
)

// Rule is the issue rule name for generator errors.
const Rule = "coercegen"

// Error is a problem with one directive.
type Error struct {
	Pos  token.Position
	End  token.Position
	Kind pattern.ErrorKind // zero when the error is not about the pattern text
	Msg  string
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
	}
	return e.Msg
}

// Issue converts the error for the diagnostics printer.
func (e *Error) Issue() tt.Issue {
	end := e.End
	if !end.IsValid() {
		end = e.Pos
		end.Column++
	}
	var category string
	if e.Kind != 0 {
		category = e.Kind.String()
	}
	return tt.Issue{
		Rule:     Rule,
		Category: category,
		Filename: e.Pos.Filename,
		Message:  e.Msg,
		Start:    e.Pos,
		End:      end,
	}
}

// Errors collects every directive error of a package.
type Errors []*Error

func (es Errors) Error() string {
	switch len(es) {
	case 0:
		return "no errors"
	case 1:
		return es[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:", len(es))
	for _, e := range es {
		sb.WriteString("\n\t")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Err returns nil when there are no errors.
func (es Errors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

// Issues converts all errors for the diagnostics printer.
func (es Errors) Issues() []tt.Issue {
	out := make([]tt.Issue, len(es))
	for i, e := range es {
		out[i] = e.Issue()
	}
	return out
}
