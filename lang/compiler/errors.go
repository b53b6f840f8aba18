package compiler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/toi-lang/toi/lang/token"
)

// CompileError is one accumulated compile-time diagnostic (§7 taxonomy:
// lex or parse error), formatted per §6: "[line N] Error at '<token>':
// <message>".
type CompileError struct {
	Pos     token.Position
	AtToken string
	Message string
}

func (e *CompileError) Error() string {
	if e.AtToken == "" {
		return fmt.Sprintf("[line %d] Error at end: %s", e.Pos.Line, e.Message)
	}
	return fmt.Sprintf("[line %d] Error at '%s': %s", e.Pos.Line, e.AtToken, e.Message)
}

// newErrorList wraps a *multierror.Error so compile() can accumulate every
// diagnostic found before EOF (§7: "accumulate, keep going until EOF").
func newErrorList() *multierror.Error {
	return &multierror.Error{
		ErrorFormat: func(errs []error) string {
			s := ""
			for i, e := range errs {
				if i > 0 {
					s += "\n"
				}
				s += e.Error()
			}
			return s
		},
	}
}
