package condition

import (
	"errors"
	"fmt"
)

// ErrExpression is the sentinel every *Error unwraps to
var ErrExpression = errors.New("expression error")

// Error describes a parse or evaluation failure
type Error struct {
	Expression string
	Pos        int
	Message    string
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("condition %q: %s (at offset %d)", e.Expression, e.Message, e.Pos)
	}
	return fmt.Sprintf("condition %q: %s", e.Expression, e.Message)
}

// Unwrap returns ErrExpression
func (e *Error) Unwrap() error {
	return ErrExpression
}

func newError(expr string, pos int, format string, args ...interface{}) *Error {
	return &Error{Expression: expr, Pos: pos, Message: fmt.Sprintf(format, args...)}
}
