package extractor

import (
	"errors"
	"fmt"
)

// ErrParse is wrapped by every source scanning failure
var ErrParse = errors.New("driver source parse error")

// ParseError reports a malformed declaration in a C source file
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}
