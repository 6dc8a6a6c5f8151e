package emqu

import (
	"errors"
	"fmt"
)

var (
	ErrIO                = errors.New("i/o error")
	ErrFormat            = errors.New("malformed store")
	ErrTokenizer         = errors.New("tokenizer error")
	ErrEmbedding         = errors.New("embedding error")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrGlob              = errors.New("glob error")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Error attaches an operation and an optional path to one of the error kinds above.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Path)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", msg, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an Error without a path whose cause is a formatted message.
func Errorf(kind error, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
