package core

import "github.com/pkg/errors"

// Error kinds. Domain errors wrap one of these so callers can classify them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
)

// KindError is a domain error of a given kind.
type KindError struct {
	Kind error
	msg  string
}

func (err *KindError) Error() string { return err.msg }
func (err *KindError) Unwrap() error { return err.Kind }

func NewNotFoundError(msg string) error     { return &KindError{Kind: ErrNotFound, msg: msg} }
func NewInvalidStateError(msg string) error { return &KindError{Kind: ErrInvalidState, msg: msg} }
func NewConflictError(msg string) error     { return &KindError{Kind: ErrConflict, msg: msg} }

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
