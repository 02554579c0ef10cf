// Package qerr defines the structured error returned by the loader, the
// pipeline executor and the result encoders. Every failure carries a Kind
// and a human-readable message; pipeline failures also carry the index of
// the operation that failed.
package qerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// Core kinds.
	KindParse
	KindColumnNotFound
	KindType
	KindInvalidQuery
	KindQueryExecution
	KindSerialization
	// Boundary kinds, used by the service and transports.
	KindNotFound
	KindUnauthorized
	KindBadRequest
	KindStorage
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown error",
	KindParse:          "parse error",
	KindColumnNotFound: "column not found",
	KindType:           "type error",
	KindInvalidQuery:   "invalid query",
	KindQueryExecution: "query execution error",
	KindSerialization:  "serialization error",
	KindNotFound:       "not found",
	KindUnauthorized:   "unauthorized",
	KindBadRequest:     "bad request",
	KindStorage:        "storage error",
	KindInternal:       "internal error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// NoOp is the Op value of errors not tied to a pipeline operation.
const NoOp = -1

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   int // index of the failing operation, or NoOp
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	prefix := ""
	if e.Op >= 0 {
		prefix = fmt.Sprintf("operation %d: ", e.Op)
	}
	if e.Msg == "" && e.Err != nil {
		return prefix + e.Kind.String() + ": " + e.Err.Error()
	}
	return prefix + e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: NoOp, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. If err already is an *Error it is returned as is.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	return &Error{Kind: kind, Op: NoOp, Msg: err.Error(), Err: err}
}

// AtOp returns a copy of err attributed to the operation at index op.
// Errors that are not *Error become KindQueryExecution.
func AtOp(op int, err error) *Error {
	var qe *Error
	if !errors.As(err, &qe) {
		return &Error{Kind: KindQueryExecution, Op: op, Msg: err.Error(), Err: err}
	}
	out := *qe
	out.Op = op
	return &out
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindUnknown
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ColumnNotFound is shorthand for the most common pipeline failure.
func ColumnNotFound(name string) *Error {
	return New(KindColumnNotFound, "column %q not found", name)
}
