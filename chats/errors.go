package chats

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Error kinds. Every error returned by Store matches exactly one of them
// under errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrEmpty            = errors.New("empty")
	ErrIO               = errors.New("io failure")
)

// Error describes a failed store operation.
type Error struct {
	Kind error
	Op   string
	Path Path
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, path Path, format string, args ...any) *Error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Path: path.Clone(), Err: err}
}

// wrapIO classifies a storage failure. Errors that already carry a kind pass
// through unchanged; unique-constraint violations become conflicts.
func wrapIO(op string, path Path, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return &Error{Kind: ErrConflict, Op: op, Path: path.Clone(), Err: err}
	}
	logger.Error().Err(err).Str("op", op).Str("path", path.String()).Msg("storage failure")
	return &Error{Kind: ErrIO, Op: op, Path: path.Clone(), Err: err}
}

// KindOf returns the error kind carried by err, or nil when err did not come from the store.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalidOperation, ErrEmpty, ErrIO} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
