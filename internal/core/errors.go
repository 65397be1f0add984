package core

import (
	"errors"
	"fmt"
)

// Predefined errors returned by strata operations.
//
// Every error produced by this package wraps exactly one of the three class
// sentinels (ErrInvalidArgument, ErrLogic, ErrNotFound) so callers can branch
// with errors.Is. Driver failures are returned as-is.
var (
	// ErrInvalidArgument reports caller input rejected before any driver call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrLogic reports an operation invoked in a state that cannot support it.
	ErrLogic = errors.New("logic error")
	// ErrNotFound is returned when a caller demands exactly one row and none exist.
	ErrNotFound = errors.New("record not found")

	// ErrDeleteWithoutWhere is returned when compiling a DELETE with no WHERE clause.
	ErrDeleteWithoutWhere = fmt.Errorf("%w: delete statement requires a where clause", ErrLogic)
	// ErrNoConnection is returned when a statement or record has no database handle.
	ErrNoConnection = fmt.Errorf("%w: no database connection", ErrLogic)
	// ErrParentNotBound is returned by relation operations that need an owning record.
	ErrParentNotBound = fmt.Errorf("%w: relation has no parent record", ErrLogic)
	// ErrParentAlreadyBound is returned when SetParent is called twice.
	ErrParentAlreadyBound = fmt.Errorf("%w: relation parent already bound", ErrLogic)
	// ErrMissingParentKey is returned by pivot operations when the parent has no key value.
	ErrMissingParentKey = fmt.Errorf("%w: parent record has no key value", ErrLogic)
	// ErrRelationNotFound is returned when a relation name cannot be resolved on a record.
	ErrRelationNotFound = fmt.Errorf("%w: relation not found", ErrLogic)
	// ErrTxDone is returned when operating on an already committed or rolled back transaction.
	ErrTxDone = fmt.Errorf("%w: transaction has already been committed or rolled back", ErrLogic)
)

// invalidArgf builds an ErrInvalidArgument with a formatted detail.
func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// logicf builds an ErrLogic with a formatted detail.
func logicf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLogic, fmt.Sprintf(format, args...))
}

// NotFoundError is returned by FirstOrFail and Find when no row matches.
type NotFoundError struct {
	Table string
	ID    any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("strata: %s with id %v not found", e.Table, e.ID)
	}
	return fmt.Sprintf("strata: no %s record found", e.Table)
}

// Is reports whether the target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound returns true if the error is a not-found error.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
