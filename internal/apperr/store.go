package apperr

import (
	"context"
	"errors"

	"github.com/gigflow/gigflow-api/internal/store"
)

// FromStore maps a store or transaction error onto the taxonomy. Errors that already
// carry a Kind pass through untouched, so a service can return its own decision from
// inside a transaction and get it back unchanged.
func FromStore(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NotFound(notFound)
	case errors.Is(err, store.ErrWriteConflict), errors.Is(err, store.ErrStale):
		return &Error{Kind: KindConflict, Code: CodeWriteConflict, Message: "Another operation on this gig is in progress. Please try again.", Err: err}
	case errors.Is(err, store.ErrDuplicate):
		return &Error{Kind: KindConflict, Code: CodeDuplicate, Message: "Record already exists", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindInternal, Code: CodeTransactionAborted, Message: "Transaction was aborted. Please retry.", Err: err}
	}
	return Internal(err, "Unexpected storage failure")
}
