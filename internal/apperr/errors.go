// Package apperr holds the error taxonomy shared by every GigFlow service.
package apperr

import (
	"errors"
	"fmt"
	"sort"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindValidation   Kind = "validation"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Machine readable codes surfaced to API callers.
const (
	CodeGigAlreadyAssigned = "GIG_ALREADY_ASSIGNED"
	CodeWriteConflict      = "WRITE_CONFLICT"
	CodeTransactionAborted = "TRANSACTION_ABORTED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodeDuplicate          = "DUPLICATE"
	CodeBidExists          = "BID_EXISTS"
	CodeBidNotPending      = "BID_NOT_PENDING"
	CodeGigNotOpen         = "GIG_NOT_OPEN"
	CodeGigNotAssigned     = "GIG_NOT_ASSIGNED"
	CodeSelfBid            = "SELF_BID"
	CodeNotOwner           = "NOT_OWNER"
	CodeRecordNotFound     = "NOT_FOUND"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountInactive    = "ACCOUNT_INACTIVE"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  FieldErrors
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether running the same request again might succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindInternal
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeRecordNotFound, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeNotOwner, Message: msg}
}

func InvalidState(code, msg string) *Error {
	return &Error{Kind: KindInvalidState, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func Internal(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Err: err}
}

// FieldErrors collects per-field validation messages.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Err returns nil when no field failed, a Validation error otherwise.
// The message is the first failure so single-message clients still get something useful.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return Validation(f)
}

func Validation(fields FieldErrors) *Error {
	msg := "Validation error"
	for _, k := range sortedKeys(fields) {
		if len(fields[k]) > 0 {
			msg = fields[k][0]
			break
		}
	}
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: msg, Fields: fields}
}

// KindOf returns the taxonomy kind of err; unknown errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}

func sortedKeys(m FieldErrors) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
