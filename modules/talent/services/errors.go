package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
)

const (
	CodeInvalidInput      = "TALENT_INVALID_INPUT"
	CodeReferenceNotFound = "TALENT_REFERENCE_NOT_FOUND"
	CodePersistence       = "TALENT_PERSISTENCE"
	CodeConflict          = "TALENT_CONFLICT"
)

// ErrNotAuthorized is returned by direct calls that need a field group the
// actor lacks. Snapshot execution skips such fields instead.
var ErrNotAuthorized = errors.New("actor is not authorized for this field group")

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Code() string { return CodeInvalidInput }

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ReferenceNotFoundError reports an id that did not resolve. Execution records
// it against the entry and moves on to siblings.
type ReferenceNotFoundError struct {
	Kind  reference.Kind
	ID    int64
	Cause error
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *ReferenceNotFoundError) Unwrap() error { return e.Cause }

func (e *ReferenceNotFoundError) Code() string { return CodeReferenceNotFound }

// PersistenceError aborts the current atomic unit.
type PersistenceError struct {
	Op         string
	ErrCode    string
	Constraint string
	Cause      error
}

func (e *PersistenceError) Error() string {
	msg := e.Op + ": " + strings.ToLower(e.ErrCode)
	if e.Constraint != "" {
		msg += " (" + e.Constraint + ")"
	}
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

func (e *PersistenceError) Code() string { return e.ErrCode }

// ErrorCode returns the stable code of a typed error, or "" for anything else.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// validationFromStruct converts validator output into a ValidationError for
// the first failing field.
func validationFromStruct(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return newValidationError(fe.Field(), "is required")
	case "gt":
		return newValidationError(fe.Field(), "must be greater than %s", fe.Param())
	case "gte":
		return newValidationError(fe.Field(), "must be >= %s", fe.Param())
	case "lte":
		return newValidationError(fe.Field(), "must be <= %s", fe.Param())
	case "oneof":
		return newValidationError(fe.Field(), "must be one of [%s]", fe.Param())
	default:
		return newValidationError(fe.Field(), "failed %q validation", fe.Tag())
	}
}

// storeError maps repository failures. Typed errors pass through; Postgres
// constraint violations become coded PersistenceErrors.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		re *ReferenceNotFoundError
		pe *PersistenceError
	)
	if errors.As(err, &ve) || errors.As(err, &re) || errors.As(err, &pe) {
		return err
	}
	return mapPgError(op, err)
}

func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &PersistenceError{Op: op, ErrCode: CodePersistence, Cause: err}
	}

	out := &PersistenceError{Op: op, ErrCode: CodeConflict, Constraint: pgErr.ConstraintName, Cause: err}
	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
	case "23P01": // exclusion_violation
		recordWriteConflict("overlap")
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		out.ErrCode = CodeReferenceNotFound
	case "23514": // check_violation
		recordWriteConflict("check")
		out.ErrCode = CodeInvalidInput
	default:
		out.ErrCode = CodePersistence
	}
	return out
}
