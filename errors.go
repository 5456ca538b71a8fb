package formtab

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeDuplicate    ErrorType = "duplicate"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInvalidSpec  ErrorType = "invalid_spec"
	ErrorTypeConstraint   ErrorType = "constraint"
	ErrorTypeTypeMismatch ErrorType = "type_mismatch"
	ErrorTypeInvalidSort  ErrorType = "invalid_sort"
	ErrorTypeInternal     ErrorType = "internal"
)

// Error codes
const (
	ErrCodeDuplicateForm       = "DUPLICATE_FORM"
	ErrCodeDuplicateAttribute  = "DUPLICATE_ATTRIBUTE"
	ErrCodeDuplicateView       = "DUPLICATE_VIEW"
	ErrCodeDuplicateChoice     = "DUPLICATE_CHOICE"
	ErrCodeFormNotFound        = "FORM_NOT_FOUND"
	ErrCodeAttributeNotFound   = "ATTRIBUTE_NOT_FOUND"
	ErrCodeViewNotFound        = "VIEW_NOT_FOUND"
	ErrCodeChoiceSetNotFound   = "CHOICE_SET_NOT_FOUND"
	ErrCodeInvalidSpec         = "INVALID_SPEC"
	ErrCodeUnsupportedType     = "UNSUPPORTED_TYPE"
	ErrCodeConstraintViolation = "CONSTRAINT_VIOLATION"
	ErrCodeTypeMismatch        = "TYPE_MISMATCH"
	ErrCodeInvalidSortField    = "INVALID_SORT_FIELD"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeDDLFailed           = "DDL_FAILED"
)

// Error is the unified error of the module. Only constraint violations and
// invalid sort fields are meant to be shown to end users; every other type
// signals schema corruption or caller misuse.
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Value   any            `json:"value,omitempty"`
	Rule    *Rule          `json:"rule,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to an Error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to an Error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField adds field context to an Error
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{Type: errorType, Code: code, Message: message}
}

// NewDuplicateNameError reports a name that already exists in the store.
func NewDuplicateNameError(code, kind, name string) *Error {
	return &Error{
		Type:    ErrorTypeDuplicate,
		Code:    code,
		Message: fmt.Sprintf("%s %q already exists", kind, name),
		Field:   name,
	}
}

// NewNotFoundError reports a missing form, attribute, view or choice set.
func NewNotFoundError(code, kind string, ref any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: fmt.Sprintf("%s %v not found", kind, ref),
	}
}

// NewInvalidSpecError reports a malformed form specification.
func NewInvalidSpecError(field, message string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidSpec,
		Code:    ErrCodeInvalidSpec,
		Message: message,
		Field:   field,
	}
}

// NewUnsupportedTypeError reports an attribute type tag with no builder or reader.
func NewUnsupportedTypeError(field string, t AttributeType) *Error {
	return &Error{
		Type:    ErrorTypeInvalidSpec,
		Code:    ErrCodeUnsupportedType,
		Message: fmt.Sprintf("unsupported attribute type %q", t),
		Field:   field,
	}
}

// NewConstraintViolation reports a value rejected by a rule.
func NewConstraintViolation(attribute string, rule Rule, value any, message string) *Error {
	return &Error{
		Type:    ErrorTypeConstraint,
		Code:    ErrCodeConstraintViolation,
		Message: message,
		Field:   attribute,
		Value:   value,
		Rule:    &rule,
	}
}

// NewTypeMismatchError reports a value whose Go type disagrees with the attribute type.
func NewTypeMismatchError(attribute string, want PrimitiveKind, value any) *Error {
	return &Error{
		Type:    ErrorTypeTypeMismatch,
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("expected %s value, got %T", want, value),
		Field:   attribute,
		Value:   value,
	}
}

// NewInvalidSortFieldError reports a sort key that is neither a meta field nor an attribute.
func NewInvalidSortFieldError(field, reason string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidSort,
		Code:    ErrCodeInvalidSortField,
		Message: reason,
		Field:   field,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// NewDDLError wraps a failed DDL statement. These are programmer errors.
func NewDDLError(statement string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeDDLFailed,
		Message: "ddl statement failed",
		Details: map[string]any{"statement": statement},
		Cause:   cause,
	}
}

func isType(err error, t ErrorType) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Type == t
}

// IsDuplicateName reports whether err is a duplicate name error.
func IsDuplicateName(err error) bool { return isType(err, ErrorTypeDuplicate) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsInvalidSpec reports whether err is an invalid specification error.
func IsInvalidSpec(err error) bool { return isType(err, ErrorTypeInvalidSpec) }

// IsConstraintViolation reports whether err is a constraint violation.
func IsConstraintViolation(err error) bool { return isType(err, ErrorTypeConstraint) }

// IsTypeMismatch reports whether err is a type mismatch.
func IsTypeMismatch(err error) bool { return isType(err, ErrorTypeTypeMismatch) }

// IsInvalidSortField reports whether err is an invalid sort field error.
func IsInvalidSortField(err error) bool { return isType(err, ErrorTypeInvalidSort) }

// IsClientError reports whether err may be returned to end users as-is.
func IsClientError(err error) bool {
	return IsConstraintViolation(err) || IsInvalidSortField(err)
}

// ValidationErrors aggregates per-attribute validation failures.
type ValidationErrors map[string][]*Error

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("%d attribute(s) failed validation", len(v))
}

// Add records err under attribute.
func (v ValidationErrors) Add(attribute string, err *Error) {
	v[attribute] = append(v[attribute], err)
}
