package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business rule failure. Transports map kinds to their own status codes.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindIneligibleClient ErrorKind = "INELIGIBLE_CLIENT"
	KindInvalidQuantity  ErrorKind = "INVALID_QUANTITY"
	KindInvalidPrice     ErrorKind = "INVALID_PRICE"
	KindLotSizeViolation ErrorKind = "LOT_SIZE_VIOLATION"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindAlreadyExists    ErrorKind = "ALREADY_EXISTS"
	KindLimitExceeded    ErrorKind = "LIMIT_EXCEEDED"
	KindInvalidRequest   ErrorKind = "INVALID_REQUEST"
)

// Sentinels, one per kind. Every *Error unwraps to the sentinel of its kind.
var (
	ErrNotFound         = errors.New("not found")
	ErrIneligibleClient = errors.New("ineligible client")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrLotSizeViolation = errors.New("lot size violation")
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyExists    = errors.New("already exists")
	ErrLimitExceeded    = errors.New("limit exceeded")
	ErrInvalidRequest   = errors.New("invalid request")
)

var sentinels = map[ErrorKind]error{
	KindNotFound:         ErrNotFound,
	KindIneligibleClient: ErrIneligibleClient,
	KindInvalidQuantity:  ErrInvalidQuantity,
	KindInvalidPrice:     ErrInvalidPrice,
	KindLotSizeViolation: ErrLotSizeViolation,
	KindInvalidState:     ErrInvalidState,
	KindAlreadyExists:    ErrAlreadyExists,
	KindLimitExceeded:    ErrLimitExceeded,
	KindInvalidRequest:   ErrInvalidRequest,
}

// Error is a rejected operation with a human-readable reason.
// Details carries diagnostic values such as the client's current KYC status.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return sentinels[e.Kind]
}

// WithDetail returns e with an extra diagnostic value attached.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

func NotFound(format string, args ...interface{}) *Error {
	return NewError(KindNotFound, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return NewError(KindInvalidState, format, args...)
}

func InvalidRequest(format string, args ...interface{}) *Error {
	return NewError(KindInvalidRequest, format, args...)
}

// KindOf reports the kind of err, or "" when err is not a business rule failure.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}
