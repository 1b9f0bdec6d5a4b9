package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	Unexpected Kind = iota
	Unauthenticated
	Forbidden
	NotFound
	ValidationFailed
	InsufficientStock
	ProductUnavailable
	EmptyCart
	RateLimited
	Conflict
)

var kindNames = map[Kind]string{
	Unexpected:         "unexpected",
	Unauthenticated:    "unauthenticated",
	Forbidden:          "forbidden",
	NotFound:           "not_found",
	ValidationFailed:   "validation_failed",
	InsufficientStock:  "insufficient_stock",
	ProductUnavailable: "product_unavailable",
	EmptyCart:          "empty_cart",
	RateLimited:        "rate_limited",
	Conflict:           "conflict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status maps a kind to the HTTP status used at the request boundary.
func (k Kind) Status() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case ValidationFailed, InsufficientStock, ProductUnavailable, EmptyCart:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Quota is attached to RateLimited errors.
type Quota struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
	Quota   *Quota
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.New(apperr.NotFound, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, msg string) *Error {
	return &Error{Kind: Unexpected, Message: msg, Err: err}
}

func NewRateLimited(msg string, q Quota) *Error {
	return &Error{Kind: RateLimited, Message: msg, Quota: &q}
}

// KindOf reports the kind of the first *Error in err's chain, or Unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}

// As returns the first *Error in err's chain. Errors of any other type are
// reported as Unexpected with a generic message.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Unexpected, Message: "internal server error", Err: err}
}
