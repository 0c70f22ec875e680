// Package apperror defines the error kinds surfaced by the report and
// notification services and their mapping onto HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindPermissionDenied
	KindInvalidArgument
	KindNotFound
	KindStoreFailure
	KindDeliveryFailure
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindPermissionDenied:
		return "permission denied"
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindStoreFailure:
		return "store failure"
	case KindDeliveryFailure:
		return "delivery failure"
	default:
		return "unknown"
	}
}

// Error carries a Kind together with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This lets callers
// write errors.Is(err, apperror.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrStoreFailure     = &Error{Kind: KindStoreFailure}
	ErrDeliveryFailure  = &Error{Kind: KindDeliveryFailure}
)

func Unauthenticated(op, msg string) error {
	return &Error{Kind: KindUnauthenticated, Op: op, Err: errors.New(msg)}
}

func PermissionDenied(op, msg string) error {
	return &Error{Kind: KindPermissionDenied, Op: op, Err: errors.New(msg)}
}

func InvalidArgument(op, msg string) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Err: errors.New(msg)}
}

func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Err: errors.New(msg)}
}

func StoreFailure(op string, err error) error {
	return &Error{Kind: KindStoreFailure, Op: op, Err: err}
}

func DeliveryFailure(op string, err error) error {
	return &Error{Kind: KindDeliveryFailure, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the innermost description, without the operation prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDeliveryFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
