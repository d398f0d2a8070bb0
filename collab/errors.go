package collab

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindAuthentication   ErrorKind = "authentication"
	KindAccessDenied     ErrorKind = "access_denied"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindConflict         ErrorKind = "conflict"
	KindStoreFailure     ErrorKind = "store_failure"
	KindProtocol         ErrorKind = "protocol"
)

// MaxProtocolErrors is how many malformed events a connection may send
// before it is treated as a broken client and closed.
const MaxProtocolErrors = 5

// Error is the value carried by the outbound "error" event. It is only ever
// delivered to the connection that caused it.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
