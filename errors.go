package pubfile

import "errors"

// Failures that end an HTTP request or connection. ErrConnectionClosed covers
// every case where the client has gone away or appears to want to; it is the
// one condition that cannot be reported back over the wire.
var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrReadTimeout        = errors.New("timed out waiting for request data")
	ErrBadMethod          = errors.New("method not implemented")
	ErrBadRequest         = errors.New("bad request")
	ErrBadProtocol        = errors.New("HTTP version not supported")
	ErrExpectationFailed  = errors.New("expectations not supported")
	ErrPreconditionFailed = errors.New("bad precondition")
	ErrNotFound           = errors.New("not found")
)

// notImplementedError refuses a legal-but-unsupported aspect of HTTP that has
// no dedicated status code of its own; it carries the message sent in the 501.
type notImplementedError struct {
	msg string
}

func (e *notImplementedError) Error() string { return e.msg }

func errNotImplemented(msg string) error {
	return &notImplementedError{msg: msg}
}
