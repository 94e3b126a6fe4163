package minimax

import (
	"errors"
	"fmt"
)

// TransportError means the HTTP exchange itself failed: network error or a non-success status.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("minimax %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("minimax %s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteProtocolError means the service answered but the payload lacks what the operation needs.
type RemoteProtocolError struct {
	Op  string
	Msg string
}

func (e *RemoteProtocolError) Error() string {
	return fmt.Sprintf("minimax %s: %s", e.Op, e.Msg)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocol reports whether err is (or wraps) a RemoteProtocolError.
func IsProtocol(err error) bool {
	var pe *RemoteProtocolError
	return errors.As(err, &pe)
}
