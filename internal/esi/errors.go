package esi

import (
	"errors"
	"fmt"
	"net"

	"abyssrun/internal/netx/client"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	ErrTransport ErrorKind = "transport" // request never produced a response
	ErrAuth      ErrorKind = "auth"      // 401 or 403
	ErrServer    ErrorKind = "server"    // 5xx
	ErrAPI       ErrorKind = "api"       // any other non-2xx
	ErrParse     ErrorKind = "parse"     // 2xx body failed to decode
)

// Error is a failed API call with enough context to decide on a retry.
type Error struct {
	Kind    ErrorKind
	Status  int // 0 when no response was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("esi: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("esi: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether the failure is worth retrying: server errors,
// rate-limit and gateway statuses, and transport timeouts or refused
// connections. An open circuit breaker is also temporary.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case ErrServer:
		return true
	case ErrAPI:
		return e.Status == 429 || e.Status == 502 || e.Status == 503
	case ErrTransport:
		if client.IsBreakerOpen(e.Err) {
			return true
		}
		var nerr net.Error
		if errors.As(e.Err, &nerr) && nerr.Timeout() {
			return true
		}
		var oerr *net.OpError
		return errors.As(e.Err, &oerr)
	}
	return false
}

// IsTemporary reports whether err advertises itself as retryable.
// Errors that do not implement Temporary() are treated as retryable,
// failing permanently only on an explicit false.
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}
