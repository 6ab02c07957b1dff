package ldap

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-ldap/ldap/v3"
)

// ErrNoServers indicates the backend was started without any LDAP servers
// configured.
var ErrNoServers = errors.New("no LDAP servers configured")

// Refused is an authentic authentication failure: invalid credentials, an
// empty password, or a policy denial. It is the only error kind that names
// the DN it concerns.
type Refused struct {
	DN     string
	Reason string
}

func (e *Refused) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("authentication refused for %s: %s", e.DN, e.Reason)
	}
	return fmt.Sprintf("authentication refused for %s", e.DN)
}

// Kind returns the wire name of the error kind.
func (e *Refused) Kind() string { return "refused" }

// ConnectError indicates that no configured server accepted a connection.
// Per-server details go to the log, not the caller.
type ConnectError struct {
	cause error
}

func (e *ConnectError) Error() string { return "cannot connect to any LDAP server" }
func (e *ConnectError) Unwrap() error { return e.cause }

// Kind returns the wire name of the error kind.
func (e *ConnectError) Kind() string { return "ldap_connect_error" }

// BindError indicates a bind failed for a reason other than invalid
// credentials. The protocol-level detail is logged only.
type BindError struct {
	cause error
}

func (e *BindError) Error() string { return "LDAP bind failed" }
func (e *BindError) Unwrap() error { return e.cause }

// Kind returns the wire name of the error kind.
func (e *BindError) Kind() string { return "ldap_bind_error" }

// EvaluateError indicates a directory operation inside an evaluation or
// lookup failed. Downstream callers cannot distinguish a schema mismatch
// from a transport fault; both arrive here.
type EvaluateError struct {
	cause error
}

func (e *EvaluateError) Error() string { return "LDAP evaluation failed" }
func (e *EvaluateError) Unwrap() error { return e.cause }

// Kind returns the wire name of the error kind.
func (e *EvaluateError) Kind() string { return "ldap_evaluate_error" }

// Kind maps an error to its caller-visible kind name, or "error" for
// anything unclassified.
func Kind(err error) string {
	var kinder interface{ Kind() string }
	if errors.As(err, &kinder) {
		return kinder.Kind()
	}
	if errors.Is(err, ErrNoServers) {
		return "no_ldap_servers_defined"
	}
	return "error"
}

// IsTransportClosed reports whether err marks a connection whose transport
// was found closed, which the session runner answers with a purge and a
// single retry on a fresh connection.
func IsTransportClosed(err error) bool {
	if err == nil {
		return false
	}
	if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
