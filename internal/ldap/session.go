package ldap

import (
	"errors"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Credential is the bind identity chosen for an operation: anonymous, a
// concrete {dn, password}, or an error the selector produced (for instance
// as_user without a password). An error credential short-circuits the run.
type Credential struct {
	Anonymous bool
	DN        string
	Password  string
	Err       error
}

// Anon is the anonymous credential.
func Anon() Credential {
	return Credential{Anonymous: true}
}

// Simple is a {dn, password} credential.
func Simple(dn, password string) Credential {
	return Credential{DN: dn, Password: password}
}

// BadCredential carries a selector error through the session runner.
func BadCredential(err error) Credential {
	return Credential{Err: err}
}

// Session runs caller functions against a bound directory connection drawn
// from a worker-local cache, classifying failures into the caller-visible
// error kinds and recovering once from a transport found closed.
type Session struct {
	cache *ConnCache
	log   *zap.Logger
	scrub *Scrubber
}

// NewSession wires a session runner over a worker's connection cache.
func NewSession(cache *ConnCache, log *zap.Logger, scrub *Scrubber) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if scrub == nil {
		scrub = NewScrubber(LogOff)
	}
	return &Session{cache: cache, log: log, scrub: scrub}
}

// Do acquires (or reuses) a connection for the credential, rebinds as
// needed, and hands the connection to fn. A bind rejected for invalid
// credentials returns Refused; other bind failures return BindError with
// the detail logged only; errors out of fn map to EvaluateError. If the
// first attempt trips over a closed transport the key is purged and the
// whole attempt retried once on a fresh connection.
func (s *Session) Do(cred Credential, fn func(Conn) error) error {
	if cred.Err != nil {
		return cred.Err
	}

	log := s.log.With(zap.String("session_id", uuid.NewString()))

	err := s.attempt(cred, fn, log)
	if err != nil && IsTransportClosed(err) {
		log.Info("LDAP transport closed, retrying on a fresh connection")
		s.cache.Purge(cred.Anonymous)
		err = s.attempt(cred, fn, log)
	}
	return s.classify(cred, err, log)
}

// attempt runs one acquire/bind/call cycle. Errors come back raw so the
// caller can test for the closed-transport marker before classification.
func (s *Session) attempt(cred Credential, fn func(Conn) error, log *zap.Logger) error {
	conn, err := s.cache.Acquire(cred.Anonymous)
	if err != nil {
		return err
	}

	if !cred.Anonymous {
		if err := conn.Bind(cred.DN, cred.Password); err != nil {
			return &bindFailure{dn: cred.DN, cause: err}
		}
		if s.scrub.Mode().Chatty() {
			log.Debug("LDAP bind succeeded", fieldDN(s.scrub, "dn", cred.DN))
		}
	}

	if err := fn(conn); err != nil {
		return &callFailure{cause: err}
	}
	return nil
}

// bindFailure and callFailure tag which phase of an attempt failed; they
// never leave the session runner.
type bindFailure struct {
	dn    string
	cause error
}

func (e *bindFailure) Error() string { return "bind failed" }
func (e *bindFailure) Unwrap() error { return e.cause }

type callFailure struct {
	cause error
}

func (e *callFailure) Error() string { return "operation failed" }
func (e *callFailure) Unwrap() error { return e.cause }

func (s *Session) classify(cred Credential, err error, log *zap.Logger) error {
	if err == nil {
		return nil
	}

	switch e := err.(type) {
	case *bindFailure:
		if ldap.IsErrorWithCode(e.cause, ldap.LDAPResultInvalidCredentials) {
			return &Refused{DN: cred.DN}
		}
		log.Warn("LDAP bind error", fieldDN(s.scrub, "dn", cred.DN), zap.Error(e.cause))
		return &BindError{cause: e.cause}
	case *callFailure:
		log.Warn("LDAP operation error", zap.Error(e.cause))
		return &EvaluateError{cause: e.cause}
	case *ConnectError:
		log.Warn("LDAP connect error", zap.Error(e))
		return e
	}

	if errors.Is(err, ErrNoServers) {
		return err
	}
	log.Warn("LDAP connect error", zap.Error(err))
	return &ConnectError{cause: err}
}
