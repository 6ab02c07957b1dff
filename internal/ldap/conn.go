// Package ldap owns the directory session layer of the backend: dialing the
// configured servers, caching live connections per worker, running binds and
// caller operations with fault recovery, and scrubbing anything that heads
// for the log sink.
package ldap

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Conn abstracts the slice of *ldap.Conn the backend uses, mostly so tests
// can stand in a fake directory.
type Conn interface {
	// Bind performs a simple bind as dn with password.
	Bind(dn, password string) error
	// UnauthenticatedBind binds without credentials.
	UnauthenticatedBind(username string) error
	// Search abstracts ldap.Conn.Search().
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	// IsClosing reports whether the connection is shutting down.
	IsClosing() bool
	// Close abstracts ldap.Conn.Close().
	Close() error
}

// Options describe how connections are opened. The idle timeout governs
// cache eviction, not connection identity, and is deliberately absent from
// Key.
type Options struct {
	// Servers is the ordered list of endpoints, host or host:port.
	Servers []string
	// Port is applied to any server given without a port. Default 389
	// (636 under SSL).
	Port int
	// UseSSL opens a TLS socket from the outset.
	UseSSL bool
	// UseStartTLS opens plain and upgrades once the handle exists.
	UseStartTLS bool
	// TLS is applied verbatim; nil means library defaults.
	TLS *tls.Config
	// Timeout bounds each network operation. Zero means no deadline.
	Timeout time.Duration
	// IdleTimeout evicts a cached connection that has gone unused.
	// Zero means never.
	IdleTimeout time.Duration
}

// Key identifies a cache slot: anonymity, the server list, and the open
// options minus the idle timeout.
type Key struct {
	Anonymous bool
	Servers   string
	Options   string
}

// Key derives the cache key for a connection opened with these options.
func (o Options) Key(anonymous bool) Key {
	return Key{
		Anonymous: anonymous,
		Servers:   strings.Join(o.Servers, ","),
		Options: fmt.Sprintf("ssl=%t starttls=%t port=%d timeout=%s",
			o.UseSSL, o.UseStartTLS, o.Port, o.Timeout),
	}
}

func (o Options) port() int {
	if o.Port != 0 {
		return o.Port
	}
	if o.UseSSL {
		return 636
	}
	return 389
}

func (o Options) address(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, strconv.Itoa(o.port()))
}

// DialFunc opens a connection per the options. The cache takes one so tests
// can dial into a fake.
type DialFunc func(opts Options) (Conn, error)

// Dial opens a connection to the first reachable server in order, applying
// the configured transport security. It is the production DialFunc.
func Dial(opts Options) (Conn, error) {
	if len(opts.Servers) == 0 {
		return nil, ErrNoServers
	}

	var lastErr error
	for _, server := range opts.Servers {
		conn, err := dialServer(opts, server)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", opts.address(server), err)
			continue
		}
		return conn, nil
	}
	return nil, &ConnectError{cause: lastErr}
}

func dialServer(opts Options, server string) (Conn, error) {
	addr := opts.address(server)
	dialer := &net.Dialer{Timeout: opts.Timeout}

	var conn *ldap.Conn
	var err error
	if opts.UseSSL {
		conn, err = ldap.DialURL("ldaps://"+addr,
			ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(opts.TLS))
	} else {
		conn, err = ldap.DialURL("ldap://"+addr, ldap.DialWithDialer(dialer))
	}
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		conn.SetTimeout(opts.Timeout)
	}

	if !opts.UseSSL && opts.UseStartTLS {
		tlsConfig := opts.TLS
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		if err := conn.StartTLS(tlsConfig); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("StartTLS failed: %w", err)
		}
	}

	return conn, nil
}

// fieldDN is a convenience for scrubbed DN log fields.
func fieldDN(scrub *Scrubber, key, dn string) zap.Field {
	return zap.String(key, scrub.DN(dn))
}
