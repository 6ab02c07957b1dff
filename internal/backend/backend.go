// Package backend implements the authentication and authorization contract
// the broker consumes: login with tag resolution, and vhost, resource and
// topic access checks evaluated against the directory.
package backend

import (
	"go.uber.org/zap"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/config"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/pool"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/query"
)

// UnknownDN is the sentinel DN of a principal that was never resolved.
const UnknownDN = "unknown"

// AuthUser is the opaque principal handle returned from authentication and
// carried through subsequent authorization calls.
type AuthUser struct {
	Username string
	// DN is the resolved distinguished name, or UnknownDN.
	DN string
	// Tags are the capability tags whose query evaluated to exactly
	// boolean true.
	Tags []string

	// password is held only so other_bind = as_user can rebind for later
	// directory operations; it never leaves the package.
	password    string
	hasPassword bool
}

// Principal rebuilds an AuthUser for authorization checks arriving without
// a preceding login in this process. An empty password leaves the as_user
// rebind unavailable.
func Principal(username, dn, password string) *AuthUser {
	if dn == "" {
		dn = UnknownDN
	}
	return &AuthUser{
		Username:    username,
		DN:          dn,
		password:    password,
		hasPassword: password != "",
	}
}

// HasTag reports whether the principal carries the tag.
func (u *AuthUser) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Resource identifies a broker object inside a virtual host.
type Resource struct {
	VirtualHost string
	Kind        string
	Name        string
}

// Context carries the extra key-value pairs of a topic check, such as the
// routing key.
type Context map[string]string

// Backend evaluates the configured access queries over the worker pool.
type Backend struct {
	cfg     config.Config
	queries config.Queries
	pool    *pool.Pool
	log     *zap.Logger
	scrub   *ldap.Scrubber
}

// New wires a backend over its worker pool. The pool's caches must have
// been built from the same configuration.
func New(cfg config.Config, queries config.Queries, p *pool.Pool, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		cfg:     cfg,
		queries: queries,
		pool:    p,
		log:     log,
		scrub:   ldap.NewScrubber(cfg.LogMode()),
	}
}

// session builds the session runner for a worker.
func (b *Backend) session(w *pool.Worker) *ldap.Session {
	return ldap.NewSession(w.Cache(), b.log, b.scrub)
}

// evaluator builds a query evaluator over an open connection.
func (b *Backend) evaluator(conn ldap.Conn) *query.Evaluator {
	return query.NewEvaluator(conn, b.cfg.GroupLookupBase, b.log, b.scrub.DN)
}
