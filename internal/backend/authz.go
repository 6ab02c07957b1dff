package backend

import (
	"errors"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/pool"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/query"
)

// errUnresolvedDN refuses group predicates for a principal whose DN was
// never resolved; the evaluator must not read user_dn in that state.
var errUnresolvedDN = errors.New("query reads user_dn but the principal has no resolved DN")

// CheckVhostAccess evaluates the vhost access query. An evaluator error is
// a deny carrying an error kind, never an allow.
func (b *Backend) CheckVhostAccess(user *AuthUser, vhost string) (bool, error) {
	return b.check(user, b.queries.VhostAccess, vhostVars(user, vhost))
}

// CheckResourceAccess evaluates the resource access query for a permission
// on a queue, exchange or other broker resource.
func (b *Backend) CheckResourceAccess(user *AuthUser, resource Resource, permission string) (bool, error) {
	return b.check(user, b.queries.ResourceAccess, resourceVars(user, resource, permission))
}

// CheckTopicAccess evaluates the topic access query. Context keys that do
// not collide with the fixed variable names are passed through as extra
// bindings.
func (b *Backend) CheckTopicAccess(user *AuthUser, resource Resource, permission string, ctx Context) (bool, error) {
	return b.check(user, b.queries.TopicAccess, topicVars(user, resource, permission, ctx))
}

func (b *Backend) check(user *AuthUser, q query.Query, vars query.Vars) (bool, error) {
	if user.DN == UnknownDN && query.ReadsUserDN(q) {
		return false, errUnresolvedDN
	}

	var allowed bool
	err := b.pool.Run(func(w *pool.Worker) error {
		return b.session(w).Do(b.otherCred(user), func(conn ldap.Conn) error {
			v := b.evaluator(conn).Eval(q, vars)
			if v.IsError() {
				return v.Err()
			}
			allowed = v.IsTrue()
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}
