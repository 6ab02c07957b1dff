package backend

import (
	"fmt"

	goldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/config"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/pool"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/query"
)

// AuthProps carries the optional inputs of an authentication request. A
// request without a password is the passwordless flow used by external
// authentication mechanisms.
type AuthProps struct {
	Password    string
	HasPassword bool
	// Vhost scopes vhost-aware tag queries when known at login time.
	Vhost string
}

// Authenticate resolves the username to a DN, performs the authenticating
// bind, runs the configured tag queries, and returns the principal. An
// empty password is refused before the directory is contacted: the LDAP
// protocol treats an empty-password bind as a successful anonymous bind,
// which must not pass for authentication.
func (b *Backend) Authenticate(username string, props AuthProps) (*AuthUser, error) {
	if props.HasPassword && props.Password == "" {
		return nil, &ldap.Refused{
			DN:     b.patternDN(username),
			Reason: "unauthenticated bind is not allowed",
		}
	}

	user := &AuthUser{
		Username:    username,
		DN:          UnknownDN,
		password:    props.Password,
		hasPassword: props.HasPassword,
	}
	err := b.pool.Run(func(w *pool.Worker) error {
		return b.login(w, user, props)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authorize is authentication without a password: it resolves the DN and
// the tag set for a principal whose identity was established elsewhere.
func (b *Backend) Authorize(username string) (*AuthUser, error) {
	return b.Authenticate(username, AuthProps{})
}

func (b *Backend) login(w *pool.Worker, user *AuthUser, props AuthProps) error {
	session := b.session(w)

	if props.HasPassword {
		if err := b.resolveAndBind(session, user, props.Password); err != nil {
			return err
		}
	} else {
		if err := b.resolveOnly(session, user); err != nil {
			return err
		}
	}

	return b.runTagQueries(session, user, props.Vhost)
}

// resolveAndBind runs the configured DN-resolution mode around the
// authenticating bind: pattern only, lookup before the bind under the
// configured lookup identity, or lookup after the bind under the freshly
// authenticated session.
func (b *Backend) resolveAndBind(session *ldap.Session, user *AuthUser, password string) error {
	switch {
	case !b.cfg.DNLookupEnabled():
		user.DN = b.patternDN(user.Username)
		return session.Do(ldap.Simple(user.DN, password), func(ldap.Conn) error {
			return nil
		})

	case b.cfg.LookupBind().Mode == config.BindAsUser:
		user.DN = b.patternDN(user.Username)
		return session.Do(ldap.Simple(user.DN, password), func(conn ldap.Conn) error {
			resolved, err := b.lookupDN(conn, user.Username)
			if err != nil {
				return err
			}
			if resolved != "" {
				user.DN = resolved
			}
			return nil
		})

	default:
		var resolved string
		err := session.Do(b.lookupCred(nil), func(conn ldap.Conn) error {
			var err error
			resolved, err = b.lookupDN(conn, user.Username)
			return err
		})
		if err != nil {
			return err
		}
		if resolved == "" {
			resolved = b.patternDN(user.Username)
		}
		user.DN = resolved
		return session.Do(ldap.Simple(user.DN, password), func(ldap.Conn) error {
			return nil
		})
	}
}

// resolveOnly resolves the DN for the passwordless flow. A lookup bind of
// as_user cannot run without the user's password, so the pattern stands in.
func (b *Backend) resolveOnly(session *ldap.Session, user *AuthUser) error {
	user.DN = b.patternDN(user.Username)
	if !b.cfg.DNLookupEnabled() || b.cfg.LookupBind().Mode == config.BindAsUser {
		return nil
	}
	var resolved string
	err := session.Do(b.lookupCred(nil), func(conn ldap.Conn) error {
		var err error
		resolved, err = b.lookupDN(conn, user.Username)
		return err
	})
	if err != nil {
		return err
	}
	if resolved != "" {
		user.DN = resolved
	}
	return nil
}

// runTagQueries evaluates every configured tag query under the other_bind
// credential. A tag is granted only on exactly boolean true; any evaluator
// error fails the login.
func (b *Backend) runTagQueries(session *ldap.Session, user *AuthUser, vhost string) error {
	if len(b.queries.TagQueries) == 0 {
		return nil
	}
	return session.Do(b.otherCred(user), func(conn ldap.Conn) error {
		eval := b.evaluator(conn)
		vars := userVars(user)
		if vhost != "" {
			vars["vhost"] = vhost
		}
		for _, tq := range b.queries.TagQueries {
			v := eval.Eval(tq.Query, vars)
			if v.IsError() {
				return fmt.Errorf("tag query %q: %w", tq.Tag, v.Err())
			}
			if v.IsTrue() {
				user.Tags = append(user.Tags, tq.Tag)
			}
		}
		return nil
	})
}

func (b *Backend) patternDN(username string) string {
	return query.Fill(b.cfg.UserDNPattern, query.Vars{"username": username})
}

// lookupDN searches for the user's DN under the lookup base. No entries is
// not an error; the caller decides the fallback.
func (b *Backend) lookupDN(conn ldap.Conn, username string) (string, error) {
	req := goldap.NewSearchRequest(
		b.cfg.DNLookupBase,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(%s=%s)", b.cfg.DNLookupAttribute, goldap.EscapeFilter(username)),
		[]string{b.cfg.DNLookupAttribute},
		nil,
	)
	result, err := conn.Search(req)
	if err != nil {
		return "", err
	}
	switch len(result.Entries) {
	case 0:
		b.log.Warn("DN lookup found no entries", zap.String("username", username))
		return "", nil
	case 1:
	default:
		b.log.Warn("DN lookup found multiple entries, using the first",
			zap.String("username", username), zap.Int("entries", len(result.Entries)))
	}
	return result.Entries[0].DN, nil
}
