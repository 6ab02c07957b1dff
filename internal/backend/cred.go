package backend

import (
	"errors"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/config"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
)

// errNoPassword marks an as_user bind that cannot run: no principal, a
// principal whose DN was never resolved, or a flow that never carried a
// password, such as external authentication.
var errNoPassword = errors.New("as_user bind configured but the principal's DN or password is unavailable")

// errAnonDisabled marks an anonymous bind requested while anon_auth is off.
var errAnonDisabled = errors.New("anonymous bind configured but anon_auth is disabled")

// otherCred chooses the bind identity for non-login directory operations
// per the other_bind setting: anonymous, the principal's own credentials,
// or a dedicated service identity.
func (b *Backend) otherCred(user *AuthUser) ldap.Credential {
	return b.credFor(b.cfg.OtherBindIdentity(), user)
}

// lookupCred chooses the bind identity for the prebind DN lookup.
func (b *Backend) lookupCred(user *AuthUser) ldap.Credential {
	return b.credFor(b.cfg.LookupBind(), user)
}

func (b *Backend) credFor(bind config.Bind, user *AuthUser) ldap.Credential {
	switch bind.Mode {
	case config.BindAnon:
		if !b.cfg.AnonAuth {
			return ldap.BadCredential(errAnonDisabled)
		}
		return ldap.Anon()
	case config.BindAsUser:
		if user == nil || user.DN == UnknownDN || !user.hasPassword {
			return ldap.BadCredential(errNoPassword)
		}
		return ldap.Simple(user.DN, user.password)
	default:
		return ldap.Simple(bind.DN, bind.Password)
	}
}
