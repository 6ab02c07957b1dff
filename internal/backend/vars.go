package backend

import "github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/query"

// The fixed well-known variable names. Topic context keys that collide with
// these are silently dropped.
var fixedVars = map[string]bool{
	"username":   true,
	"user_dn":    true,
	"vhost":      true,
	"resource":   true,
	"name":       true,
	"permission": true,
}

func userVars(user *AuthUser) query.Vars {
	vars := query.Vars{"username": user.Username}
	if user.DN != UnknownDN {
		vars["user_dn"] = user.DN
	}
	return vars
}

func vhostVars(user *AuthUser, vhost string) query.Vars {
	vars := userVars(user)
	vars["vhost"] = vhost
	return vars
}

func resourceVars(user *AuthUser, resource Resource, permission string) query.Vars {
	vars := vhostVars(user, resource.VirtualHost)
	vars["resource"] = resource.Kind
	vars["name"] = resource.Name
	vars["permission"] = permission
	return vars
}

func topicVars(user *AuthUser, resource Resource, permission string, ctx Context) query.Vars {
	vars := resourceVars(user, resource, permission)
	for k, v := range ctx {
		if fixedVars[k] {
			continue
		}
		vars[k] = v
	}
	return vars
}
