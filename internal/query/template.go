package query

import "regexp"

// Vars is the variable map queries are evaluated against. Fixed well-known
// names are "username", "user_dn", "vhost", "resource", "name" and
// "permission"; topic checks add their context keys on top.
type Vars map[string]string

var placeholderRe = regexp.MustCompile(`\$\{([^}]*)\}`)

// Fill substitutes ${name} placeholders in pattern from vars. Unknown
// placeholders fill as empty. The filler knows nothing about LDAP syntax;
// predicates that build filters escape the result themselves.
func Fill(pattern string, vars Vars) string {
	return placeholderRe.ReplaceAllStringFunc(pattern, func(m string) string {
		name := m[2 : len(m)-1]
		return vars[name]
	})
}
