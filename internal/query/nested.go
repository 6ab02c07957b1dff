package query

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// inGroupNested walks membership edges upward from the principal's DN until
// it reaches the target group or runs out of parents. The visited set grows
// strictly, so a membership cycle terminates in time linear in the number of
// distinct DNs reachable from the user. A single failed search contributes
// an empty successor set rather than an error.
func (e *Evaluator) inGroupNested(q InGroupNested, vars Vars) Value {
	userDN := vars["user_dn"]
	if userDN == "" {
		return Error(fmt.Errorf("nested group membership requires a resolved user DN"))
	}
	attr := q.Attribute
	if attr == "" {
		attr = DefaultGroupAttribute
	}

	target := Fill(q.DNPattern, vars)
	walk := &nestedWalk{
		eval:    e,
		target:  target,
		attr:    attr,
		scope:   ldapScope(q.Scope),
		visited: map[string]bool{userDN: true},
	}
	return Bool(walk.expand(userDN))
}

type nestedWalk struct {
	eval    *Evaluator
	target  string
	attr    string
	scope   int
	visited map[string]bool
}

// expand searches for groups whose membership attribute holds current and
// recurses into each unseen parent.
func (w *nestedWalk) expand(current string) bool {
	e := w.eval
	req := ldap.NewSearchRequest(
		e.groupBase,
		w.scope,
		ldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(%s=%s)", w.attr, ldap.EscapeFilter(current)),
		[]string{"objectClass"},
		nil,
	)
	result, err := e.conn.Search(req)
	if err != nil {
		e.log.Debug("nested group search failed",
			zap.String("member", e.scrubDN(current)), zap.Error(err))
		return false
	}

	for _, entry := range result.Entries {
		if entry.DN == w.target {
			return true
		}
		if w.visited[entry.DN] {
			e.log.Warn("cycle in nested group membership",
				zap.String("group", e.scrubDN(entry.DN)))
			continue
		}
		w.visited[entry.DN] = true
		if w.expand(entry.DN) {
			return true
		}
	}
	return false
}

func ldapScope(s Scope) int {
	if s == ScopeOneLevel {
		return ldap.ScopeSingleLevel
	}
	return ldap.ScopeWholeSubtree
}
