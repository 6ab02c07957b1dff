package query

import (
	"fmt"
	"regexp"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// Searcher is the slice of an LDAP connection the evaluator needs. The
// session layer's connections satisfy it, as do test fakes.
type Searcher interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Evaluator interprets a query tree against variable bindings and an open
// directory connection. Directory faults at the leaves surface as error
// values, which the boolean combinators swallow as false: a transient
// directory error can never flip a deny into an allow.
type Evaluator struct {
	conn      Searcher
	groupBase string
	log       *zap.Logger
	scrubDN   func(string) string
}

// NewEvaluator builds an evaluator over conn. groupBase is the base DN for
// nested-group searches (callers resolve the group/dn-lookup fallback before
// constructing). scrub is applied to every DN before it reaches a log line;
// nil means identity.
func NewEvaluator(conn Searcher, groupBase string, log *zap.Logger, scrub func(string) string) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	if scrub == nil {
		scrub = func(dn string) string { return dn }
	}
	return &Evaluator{conn: conn, groupBase: groupBase, log: log, scrubDN: scrub}
}

// Eval evaluates q against vars. Child queries run left to right with
// short-circuiting, so the sequence of directory searches is deterministic.
func (e *Evaluator) Eval(q Query, vars Vars) Value {
	switch q := q.(type) {
	case Constant:
		return Bool(q.Value)

	case Template:
		return String(Fill(q.Pattern, vars))

	case For:
		for _, clause := range q.Clauses {
			binding, ok := vars[clause.Key]
			if !ok {
				return Error(fmt.Errorf("variable %q is not bound", clause.Key))
			}
			if binding == clause.Value {
				return e.Eval(clause.Then, vars)
			}
		}
		return Error(fmt.Errorf("no for clause matched the bound variables"))

	case Not:
		return Bool(!e.Eval(q.Q, vars).IsTrue())

	case And:
		for _, sub := range q.Qs {
			if !e.Eval(sub, vars).IsTrue() {
				return Bool(false)
			}
		}
		return Bool(true)

	case Or:
		for _, sub := range q.Qs {
			if e.Eval(sub, vars).IsTrue() {
				return Bool(true)
			}
		}
		return Bool(false)

	case Equals:
		return e.equals(q, vars)

	case Match:
		return e.match(q, vars)

	case Exists:
		return e.exists(q, vars)

	case InGroup:
		return e.inGroup(q, vars)

	case InGroupNested:
		return e.inGroupNested(q, vars)

	case Attribute:
		return e.attribute(q, vars)
	}

	return Error(fmt.Errorf("unrecognised query %T", q))
}

// equals compares two string-valued sub-queries. Two scalars compare
// byte-exact; once either side is multi-valued the comparison becomes
// membership: a scalar must appear in the other side's list, and two lists
// are equal when they intersect. Errors on either side yield false.
func (e *Evaluator) equals(q Equals, vars Vars) Value {
	a := e.Eval(q.A, vars)
	b := e.Eval(q.B, vars)
	if a.IsError() || b.IsError() {
		return Bool(false)
	}

	if as, ok := a.Scalar(); ok {
		if bs, ok := b.Scalar(); ok {
			return Bool(as == bs)
		}
		return Bool(containsString(b.Strings(), as))
	}
	if bs, ok := b.Scalar(); ok {
		return Bool(containsString(a.Strings(), bs))
	}
	for _, av := range a.Strings() {
		if containsString(b.Strings(), av) {
			return Bool(true)
		}
	}
	return Bool(false)
}

// match runs Subject against Pattern. A no-match retries with the operands
// swapped when both sides carry more than one value, so rules like "any of
// the user's memberOf matches any of these patterns" read the same in either
// operand order. Errors on either side yield false.
func (e *Evaluator) match(q Match, vars Vars) Value {
	subject := e.Eval(q.Subject, vars)
	pattern := e.Eval(q.Pattern, vars)
	if subject.IsError() || pattern.IsError() {
		return Bool(false)
	}

	subjects := subject.Strings()
	patterns := pattern.Strings()
	if matchAny(subjects, patterns) {
		return Bool(true)
	}
	if len(subjects) > 1 && len(patterns) > 1 && matchAny(patterns, subjects) {
		return Bool(true)
	}
	return Bool(false)
}

func matchAny(values, patterns []string) bool {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		for _, v := range values {
			if re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

// exists runs a base-scope presence search at the filled DN.
func (e *Evaluator) exists(q Exists, vars Vars) Value {
	dn := Fill(q.DNPattern, vars)
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=*)",
		[]string{"objectClass"},
		nil,
	)
	result, err := e.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return Bool(false)
		}
		e.log.Warn("exists search failed", zap.String("dn", e.scrubDN(dn)), zap.Error(err))
		return Error(err)
	}
	return Bool(len(result.Entries) > 0)
}

// inGroup asks the directory whether the group at the filled DN lists the
// principal's DN. Containment in a multi-valued membership attribute is the
// server's job: the check is a single base-scope search with an equality
// filter, never a client-side attribute load.
func (e *Evaluator) inGroup(q InGroup, vars Vars) Value {
	userDN := vars["user_dn"]
	if userDN == "" {
		return Error(fmt.Errorf("group membership requires a resolved user DN"))
	}
	attr := q.Attribute
	if attr == "" {
		attr = DefaultGroupAttribute
	}

	dn := Fill(q.DNPattern, vars)
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(%s=%s)", attr, ldap.EscapeFilter(userDN)),
		[]string{attr},
		nil,
	)
	result, err := e.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return Bool(false)
		}
		e.log.Warn("group search failed", zap.String("dn", e.scrubDN(dn)), zap.Error(err))
		return Error(err)
	}
	return Bool(len(result.Entries) > 0)
}

// attribute loads the named attribute from the object at the filled DN and
// canonicalizes: zero values is not-found, one is a scalar, more is a list
// in directory order.
func (e *Evaluator) attribute(q Attribute, vars Vars) Value {
	dn := Fill(q.DNPattern, vars)
	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(%s=*)", q.Name),
		[]string{q.Name},
		nil,
	)
	result, err := e.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return Error(ErrNotFound)
		}
		e.log.Warn("attribute search failed", zap.String("dn", e.scrubDN(dn)), zap.Error(err))
		return Error(err)
	}
	if len(result.Entries) == 0 {
		return Error(ErrNotFound)
	}
	return Values(result.Entries[0].GetAttributeValues(q.Name))
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
