package query

import (
	"errors"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// fakeDir is an in-memory directory implementing Searcher. Entries keep
// insertion order so multi-entry results are deterministic.
type fakeDir struct {
	entries []*dirEntry
	// err fails every search when set.
	err error
	// searches records the filters seen, in order.
	searches []string
}

type dirEntry struct {
	dn    string
	attrs map[string][]string
}

func newFakeDir() *fakeDir {
	return &fakeDir{}
}

func (d *fakeDir) add(dn string, attrs map[string][]string) *fakeDir {
	if attrs == nil {
		attrs = map[string][]string{}
	}
	d.entries = append(d.entries, &dirEntry{dn: dn, attrs: attrs})
	return d
}

func (d *fakeDir) find(dn string) *dirEntry {
	for _, e := range d.entries {
		if e.dn == dn {
			return e
		}
	}
	return nil
}

func (d *fakeDir) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d.searches = append(d.searches, req.Filter)
	if d.err != nil {
		return nil, d.err
	}

	attr, value, ok := parseEqFilter(req.Filter)
	if !ok {
		return nil, errors.New("fake directory: unsupported filter " + req.Filter)
	}

	var entries []*ldap.Entry
	if req.Scope == ldap.ScopeBaseObject {
		e := d.find(req.BaseDN)
		if e == nil {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		}
		if e.matches(attr, value) {
			entries = append(entries, e.toEntry())
		}
	} else {
		for _, e := range d.entries {
			if e.matches(attr, value) {
				entries = append(entries, e.toEntry())
			}
		}
	}
	return &ldap.SearchResult{Entries: entries}, nil
}

func (e *dirEntry) matches(attr, value string) bool {
	if attr == "objectClass" && value == "*" {
		return true
	}
	values, ok := e.attrs[attr]
	if value == "*" {
		return ok
	}
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func (e *dirEntry) toEntry() *ldap.Entry {
	out := &ldap.Entry{DN: e.dn}
	for name, values := range e.attrs {
		out.Attributes = append(out.Attributes, ldap.NewEntryAttribute(name, values))
	}
	return out
}

// parseEqFilter understands the "(attr=value)" filters the evaluator
// builds, with value "*" as a presence test.
func parseEqFilter(filter string) (attr, value string, ok bool) {
	if !strings.HasPrefix(filter, "(") || !strings.HasSuffix(filter, ")") {
		return "", "", false
	}
	inner := filter[1 : len(filter)-1]
	eq := strings.Index(inner, "=")
	if eq < 0 {
		return "", "", false
	}
	return inner[:eq], inner[eq+1:], true
}
