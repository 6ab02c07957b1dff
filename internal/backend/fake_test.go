package backend

import (
	"errors"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
)

// fakeDir is an in-memory directory whose connections implement ldap.Conn.
// Entries keep insertion order; creds maps a DN to the password a simple
// bind must present.
type fakeDir struct {
	entries []*dirEntry
	creds   map[string]string

	// dials counts connections handed out; binds records bound DNs in order.
	dials int
	binds []string

	// failFirstConnSearches makes every search on the first dialed
	// connection fail with a closed-transport error, for recovery tests.
	failFirstConnSearches bool
}

type dirEntry struct {
	dn    string
	attrs map[string][]string
}

func newFakeDir() *fakeDir {
	return &fakeDir{creds: map[string]string{}}
}

func (d *fakeDir) add(dn string, attrs map[string][]string) *fakeDir {
	if attrs == nil {
		attrs = map[string][]string{}
	}
	d.entries = append(d.entries, &dirEntry{dn: dn, attrs: attrs})
	return d
}

func (d *fakeDir) allow(dn, password string) *fakeDir {
	d.creds[dn] = password
	return d
}

// dial is the DialFunc tests hand to the connection cache.
func (d *fakeDir) dial(ldap.Options) (ldap.Conn, error) {
	d.dials++
	c := &dirConn{dir: d}
	if d.failFirstConnSearches && d.dials == 1 {
		c.searchErr = goldap.NewError(goldap.ErrorNetwork, errors.New("connection reset by peer"))
	}
	return c, nil
}

type dirConn struct {
	dir       *fakeDir
	searchErr error
	closed    bool
}

func (c *dirConn) Bind(dn, password string) error {
	c.dir.binds = append(c.dir.binds, dn)
	if want, ok := c.dir.creds[dn]; ok && want == password {
		return nil
	}
	return goldap.NewError(goldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (c *dirConn) UnauthenticatedBind(string) error { return nil }

func (c *dirConn) Search(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
	if c.searchErr != nil {
		return nil, c.searchErr
	}

	attr, value, ok := parseEqFilter(req.Filter)
	if !ok {
		return nil, errors.New("fake directory: unsupported filter " + req.Filter)
	}

	var entries []*goldap.Entry
	if req.Scope == goldap.ScopeBaseObject {
		e := c.dir.find(req.BaseDN)
		if e == nil {
			return nil, goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such object"))
		}
		if e.matches(attr, value) {
			entries = append(entries, e.toEntry())
		}
	} else {
		for _, e := range c.dir.entries {
			if req.BaseDN != "" && !strings.HasSuffix(e.dn, req.BaseDN) {
				continue
			}
			if e.matches(attr, value) {
				entries = append(entries, e.toEntry())
			}
		}
	}
	return &goldap.SearchResult{Entries: entries}, nil
}

func (c *dirConn) IsClosing() bool { return false }

func (c *dirConn) Close() error {
	c.closed = true
	return nil
}

func (d *fakeDir) find(dn string) *dirEntry {
	for _, e := range d.entries {
		if e.dn == dn {
			return e
		}
	}
	return nil
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

func (e *dirEntry) toEntry() *goldap.Entry {
	out := &goldap.Entry{DN: e.dn}
	for name, values := range e.attrs {
		out.Attributes = append(out.Attributes, goldap.NewEntryAttribute(name, values))
	}
	return out
}

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
