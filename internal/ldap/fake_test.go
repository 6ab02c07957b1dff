package ldap

import (
	goldap "github.com/go-ldap/ldap/v3"
)

// fakeConn is a scriptable Conn for cache and session tests.
type fakeConn struct {
	id int

	// binds records every simple bind, in order.
	binds []bindRecord
	// bindErr fails the next Bind call when set.
	bindErr error

	// searchErrs is consumed one per Search call; nil entries succeed.
	searchErrs []error
	searches   int

	closing bool
	closed  bool
}

type bindRecord struct {
	dn       string
	password string
}

func (c *fakeConn) Bind(dn, password string) error {
	c.binds = append(c.binds, bindRecord{dn: dn, password: password})
	return c.bindErr
}

func (c *fakeConn) UnauthenticatedBind(string) error { return nil }

func (c *fakeConn) Search(*goldap.SearchRequest) (*goldap.SearchResult, error) {
	c.searches++
	if len(c.searchErrs) > 0 {
		err := c.searchErrs[0]
		c.searchErrs = c.searchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &goldap.SearchResult{}, nil
}

func (c *fakeConn) IsClosing() bool { return c.closing }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeDialer hands out fresh fakeConns and counts dials.
type fakeDialer struct {
	dials   int
	dialErr error
	conns   []*fakeConn
	// prepare customizes each new connection before it is handed out.
	prepare func(*fakeConn)
}

func (d *fakeDialer) dial(Options) (Conn, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.dials++
	conn := &fakeConn{id: d.dials}
	if d.prepare != nil {
		d.prepare(conn)
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}
