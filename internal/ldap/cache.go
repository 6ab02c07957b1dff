package ldap

import (
	"time"

	"go.uber.org/zap"
)

// ConnCache owns the live connections of a single worker, keyed on
// (anonymous, servers, open options). Workers are serial executors, so the
// map needs no lock; the pool routes sweeps onto the owning worker instead.
type ConnCache struct {
	dial DialFunc
	opts Options
	log  *zap.Logger
	now  func() time.Time

	conns map[Key]*cachedConn
}

type cachedConn struct {
	conn     Conn
	lastUsed time.Time
}

// NewConnCache builds a cache that dials with dial under opts.
func NewConnCache(dial DialFunc, opts Options, log *zap.Logger) *ConnCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnCache{
		dial:  dial,
		opts:  opts,
		log:   log,
		now:   time.Now,
		conns: make(map[Key]*cachedConn),
	}
}

// Acquire returns the live connection for the key, reusing a cached one and
// resetting its idle clock, or dialing a fresh one. A cached connection
// found expired or already closing is torn down first.
func (c *ConnCache) Acquire(anonymous bool) (Conn, error) {
	key := c.opts.Key(anonymous)
	if entry, ok := c.conns[key]; ok {
		if c.expired(entry) || entry.conn.IsClosing() {
			c.drop(key, entry)
		} else {
			entry.lastUsed = c.now()
			return entry.conn, nil
		}
	}

	conn, err := c.dial(c.opts)
	if err != nil {
		return nil, err
	}
	c.conns[key] = &cachedConn{conn: conn, lastUsed: c.now()}
	c.log.Debug("LDAP connection opened", zap.Bool("anonymous", anonymous))
	return conn, nil
}

// Purge forcibly tears down the connection for the key without a graceful
// unbind: the caller observed a closed transport, so an unbind would itself
// fail. The close error is discarded for the same reason.
func (c *ConnCache) Purge(anonymous bool) {
	key := c.opts.Key(anonymous)
	if entry, ok := c.conns[key]; ok {
		_ = entry.conn.Close()
		delete(c.conns, key)
		c.log.Debug("LDAP connection purged", zap.Bool("anonymous", anonymous))
	}
}

// Sweep closes and evicts every connection whose idle timeout has fired.
// The pool submits sweeps to the owning worker on a timer.
func (c *ConnCache) Sweep() {
	for key, entry := range c.conns {
		if c.expired(entry) {
			c.drop(key, entry)
			c.log.Debug("idle LDAP connection evicted", zap.Bool("anonymous", key.Anonymous))
		}
	}
}

// Close tears down every cached connection.
func (c *ConnCache) Close() {
	for key, entry := range c.conns {
		c.drop(key, entry)
	}
}

func (c *ConnCache) expired(entry *cachedConn) bool {
	return c.opts.IdleTimeout > 0 && c.now().Sub(entry.lastUsed) >= c.opts.IdleTimeout
}

func (c *ConnCache) drop(key Key, entry *cachedConn) {
	_ = entry.conn.Close()
	delete(c.conns, key)
}
