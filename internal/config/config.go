// Package config loads the backend configuration: connection and bind
// settings from the environment, and the access-query definitions from a
// YAML file. Configuration is read once at startup and treated as immutable
// for the lifetime of the process.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/pool"
)

// BindMode says how an identity for a directory operation is chosen.
type BindMode string

const (
	// BindAnon binds anonymously.
	BindAnon BindMode = "anon"
	// BindAsUser rebinds with the authenticated principal's own DN and
	// password.
	BindAsUser BindMode = "as_user"
	// BindSimple binds with a dedicated service identity.
	BindSimple BindMode = "simple"
)

// Bind is a configured bind identity.
type Bind struct {
	Mode     BindMode
	DN       string
	Password string
}

// Config is the backend's environment-driven configuration surface.
type Config struct {
	AppPort     string `env:"APP_PORT" envDefault:"8080"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	// Servers is the ordered list of LDAP endpoints, host or host:port.
	// There is no default; an empty list fails every operation with
	// no_ldap_servers_defined.
	Servers []string `env:"LDAP_SERVERS" envSeparator:","`
	Port    int      `env:"LDAP_PORT" envDefault:"389"`

	// UserDNPattern synthesizes a DN directly from the username.
	UserDNPattern string `env:"LDAP_USER_DN_PATTERN" envDefault:"${username}"`

	// DNLookupAttribute enables DN resolution by search; "none" disables.
	DNLookupAttribute string `env:"LDAP_DN_LOOKUP_ATTRIBUTE" envDefault:"none"`
	DNLookupBase      string `env:"LDAP_DN_LOOKUP_BASE"`

	// GroupLookupBase is the base for nested-group searches; empty falls
	// back to DNLookupBase.
	GroupLookupBase string `env:"LDAP_GROUP_LOOKUP_BASE"`

	// DNLookupBind chooses the identity for the prebind lookup:
	// "as_user", "anon", or a service DN paired with its password.
	DNLookupBind         string `env:"LDAP_DN_LOOKUP_BIND" envDefault:"as_user"`
	DNLookupBindPassword string `env:"LDAP_DN_LOOKUP_BIND_PASSWORD"`

	// OtherBind chooses the identity for non-login directory operations,
	// same encoding as DNLookupBind.
	OtherBind         string `env:"LDAP_OTHER_BIND" envDefault:"as_user"`
	OtherBindPassword string `env:"LDAP_OTHER_BIND_PASSWORD"`

	// AnonAuth permits anonymous connections for the open call.
	AnonAuth bool `env:"LDAP_ANON_AUTH" envDefault:"false"`

	UseSSL                bool   `env:"LDAP_USE_SSL" envDefault:"false"`
	UseStartTLS           bool   `env:"LDAP_USE_STARTTLS" envDefault:"false"`
	SSLCAFile             string `env:"LDAP_SSL_CA_FILE"`
	SSLServerName         string `env:"LDAP_SSL_SERVER_NAME"`
	SSLInsecureSkipVerify bool   `env:"LDAP_SSL_INSECURE_SKIP_VERIFY" envDefault:"false"`

	// Timeout bounds each directory operation; zero means no deadline.
	Timeout time.Duration `env:"LDAP_TIMEOUT" envDefault:"0"`
	// IdleTimeout evicts cached connections; zero means never.
	IdleTimeout time.Duration `env:"LDAP_IDLE_TIMEOUT" envDefault:"0"`

	PoolSize int `env:"LDAP_POOL_SIZE" envDefault:"64"`

	// Log is one of false|true|network|network_unsafe.
	Log string `env:"LDAP_LOG" envDefault:"false"`

	// QueriesFile points at the YAML access-query definitions. Empty
	// leaves every check at its constant-true default with no tags.
	QueriesFile string `env:"LDAP_QUERIES_FILE"`
}

// Load reads configuration from the environment and applies guardrails.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize clamps values loaded from the environment into usable ranges and
// resolves fallbacks.
func (c *Config) Sanitize() {
	if c.PoolSize <= 0 {
		c.PoolSize = pool.DefaultSize
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 389
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.GroupLookupBase == "" {
		c.GroupLookupBase = c.DNLookupBase
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.AppPort)
}

// DNLookupEnabled reports whether DN resolution by search is configured.
func (c Config) DNLookupEnabled() bool {
	return c.DNLookupAttribute != "" && c.DNLookupAttribute != "none"
}

// LookupBind decodes the dn_lookup_bind setting.
func (c Config) LookupBind() Bind {
	return decodeBind(c.DNLookupBind, c.DNLookupBindPassword)
}

// OtherBindIdentity decodes the other_bind setting.
func (c Config) OtherBindIdentity() Bind {
	return decodeBind(c.OtherBind, c.OtherBindPassword)
}

func decodeBind(raw, password string) Bind {
	switch raw {
	case "", string(BindAsUser):
		return Bind{Mode: BindAsUser}
	case string(BindAnon), "anonymous":
		return Bind{Mode: BindAnon}
	default:
		return Bind{Mode: BindSimple, DN: raw, Password: password}
	}
}

// LogMode decodes the log setting.
func (c Config) LogMode() ldap.LogMode {
	return ldap.ParseLogMode(c.Log)
}

// LDAPOptions assembles the open options for the session layer.
func (c Config) LDAPOptions() (ldap.Options, error) {
	tlsConfig, err := c.tlsConfig()
	if err != nil {
		return ldap.Options{}, err
	}
	return ldap.Options{
		Servers:     c.Servers,
		Port:        c.Port,
		UseSSL:      c.UseSSL,
		UseStartTLS: c.UseStartTLS,
		TLS:         tlsConfig,
		Timeout:     c.Timeout,
		IdleTimeout: c.IdleTimeout,
	}, nil
}

// tlsConfig applies the ssl options verbatim, fixing up only the CA pool
// and server name the way the broker would.
func (c Config) tlsConfig() (*tls.Config, error) {
	if !c.UseSSL && !c.UseStartTLS {
		return nil, nil
	}
	tlsConfig := &tls.Config{
		ServerName:         c.SSLServerName,
		InsecureSkipVerify: c.SSLInsecureSkipVerify,
	}
	if c.SSLCAFile != "" {
		pem, err := os.ReadFile(c.SSLCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.SSLCAFile)
		}
		tlsConfig.RootCAs = roots
	}
	return tlsConfig, nil
}
