package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/pool"
	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/query"
)

func TestSanitize(t *testing.T) {
	cfg := Config{
		PoolSize:     -1,
		Port:         70000,
		Timeout:      -time.Second,
		IdleTimeout:  -time.Minute,
		DNLookupBase: "ou=People,dc=x",
	}
	cfg.Sanitize()

	assert.Equal(t, pool.DefaultSize, cfg.PoolSize)
	assert.Equal(t, 389, cfg.Port)
	assert.Zero(t, cfg.Timeout)
	assert.Zero(t, cfg.IdleTimeout)
	assert.Equal(t, "ou=People,dc=x", cfg.GroupLookupBase,
		"the group base falls back to the DN lookup base")
}

func TestSanitizeKeepsAnExplicitGroupBase(t *testing.T) {
	cfg := Config{
		DNLookupBase:    "ou=People,dc=x",
		GroupLookupBase: "ou=Groups,dc=x",
	}
	cfg.Sanitize()
	assert.Equal(t, "ou=Groups,dc=x", cfg.GroupLookupBase)
}

func TestDNLookupEnabled(t *testing.T) {
	assert.False(t, Config{DNLookupAttribute: "none"}.DNLookupEnabled())
	assert.False(t, Config{DNLookupAttribute: ""}.DNLookupEnabled())
	assert.True(t, Config{DNLookupAttribute: "uid"}.DNLookupEnabled())
}

func TestDecodeBind(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		password string
		want     Bind
	}{
		{"as_user", "as_user", "", Bind{Mode: BindAsUser}},
		{"empty defaults to as_user", "", "", Bind{Mode: BindAsUser}},
		{"anon", "anon", "", Bind{Mode: BindAnon}},
		{"anonymous", "anonymous", "", Bind{Mode: BindAnon}},
		{"service dn", "cn=svc,dc=x", "svcpw", Bind{Mode: BindSimple, DN: "cn=svc,dc=x", Password: "svcpw"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{OtherBind: tt.raw, OtherBindPassword: tt.password}
			assert.Equal(t, tt.want, cfg.OtherBindIdentity())
		})
	}
}

func TestLogMode(t *testing.T) {
	assert.Equal(t, ldap.LogOff, Config{Log: "false"}.LogMode())
	assert.Equal(t, ldap.LogNetwork, Config{Log: "network"}.LogMode())
}

func TestLDAPOptions(t *testing.T) {
	cfg := Config{
		Servers:     []string{"ldap1.example.com", "ldap2.example.com:10389"},
		Port:        389,
		UseStartTLS: true,
		Timeout:     5 * time.Second,
		IdleTimeout: time.Minute,
	}
	opts, err := cfg.LDAPOptions()
	require.NoError(t, err)

	assert.Equal(t, cfg.Servers, opts.Servers)
	assert.True(t, opts.UseStartTLS)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, time.Minute, opts.IdleTimeout)
	assert.NotNil(t, opts.TLS)
}

func TestLDAPOptionsWithoutTLS(t *testing.T) {
	opts, err := Config{Servers: []string{"ldap.example.com"}}.LDAPOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.TLS)
}

func TestLoadQueriesDefaults(t *testing.T) {
	queries, err := LoadQueries("")
	require.NoError(t, err)
	assert.Equal(t, query.Constant{Value: true}, queries.VhostAccess)
	assert.Equal(t, query.Constant{Value: true}, queries.ResourceAccess)
	assert.Equal(t, query.Constant{Value: true}, queries.TopicAccess)
	assert.Empty(t, queries.TagQueries)
}

func writeQueries(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadQueries(t *testing.T) {
	path := writeQueries(t, `
vhost_access_query:
  in_group_nested:
    dn: cn=${vhost}-access,ou=Groups,dc=x
resource_access_query:
  for:
    - key: permission
      value: read
      then: true
    - key: permission
      value: write
      then:
        in_group: cn=writers,ou=Groups,dc=x
topic_access_query:
  match:
    - ${routing_key}
    - ^${username}-.*
tag_queries:
  - tag: administrator
    query:
      in_group: cn=admins,ou=Groups,dc=x
  - tag: monitoring
    query: true
`)

	queries, err := LoadQueries(path)
	require.NoError(t, err)

	assert.Equal(t, query.InGroupNested{
		DNPattern: "cn=${vhost}-access,ou=Groups,dc=x",
	}, queries.VhostAccess)
	assert.Equal(t, query.For{Clauses: []query.ForClause{
		{Key: "permission", Value: "read", Then: query.Constant{Value: true}},
		{Key: "permission", Value: "write", Then: query.InGroup{DNPattern: "cn=writers,ou=Groups,dc=x"}},
	}}, queries.ResourceAccess)
	assert.Equal(t, query.Match{
		Subject: query.Template{Pattern: "${routing_key}"},
		Pattern: query.Template{Pattern: "^${username}-.*"},
	}, queries.TopicAccess)

	require.Len(t, queries.TagQueries, 2)
	assert.Equal(t, "administrator", queries.TagQueries[0].Tag)
	assert.Equal(t, query.InGroup{DNPattern: "cn=admins,ou=Groups,dc=x"}, queries.TagQueries[0].Query)
	assert.Equal(t, "monitoring", queries.TagQueries[1].Tag)
}

func TestLoadQueriesRejectsUnknownTopLevelKeys(t *testing.T) {
	path := writeQueries(t, "vhost_query: true\n")
	_, err := LoadQueries(path)
	assert.Error(t, err)
}

func TestLoadQueriesRejectsUnknownShapes(t *testing.T) {
	path := writeQueries(t, "vhost_access_query:\n  in_groop: cn=g,dc=x\n")
	_, err := LoadQueries(path)
	assert.Error(t, err)
}

func TestLoadQueriesRejectsMissingTag(t *testing.T) {
	path := writeQueries(t, "tag_queries:\n  - query: true\n")
	_, err := LoadQueries(path)
	assert.Error(t, err)
}
