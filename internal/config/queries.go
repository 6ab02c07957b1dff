package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/query"
)

// TagQuery pairs a capability tag with the query that grants it.
type TagQuery struct {
	Tag   string
	Query query.Query
}

// Queries holds the parsed access-query definitions. Every check defaults
// to constant true; the tag list defaults to empty.
type Queries struct {
	VhostAccess    query.Query
	ResourceAccess query.Query
	TopicAccess    query.Query
	TagQueries     []TagQuery
}

// DefaultQueries returns the defaults used when no definitions file is
// configured.
func DefaultQueries() Queries {
	return Queries{
		VhostAccess:    query.Constant{Value: true},
		ResourceAccess: query.Constant{Value: true},
		TopicAccess:    query.Constant{Value: true},
	}
}

// queriesFile mirrors the YAML shape of the definitions file. Tag queries
// are a sequence so their configured order is preserved.
type queriesFile struct {
	VhostAccessQuery    any `yaml:"vhost_access_query"`
	ResourceAccessQuery any `yaml:"resource_access_query"`
	TopicAccessQuery    any `yaml:"topic_access_query"`
	TagQueries          []struct {
		Tag   string `yaml:"tag"`
		Query any    `yaml:"query"`
	} `yaml:"tag_queries"`
}

// LoadQueries parses the YAML definitions at path. Unknown top-level keys
// and unknown query shapes are rejected here, before the backend starts.
func LoadQueries(path string) (Queries, error) {
	if path == "" {
		return DefaultQueries(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Queries{}, fmt.Errorf("read queries file: %w", err)
	}

	var file queriesFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Queries{}, fmt.Errorf("decode %s: %w", path, err)
	}

	queries := DefaultQueries()
	if file.VhostAccessQuery != nil {
		if queries.VhostAccess, err = query.Parse(file.VhostAccessQuery); err != nil {
			return Queries{}, fmt.Errorf("vhost_access_query: %w", err)
		}
	}
	if file.ResourceAccessQuery != nil {
		if queries.ResourceAccess, err = query.Parse(file.ResourceAccessQuery); err != nil {
			return Queries{}, fmt.Errorf("resource_access_query: %w", err)
		}
	}
	if file.TopicAccessQuery != nil {
		if queries.TopicAccess, err = query.Parse(file.TopicAccessQuery); err != nil {
			return Queries{}, fmt.Errorf("topic_access_query: %w", err)
		}
	}
	for i, tq := range file.TagQueries {
		if tq.Tag == "" {
			return Queries{}, fmt.Errorf("tag_queries[%d]: missing tag", i)
		}
		q, err := query.Parse(tq.Query)
		if err != nil {
			return Queries{}, fmt.Errorf("tag_queries[%d] (%s): %w", i, tq.Tag, err)
		}
		queries.TagQueries = append(queries.TagQueries, TagQuery{Tag: tq.Tag, Query: q})
	}
	return queries, nil
}
