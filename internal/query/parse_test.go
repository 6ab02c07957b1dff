package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccepts(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Query
	}{
		{"bare bool", true, Constant{Value: true}},
		{"constant", map[string]any{"constant": false}, Constant{Value: false}},
		{"bare string", "uid=${username},dc=x", Template{Pattern: "uid=${username},dc=x"}},
		{"string", map[string]any{"string": "${vhost}"}, Template{Pattern: "${vhost}"}},
		{"exists", map[string]any{"exists": "cn=${name},dc=x"}, Exists{DNPattern: "cn=${name},dc=x"}},
		{
			"in_group shorthand",
			map[string]any{"in_group": "cn=ops,dc=x"},
			InGroup{DNPattern: "cn=ops,dc=x"},
		},
		{
			"in_group with attribute",
			map[string]any{"in_group": map[string]any{"dn": "cn=ops,dc=x", "attribute": "uniqueMember"}},
			InGroup{DNPattern: "cn=ops,dc=x", Attribute: "uniqueMember"},
		},
		{
			"in_group_nested with scope",
			map[string]any{"in_group_nested": map[string]any{"dn": "cn=ops,dc=x", "scope": "one_level"}},
			InGroupNested{DNPattern: "cn=ops,dc=x", Scope: ScopeOneLevel},
		},
		{
			"in_group_nested defaults to subtree",
			map[string]any{"in_group_nested": "cn=ops,dc=x"},
			InGroupNested{DNPattern: "cn=ops,dc=x", Scope: ScopeSubtree},
		},
		{
			"attribute",
			map[string]any{"attribute": map[string]any{"dn": "${user_dn}", "name": "memberOf"}},
			Attribute{DNPattern: "${user_dn}", Name: "memberOf"},
		},
		{
			"not",
			map[string]any{"not": false},
			Not{Q: Constant{Value: false}},
		},
		{
			"and",
			map[string]any{"and": []any{true, false}},
			And{Qs: []Query{Constant{Value: true}, Constant{Value: false}}},
		},
		{
			"or",
			map[string]any{"or": []any{true}},
			Or{Qs: []Query{Constant{Value: true}}},
		},
		{
			"equals",
			map[string]any{"equals": []any{"${username}", "alice"}},
			Equals{A: Template{Pattern: "${username}"}, B: Template{Pattern: "alice"}},
		},
		{
			"match",
			map[string]any{"match": []any{"${vhost}", "^prod-.*"}},
			Match{Subject: Template{Pattern: "${vhost}"}, Pattern: Template{Pattern: "^prod-.*"}},
		},
		{
			"for",
			map[string]any{"for": []any{
				map[string]any{"key": "permission", "value": "read", "then": true},
				map[string]any{"key": "permission", "value": "write", "then": false},
			}},
			For{Clauses: []ForClause{
				{Key: "permission", Value: "read", Then: Constant{Value: true}},
				{Key: "permission", Value: "write", Then: Constant{Value: false}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"number", 42},
		{"unknown key", map[string]any{"in_groop": "cn=ops,dc=x"}},
		{"two keys", map[string]any{"and": []any{}, "or": []any{}}},
		{"constant non-bool", map[string]any{"constant": "yes"}},
		{"and non-list", map[string]any{"and": true}},
		{"and bad child", map[string]any{"and": []any{map[string]any{"nope": 1}}}},
		{"equals wrong arity", map[string]any{"equals": []any{"only"}}},
		{"in_group missing dn", map[string]any{"in_group": map[string]any{"attribute": "member"}}},
		{"in_group unknown field", map[string]any{"in_group": map[string]any{"dn": "cn=g", "scope": "subtree"}}},
		{"nested bad scope", map[string]any{"in_group_nested": map[string]any{"dn": "cn=g", "scope": "base"}}},
		{"attribute missing name", map[string]any{"attribute": map[string]any{"dn": "cn=g"}}},
		{"for missing then", map[string]any{"for": []any{map[string]any{"key": "k", "value": "v"}}}},
		{"for unknown field", map[string]any{"for": []any{map[string]any{"key": "k", "value": "v", "then": true, "else": false}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.Error(t, err)
		})
	}
}
