package query

import "fmt"

// Parse converts a decoded configuration value (the output of a YAML or JSON
// unmarshal into interface{}) into a Query. The accepted shapes mirror the
// AST one to one; anything else is rejected here rather than at evaluation
// time:
//
//	true / false
//	"some ${pattern}"
//	{constant: bool}
//	{string: "pattern"}
//	{exists: "dn pattern"}
//	{in_group: "dn pattern"} or {in_group: {dn: ..., attribute: ...}}
//	{in_group_nested: {dn: ..., attribute: ..., scope: subtree|one_level}}
//	{attribute: {dn: ..., name: ...}}
//	{not: query}
//	{and: [query, ...]} / {or: [query, ...]}
//	{equals: [a, b]}
//	{match: [subject, pattern]}
//	{for: [{key: ..., value: ..., then: query}, ...]}
func Parse(raw any) (Query, error) {
	switch v := raw.(type) {
	case bool:
		return Constant{Value: v}, nil
	case string:
		return Template{Pattern: v}, nil
	case map[string]any:
		if len(v) != 1 {
			return nil, fmt.Errorf("query object must have exactly one key, got %d", len(v))
		}
		for key, arg := range v {
			return parseTagged(key, arg)
		}
	}
	return nil, fmt.Errorf("unrecognised query shape %T", raw)
}

func parseTagged(key string, arg any) (Query, error) {
	switch key {
	case "constant":
		b, ok := arg.(bool)
		if !ok {
			return nil, fmt.Errorf("constant: expected bool, got %T", arg)
		}
		return Constant{Value: b}, nil

	case "string":
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("string: expected pattern string, got %T", arg)
		}
		return Template{Pattern: s}, nil

	case "exists":
		dn, _, _, err := parseDNArgs(key, arg, false)
		if err != nil {
			return nil, err
		}
		return Exists{DNPattern: dn}, nil

	case "in_group":
		dn, attr, _, err := parseDNArgs(key, arg, false)
		if err != nil {
			return nil, err
		}
		return InGroup{DNPattern: dn, Attribute: attr}, nil

	case "in_group_nested":
		dn, attr, scope, err := parseDNArgs(key, arg, true)
		if err != nil {
			return nil, err
		}
		return InGroupNested{DNPattern: dn, Attribute: attr, Scope: scope}, nil

	case "attribute":
		m, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("attribute: expected {dn, name} object, got %T", arg)
		}
		dn, err := stringField(key, m, "dn", true)
		if err != nil {
			return nil, err
		}
		name, err := stringField(key, m, "name", true)
		if err != nil {
			return nil, err
		}
		if err := rejectUnknown(key, m, "dn", "name"); err != nil {
			return nil, err
		}
		return Attribute{DNPattern: dn, Name: name}, nil

	case "not":
		sub, err := Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Q: sub}, nil

	case "and", "or":
		items, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected a list of queries, got %T", key, arg)
		}
		subs := make([]Query, 0, len(items))
		for i, item := range items {
			sub, err := Parse(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			subs = append(subs, sub)
		}
		if key == "and" {
			return And{Qs: subs}, nil
		}
		return Or{Qs: subs}, nil

	case "equals", "match":
		pair, ok := arg.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%s: expected a two-element list", key)
		}
		a, err := Parse(pair[0])
		if err != nil {
			return nil, fmt.Errorf("%s[0]: %w", key, err)
		}
		b, err := Parse(pair[1])
		if err != nil {
			return nil, fmt.Errorf("%s[1]: %w", key, err)
		}
		if key == "equals" {
			return Equals{A: a, B: b}, nil
		}
		return Match{Subject: a, Pattern: b}, nil

	case "for":
		items, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("for: expected a list of clauses, got %T", arg)
		}
		clauses := make([]ForClause, 0, len(items))
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("for[%d]: expected {key, value, then} object, got %T", i, item)
			}
			k, err := stringField("for", m, "key", true)
			if err != nil {
				return nil, err
			}
			val, err := stringField("for", m, "value", true)
			if err != nil {
				return nil, err
			}
			thenRaw, ok := m["then"]
			if !ok {
				return nil, fmt.Errorf("for[%d]: missing then", i)
			}
			then, err := Parse(thenRaw)
			if err != nil {
				return nil, fmt.Errorf("for[%d].then: %w", i, err)
			}
			if err := rejectUnknown("for", m, "key", "value", "then"); err != nil {
				return nil, err
			}
			clauses = append(clauses, ForClause{Key: k, Value: val, Then: then})
		}
		return For{Clauses: clauses}, nil
	}

	return nil, fmt.Errorf("unrecognised query %q", key)
}

// parseDNArgs handles the predicates that take a DN pattern plus optional
// membership attribute and, for nested searches, an optional scope. A bare
// string is shorthand for {dn: string}.
func parseDNArgs(key string, arg any, withScope bool) (dn, attr string, scope Scope, err error) {
	switch v := arg.(type) {
	case string:
		return v, "", ScopeSubtree, nil
	case map[string]any:
		dn, err = stringField(key, v, "dn", true)
		if err != nil {
			return "", "", 0, err
		}
		attr, err = stringField(key, v, "attribute", false)
		if err != nil {
			return "", "", 0, err
		}
		scope = ScopeSubtree
		if withScope {
			var s string
			s, err = stringField(key, v, "scope", false)
			if err != nil {
				return "", "", 0, err
			}
			switch s {
			case "", "subtree":
				scope = ScopeSubtree
			case "one_level":
				scope = ScopeOneLevel
			default:
				return "", "", 0, fmt.Errorf("%s: unknown scope %q", key, s)
			}
			err = rejectUnknown(key, v, "dn", "attribute", "scope")
		} else {
			err = rejectUnknown(key, v, "dn", "attribute")
		}
		if err != nil {
			return "", "", 0, err
		}
		return dn, attr, scope, nil
	}
	return "", "", 0, fmt.Errorf("%s: expected dn pattern or object, got %T", key, arg)
}

func stringField(ctx string, m map[string]any, field string, required bool) (string, error) {
	raw, ok := m[field]
	if !ok {
		if required {
			return "", fmt.Errorf("%s: missing %s", ctx, field)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s: %s must be a string, got %T", ctx, field, raw)
	}
	return s, nil
}

func rejectUnknown(ctx string, m map[string]any, known ...string) error {
	for field := range m {
		found := false
		for _, k := range known {
			if field == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: unknown field %q", ctx, field)
		}
	}
	return nil
}
