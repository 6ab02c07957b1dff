package query

import "errors"

// ErrNotFound marks an attribute lookup that returned no values.
var ErrNotFound = errors.New("not_found")

type valueKind int

const (
	kindBool valueKind = iota
	kindString
	kindList
	kindError
)

// Value is the result of evaluating a query: a boolean decision, a scalar
// string, an ordered list of strings, or an error marker. LDAP attributes
// canonicalize as zero values -> error, one -> scalar, more -> list.
type Value struct {
	kind valueKind
	b    bool
	s    string
	list []string
	err  error
}

// Bool wraps a boolean result.
func Bool(b bool) Value {
	return Value{kind: kindBool, b: b}
}

// String wraps a scalar string result.
func String(s string) Value {
	return Value{kind: kindString, s: s}
}

// List wraps a multi-valued result, preserving directory order.
func List(values []string) Value {
	return Value{kind: kindList, list: values}
}

// Error wraps an error marker. Error values are swallowed as false by the
// boolean combinators and by Equals and Match; an error at the root of a
// query is returned to the caller of Eval as is.
func Error(err error) Value {
	return Value{kind: kindError, err: err}
}

// Values canonicalizes a raw attribute value slice.
func Values(values []string) Value {
	switch len(values) {
	case 0:
		return Error(ErrNotFound)
	case 1:
		return String(values[0])
	default:
		return List(values)
	}
}

// IsTrue reports whether the value is exactly boolean true. Strings, lists,
// and errors are not true.
func (v Value) IsTrue() bool {
	return v.kind == kindBool && v.b
}

// IsError reports whether the value is an error marker.
func (v Value) IsError() bool {
	return v.kind == kindError
}

// Err returns the underlying error for an error marker, nil otherwise.
func (v Value) Err() error {
	return v.err
}

// IsScalar reports whether the value is a single string.
func (v Value) IsScalar() bool {
	return v.kind == kindString
}

// Scalar returns the string for a scalar value.
func (v Value) Scalar() (string, bool) {
	return v.s, v.kind == kindString
}

// Strings returns the value in list form: a scalar becomes a one-element
// list. Booleans and errors have no list form.
func (v Value) Strings() []string {
	switch v.kind {
	case kindString:
		return []string{v.s}
	case kindList:
		return v.list
	default:
		return nil
	}
}
