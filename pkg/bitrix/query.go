package bitrix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
)

// Operator is a filter comparison operator. Operators are encoded as key
// prefixes in the portal's filter convention (">=FIELD", "%FIELD", "@FIELD").
type Operator string

// Filter operators accepted by the portal's list methods.
const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!"
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpContains       Operator = "%"
	OpIn             Operator = "@"
	OpNotIn          Operator = "!@"
)

var validOperators = map[Operator]struct{}{
	OpEqual:          {},
	OpNotEqual:       {},
	OpGreater:        {},
	OpGreaterOrEqual: {},
	OpLess:           {},
	OpLessOrEqual:    {},
	OpContains:       {},
	OpIn:             {},
	OpNotIn:          {},
}

// Condition is one (field, operator, value) triple of a filter.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Key returns the portal's filter key for the condition. Equality uses the
// bare field name.
func (c Condition) Key() string {
	if c.Op == OpEqual {
		return c.Field
	}

	return string(c.Op) + c.Field
}

// Filter is an ordered set of conditions. Condition order is preserved into
// the encoded output so identical filters produce byte-identical requests.
type Filter struct {
	conditions []Condition
}

// NewFilter creates an empty filter.
func NewFilter() *Filter {
	return &Filter{conditions: make([]Condition, 0)}
}

// Where appends a condition.
func (f *Filter) Where(field string, operator Operator, value any) *Filter {
	f.conditions = append(f.conditions, Condition{Field: field, Op: operator, Value: value})

	return f
}

// Equal appends an equality condition.
func (f *Filter) Equal(field string, value any) *Filter {
	return f.Where(field, OpEqual, value)
}

// Contains appends a substring-match condition.
func (f *Filter) Contains(field, query string) *Filter {
	return f.Where(field, OpContains, query)
}

// In appends a set-membership condition.
func (f *Filter) In(field string, values ...any) *Filter {
	return f.Where(field, OpIn, values)
}

// NotIn appends a set-exclusion condition.
func (f *Filter) NotIn(field string, values ...any) *Filter {
	return f.Where(field, OpNotIn, values)
}

// Range appends bound conditions for the given field. Either bound may be
// nil to leave that side open.
func (f *Filter) Range(field string, minValue, maxValue any) *Filter {
	if minValue != nil {
		f.Where(field, OpGreaterOrEqual, minValue)
	}

	if maxValue != nil {
		f.Where(field, OpLessOrEqual, maxValue)
	}

	return f
}

// Len returns the number of conditions.
func (f *Filter) Len() int {
	return len(f.conditions)
}

// Conditions returns the conditions in insertion order.
func (f *Filter) Conditions() []Condition {
	return f.conditions
}

// Build validates the filter and produces the encoded parameter map. A
// condition with an empty field name or an operator outside the enumerated
// set fails with ErrInvalidFilter. A repeated key keeps its first position
// and takes the last value.
func (f *Filter) Build() (*FilterParams, error) {
	params := &FilterParams{values: make(map[string]any, len(f.conditions))}

	for _, cond := range f.conditions {
		if cond.Field == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidFilter)
		}

		if _, ok := validOperators[cond.Op]; !ok {
			return nil, fmt.Errorf("%w: unknown operator %q for field %q", ErrInvalidFilter, cond.Op, cond.Field)
		}

		key := cond.Key()
		if _, seen := params.values[key]; !seen {
			params.keys = append(params.keys, key)
		}

		params.values[key] = cond.Value
	}

	return params, nil
}

// FilterParams is the encoded form of a Filter: a JSON object whose keys
// carry the operator prefixes, marshaled in insertion order.
type FilterParams struct {
	keys   []string
	values map[string]any
}

// Keys returns the encoded keys in insertion order.
func (p *FilterParams) Keys() []string {
	return p.keys
}

// Get returns the value for an encoded key.
func (p *FilterParams) Get(key string) (any, bool) {
	value, ok := p.values[key]

	return value, ok
}

// Len returns the number of encoded keys.
func (p *FilterParams) Len() int {
	if p == nil {
		return 0
	}

	return len(p.keys)
}

// MarshalJSON emits the object with keys in insertion order. encoding/json
// would sort map keys, which breaks request reproducibility.
func (p *FilterParams) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		encodedKey, err := encodeJSON(key)
		if err != nil {
			return nil, fmt.Errorf("encoding filter key %q: %w", key, err)
		}

		buf.Write(encodedKey)
		buf.WriteByte(':')

		encodedValue, err := encodeJSON(p.values[key])
		if err != nil {
			return nil, fmt.Errorf("encoding filter value for %q: %w", key, err)
		}

		buf.Write(encodedValue)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// encodeJSON marshals v with HTML escaping off, so operator prefixes like
// ">=" and "<" survive verbatim in the keys instead of becoming \u-escapes.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	err := encoder.Encode(v)
	if err != nil {
		return nil, err
	}

	// Encode appends a newline after every value.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// AppendValues flattens the filter into url.Values using the portal's
// bracket convention (filter[KEY]=value), as used inside batch sub-commands.
// Slice values expand to filter[KEY][i]=value.
func (p *FilterParams) AppendValues(values url.Values) {
	for _, key := range p.keys {
		switch v := p.values[key].(type) {
		case []any:
			for i, item := range v {
				values.Set(fmt.Sprintf("filter[%s][%d]", key, i), fmt.Sprint(item))
			}
		case []string:
			for i, item := range v {
				values.Set(fmt.Sprintf("filter[%s][%d]", key, i), item)
			}
		default:
			values.Set(fmt.Sprintf("filter[%s]", key), fmt.Sprint(v))
		}
	}
}
