package bitrix

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record represents one CRM entity as returned by the portal: a mapping from
// field name to value. The portal owns the schema; fields pass through
// untouched, including custom UF_* fields.
type Record map[string]any

// ID extracts the record's identifier. Bitrix24 returns numeric fields as
// strings, so both representations are accepted.
func (r Record) ID() (int, error) {
	raw, ok := r["ID"]
	if !ok {
		return 0, ErrMissingID
	}

	return toInt(raw)
}

// String returns the named field formatted as a string, or "" if absent.
func (r Record) String(field string) string {
	raw, ok := r[field]
	if !ok || raw == nil {
		return ""
	}

	if s, ok := raw.(string); ok {
		return s
	}

	return fmt.Sprint(raw)
}

// Int returns the named field as an int.
func (r Record) Int(field string) (int, error) {
	raw, ok := r[field]
	if !ok {
		return 0, fmt.Errorf("%w: field %q", ErrUnexpectedResponse, field)
	}

	return toInt(raw)
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: non-numeric value %q", ErrUnexpectedResponse, v)
		}

		return id, nil
	case float64:
		return int(v), nil
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: non-integer value %q", ErrUnexpectedResponse, v)
		}

		return int(id), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: value of type %T", ErrUnexpectedResponse, raw)
	}
}

// ListResponse represents one page of a list call, in server order.
type ListResponse struct {
	Result []Record `json:"result" yaml:"result"`
	Total  int      `json:"total"  yaml:"total"`
	// Next is the offset of the following page. Absent on the last page.
	Next *int `json:"next,omitempty" yaml:"next,omitempty"`
}

// Order maps a field name to its sort direction.
type Order map[string]string

// Sort directions accepted by the portal.
const (
	SortAscending  = "ASC"
	SortDescending = "DESC"
)

// DefaultSelect requests all standard and all custom fields.
func DefaultSelect() []string {
	return []string{"*", "UF_*"}
}

// BatchEnvelope is the portal's multi-call response: per-key payloads and
// per-key errors, plus list metadata for sub-calls that page.
type BatchEnvelope struct {
	Result      map[string]json.RawMessage `json:"result"`
	ResultError map[string]*APIError       `json:"result_error"`
	ResultTotal map[string]int             `json:"result_total"`
	ResultNext  map[string]int             `json:"result_next"`
}
