// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params is the parameter bundle handed to every worker of a batch. Values
// are scalars (string, bool, numbers) or lists of scalars.
type Params map[string]any

// Well-known parameter keys.
const (
	// ParamAddFields lists extra article metadata fields appended to every
	// annotation row after the external id.
	ParamAddFields = "addFields"

	// ParamStartAnnotIDPrefix namespaces the per-algorithm annotation id
	// offset: "startAnnotId.<algShortName>".
	ParamStartAnnotIDPrefix = "startAnnotId."
)

// Clone returns a shallow copy of p. List values are copied too so that a
// clone can be mutated without touching the original.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string(nil), vv...)
		case []any:
			out[k] = append([]any(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the named parameter as text, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Bool reports the named parameter as a boolean. Strings are compared
// case-insensitively against "true", "1" and "yes". The second result is
// false when the parameter is absent or not interpretable.
func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, false
	}
	switch vv := v.(type) {
	case bool:
		return vv, true
	case string:
		switch strings.ToLower(strings.TrimSpace(vv)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no", "":
			return false, true
		}
		return false, false
	}
	if n, ok := AsInt(v); ok {
		return n != 0, true
	}
	return false, false
}

// Int returns the named parameter as an integer. Numeric strings are parsed.
func (p Params) Int(key string) (int64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	return AsInt(v)
}

// Strings returns the named parameter as a list of strings. A scalar string
// is split on commas.
func (p Params) Strings(key string) []string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return strings.Split(vv, ",")
	}
	return []string{fmt.Sprint(v)}
}

// AnnotIDKey returns the parameter name carrying the annotation id offset of
// the algorithm with the given short name.
func AnnotIDKey(algName string) string {
	return ParamStartAnnotIDPrefix + algName
}

// TakeAnnotIDOffset returns the annotation id offset assigned to algName and
// removes it from p, so it never reaches the algorithm's own configuration.
// A missing offset is 0.
func (p Params) TakeAnnotIDOffset(algName string) (int64, error) {
	key := AnnotIDKey(algName)
	v, ok := p[key]
	if !ok {
		return 0, nil
	}
	delete(p, key)
	n, ok := AsInt(v)
	if !ok || n < 0 {
		return 0, fmt.Errorf("parameter %s: invalid annotation id offset %v", key, v)
	}
	return n, nil
}

// AsInt converts decoded numeric values (any integer or float width, or a
// decimal string) to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
