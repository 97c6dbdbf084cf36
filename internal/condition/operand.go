package condition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

var numberPattern = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)

// resolve turns an operand token into a value. Precedence: quoted string,
// bracket list, number, keyword literal, dotted path, top-level key.
// Unknown keys and path segments resolve to nil.
func resolve(token string, vars map[string]any) (any, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, fmt.Errorf("empty operand")
	}

	if unq, ok := unquote(t); ok {
		return unq, nil
	}
	if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
		return parseList(t[1 : len(t)-1]), nil
	}
	if n, ok := parseNumber(t); ok {
		return n, nil
	}
	switch strings.ToLower(t) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "none", "null":
		return nil, nil
	}
	if strings.Contains(t, ".") {
		return lookupPath(vars, strings.Split(t, ".")), nil
	}
	return vars[t], nil
}

func unquote(t string) (string, bool) {
	if len(t) < 2 {
		return "", false
	}
	first, last := t[0], t[len(t)-1]
	if (first == '\'' || first == '"') && first == last {
		return t[1 : len(t)-1], true
	}
	return "", false
}

// parseList splits the inside of a bracket literal into unquoted string items.
func parseList(inner string) []any {
	items := make([]any, 0)
	if strings.TrimSpace(inner) == "" {
		return items
	}
	for _, raw := range splitTopLevel(inner, ",") {
		if raw == "" {
			continue
		}
		if unq, ok := unquote(raw); ok {
			items = append(items, unq)
			continue
		}
		items = append(items, raw)
	}
	return items
}

func parseNumber(t string) (any, bool) {
	if !numberPattern.MatchString(t) {
		return nil, false
	}
	if !strings.ContainsAny(t, ".eE") {
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return i, true
		}
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

func lookupPath(vars map[string]any, segments []string) any {
	var cur any = vars
	for _, seg := range segments {
		if seg == "" {
			return nil
		}
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[seg]
			if !ok {
				return nil
			}
			cur = v
		case map[string]string:
			v, ok := m[seg]
			if !ok {
				return nil
			}
			cur = v
		default:
			return nil
		}
	}
	return cur
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}

// equal compares numbers by value regardless of Go type; everything else
// must match in type and value.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) && isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		return errA == nil && errB == nil && fa == fb
	}
	la, okA := toList(a)
	lb, okB := toList(b)
	if okA && okB {
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if okA != okB {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// order returns -1, 0 or 1. Only number/number and string/string pairs are ordered.
func order(a, b any) (int, error) {
	if isNumber(a) && isNumber(b) {
		fa, err := cast.ToFloat64E(a)
		if err != nil {
			return 0, err
		}
		fb, err := cast.ToFloat64E(b)
		if err != nil {
			return 0, err
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), nil
	}
	return 0, fmt.Errorf("cannot order %s and %s", describe(a), describe(b))
}

// member reports whether needle is an element of haystack: list membership,
// substring for strings, key presence for maps.
func member(needle, haystack any) (bool, error) {
	if haystack == nil {
		return false, fmt.Errorf("membership test against null")
	}
	if list, ok := toList(haystack); ok {
		for _, el := range list {
			if equal(needle, el) {
				return true, nil
			}
		}
		return false, nil
	}
	switch h := haystack.(type) {
	case string:
		if needle == nil {
			return false, nil
		}
		s, err := cast.ToStringE(needle)
		if err != nil {
			return false, fmt.Errorf("cannot search string for %s", describe(needle))
		}
		return strings.Contains(h, s), nil
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, found := h[key]
		return found, nil
	}
	return false, fmt.Errorf("membership test against %s", describe(haystack))
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	}
	if isNumber(v) {
		f, err := cast.ToFloat64E(v)
		return err == nil && f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
