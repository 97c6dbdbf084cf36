// Package condition evaluates the small boolean language used on transitions.
//
// The language is flat: one level of "and" or "or", a single
// comparison per clause, and literal or context-path operands. It never
// executes code and never calls out of the process.
package condition

import (
	"fmt"
	"strings"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// operators are tried in this order; the first one found outside quotes and
// brackets splits the clause. "not in" precedes "in" because " in " is a
// substring of " not in ".
var operators = []string{"==", "!=", ">=", "<=", ">", "<", "not in", "in", "contains"}

// Evaluate returns the boolean value of expression against vars.
// Any parse or resolution failure yields false; use Eval to observe the error.
func Evaluate(expression string, vars map[string]any) bool {
	ok, _ := Eval(expression, vars)
	return ok
}

// Eval evaluates expression against vars. On failure it returns false and a
// CONDITION_ERROR describing the problem. It never panics.
func Eval(expression string, vars map[string]any) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = conditionError(expression, fmt.Sprintf("internal error: %v", r))
		}
	}()

	expr := strings.TrimSpace(expression)
	if expr == "" {
		return true, nil
	}

	andParts := splitTopLevel(expr, " and ")
	orParts := splitTopLevel(expr, " or ")

	switch {
	case len(andParts) > 1 && len(orParts) > 1:
		return false, conditionError(expression, "mixing 'and' with 'or' in one expression is not supported")

	case len(andParts) > 1:
		for _, part := range andParts {
			ok, err := evalClause(part, vars)
			if err != nil {
				return false, conditionError(expression, err.Error())
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case len(orParts) > 1:
		for _, part := range orParts {
			ok, err := evalClause(part, vars)
			if err != nil {
				return false, conditionError(expression, err.Error())
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	ok, err := evalClause(expr, vars)
	if err != nil {
		return false, conditionError(expression, err.Error())
	}
	return ok, nil
}

// evalClause evaluates a single comparison or a bare boolean reference.
func evalClause(clause string, vars map[string]any) (bool, error) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return false, fmt.Errorf("empty clause")
	}

	for _, op := range operators {
		idx := indexTopLevel(clause, " "+op+" ")
		if idx < 0 {
			continue
		}
		leftTok := clause[:idx]
		rightTok := clause[idx+len(op)+2:]

		left, err := resolve(leftTok, vars)
		if err != nil {
			return false, fmt.Errorf("left operand of %q: %w", op, err)
		}
		right, err := resolve(rightTok, vars)
		if err != nil {
			return false, fmt.Errorf("right operand of %q: %w", op, err)
		}
		return apply(op, left, right)
	}

	negate := false
	switch {
	case strings.HasPrefix(clause, "!"):
		negate = true
		clause = strings.TrimSpace(clause[1:])
	case len(clause) > 4 && asciiEqualFold(clause[:4], "not "):
		negate = true
		clause = strings.TrimSpace(clause[4:])
	}

	v, err := resolve(clause, vars)
	if err != nil {
		return false, err
	}
	return truthy(v) != negate, nil
}

// apply runs one comparison operator on resolved operands.
func apply(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case ">", "<", ">=", "<=":
		c, err := order(left, right)
		if err != nil {
			return false, err
		}
		switch op {
		case ">":
			return c > 0, nil
		case "<":
			return c < 0, nil
		case ">=":
			return c >= 0, nil
		default:
			return c <= 0, nil
		}
	case "in":
		return member(left, right)
	case "not in":
		ok, err := member(left, right)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case "contains":
		return member(right, left)
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func conditionError(expression, msg string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeCondition, "condition %q: %s", expression, msg).
		WithDetails(map[string]any{"expression": expression})
}

// splitTopLevel splits s on every case-insensitive occurrence of sep that is
// outside quotes and brackets. Parts are trimmed.
func splitTopLevel(s, sep string) []string {
	var parts []string
	start := 0
	for {
		idx := indexTopLevel(s[start:], sep)
		if idx < 0 {
			break
		}
		parts = append(parts, strings.TrimSpace(s[start:start+idx]))
		start += idx + len(sep)
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// indexTopLevel returns the byte index of the first case-insensitive
// occurrence of tok in s outside quotes and brackets, or -1.
func indexTopLevel(s, tok string) int {
	var quote byte
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if depth == 0 && i+len(tok) <= len(s) && asciiEqualFold(s[i:i+len(tok)], tok) {
			return i
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		}
	}
	return -1
}

func asciiEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
