package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

type kind int

const (
	kindNumber kind = iota
	kindString
	kindBool
)

func (k kind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	default:
		return "boolean"
	}
}

type value struct {
	kind kind
	num  float64
	str  string
	b    bool
}

func numberValue(f float64) value { return value{kind: kindNumber, num: f} }
func stringValue(s string) value  { return value{kind: kindString, str: s} }
func boolValue(b bool) value      { return value{kind: kindBool, b: b} }

type env struct {
	src  string
	vars map[string]interface{}
}

// Evaluate parses and evaluates expression against context in one call
func Evaluate(expression string, context map[string]interface{}) (bool, error) {
	expr, err := Parse(expression)
	if err != nil {
		return false, err
	}
	return expr.Evaluate(context)
}

// Evaluate runs the compiled expression against context. The result of the
// whole expression must be boolean.
func (e *Expr) Evaluate(context map[string]interface{}) (bool, error) {
	v, err := e.root.eval(&env{src: e.source, vars: context})
	if err != nil {
		return false, err
	}
	if v.kind != kindBool {
		return false, newError(e.source, -1, "expression yields a %s, not a boolean", v.kind)
	}
	return v.b, nil
}

// Both sides are always evaluated so an unknown field on the right is
// reported even when the left side already decides the result.
func (n *logicalNode) eval(env *env) (value, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return value{}, err
	}
	if l.kind != kindBool || r.kind != kindBool {
		return value{}, newError(env.src, n.pos, "logical operator needs boolean operands, got %s and %s", l.kind, r.kind)
	}
	if n.and {
		return boolValue(l.b && r.b), nil
	}
	return boolValue(l.b || r.b), nil
}

func (n *notNode) eval(env *env) (value, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return value{}, err
	}
	if v.kind != kindBool {
		return value{}, newError(env.src, n.pos, "'not' needs a boolean operand, got %s", v.kind)
	}
	return boolValue(!v.b), nil
}

func (n *literalNode) eval(*env) (value, error) {
	return n.val, nil
}

func (n *fieldNode) eval(env *env) (value, error) {
	var cur interface{} = env.vars

	for i, seg := range n.path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return value{}, newError(env.src, n.pos, "field %q is not an object", strings.Join(n.path[:i], "."))
		}
		next, ok := obj[seg]
		if !ok {
			return value{}, newError(env.src, n.pos, "unknown field %q", n.raw)
		}
		cur = next
	}

	v, err := toValue(cur)
	if err != nil {
		return value{}, newError(env.src, n.pos, "field %q: %v", n.raw, err)
	}
	return v, nil
}

func (n *compareNode) eval(env *env) (value, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return value{}, err
	}

	if l.kind != r.kind {
		return value{}, newError(env.src, n.pos, "cannot compare %s with %s", l.kind, r.kind)
	}

	var cmp int
	switch l.kind {
	case kindNumber:
		cmp = compareFloat(l.num, r.num)
	case kindString:
		cmp = compareString(l.str, r.str)
	case kindBool:
		if n.op != "==" && n.op != "!=" {
			return value{}, newError(env.src, n.pos, "operator %s is not defined for booleans", n.op)
		}
		if l.b != r.b {
			cmp = 1
		}
	}

	switch n.op {
	case "==":
		return boolValue(cmp == 0), nil
	case "!=":
		return boolValue(cmp != 0), nil
	case ">":
		return boolValue(cmp > 0), nil
	case ">=":
		return boolValue(cmp >= 0), nil
	case "<":
		return boolValue(cmp < 0), nil
	case "<=":
		return boolValue(cmp <= 0), nil
	}
	return value{}, newError(env.src, n.pos, "unknown operator %s", n.op)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// toValue normalises the Go types found in decoded form data
func toValue(v interface{}) (value, error) {
	switch t := v.(type) {
	case nil:
		return value{}, fmt.Errorf("value is null")
	case bool:
		return boolValue(t), nil
	case string:
		return stringValue(t), nil
	case float64:
		if math.IsNaN(t) {
			return value{}, fmt.Errorf("value is NaN")
		}
		return numberValue(t), nil
	case float32:
		return numberValue(float64(t)), nil
	case int:
		return numberValue(float64(t)), nil
	case int8:
		return numberValue(float64(t)), nil
	case int16:
		return numberValue(float64(t)), nil
	case int32:
		return numberValue(float64(t)), nil
	case int64:
		return numberValue(float64(t)), nil
	case uint:
		return numberValue(float64(t)), nil
	case uint8:
		return numberValue(float64(t)), nil
	case uint16:
		return numberValue(float64(t)), nil
	case uint32:
		return numberValue(float64(t)), nil
	case uint64:
		return numberValue(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return value{}, fmt.Errorf("invalid number %q", t.String())
		}
		return numberValue(f), nil
	default:
		return value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

