package constraint

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/lychee-technology/formtab"
)

// compare evaluates lhs <op> operand. Incomparable operands never hold.
func compare(lhs any, op formtab.Operator, operand any) bool {
	if l, ok := toFloat(lhs); ok {
		if r, ok := toFloat(operand); ok {
			return holds(cmpFloat(l, r), op)
		}
		if s, ok := operand.(string); ok {
			if r, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return holds(cmpFloat(l, r), op)
			}
		}
		return false
	}

	switch l := lhs.(type) {
	case string:
		if r, ok := operand.(string); ok {
			return holds(strings.Compare(l, r), op)
		}
		if r, ok := toFloat(operand); ok {
			if lf, err := strconv.ParseFloat(strings.TrimSpace(l), 64); err == nil {
				return holds(cmpFloat(lf, r), op)
			}
		}
	case bool:
		if r, ok := operand.(bool); ok && op == formtab.OpEQ {
			return l == r
		}
	case nil:
		return op == formtab.OpEQ && operand == nil
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func holds(c int, op formtab.Operator) bool {
	switch op {
	case formtab.OpLT:
		return c < 0
	case formtab.OpLE:
		return c <= 0
	case formtab.OpEQ:
		return c == 0
	case formtab.OpGE:
		return c >= 0
	case formtab.OpGT:
		return c > 0
	}
	return false
}

// toFloat accepts every Go integer and float kind plus json.Number.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
