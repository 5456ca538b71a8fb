package formtab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Operator is a precondition comparison operator.
type Operator string

const (
	OpLT Operator = "lt"
	OpLE Operator = "le"
	OpEQ Operator = "eq"
	OpGE Operator = "ge"
	OpGT Operator = "gt"
)

func (o Operator) valid() bool {
	switch o {
	case OpLT, OpLE, OpEQ, OpGE, OpGT:
		return true
	}
	return false
}

// Condition is one precondition of a rule: the named target compared to the operand.
type Condition struct {
	Target  string   `json:"target,omitempty"`
	Op      Operator `json:"op"`
	Operand any      `json:"operand"`
}

// Accept declares the MIME type and extension a file value must have.
type Accept struct {
	MIME      string `json:"mime,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// UnmarshalJSON accepts either a bare MIME string or {"mime", "extension"}.
func (a *Accept) UnmarshalJSON(data []byte) error {
	var mime string
	if err := json.Unmarshal(data, &mime); err == nil {
		a.MIME = mime
		return nil
	}
	type acceptAlias Accept
	var alias acceptAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("accept must be a mime string or object: %w", err)
	}
	*a = Accept(alias)
	return nil
}

// Action is one check of a rule. Min and Max are numbers for numeric values,
// lengths for text, KiB for files and RFC 3339 strings (or "now") for datetimes.
type Action struct {
	Required *bool   `json:"required,omitempty"`
	Min      any     `json:"min,omitempty"`
	Max      any     `json:"max,omitempty"`
	Format   string  `json:"format,omitempty"`
	Accept   *Accept `json:"accept,omitempty"`
}

// IsRequired reports whether the action demands a non-empty value.
func (a Action) IsRequired() bool {
	return a.Required != nil && *a.Required
}

// Rule is an ordered gate of preconditions plus the actions it guards.
type Rule struct {
	Conditions []Condition `json:"conditions,omitempty"`
	Actions    []Action    `json:"actions"`
}

type ruleWire struct {
	Conditions []json.RawMessage `json:"conditions,omitempty"`
	Actions    []actionWire      `json:"actions"`
}

type actionWire struct {
	Set Action `json:"set"`
}

type conditionWire struct {
	Target string         `json:"target,omitempty"`
	Set    map[string]any `json:"set"`
}

// MarshalJSON writes the canonical {conditions: [{target, set}], actions: [{set}]} shape.
func (r Rule) MarshalJSON() ([]byte, error) {
	conds := make([]conditionWire, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		conds = append(conds, conditionWire{Target: c.Target, Set: map[string]any{string(c.Op): c.Operand}})
	}
	actions := make([]actionWire, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, actionWire{Set: a})
	}
	return json.Marshal(struct {
		Conditions []conditionWire `json:"conditions,omitempty"`
		Actions    []actionWire    `json:"actions"`
	}{conds, actions})
}

// UnmarshalJSON decodes the rule wire shape. Each precondition must contain
// exactly one comparison operator somewhere inside it; it is located by a
// depth-first search so that nested authoring structures are accepted.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var wire ruleWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return NewInvalidSpecError("", fmt.Sprintf("malformed rule: %v", err))
	}
	if len(wire.Actions) == 0 {
		return NewInvalidSpecError("", "rule needs at least one action")
	}

	conds := make([]Condition, 0, len(wire.Conditions))
	for i, raw := range wire.Conditions {
		cond, err := parseCondition(raw)
		if err != nil {
			return NewInvalidSpecError("", fmt.Sprintf("condition %d: %v", i, err))
		}
		conds = append(conds, cond)
	}

	actions := make([]Action, 0, len(wire.Actions))
	for _, a := range wire.Actions {
		a.Set.Min = normalizeNumber(a.Set.Min)
		a.Set.Max = normalizeNumber(a.Set.Max)
		actions = append(actions, a.Set)
	}

	r.Conditions = conds
	r.Actions = actions
	return nil
}

func parseCondition(raw json.RawMessage) (Condition, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return Condition{}, err
	}

	var cond Condition
	if obj, ok := tree.(map[string]any); ok {
		if target, ok := obj["target"].(string); ok {
			cond.Target = target
		}
	}

	op, operand, found := findComparison(tree)
	if !found {
		return Condition{}, fmt.Errorf("no comparison operator (lt, le, eq, ge, gt) found")
	}
	cond.Op = op
	cond.Operand = normalizeNumber(operand)
	return cond, nil
}

// findComparison walks maps (in sorted key order) and slices depth-first and
// returns the first operator key it meets.
func findComparison(node any) (Operator, any, bool) {
	switch v := node.(type) {
	case map[string]any:
		keys := sortedKeys(v)
		for _, k := range keys {
			if op := Operator(strings.ToLower(k)); op.valid() {
				return op, v[k], true
			}
		}
		for _, k := range keys {
			if op, operand, ok := findComparison(v[k]); ok {
				return op, operand, true
			}
		}
	case []any:
		for _, item := range v {
			if op, operand, ok := findComparison(item); ok {
				return op, operand, true
			}
		}
	}
	return "", nil, false
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// ParseRules decodes a JSON array of rules.
func ParseRules(data []byte) ([]Rule, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		var fe *Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, NewInvalidSpecError("", fmt.Sprintf("malformed rule list: %v", err))
	}
	return rules, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
