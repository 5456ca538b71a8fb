package formtab

import (
	"encoding/json"
	"testing"
)

func TestRule_UnmarshalCanonicalShape(t *testing.T) {
	raw := `{
    "conditions": [
        {"target": "age", "set": {"lt": 5}},
        {"target": "age", "set": {"ge": 10}}
    ],
    "actions": [
        {"set": {"required": true, "min": 0, "max": 100.5}}
    ]
}`

	var rule Rule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		t.Fatalf("failed to unmarshal rule: %v", err)
	}

	if len(rule.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(rule.Conditions))
	}
	if rule.Conditions[0].Op != OpLT || rule.Conditions[0].Operand != int64(5) {
		t.Errorf("unexpected first condition: %+v", rule.Conditions[0])
	}
	if rule.Conditions[1].Op != OpGE || rule.Conditions[1].Target != "age" {
		t.Errorf("unexpected second condition: %+v", rule.Conditions[1])
	}
	if len(rule.Actions) != 1 || !rule.Actions[0].IsRequired() {
		t.Fatalf("expected a required action, got %+v", rule.Actions)
	}
	if rule.Actions[0].Min != int64(0) {
		t.Errorf("expected min to decode as int64 0, got %#v", rule.Actions[0].Min)
	}
	if rule.Actions[0].Max != 100.5 {
		t.Errorf("expected max to decode as float64 100.5, got %#v", rule.Actions[0].Max)
	}
}

func TestRule_OperatorFoundInNestedStructure(t *testing.T) {
	raw := `{
    "conditions": [
        {"target": "revenue", "set": {"when": [{"note": "x"}, {"deep": {"GT": 7}}]}}
    ],
    "actions": [{"set": {"max": 3}}]
}`

	var rule Rule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		t.Fatalf("failed to unmarshal rule: %v", err)
	}
	if rule.Conditions[0].Op != OpGT {
		t.Errorf("expected gt, got %s", rule.Conditions[0].Op)
	}
	if rule.Conditions[0].Operand != int64(7) {
		t.Errorf("expected operand 7, got %#v", rule.Conditions[0].Operand)
	}
}

func TestRule_ConditionWithoutOperatorIsInvalidSpec(t *testing.T) {
	raw := `{"conditions": [{"target": "a", "set": {"between": [1, 2]}}], "actions": [{"set": {"required": true}}]}`

	var rule Rule
	err := json.Unmarshal([]byte(raw), &rule)
	if err == nil {
		t.Fatal("expected an error for a condition without operator")
	}
	if !IsInvalidSpec(err) {
		t.Errorf("expected InvalidSpecError, got %v", err)
	}
}

func TestRule_NoActionsIsInvalidSpec(t *testing.T) {
	_, err := ParseRules([]byte(`[{"conditions": [], "actions": []}]`))
	if !IsInvalidSpec(err) {
		t.Fatalf("expected InvalidSpecError, got %v", err)
	}
}

func TestRule_MarshalRoundTrip(t *testing.T) {
	req := true
	rule := Rule{
		Conditions: []Condition{{Target: "scope", Op: OpEQ, Operand: int64(1)}},
		Actions:    []Action{{Required: &req, Format: "^[a-z]+$", Accept: &Accept{MIME: "application/pdf", Extension: "pdf"}}},
	}

	data, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back Rule
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Conditions[0] != rule.Conditions[0] {
		t.Errorf("condition changed: %+v vs %+v", back.Conditions[0], rule.Conditions[0])
	}
	if back.Actions[0].Format != "^[a-z]+$" || *back.Actions[0].Accept != *rule.Actions[0].Accept {
		t.Errorf("action changed: %+v", back.Actions[0])
	}
}

func TestAccept_AcceptsBareMIME(t *testing.T) {
	var a Accept
	if err := json.Unmarshal([]byte(`"image/png"`), &a); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if a.MIME != "image/png" || a.Extension != "" {
		t.Errorf("unexpected accept: %+v", a)
	}
}

func TestParseRules_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "null", "  "} {
		rules, err := ParseRules([]byte(in))
		if err != nil || rules != nil {
			t.Errorf("ParseRules(%q) = %v, %v; want nil, nil", in, rules, err)
		}
	}
}
