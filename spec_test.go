package formtab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emissionsSpec() *FormSpec {
	return &FormSpec{
		Name:        "Disclosure",
		Description: "annual disclosure",
		Attributes: []AttributeSpec{
			{Name: "company_name", Type: AttributeTypeText},
			{Name: "disclosure_data_model", Type: AttributeTypeSingleChoice, Choices: []ChoiceSpec{
				{Label: "ifrs", Language: "en"},
				{Label: "esrs", Language: "en"},
			}},
			{Name: "emissions", Type: AttributeTypeRepeated, Form: &FormSpec{
				Name: "emission_row",
				Attributes: []AttributeSpec{
					{Name: "scope", Type: AttributeTypeSingleChoice, Choices: []ChoiceSpec{{Label: "Scope 1"}}},
					{Name: "scope_amount", Type: AttributeTypeFloatOrNull},
				},
			}},
			{Name: "topics", Type: AttributeTypeMultiChoice, Choices: []ChoiceSpec{{Label: "water"}}},
		},
	}
}

func TestFormSpec_ValidateAcceptsNestedSpec(t *testing.T) {
	require.NoError(t, emissionsSpec().Validate())
}

func TestFormSpec_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FormSpec)
		check  func(error) bool
	}{
		{"empty form name", func(s *FormSpec) { s.Name = "" }, IsInvalidSpec},
		{"bad identifier", func(s *FormSpec) { s.Name = "1 bad" }, IsInvalidSpec},
		{"unsupported type", func(s *FormSpec) { s.Attributes[0].Type = "money" }, IsInvalidSpec},
		{"subform without nested form", func(s *FormSpec) { s.Attributes[2].Form = nil }, IsInvalidSpec},
		{"scalar with nested form", func(s *FormSpec) { s.Attributes[0].Form = &FormSpec{Name: "x"} }, IsInvalidSpec},
		{"choices on text", func(s *FormSpec) { s.Attributes[0].Choices = []ChoiceSpec{{Label: "a"}} }, IsInvalidSpec},
		{"bad language", func(s *FormSpec) { s.Attributes[1].Choices[0].Language = "not a tag!" }, IsInvalidSpec},
		{"duplicate attribute across forms", func(s *FormSpec) {
			s.Attributes[2].Form.Attributes[1].Name = "company_name"
		}, IsDuplicateName},
		{"collides with synthesized selection attribute", func(s *FormSpec) {
			s.Attributes[0].Name = "topics_selected_id"
		}, IsDuplicateName},
		{"form name ends in heritable suffix", func(s *FormSpec) { s.Name = "emission_row_heritable" }, IsInvalidSpec},
		{"nested form name ends in index suffix", func(s *FormSpec) {
			s.Attributes[2].Form.Name = "disclosure_obj_idx"
		}, IsInvalidSpec},
		{"attribute name ends in withheld suffix", func(s *FormSpec) {
			s.Attributes[0].Name = "scope_amount__withheld"
		}, IsInvalidSpec},
		{"empty rule actions", func(s *FormSpec) {
			s.Attributes[0].View = &AttributeViewSpec{ValueConstraints: []Rule{{}}}
		}, IsInvalidSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := emissionsSpec()
			tt.mutate(spec)
			err := spec.Validate()
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
}

func TestFormSpec_Names(t *testing.T) {
	forms, attrs := emissionsSpec().Names()
	assert.Equal(t, []string{"Disclosure", "emission_row", "topics_selection"}, forms)
	assert.Equal(t, []string{
		"company_name", "disclosure_data_model", "emissions", "scope", "scope_amount",
		"topics", "topics_selected_id", "topics_other_value",
	}, attrs)
}

func TestDefaultViewName(t *testing.T) {
	assert.Equal(t, "disclosure_view", DefaultViewName("Disclosure"))
}

func TestParseFormSpec(t *testing.T) {
	doc := `{
  "name": "survey",
  "attributes": [
    {"name": "age", "type": "int", "view": {"value_constraints": [
      {"actions": [{"set": {"min": 0, "max": 130}}]}
    ]}},
    {"name": "household", "type": "subform", "form": {
      "name": "household_row",
      "attributes": [{"name": "members", "type": "int_or_null"}]
    }}
  ]
}`
	spec, err := ParseFormSpec([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "survey", spec.Name)
	require.Len(t, spec.Attributes, 2)
	assert.Equal(t, int64(130), spec.Attributes[0].View.ValueConstraints[0].Actions[0].Max)
	assert.Equal(t, "household_row", spec.Attributes[1].Form.Name)
}

func TestParseFormSpec_RejectsDocumentShape(t *testing.T) {
	_, err := ParseFormSpec([]byte(`{"name": "survey", "attributes": []}`))
	assert.True(t, IsInvalidSpec(err), "got %v", err)

	_, err = ParseFormSpec([]byte(`{"name": "survey", "attributes": [{"name": "a"}]}`))
	assert.True(t, IsInvalidSpec(err), "got %v", err)
}

func TestFormDefinition_ToSpecRoundTrip(t *testing.T) {
	def := &FormDefinition{
		Form: Form{ID: 1, Name: "survey"},
		View: &FormView{ID: 9, Name: "survey_view"},
		Attributes: []AttributeDefinition{
			{
				Attribute: Attribute{ID: 2, Name: "color", Type: AttributeTypeSingleChoice},
				Choices:   []Choice{{SetID: 1, ChoiceID: 1_000_000, Label: "red", Language: "en"}},
				Views: []AttributeViewDefinition{{AttributeView: AttributeView{FormViewID: 9, ValueConstraints: []Rule{
					{Actions: []Action{{Format: "x"}}},
				}}}},
			},
			{
				Attribute: Attribute{ID: 3, Name: "tags", Type: AttributeTypeMultiChoice},
				Child:     &FormDefinition{Form: Form{Name: "tags_selection", Heritable: true}},
			},
		},
	}

	spec := def.ToSpec()
	assert.Nil(t, spec.View)
	require.Len(t, spec.Attributes, 2)
	assert.Equal(t, int64(1_000_000), *spec.Attributes[0].Choices[0].ID)
	require.NotNil(t, spec.Attributes[0].View)
	assert.Equal(t, "x", spec.Attributes[0].View.ValueConstraints[0].Actions[0].Format)
	assert.Nil(t, spec.Attributes[1].Form)

	data, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tags_selection")
}
