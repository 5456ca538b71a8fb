package formtab

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// FormSpec is the declarative input of the schema compiler.
type FormSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	OwnerID     int64           `json:"owner_id,omitempty"`
	View        *ViewSpec       `json:"view,omitempty"`
	Attributes  []AttributeSpec `json:"attributes"`
}

// AttributeSpec describes one attribute of a form. Form is the nested form
// of subform and repeated attributes; multi_choice child forms are synthesized.
type AttributeSpec struct {
	Name    string             `json:"name"`
	Type    AttributeType      `json:"type"`
	Form    *FormSpec          `json:"form,omitempty"`
	Choices []ChoiceSpec       `json:"choices,omitempty"`
	Prompts []PromptSpec       `json:"prompts,omitempty"`
	View    *AttributeViewSpec `json:"view,omitempty"`
}

// ChoiceSpec is one option. A nil ID is allocated by the compiler.
type ChoiceSpec struct {
	ID       *int64 `json:"id,omitempty"`
	Label    string `json:"label"`
	Order    int    `json:"order,omitempty"`
	Language string `json:"language,omitempty"`
}

type PromptSpec struct {
	Text     string `json:"text"`
	Role     string `json:"role,omitempty"`
	Language string `json:"language,omitempty"`
}

// ViewSpec names the view created with a form.
type ViewSpec struct {
	Name        string          `json:"name"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
}

// AttributeViewSpec carries the constraints copied into the default attribute view.
type AttributeViewSpec struct {
	ValueConstraints []Rule          `json:"value_constraints,omitempty"`
	ViewConstraints  json.RawMessage `json:"view_constraints,omitempty"`
	ChoiceSetID      *int64          `json:"choice_set_id,omitempty"`
}

// Default prompt role.
const PromptRoleLabel = "label"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedColumns are the bookkeeping columns of every generated table.
var reservedColumns = map[string]struct{}{"id": {}, "obj_id": {}, "value_id": {}}

// Suffixes appended to generated relations and columns. Tables and indexes
// share one namespace, so a form name ending in one of them could collide
// with another form's heritable table or index.
var (
	reservedFormSuffixes      = []string{"_heritable", "_obj_idx", "_slot_idx"}
	reservedAttributeSuffixes = []string{"__withheld"}
)

// DefaultViewName returns the name of the view created when a spec supplies none.
func DefaultViewName(formName string) string {
	return strings.ToLower(formName) + "_view"
}

// SelectionFormName is the synthesized child form of a multi_choice attribute.
func SelectionFormName(attr string) string { return attr + "_selection" }

// SelectedIDAttribute is the integer attribute of a selection form.
func SelectedIDAttribute(attr string) string { return attr + "_selected_id" }

// OtherValueAttribute is the free-text attribute of a selection form.
func OtherValueAttribute(attr string) string { return attr + "_other_value" }

// Validate checks the whole spec tree before any SQL is issued.
func (s *FormSpec) Validate() error {
	forms := make(map[string]struct{})
	attrs := make(map[string]struct{})
	return s.validate(s.Name, forms, attrs)
}

func (s *FormSpec) validate(path string, forms, attrs map[string]struct{}) error {
	if err := checkName(path, "form", s.Name); err != nil {
		return err
	}
	if err := checkSuffix(path, "form", s.Name, reservedFormSuffixes); err != nil {
		return err
	}
	if _, dup := forms[s.Name]; dup {
		return NewDuplicateNameError(ErrCodeDuplicateForm, "form", s.Name)
	}
	forms[s.Name] = struct{}{}

	if s.View != nil {
		if strings.TrimSpace(s.View.Name) == "" {
			return NewInvalidSpecError(path+".view", "view name must not be empty")
		}
	}
	if len(s.Attributes) == 0 {
		return NewInvalidSpecError(path, "form needs at least one attribute")
	}

	for i := range s.Attributes {
		attr := &s.Attributes[i]
		attrPath := path + "." + attr.Name
		if err := attr.validate(attrPath, forms, attrs); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single attribute spec, as added to an existing form.
func (a *AttributeSpec) Validate() error {
	return a.validate(a.Name, make(map[string]struct{}), make(map[string]struct{}))
}

func (a *AttributeSpec) validate(path string, forms, attrs map[string]struct{}) error {
	if err := checkName(path, "attribute", a.Name); err != nil {
		return err
	}
	if _, reserved := reservedColumns[strings.ToLower(a.Name)]; reserved {
		return NewInvalidSpecError(path, fmt.Sprintf("attribute name %q is a reserved column", a.Name))
	}
	if err := checkSuffix(path, "attribute", a.Name, reservedAttributeSuffixes); err != nil {
		return err
	}
	if !a.Type.Valid() {
		return NewUnsupportedTypeError(path, a.Type)
	}
	if _, dup := attrs[a.Name]; dup {
		return NewDuplicateNameError(ErrCodeDuplicateAttribute, "attribute", a.Name)
	}
	attrs[a.Name] = struct{}{}

	switch a.Type {
	case AttributeTypeSubForm, AttributeTypeRepeated:
		if a.Form == nil {
			return NewInvalidSpecError(path, fmt.Sprintf("%s attribute needs a nested form", a.Type))
		}
		if err := a.Form.validate(path, forms, attrs); err != nil {
			return err
		}
	case AttributeTypeMultiChoice:
		if a.Form != nil {
			return NewInvalidSpecError(path, "multi_choice attributes must not declare a nested form")
		}
		sel := SelectionFormName(a.Name)
		if _, dup := forms[sel]; dup {
			return NewDuplicateNameError(ErrCodeDuplicateForm, "form", sel)
		}
		forms[sel] = struct{}{}
		for _, name := range []string{SelectedIDAttribute(a.Name), OtherValueAttribute(a.Name)} {
			if _, dup := attrs[name]; dup {
				return NewDuplicateNameError(ErrCodeDuplicateAttribute, "attribute", name)
			}
			attrs[name] = struct{}{}
		}
	default:
		if a.Form != nil {
			return NewInvalidSpecError(path, fmt.Sprintf("%s attribute must not declare a nested form", a.Type))
		}
	}

	if len(a.Choices) > 0 && !a.Type.HasChoices() {
		return NewInvalidSpecError(path, fmt.Sprintf("%s attribute cannot declare choices", a.Type))
	}
	for i, c := range a.Choices {
		if strings.TrimSpace(c.Label) == "" {
			return NewInvalidSpecError(fmt.Sprintf("%s.choices[%d]", path, i), "choice label must not be empty")
		}
		if c.ID != nil && *c.ID <= 0 {
			return NewInvalidSpecError(fmt.Sprintf("%s.choices[%d]", path, i), "choice id must be positive")
		}
		if err := checkLanguage(fmt.Sprintf("%s.choices[%d]", path, i), c.Language); err != nil {
			return err
		}
	}
	for i, p := range a.Prompts {
		if strings.TrimSpace(p.Text) == "" {
			return NewInvalidSpecError(fmt.Sprintf("%s.prompts[%d]", path, i), "prompt text must not be empty")
		}
		if err := checkLanguage(fmt.Sprintf("%s.prompts[%d]", path, i), p.Language); err != nil {
			return err
		}
	}
	if a.View != nil {
		for i, r := range a.View.ValueConstraints {
			if len(r.Actions) == 0 {
				return NewInvalidSpecError(fmt.Sprintf("%s.view.value_constraints[%d]", path, i), "rule needs at least one action")
			}
			for _, c := range r.Conditions {
				if !c.Op.valid() {
					return NewInvalidSpecError(fmt.Sprintf("%s.view.value_constraints[%d]", path, i),
						fmt.Sprintf("unknown comparison operator %q", c.Op))
				}
			}
		}
	}
	return nil
}

// Names lists every form and attribute name the spec tree will create,
// including the synthesized multi_choice selection forms.
func (s *FormSpec) Names() (forms []string, attributes []string) {
	forms = append(forms, s.Name)
	for i := range s.Attributes {
		f, a := s.Attributes[i].Names()
		forms = append(forms, f...)
		attributes = append(attributes, a...)
	}
	return forms, attributes
}

// Names lists the attribute itself plus every form and attribute nested
// below it.
func (a *AttributeSpec) Names() (forms []string, attributes []string) {
	attributes = append(attributes, a.Name)
	switch {
	case a.Form != nil:
		f, as := a.Form.Names()
		forms = append(forms, f...)
		attributes = append(attributes, as...)
	case a.Type == AttributeTypeMultiChoice:
		forms = append(forms, SelectionFormName(a.Name))
		attributes = append(attributes, SelectedIDAttribute(a.Name), OtherValueAttribute(a.Name))
	}
	return forms, attributes
}

func checkName(path, kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return NewInvalidSpecError(path, kind+" name must not be empty")
	}
	if !identifierPattern.MatchString(name) {
		return NewInvalidSpecError(path, fmt.Sprintf("%s name %q must start with a letter or underscore and contain only letters, digits and underscores", kind, name))
	}
	return nil
}

func checkSuffix(path, kind, name string, suffixes []string) error {
	lower := strings.ToLower(name)
	for _, suffix := range suffixes {
		if strings.HasSuffix(lower, suffix) {
			return NewInvalidSpecError(path, fmt.Sprintf("%s name %q must not end in %q", kind, name, suffix))
		}
	}
	return nil
}

func checkLanguage(path, tag string) error {
	if tag == "" {
		return nil
	}
	if _, err := language.Parse(tag); err != nil {
		return NewInvalidSpecError(path, fmt.Sprintf("invalid language tag %q", tag)).WithCause(err)
	}
	return nil
}

// CanonicalLanguage normalizes a language tag, falling back to def when tag is empty.
func CanonicalLanguage(tag, def string) string {
	if tag == "" {
		tag = def
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	return t.String()
}
