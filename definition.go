package formtab

// ReadContext selects how much of a definition the reader populates.
type ReadContext int

const (
	// ReadSchema loads metadata only.
	ReadSchema ReadContext = iota
	// ReadView additionally embeds the attribute in every attribute view row.
	ReadView
)

func (c ReadContext) String() string {
	if c == ReadView {
		return "view"
	}
	return "schema"
}

// FormDefinition is a fully nested form as reconstructed from metadata.
type FormDefinition struct {
	Form       Form                  `json:"form"`
	View       *FormView             `json:"view,omitempty"`
	Attributes []AttributeDefinition `json:"attributes"`
}

// AttributeDefinition is one attribute with its child form, choices, prompts and views.
type AttributeDefinition struct {
	Attribute Attribute                 `json:"attribute"`
	Child     *FormDefinition           `json:"child,omitempty"`
	Choices   []Choice                  `json:"choices,omitempty"`
	Prompts   []Prompt                  `json:"prompts,omitempty"`
	Views     []AttributeViewDefinition `json:"views,omitempty"`
}

// AttributeViewDefinition is an attribute view row. Attribute is only set in ReadView.
type AttributeViewDefinition struct {
	AttributeView
	Attribute *Attribute `json:"attribute,omitempty"`
}

// Attribute returns the definition of the named attribute, searching nested forms.
func (d *FormDefinition) Attribute(name string) (*AttributeDefinition, bool) {
	for i := range d.Attributes {
		a := &d.Attributes[i]
		if a.Attribute.Name == name {
			return a, true
		}
	}
	return nil, false
}

// ToSpec converts a definition back into the spec that would build it.
// Synthesized multi_choice selection forms are omitted.
func (d *FormDefinition) ToSpec() *FormSpec {
	spec := &FormSpec{
		Name:        d.Form.Name,
		Description: d.Form.Description,
		OwnerID:     d.Form.OwnerID,
	}
	if d.View != nil && d.View.Name != DefaultViewName(d.Form.Name) {
		spec.View = &ViewSpec{Name: d.View.Name, Constraints: d.View.Constraints}
	}

	for _, a := range d.Attributes {
		as := AttributeSpec{
			Name: a.Attribute.Name,
			Type: a.Attribute.Type,
		}
		if a.Child != nil && a.Attribute.Type != AttributeTypeMultiChoice {
			as.Form = a.Child.ToSpec()
		}
		for _, c := range a.Choices {
			id := c.ChoiceID
			as.Choices = append(as.Choices, ChoiceSpec{ID: &id, Label: c.Label, Order: c.Order, Language: c.Language})
		}
		for _, p := range a.Prompts {
			as.Prompts = append(as.Prompts, PromptSpec{Text: p.Text, Role: p.Role, Language: p.Language})
		}
		if v := a.viewFor(d.View); v != nil && (len(v.ValueConstraints) > 0 || len(v.ViewConstraints) > 0) {
			as.View = &AttributeViewSpec{
				ValueConstraints: v.ValueConstraints,
				ViewConstraints:  v.ViewConstraints,
			}
		}
		spec.Attributes = append(spec.Attributes, as)
	}
	return spec
}

func (a *AttributeDefinition) viewFor(fv *FormView) *AttributeViewDefinition {
	if len(a.Views) == 0 {
		return nil
	}
	if fv != nil {
		for i := range a.Views {
			if a.Views[i].FormViewID == fv.ID {
				return &a.Views[i]
			}
		}
	}
	return &a.Views[0]
}
