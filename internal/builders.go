package internal

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

// buildContext is the read-only configuration of one compiler call. It is
// passed to every builder instead of being kept on the builders.
type buildContext struct {
	buildID  uuid.UUID
	store    MetadataStore
	cfg      formtab.CompilerConfig
	ddl      *ddl.Builder
	logDDL   bool
	compiler *SchemaCompiler
}

// attributeRequest is one attribute to build inside an existing form and view.
type attributeRequest struct {
	Spec     *formtab.AttributeSpec
	FormID   int64
	ViewID   int64
	OwnerID  int64
	Position int
}

type builtAttribute struct {
	Attribute formtab.Attribute
	// Tables created for child forms, in creation order.
	Tables []string
}

type attributeBuilder interface {
	SupportedTypes() []formtab.AttributeType
	Build(ctx context.Context, bc *buildContext, req attributeRequest) (*builtAttribute, error)
}

// builderRegistry dispatches attribute types to their builder.
type builderRegistry struct {
	builders map[formtab.AttributeType]attributeBuilder
}

func newBuilderRegistry(builders ...attributeBuilder) *builderRegistry {
	r := &builderRegistry{builders: make(map[formtab.AttributeType]attributeBuilder)}
	for _, b := range builders {
		r.register(b)
	}
	return r
}

func defaultBuilderRegistry() *builderRegistry {
	return newBuilderRegistry(scalarBuilder{}, choiceBuilder{}, multiChoiceBuilder{}, subFormBuilder{})
}

func (r *builderRegistry) register(b attributeBuilder) {
	for _, t := range b.SupportedTypes() {
		r.builders[t] = b
	}
}

func (r *builderRegistry) lookup(field string, t formtab.AttributeType) (attributeBuilder, error) {
	b, ok := r.builders[t]
	if !ok {
		return nil, formtab.NewUnsupportedTypeError(field, t)
	}
	return b, nil
}

// SupportedTypes lists every registered type tag in a stable order.
func (r *builderRegistry) SupportedTypes() []formtab.AttributeType {
	out := make([]formtab.AttributeType, 0, len(r.builders))
	for t := range r.builders {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// insertAttribute writes the attribute row, its default attribute view and
// its prompts.
func insertAttribute(ctx context.Context, bc *buildContext, req attributeRequest, childFormID, choiceSetID *int64) (*formtab.Attribute, error) {
	spec := req.Spec
	attr := &formtab.Attribute{
		Name:        spec.Name,
		FormID:      req.FormID,
		Type:        spec.Type,
		ChildFormID: childFormID,
		ChoiceSetID: choiceSetID,
		Position:    req.Position,
		OwnerID:     req.OwnerID,
	}
	if err := bc.store.InsertAttribute(ctx, attr); err != nil {
		return nil, err
	}

	av := &formtab.AttributeView{AttributeID: attr.ID, FormViewID: req.ViewID}
	if spec.View != nil {
		av.ValueConstraints = spec.View.ValueConstraints
		av.ViewConstraints = spec.View.ViewConstraints
		if spec.View.ChoiceSetID != nil {
			ok, err := bc.store.ChoiceSetExists(ctx, *spec.View.ChoiceSetID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, choiceSetNotFound(*spec.View.ChoiceSetID)
			}
			av.ChoiceSetID = spec.View.ChoiceSetID
		}
	}
	if err := bc.store.InsertAttributeView(ctx, av); err != nil {
		return nil, err
	}

	for _, p := range spec.Prompts {
		role := p.Role
		if role == "" {
			role = formtab.PromptRoleLabel
		}
		prompt := &formtab.Prompt{
			AttributeID: attr.ID,
			Text:        p.Text,
			Role:        role,
			Language:    formtab.CanonicalLanguage(p.Language, bc.cfg.DefaultLanguage),
		}
		if err := bc.store.InsertPrompt(ctx, prompt); err != nil {
			return nil, err
		}
	}
	return attr, nil
}

// scalarBuilder handles every type stored in a single column of the form table.
type scalarBuilder struct{}

func (scalarBuilder) SupportedTypes() []formtab.AttributeType {
	return []formtab.AttributeType{
		formtab.AttributeTypeText, formtab.AttributeTypeBool, formtab.AttributeTypeInt,
		formtab.AttributeTypeFloat, formtab.AttributeTypeDateTime, formtab.AttributeTypeFile,
		formtab.AttributeTypeTextOrNull, formtab.AttributeTypeIntOrNull, formtab.AttributeTypeFloatOrNull,
		formtab.AttributeTypeBoolOrNull, formtab.AttributeTypeDateTimeOrNull,
	}
}

func (scalarBuilder) Build(ctx context.Context, bc *buildContext, req attributeRequest) (*builtAttribute, error) {
	attr, err := insertAttribute(ctx, bc, req, nil, nil)
	if err != nil {
		return nil, err
	}
	return &builtAttribute{Attribute: *attr}, nil
}

// choiceBuilder creates a choice set for single-choice attributes.
type choiceBuilder struct{}

func (choiceBuilder) SupportedTypes() []formtab.AttributeType {
	return []formtab.AttributeType{formtab.AttributeTypeSingleChoice, formtab.AttributeTypeSingleChoiceOrNull}
}

func (choiceBuilder) Build(ctx context.Context, bc *buildContext, req attributeRequest) (*builtAttribute, error) {
	setID, err := newChoiceSet(ctx, bc, req.Spec.Choices)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", req.Spec.Name, err)
	}
	attr, err := insertAttribute(ctx, bc, req, nil, &setID)
	if err != nil {
		return nil, err
	}
	return &builtAttribute{Attribute: *attr}, nil
}

// multiChoiceBuilder synthesizes the heritable selection form that stores
// one row per selected option.
type multiChoiceBuilder struct{}

func (multiChoiceBuilder) SupportedTypes() []formtab.AttributeType {
	return []formtab.AttributeType{formtab.AttributeTypeMultiChoice}
}

func selectionFormSpec(attr string, ownerID int64) *formtab.FormSpec {
	return &formtab.FormSpec{
		Name:    formtab.SelectionFormName(attr),
		OwnerID: ownerID,
		Attributes: []formtab.AttributeSpec{
			{Name: formtab.SelectedIDAttribute(attr), Type: formtab.AttributeTypeInt},
			{Name: formtab.OtherValueAttribute(attr), Type: formtab.AttributeTypeText},
		},
	}
}

func (multiChoiceBuilder) Build(ctx context.Context, bc *buildContext, req attributeRequest) (*builtAttribute, error) {
	child, err := bc.compiler.buildForm(ctx, bc, selectionFormSpec(req.Spec.Name, req.OwnerID), true)
	if err != nil {
		return nil, err
	}
	setID, err := newChoiceSet(ctx, bc, req.Spec.Choices)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", req.Spec.Name, err)
	}
	attr, err := insertAttribute(ctx, bc, req, &child.Form.ID, &setID)
	if err != nil {
		return nil, err
	}
	return &builtAttribute{Attribute: *attr, Tables: child.Tables}, nil
}

// subFormBuilder builds the nested heritable form before the attribute row.
type subFormBuilder struct{}

func (subFormBuilder) SupportedTypes() []formtab.AttributeType {
	return []formtab.AttributeType{formtab.AttributeTypeSubForm, formtab.AttributeTypeRepeated}
}

func (subFormBuilder) Build(ctx context.Context, bc *buildContext, req attributeRequest) (*builtAttribute, error) {
	if req.Spec.Form == nil {
		return nil, formtab.NewInvalidSpecError(req.Spec.Name, fmt.Sprintf("%s attribute needs a nested form", req.Spec.Type))
	}
	nested := *req.Spec.Form
	if nested.OwnerID == 0 {
		nested.OwnerID = req.OwnerID
	}
	child, err := bc.compiler.buildForm(ctx, bc, &nested, true)
	if err != nil {
		return nil, err
	}
	attr, err := insertAttribute(ctx, bc, req, &child.Form.ID, nil)
	if err != nil {
		return nil, err
	}
	return &builtAttribute{Attribute: *attr, Tables: child.Tables}, nil
}
