package internal

import (
	"context"
	"fmt"
	"slices"

	"github.com/lychee-technology/formtab"
)

// readContext carries one Read call through the attribute readers.
type readContext struct {
	rc     formtab.ReadContext
	store  MetadataStore
	reader *SchemaReader
	// visiting guards against reference cycles in corrupt metadata.
	visiting map[int64]bool
}

type attributeReader interface {
	SupportedTypes() []formtab.AttributeType
	Read(ctx context.Context, rdc *readContext, attr *formtab.Attribute) (*formtab.AttributeDefinition, error)
}

type readerRegistry struct {
	readers map[formtab.AttributeType]attributeReader
}

func newReaderRegistry(readers ...attributeReader) *readerRegistry {
	r := &readerRegistry{readers: make(map[formtab.AttributeType]attributeReader)}
	for _, rd := range readers {
		for _, t := range rd.SupportedTypes() {
			r.readers[t] = rd
		}
	}
	return r
}

func defaultReaderRegistry() *readerRegistry {
	return newReaderRegistry(scalarReader{}, choiceReader{}, multiChoiceReader{}, subFormReader{})
}

func (r *readerRegistry) lookup(field string, t formtab.AttributeType) (attributeReader, error) {
	rd, ok := r.readers[t]
	if !ok {
		return nil, formtab.NewUnsupportedTypeError(field, t)
	}
	return rd, nil
}

func (r *readerRegistry) SupportedTypes() []formtab.AttributeType {
	out := make([]formtab.AttributeType, 0, len(r.readers))
	for t := range r.readers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// SchemaReader reconstructs nested form definitions from metadata.
type SchemaReader struct {
	store   MetadataStore
	readers *readerRegistry
	cache   *MetadataCache
}

var _ formtab.SchemaReader = (*SchemaReader)(nil)

// NewSchemaReader creates a reader. cache may be nil.
func NewSchemaReader(store MetadataStore, cache *MetadataCache) *SchemaReader {
	return &SchemaReader{store: store, readers: defaultReaderRegistry(), cache: cache}
}

// Read returns the definition of a form with every nested child form.
func (r *SchemaReader) Read(ctx context.Context, formID int64, rc formtab.ReadContext) (*formtab.FormDefinition, error) {
	if def, ok := r.cache.Definition(formID, rc); ok {
		return def, nil
	}
	rdc := &readContext{rc: rc, store: r.store, reader: r, visiting: make(map[int64]bool)}
	def, err := r.readForm(ctx, rdc, formID)
	if err != nil {
		return nil, err
	}
	r.cache.Store(def, rc)
	return def, nil
}

// ReadByName resolves the form name and reads it.
func (r *SchemaReader) ReadByName(ctx context.Context, name string, rc formtab.ReadContext) (*formtab.FormDefinition, error) {
	if id, ok := r.cache.FormID(name); ok {
		return r.Read(ctx, id, rc)
	}
	form, err := r.store.FormByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.Read(ctx, form.ID, rc)
}

func (r *SchemaReader) readForm(ctx context.Context, rdc *readContext, formID int64) (*formtab.FormDefinition, error) {
	if rdc.visiting[formID] {
		return nil, formtab.NewInternalError(fmt.Sprintf("form %d references itself", formID), nil)
	}
	rdc.visiting[formID] = true
	defer delete(rdc.visiting, formID)

	form, err := rdc.store.FormByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	def := &formtab.FormDefinition{Form: *form}

	view, err := defaultView(ctx, rdc.store, formID)
	switch {
	case err == nil:
		def.View = view
	case !formtab.IsNotFound(err):
		return nil, err
	}

	attrs, err := rdc.store.AttributesByForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	def.Attributes = make([]formtab.AttributeDefinition, 0, len(attrs))
	for i := range attrs {
		attr := &attrs[i]
		rd, err := r.readers.lookup(form.Name+"."+attr.Name, attr.Type)
		if err != nil {
			return nil, err
		}
		ad, err := rd.Read(ctx, rdc, attr)
		if err != nil {
			return nil, err
		}
		def.Attributes = append(def.Attributes, *ad)
	}
	return def, nil
}

// readBase loads prompts and attribute views shared by every type.
func readBase(ctx context.Context, rdc *readContext, attr *formtab.Attribute) (*formtab.AttributeDefinition, error) {
	def := &formtab.AttributeDefinition{Attribute: *attr}

	prompts, err := rdc.store.Prompts(ctx, attr.ID)
	if err != nil {
		return nil, err
	}
	def.Prompts = prompts

	views, err := rdc.store.AttributeViewsByAttribute(ctx, attr.ID)
	if err != nil {
		return nil, err
	}
	for _, av := range views {
		vd := formtab.AttributeViewDefinition{AttributeView: av}
		if rdc.rc == formtab.ReadView {
			embedded := *attr
			vd.Attribute = &embedded
		}
		def.Views = append(def.Views, vd)
	}
	return def, nil
}

func readChoices(ctx context.Context, rdc *readContext, attr *formtab.Attribute) ([]formtab.Choice, error) {
	if attr.ChoiceSetID == nil {
		return nil, choiceSetNotFound(fmt.Sprintf("of attribute %s", attr.Name))
	}
	ok, err := rdc.store.ChoiceSetExists(ctx, *attr.ChoiceSetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, choiceSetNotFound(*attr.ChoiceSetID)
	}
	return rdc.store.Choices(ctx, *attr.ChoiceSetID)
}

func readChild(ctx context.Context, rdc *readContext, attr *formtab.Attribute) (*formtab.FormDefinition, error) {
	if attr.ChildFormID == nil {
		return nil, formNotFound(fmt.Sprintf("child of attribute %s", attr.Name))
	}
	return rdc.reader.readForm(ctx, rdc, *attr.ChildFormID)
}

type scalarReader struct{}

func (scalarReader) SupportedTypes() []formtab.AttributeType { return scalarBuilder{}.SupportedTypes() }

func (scalarReader) Read(ctx context.Context, rdc *readContext, attr *formtab.Attribute) (*formtab.AttributeDefinition, error) {
	return readBase(ctx, rdc, attr)
}

type choiceReader struct{}

func (choiceReader) SupportedTypes() []formtab.AttributeType { return choiceBuilder{}.SupportedTypes() }

func (choiceReader) Read(ctx context.Context, rdc *readContext, attr *formtab.Attribute) (*formtab.AttributeDefinition, error) {
	def, err := readBase(ctx, rdc, attr)
	if err != nil {
		return nil, err
	}
	if def.Choices, err = readChoices(ctx, rdc, attr); err != nil {
		return nil, err
	}
	return def, nil
}

type multiChoiceReader struct{}

func (multiChoiceReader) SupportedTypes() []formtab.AttributeType {
	return multiChoiceBuilder{}.SupportedTypes()
}

func (multiChoiceReader) Read(ctx context.Context, rdc *readContext, attr *formtab.Attribute) (*formtab.AttributeDefinition, error) {
	def, err := readBase(ctx, rdc, attr)
	if err != nil {
		return nil, err
	}
	if def.Child, err = readChild(ctx, rdc, attr); err != nil {
		return nil, err
	}
	if def.Choices, err = readChoices(ctx, rdc, attr); err != nil {
		return nil, err
	}
	return def, nil
}

type subFormReader struct{}

func (subFormReader) SupportedTypes() []formtab.AttributeType { return subFormBuilder{}.SupportedTypes() }

func (subFormReader) Read(ctx context.Context, rdc *readContext, attr *formtab.Attribute) (*formtab.AttributeDefinition, error) {
	def, err := readBase(ctx, rdc, attr)
	if err != nil {
		return nil, err
	}
	if def.Child, err = readChild(ctx, rdc, attr); err != nil {
		return nil, err
	}
	return def, nil
}
