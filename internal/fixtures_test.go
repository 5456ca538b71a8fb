package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
)

func id64(v int64) *int64 { return &v }

// disclosureSpec is a root form with every builder in play. All choice ids,
// languages and prompt roles are explicit so the spec survives a round trip.
func disclosureSpec() *formtab.FormSpec {
	return &formtab.FormSpec{
		Name:        "disclosure",
		Description: "Annual climate disclosure",
		Attributes: []formtab.AttributeSpec{
			{
				Name:    "company_name",
				Type:    formtab.AttributeTypeText,
				Prompts: []formtab.PromptSpec{{Text: "Company name", Role: "label", Language: "en"}},
			},
			{Name: "employees", Type: formtab.AttributeTypeIntOrNull},
			{
				Name: "data_model",
				Type: formtab.AttributeTypeSingleChoice,
				Choices: []formtab.ChoiceSpec{
					{ID: id64(10), Label: "IFRS S2", Language: "en"},
					{ID: id64(11), Label: "ESRS E1", Language: "en"},
				},
			},
			{
				Name: "emissions",
				Type: formtab.AttributeTypeRepeated,
				Form: &formtab.FormSpec{
					Name: "emission_row",
					Attributes: []formtab.AttributeSpec{
						{
							Name: "scope",
							Type: formtab.AttributeTypeSingleChoice,
							Choices: []formtab.ChoiceSpec{
								{ID: id64(1), Label: "Scope 1", Language: "en"},
								{ID: id64(2), Label: "Scope 2", Language: "en"},
							},
						},
						{Name: "scope_amount", Type: formtab.AttributeTypeFloatOrNull},
					},
				},
			},
			{
				Name: "topics",
				Type: formtab.AttributeTypeMultiChoice,
				Choices: []formtab.ChoiceSpec{
					{ID: id64(1), Label: "Water", Language: "en"},
					{ID: id64(2), Label: "Energy", Language: "en"},
				},
			},
		},
	}
}

type testSchema struct {
	store    *MemoryMetadataStore
	cache    *MetadataCache
	compiler *SchemaCompiler
	reader   *SchemaReader
}

func newTestSchema(t *testing.T) *testSchema {
	t.Helper()
	store := NewMemoryMetadataStore()
	cache := NewMetadataCache()
	compiler, err := NewSchemaCompiler(store, formtab.DefaultConfig(), cache)
	require.NoError(t, err)
	return &testSchema{store: store, cache: cache, compiler: compiler, reader: NewSchemaReader(store, cache)}
}

func (s *testSchema) build(t *testing.T, spec *formtab.FormSpec) *formtab.BuildResult {
	t.Helper()
	res, err := s.compiler.Build(context.Background(), spec)
	require.NoError(t, err)
	return res
}
