package internal

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
)

func TestSchemaCompiler_BuildRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	spec := disclosureSpec()

	res := s.build(t, spec)
	assert.NotZero(t, res.FormID)
	assert.NotZero(t, res.ViewID)
	assert.Equal(t, []string{"emission_row_heritable", "topics_selection_heritable", "disclosure"}, res.Tables)

	def, err := s.reader.Read(ctx, res.FormID, formtab.ReadSchema)
	require.NoError(t, err)
	assert.Equal(t, spec, def.ToSpec())

	topics, ok := def.Attribute("topics")
	require.True(t, ok)
	require.NotNil(t, topics.Child)
	assert.Equal(t, "topics_selection", topics.Child.Form.Name)
	assert.True(t, topics.Child.Form.Heritable)
	assert.Len(t, topics.Choices, 2)
}

func TestSchemaCompiler_ReadViewEmbedsAttribute(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	res := s.build(t, disclosureSpec())

	schema, err := s.reader.Read(ctx, res.FormID, formtab.ReadSchema)
	require.NoError(t, err)
	for _, ad := range schema.Attributes {
		for _, v := range ad.Views {
			assert.Nil(t, v.Attribute)
		}
	}

	view, err := s.reader.Read(ctx, res.FormID, formtab.ReadView)
	require.NoError(t, err)
	name, _ := view.Attribute("company_name")
	require.Len(t, name.Views, 1)
	require.NotNil(t, name.Views[0].Attribute)
	assert.Equal(t, "company_name", name.Views[0].Attribute.Name)
}

func TestSchemaCompiler_RecordsDDL(t *testing.T) {
	s := newTestSchema(t)
	s.build(t, disclosureSpec())

	ddl := strings.Join(s.store.Statements(), "\n")
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "disclosure"`)
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "emission_row_heritable"`)
	assert.Contains(t, ddl, "value_id BIGINT NOT NULL")
	assert.Contains(t, ddl, `CREATE TYPE "formtab_int_or_null" AS (value INTEGER, withheld BOOLEAN)`)
	assert.Contains(t, ddl, `"disclosure_obj_idx"`)
	assert.Contains(t, ddl, `"emission_row_heritable_slot_idx"`)
}

func TestSchemaCompiler_DuplicateFormName(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	s.build(t, &formtab.FormSpec{Name: "profile", Attributes: []formtab.AttributeSpec{{Name: "alias", Type: formtab.AttributeTypeText}}})

	_, err := s.compiler.Build(ctx, &formtab.FormSpec{Name: "profile", Attributes: []formtab.AttributeSpec{{Name: "nickname", Type: formtab.AttributeTypeText}}})
	require.Error(t, err)
	assert.True(t, formtab.IsDuplicateName(err))
}

func TestSchemaCompiler_AttributeNamesUniqueAcrossForms(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	s.build(t, &formtab.FormSpec{Name: "profile", Attributes: []formtab.AttributeSpec{{Name: "alias", Type: formtab.AttributeTypeText}}})

	_, err := s.compiler.Build(ctx, &formtab.FormSpec{
		Name: "contact",
		Attributes: []formtab.AttributeSpec{
			{Name: "phone", Type: formtab.AttributeTypeText},
			{Name: "alias", Type: formtab.AttributeTypeText},
		},
	})
	require.Error(t, err)
	assert.True(t, formtab.IsDuplicateName(err))

	// nothing of the failed build is left behind
	_, err = s.store.FormByName(ctx, "contact")
	assert.True(t, formtab.IsNotFound(err))
}

func TestSchemaCompiler_InvalidSpecRejected(t *testing.T) {
	s := newTestSchema(t)
	_, err := s.compiler.Build(context.Background(), &formtab.FormSpec{
		Name:       "broken",
		Attributes: []formtab.AttributeSpec{{Name: "rows", Type: formtab.AttributeTypeRepeated}},
	})
	require.Error(t, err)
	assert.True(t, formtab.IsInvalidSpec(err))
	assert.Empty(t, s.store.Statements())
}

func TestSchemaCompiler_AutoChoiceIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	res := s.build(t, &formtab.FormSpec{
		Name: "survey",
		Attributes: []formtab.AttributeSpec{{
			Name: "answer",
			Type: formtab.AttributeTypeSingleChoice,
			Choices: []formtab.ChoiceSpec{
				{Label: "Yes"},
				{Label: "No"},
				{ID: id64(7), Label: "Unsure"},
			},
		}},
	})

	def, err := s.reader.Read(ctx, res.FormID, formtab.ReadSchema)
	require.NoError(t, err)
	answer, _ := def.Attribute("answer")
	ids := map[string]int64{}
	for _, c := range answer.Choices {
		ids[c.Label] = c.ChoiceID
		assert.Equal(t, "en", c.Language)
	}
	assert.Equal(t, map[string]int64{"Yes": 1_000_000, "No": 1_000_001, "Unsure": 7}, ids)

	require.NoError(t, s.compiler.AddChoices(ctx, *answer.Attribute.ChoiceSetID, []formtab.ChoiceSpec{{Label: "Maybe"}}))
	def, err = s.reader.Read(ctx, res.FormID, formtab.ReadSchema)
	require.NoError(t, err)
	answer, _ = def.Attribute("answer")
	assert.Len(t, answer.Choices, 4)
	assert.Equal(t, int64(1_000_002), answer.Choices[len(answer.Choices)-1].ChoiceID)

	err = s.compiler.AddChoices(ctx, *answer.Attribute.ChoiceSetID, []formtab.ChoiceSpec{{ID: id64(7), Label: "Again", Language: "en"}})
	require.Error(t, err)
	assert.True(t, formtab.IsDuplicateName(err))
}

func TestSchemaCompiler_AddChoicesUnknownSet(t *testing.T) {
	s := newTestSchema(t)
	err := s.compiler.AddChoices(context.Background(), 404, []formtab.ChoiceSpec{{Label: "x"}})
	require.Error(t, err)
	assert.True(t, formtab.IsNotFound(err))
}

func TestSchemaCompiler_AddAttribute(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	res := s.build(t, disclosureSpec())

	before, err := s.reader.Read(ctx, res.FormID, formtab.ReadSchema)
	require.NoError(t, err)

	id, err := s.compiler.AddAttribute(ctx, res.FormID, &formtab.AttributeSpec{Name: "revenue", Type: formtab.AttributeTypeFloatOrNull})
	require.NoError(t, err)
	assert.NotZero(t, id)

	after, err := s.reader.Read(ctx, res.FormID, formtab.ReadSchema)
	require.NoError(t, err)
	assert.Len(t, after.Attributes, len(before.Attributes)+1)
	last := after.Attributes[len(after.Attributes)-1]
	assert.Equal(t, "revenue", last.Attribute.Name)
	assert.Equal(t, len(before.Attributes), last.Attribute.Position)
	require.Len(t, last.Views, 1)
	assert.Equal(t, res.ViewID, last.Views[0].FormViewID)

	stmts := s.store.Statements()
	assert.Contains(t, stmts[len(stmts)-1], `ALTER TABLE "disclosure" ADD COLUMN IF NOT EXISTS "revenue"`)

	_, err = s.compiler.AddAttribute(ctx, res.FormID, &formtab.AttributeSpec{Name: "employees", Type: formtab.AttributeTypeInt})
	assert.True(t, formtab.IsDuplicateName(err))

	_, err = s.compiler.AddAttribute(ctx, 9999, &formtab.AttributeSpec{Name: "orphan", Type: formtab.AttributeTypeInt})
	assert.True(t, formtab.IsNotFound(err))
}

func TestSchemaCompiler_Views(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	res := s.build(t, disclosureSpec())

	reviewID, err := s.compiler.CreateView(ctx, res.FormID, &formtab.ViewSpec{Name: "review"})
	require.NoError(t, err)
	base, err := s.store.AttributeViewsByView(ctx, res.ViewID)
	require.NoError(t, err)
	copied, err := s.store.AttributeViewsByView(ctx, reviewID)
	require.NoError(t, err)
	assert.Len(t, copied, len(base))

	_, err = s.compiler.CreateView(ctx, res.FormID, &formtab.ViewSpec{Name: "review"})
	assert.True(t, formtab.IsDuplicateName(err))

	cloneID, err := s.compiler.CloneView(ctx, reviewID)
	require.NoError(t, err)
	clone, err := s.store.ViewByID(ctx, cloneID)
	require.NoError(t, err)
	assert.Equal(t, "review", clone.Name)
	assert.Equal(t, 2, clone.Revision)
	assert.False(t, clone.Active)

	require.NoError(t, s.compiler.SetViewActive(ctx, res.FormID, "review", 2, true))
	clone, err = s.store.ViewByID(ctx, cloneID)
	require.NoError(t, err)
	assert.True(t, clone.Active)
	first, err := s.store.ViewByID(ctx, reviewID)
	require.NoError(t, err)
	assert.True(t, first.Active)

	err = s.compiler.SetViewActive(ctx, res.FormID, "review", 9, true)
	assert.True(t, formtab.IsNotFound(err))
}

func TestSchemaCompiler_ChangesInvalidateCache(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	res := s.build(t, disclosureSpec())

	_, err := s.reader.Read(ctx, res.FormID, formtab.ReadSchema)
	require.NoError(t, err)
	assert.Equal(t, 1, s.cache.Len())

	_, err = s.compiler.AddAttribute(ctx, res.FormID, &formtab.AttributeSpec{Name: "notes", Type: formtab.AttributeTypeText})
	require.NoError(t, err)
	assert.Equal(t, 0, s.cache.Len())
}

func TestSchemaCompiler_SupportedTypes(t *testing.T) {
	s := newTestSchema(t)
	assert.ElementsMatch(t, s.compiler.SupportedTypes(), defaultReaderRegistry().SupportedTypes())
	assert.Contains(t, s.compiler.SupportedTypes(), formtab.AttributeTypeSingleChoiceOrNull)
}
