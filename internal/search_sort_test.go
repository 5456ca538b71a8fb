package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
)

func disclosureDefinition(t *testing.T) (*testSchema, *formtab.BuildResult, *formtab.FormDefinition) {
	t.Helper()
	s := newTestSchema(t)
	res := s.build(t, disclosureSpec())
	def, err := s.reader.Read(context.Background(), res.FormID, formtab.ReadSchema)
	require.NoError(t, err)
	return s, res, def
}

func TestParseSortPath(t *testing.T) {
	p, err := parseSortPath("emissions.scope_amount[scope=Scope 1]")
	require.NoError(t, err)
	assert.Equal(t, []string{"emissions", "scope_amount"}, p.Segments)
	require.NotNil(t, p.Qualifier)
	assert.Equal(t, sortQualifier{Field: "scope", Value: "Scope 1"}, *p.Qualifier)

	p, err = parseSortPath("company_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"company_name"}, p.Segments)
	assert.Nil(t, p.Qualifier)

	for _, bad := range []string{"", "a..b", "a[b]", "a[=1]", "a[b=1][c=2]", `a"; DROP TABLE x; --`} {
		_, err := parseSortPath(bad)
		assert.True(t, formtab.IsInvalidSortField(err), "expected %q to be rejected", bad)
	}
}

func TestResolveSort(t *testing.T) {
	_, _, def := disclosureDefinition(t)

	s, err := resolveSort(def, formtab.SortKey{Field: formtab.MetaLegalName})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = resolveSort(def, formtab.SortKey{Field: "employees"})
	require.NoError(t, err)
	assert.Empty(t, s.Path)
	assert.Equal(t, "employees", s.Leaf.Attribute.Name)

	s, err = resolveSort(def, formtab.SortKey{Field: "emissions.scope_amount[scope=1]"})
	require.NoError(t, err)
	require.Len(t, s.Path, 1)
	assert.Equal(t, "emissions", s.Path[0].Attribute.Name)
	assert.Equal(t, "scope_amount", s.Leaf.Attribute.Name)
	assert.Equal(t, int64(1), s.Qualifier.Value)

	s, err = resolveSort(def, formtab.SortKey{Field: "emissions.scope_amount[scope=scope 2]"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Qualifier.Value)
}

func TestResolveSort_Rejects(t *testing.T) {
	_, _, def := disclosureDefinition(t)
	for _, field := range []string{
		"missing",
		"emissions",
		"company_name.length",
		"emissions.missing",
		"emissions.scope_amount[scope=Scope 9]",
		"emissions.scope_amount[missing=1]",
		"emissions.scope_amount[scope_amount=x]",
	} {
		_, err := resolveSort(def, formtab.SortKey{Field: field})
		assert.True(t, formtab.IsInvalidSortField(err), "expected %q to be rejected, got %v", field, err)
	}
}
