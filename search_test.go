package formtab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRequest_SortKeyShapes(t *testing.T) {
	raw := `{
  "sort": ["legal_name", {"emissions.scope_amount[scope=1]": {"order": "DESC"}}],
  "meta": {"reporting_year": [2023, 2024], "jurisdiction": ["Côte d'Ivoire"]},
  "fields": ["company_name"],
  "limit": 5,
  "offset": 5
}`
	var req SearchRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	require.Len(t, req.Sort, 2)
	assert.Equal(t, SortKey{Field: "legal_name", Order: SortAsc}, req.Sort[0])
	assert.Equal(t, SortKey{Field: "emissions.scope_amount[scope=1]", Order: SortDesc}, req.Sort[1])
	assert.Equal(t, []int{2023, 2024}, req.Meta.ReportingYear)
	assert.Equal(t, 5, req.Limit)
	assert.Equal(t, 5, req.Offset)
}

func TestSortKey_RejectsBadShapes(t *testing.T) {
	var k SortKey
	assert.Error(t, json.Unmarshal([]byte(`{"a": {"order": "up"}}`), &k))
	assert.Error(t, json.Unmarshal([]byte(`{"a": {}, "b": {}}`), &k))
	assert.Error(t, json.Unmarshal([]byte(`42`), &k))
}

func TestSortKey_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]SortKey{{Field: "lei"}, {Field: "legal_name", Order: SortDesc}})
	require.NoError(t, err)
	assert.JSONEq(t, `["lei", {"legal_name": {"order": "desc"}}]`, string(data))
}

func TestIsMetaField(t *testing.T) {
	assert.True(t, IsMetaField("legal_name"))
	assert.True(t, IsMetaField("sics_industry"))
	assert.False(t, IsMetaField("company_name"))
}

func TestWithExportMode(t *testing.T) {
	assert.False(t, ApplySearchOptions().ExportMode)
	assert.True(t, ApplySearchOptions(WithExportMode()).ExportMode)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(NewInvalidSortFieldError("nope", "unknown sort field")))
	assert.True(t, IsClientError(NewConstraintViolation("age", Rule{}, 7, "out of range")))
	assert.False(t, IsClientError(NewNotFoundError(ErrCodeFormNotFound, "form", 3)))
	assert.False(t, IsClientError(NewInternalError("boom", nil)))
}
