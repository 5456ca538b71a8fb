package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

func TestPostgresSubmissionLoader_AssemblesRowTree(t *testing.T) {
	ctx := context.Background()
	s := newTestSchema(t)
	res := s.build(t, &formtab.FormSpec{
		Name: "site",
		Attributes: []formtab.AttributeSpec{
			{Name: "site_name", Type: formtab.AttributeTypeText},
			{Name: "headcount", Type: formtab.AttributeTypeIntOrNull},
			{Name: "readings", Type: formtab.AttributeTypeRepeated, Form: &formtab.FormSpec{
				Name:       "reading",
				Attributes: []formtab.AttributeSpec{{Name: "reading_value", Type: formtab.AttributeTypeInt}},
			}},
		},
	})

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ids := []int64{1, 2}
	mock.ExpectQuery(`SELECT o.id, v.form_id FROM "formtab_objects" o JOIN "formtab_form_views" v`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"id", "form_id"}).
			AddRow(int64(1), res.FormID).
			AddRow(int64(2), res.FormID))
	mock.ExpectQuery(`FROM "site" t WHERE t.obj_id = ANY`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"__row_id", "__obj_id", "site_name", "headcount", "headcount__withheld", "readings"}).
			AddRow(int64(10), int64(1), "North", int32(40), false, int32(100)).
			AddRow(int64(11), int64(2), "South", nil, true, nil))
	mock.ExpectQuery(`FROM "reading_heritable" t WHERE t.obj_id = ANY`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"__row_id", "__obj_id", "__value_id", "reading_value"}).
			AddRow(int64(20), int64(1), int64(100), int32(5)).
			AddRow(int64(21), int64(1), int64(100), int32(7)))

	loader := NewPostgresSubmissionLoader(mock, s.reader, ddl.CompositeCodec{}, formtab.DefaultConfig())
	got, err := loader.LoadSubmissions(ctx, ids)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"site_name": "North",
		"headcount": formtab.Present(int64(40)),
		"readings": []any{
			map[string]any{"reading_value": int64(5)},
			map[string]any{"reading_value": int64(7)},
		},
	}, got[1])
	assert.Equal(t, map[string]any{
		"site_name": "South",
		"headcount": formtab.Withheld(),
		"readings":  nil,
	}, got[2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubmissionLoader_NoIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	loader := NewPostgresSubmissionLoader(mock, nil, ddl.CompositeCodec{}, formtab.DefaultConfig())
	got, err := loader.LoadSubmissions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssembleChildren(t *testing.T) {
	rows := []map[string]any{{"a": 1}, {"a": 2}}
	assert.Equal(t, map[string]any{"a": 1}, assembleChildren(formtab.AttributeTypeSubForm, rows))
	assert.Nil(t, assembleChildren(formtab.AttributeTypeSubForm, nil))
	assert.Len(t, assembleChildren(formtab.AttributeTypeRepeated, rows), 2)
	assert.Equal(t, []any{}, assembleChildren(formtab.AttributeTypeMultiChoice, nil))
}

func TestPostgresRestatementSource_Latest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sourceID := int64(9)
	mock.ExpectQuery(`SELECT DISTINCT ON \(obj_id, path\)`).
		WithArgs([]int64{3}).
		WillReturnRows(pgxmock.NewRows([]string{"obj_id", "attribute_id", "path", "value", "data_source_id", "recorded_at"}).
			AddRow(int64(3), int64(5), "employees", []byte(`12`), &sourceID, at))

	src := NewPostgresRestatementSource(mock, formtab.DefaultTableNames())
	got, err := src.LatestRestatements(context.Background(), []int64{3})
	require.NoError(t, err)
	require.Len(t, got[3], 1)
	assert.Equal(t, "employees", got[3][0].Path)
	assert.Equal(t, json.RawMessage(`12`), got[3][0].Value)
	assert.Equal(t, int64(9), got[3][0].DataSourceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
