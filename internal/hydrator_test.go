package internal

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
)

type fakeLoader struct {
	mu     sync.Mutex
	calls  [][]int64
	values map[int64]map[string]any
	err    error
}

func (f *fakeLoader) LoadSubmissions(_ context.Context, ids []int64) (map[int64]map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(ids))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]map[string]any)
	for _, id := range ids {
		if v, ok := f.values[id]; ok {
			cp := make(map[string]any, len(v))
			for k, x := range v {
				cp[k] = x
			}
			out[id] = cp
		}
	}
	return out, nil
}

type fakeRestatements map[int64][]formtab.Restatement

func (f fakeRestatements) LatestRestatements(_ context.Context, ids []int64) (map[int64][]formtab.Restatement, error) {
	out := make(map[int64][]formtab.Restatement)
	for _, id := range ids {
		if rs, ok := f[id]; ok {
			out[id] = rs
		}
	}
	return out, nil
}

func pageRows(ids ...int64) []map[string]any {
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{formtab.MetaObjectID: id, formtab.MetaLegalName: "org"}
	}
	return rows
}

func TestHydrator_KeepsPageOrderAcrossBatches(t *testing.T) {
	loader := &fakeLoader{values: map[int64]map[string]any{
		5: {"company_name": "five"},
		3: {"company_name": "three"},
		9: {"company_name": "nine"},
		1: {"company_name": "one"},
		7: {"company_name": "seven"},
	}}
	h := newHydrator(loader, nil, formtab.QueryConfig{HydrationBatchSize: 2, HydrationWorkers: 3})

	items, err := h.hydrate(context.Background(), pageRows(5, 3, 9, 1, 7), false)
	require.NoError(t, err)

	var got []int64
	for _, it := range items {
		got = append(got, it.ObjectID)
		assert.Equal(t, "org", it.Values[formtab.MetaLegalName])
		assert.Equal(t, "org", it.Meta[formtab.MetaLegalName])
	}
	assert.Equal(t, []int64{5, 3, 9, 1, 7}, got)
	assert.Equal(t, "nine", items[2].Values["company_name"])

	assert.ElementsMatch(t, [][]int64{{5, 3}, {9, 1}, {7}}, loader.calls)
}

func TestHydrator_MissingSubmissionKeepsMeta(t *testing.T) {
	h := newHydrator(&fakeLoader{}, nil, formtab.QueryConfig{HydrationBatchSize: 80, HydrationWorkers: 1})
	items, err := h.hydrate(context.Background(), pageRows(42), false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(42), items[0].Values[formtab.MetaObjectID])
}

func TestHydrator_LoaderErrorFails(t *testing.T) {
	h := newHydrator(&fakeLoader{err: errors.New("boom")}, nil, formtab.QueryConfig{HydrationBatchSize: 1, HydrationWorkers: 2})
	_, err := h.hydrate(context.Background(), pageRows(1, 2), false)
	assert.ErrorContains(t, err, "boom")
}

func TestHydrator_ExportAppliesRestatements(t *testing.T) {
	loader := &fakeLoader{values: map[int64]map[string]any{
		3: {
			"employees": formtab.Present(int64(10)),
			"emissions": []any{map[string]any{"scope_amount": formtab.Present(1.5)}},
		},
	}}
	restated := fakeRestatements{3: {
		{ObjectID: 3, Path: "employees", Value: json.RawMessage(`12`)},
		{ObjectID: 3, Path: "emissions.0.scope_amount", Value: json.RawMessage(`2.25`)},
		{ObjectID: 3, Path: "emissions.4.scope_amount", Value: json.RawMessage(`9`)},
	}}
	h := newHydrator(loader, restated, formtab.QueryConfig{HydrationBatchSize: 10, HydrationWorkers: 1})

	items, err := h.hydrate(context.Background(), pageRows(3), true)
	require.NoError(t, err)
	v := items[0].Values
	assert.Equal(t, float64(12), v["employees"])
	row := v["emissions"].([]any)[0].(map[string]any)
	assert.Equal(t, 2.25, row["scope_amount"])

	items, err = h.hydrate(context.Background(), pageRows(3), false)
	require.NoError(t, err)
	assert.Equal(t, formtab.Present(int64(10)), items[0].Values["employees"])
}

func TestSetPath(t *testing.T) {
	root := map[string]any{"list": []any{"a"}}
	require.NoError(t, setPath(root, []any{"profile", "city"}, "Oslo"))
	assert.Equal(t, "Oslo", root["profile"].(map[string]any)["city"])

	require.NoError(t, setPath(root, []any{"list", 0}, "b"))
	assert.Equal(t, []any{"b"}, root["list"])

	assert.Error(t, setPath(root, []any{"list", 3}, "c"))
	assert.Error(t, setPath(root, []any{"profile", 0}, "c"))
}
