package e2e_harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/factory"
)

type e2eEnv struct {
	h      *TestHarness
	cfg    *formtab.Config
	svc    *factory.Services
	viewID int64
}

func startEnv(t *testing.T) *e2eEnv {
	t.Helper()
	return startEnvWithSpec(t, DisclosureSpec())
}

func startEnvWithSpec(t *testing.T, spec *formtab.FormSpec) *e2eEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}
	if _, err := h.StartPostgres(ctx); err != nil {
		_ = h.StopPostgres(ctx)
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = h.StopPostgres(context.Background()) })

	cfg := formtab.DefaultConfig()
	require.NoError(t, h.InitSchema(ctx, cfg.Database.Tables))

	svc, err := factory.NewServicesWithConfig(cfg, h.Pool)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	require.NoError(t, svc.HealthCheck(ctx))

	res, err := svc.Compiler.Build(ctx, spec)
	require.NoError(t, err)
	return &e2eEnv{h: h, cfg: cfg, svc: svc, viewID: res.ViewID}
}

func (e *e2eEnv) seed(t *testing.T, subs []Submission) []int64 {
	t.Helper()
	ids, err := SeedSubmissions(context.Background(), e.h.PGDB, e.cfg.Database.Tables, e.viewID, subs)
	require.NoError(t, err)
	return ids
}

func objectIDs(items []formtab.Submission) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ObjectID
	}
	return out
}

func TestE2E_NestedSortWithPartialSubForms(t *testing.T) {
	env := startEnv(t)
	ctx := context.Background()

	subs := make([]Submission, 10)
	for i := range subs {
		subs[i] = Submission{Company: fmt.Sprintf("Company %02d", i), DataModel: 10}
	}
	subs[2].Emissions = []Emission{{Scope: 1, Amount: 30}}
	subs[5].Emissions = []Emission{{Scope: 2, Amount: 5}, {Scope: 1, Amount: 10}}
	subs[7].Emissions = []Emission{{Scope: 1, Amount: 20}}
	ids := env.seed(t, subs)

	res, err := env.svc.Search.Search(ctx, env.viewID, &formtab.SearchRequest{
		Sort:  []formtab.SortKey{{Field: "emissions.scope_amount[scope=1]"}},
		Limit: 10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 10, res.Total)
	require.Len(t, res.Items, 10)

	got := objectIDs(res.Items)
	assert.Equal(t, []int64{ids[5], ids[7], ids[2]}, got[:3])
	rest := []int64{ids[0], ids[1], ids[3], ids[4], ids[6], ids[8], ids[9]}
	assert.Equal(t, rest, got[3:])

	first := res.Items[0]
	assert.Equal(t, "Company 05", first.Values["company_name"])
	rows, ok := first.Values["emissions"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)
	row := rows[1].(map[string]any)
	assert.Equal(t, formtab.Present(float64(10)), row["scope_amount"])

	res, err = env.svc.Search.Search(ctx, env.viewID, &formtab.SearchRequest{
		Sort:  []formtab.SortKey{{Field: "emissions.scope_amount", Order: formtab.SortDesc}},
		Limit: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[2], ids[7], ids[5]}, objectIDs(res.Items))
}

func TestE2E_PaginationTotals(t *testing.T) {
	env := startEnv(t)
	ctx := context.Background()

	subs := make([]Submission, 12)
	for i := range subs {
		subs[i] = Submission{Company: fmt.Sprintf("Org %02d", i), DataModel: 10 + int64(i%2)}
	}
	ids := env.seed(t, subs)

	res, err := env.svc.Search.Search(ctx, env.viewID, &formtab.SearchRequest{Limit: 5, Offset: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 12, res.Total)
	assert.Equal(t, ids[5:10], objectIDs(res.Items))

	res, err = env.svc.Search.Search(ctx, env.viewID, &formtab.SearchRequest{
		Meta:  formtab.MetaFilter{DataModel: []string{"ESRS E1"}},
		Limit: 50,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.Total)
	for _, it := range res.Items {
		assert.Equal(t, "ESRS E1", it.Meta[formtab.MetaDataModel])
	}

	res, err = env.svc.Search.Search(ctx, env.viewID, &formtab.SearchRequest{Limit: 5, Offset: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 12, res.Total)
	assert.Empty(t, res.Items)
}

func TestE2E_DataModelLabelsInOtherLanguage(t *testing.T) {
	spec := DisclosureSpec()
	for i := range spec.Attributes[1].Choices {
		spec.Attributes[1].Choices[i].Language = "fr"
	}
	env := startEnvWithSpec(t, spec)

	subs := make([]Submission, 4)
	for i := range subs {
		subs[i] = Submission{Company: fmt.Sprintf("Org %02d", i), DataModel: 10 + int64(i%2)}
	}
	ids := env.seed(t, subs)

	res, err := env.svc.Search.Search(context.Background(), env.viewID, &formtab.SearchRequest{
		Meta:  formtab.MetaFilter{DataModel: []string{"ESRS E1"}},
		Limit: 10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.Equal(t, []int64{ids[1], ids[3]}, objectIDs(res.Items))
	for _, it := range res.Items {
		assert.Equal(t, "ESRS E1", it.Meta[formtab.MetaDataModel])
	}
}

func TestE2E_InvalidSortField(t *testing.T) {
	env := startEnv(t)
	_, err := env.svc.Search.Search(context.Background(), env.viewID, &formtab.SearchRequest{
		Sort: []formtab.SortKey{{Field: "emissions.unknown"}},
	})
	assert.True(t, formtab.IsInvalidSortField(err))
}
