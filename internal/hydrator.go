package internal

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lychee-technology/formtab"
)

// hydrator turns page rows into submissions, loading values in concurrent
// batches and keeping the page order.
type hydrator struct {
	loader       formtab.SubmissionLoader
	restatements formtab.RestatementSource
	batchSize    int
	workers      int
}

func newHydrator(loader formtab.SubmissionLoader, restatements formtab.RestatementSource, q formtab.QueryConfig) *hydrator {
	return &hydrator{
		loader:       loader,
		restatements: restatements,
		batchSize:    q.HydrationBatchSize,
		workers:      q.HydrationWorkers,
	}
}

type hydratedBatch struct {
	values       map[int64]map[string]any
	restatements map[int64][]formtab.Restatement
}

func (h *hydrator) hydrate(ctx context.Context, rows []map[string]any, export bool) ([]formtab.Submission, error) {
	items := make([]formtab.Submission, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		id, ok := toInt64(row[formtab.MetaObjectID])
		if !ok {
			return nil, formtab.NewInternalError(fmt.Sprintf("search row without %s", formtab.MetaObjectID), nil)
		}
		ids = append(ids, id)
	}

	batches := chunk(ids, h.batchSize)
	results := make([]hydratedBatch, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	if h.workers > 0 {
		g.SetLimit(h.workers)
	}
	for i, batch := range batches {
		g.Go(func() error {
			values, err := h.loader.LoadSubmissions(gctx, batch)
			if err != nil {
				return fmt.Errorf("hydrate batch %d: %w", i, err)
			}
			results[i].values = values
			if export && h.restatements != nil {
				rs, err := h.restatements.LatestRestatements(gctx, batch)
				if err != nil {
					return fmt.Errorf("restatements batch %d: %w", i, err)
				}
				results[i].restatements = rs
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	values := make(map[int64]map[string]any, len(ids))
	restated := make(map[int64][]formtab.Restatement)
	for _, r := range results {
		for id, v := range r.values {
			values[id] = v
		}
		for id, rs := range r.restatements {
			restated[id] = rs
		}
	}

	for i, row := range rows {
		id := ids[i]
		v := values[id]
		if v == nil {
			v = make(map[string]any)
		}
		for _, rs := range restated[id] {
			if err := applyRestatement(v, rs); err != nil {
				zap.S().Warnw("restatement skipped", "object_id", id, "path", rs.Path, "err", err)
			}
		}
		for k, mv := range row {
			if _, exists := v[k]; !exists {
				v[k] = mv
			}
		}
		items = append(items, formtab.Submission{ObjectID: id, Meta: row, Values: v})
	}
	return items, nil
}

func applyRestatement(values map[string]any, rs formtab.Restatement) error {
	path, err := splitPath(rs.Path)
	if err != nil {
		return err
	}
	var v any
	if len(rs.Value) > 0 {
		if err := json.Unmarshal(rs.Value, &v); err != nil {
			return fmt.Errorf("restated value: %w", err)
		}
	}
	return setPath(values, path, v)
}

// setPath assigns v at path inside a nested value map. String segments key
// maps and int segments index lists; missing maps are created.
func setPath(root map[string]any, path []any, v any) error {
	var cur any = root
	for i, seg := range path {
		last := i == len(path)-1
		switch s := seg.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return fmt.Errorf("segment %q: not an object", s)
			}
			if last {
				m[s] = v
				return nil
			}
			next, ok := m[s]
			if !ok || next == nil {
				next = make(map[string]any)
				m[s] = next
			}
			cur = next
		case int:
			l, ok := cur.([]any)
			if !ok {
				return fmt.Errorf("segment %d: not a list", s)
			}
			if s < 0 || s >= len(l) {
				return fmt.Errorf("segment %d: index out of range", s)
			}
			if last {
				l[s] = v
				return nil
			}
			cur = l[s]
		}
	}
	return nil
}
