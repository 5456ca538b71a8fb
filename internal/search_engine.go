package internal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

// searchRoute is one backend a search can run on.
type searchRoute struct {
	builder *searchBuilder
	exec    Executor
	backend string
}

// SearchEngine runs searches over the generated tables of a view's form.
type SearchEngine struct {
	store       MetadataStore
	reader      formtab.SchemaReader
	primary     searchRoute
	fallback    *searchRoute
	breaker     *CircuitBreaker
	hydrator    *hydrator
	timeout     time.Duration
	logSearches bool
}

var _ formtab.SearchEngine = (*SearchEngine)(nil)

// SearchEngineDeps are the collaborators of a SearchEngine.
type SearchEngineDeps struct {
	Store    MetadataStore
	Reader   formtab.SchemaReader
	Executor Executor
	Dialect  Dialect
	// Fallback runs Postgres SQL when the primary DuckDB executor fails.
	Fallback     Executor
	Loader       formtab.SubmissionLoader
	Restatements formtab.RestatementSource
}

// NewSearchEngine creates a search engine.
func NewSearchEngine(deps SearchEngineDeps, config *formtab.Config) (*SearchEngine, error) {
	if config == nil {
		config = formtab.DefaultConfig()
	}
	codec, err := ddl.NewNullCodec(config.Compiler.NullCodec)
	if err != nil {
		return nil, err
	}
	dialect := deps.Dialect
	if dialect == nil {
		if dialect, err = NewDialect(config.Query.Backend, config.DuckDB); err != nil {
			return nil, err
		}
	}
	e := &SearchEngine{
		store:  deps.Store,
		reader: deps.Reader,
		primary: searchRoute{
			builder: newSearchBuilder(dialect, codec, config),
			exec:    deps.Executor,
			backend: dialect.Name(),
		},
		hydrator:    newHydrator(deps.Loader, deps.Restatements, config.Query),
		timeout:     config.Query.DefaultTimeout,
		logSearches: config.Logging.LogSearches,
	}
	if deps.Fallback != nil && config.DuckDB.FallbackToPostgres && dialect.Name() != string(formtab.BackendPostgres) {
		pg := PostgresDialect{}
		e.fallback = &searchRoute{
			builder: newSearchBuilder(pg, codec, config),
			exec:    deps.Fallback,
			backend: pg.Name(),
		}
		e.breaker = NewCircuitBreaker(config.DuckDB.FailureThreshold, config.DuckDB.FailureWindow, config.DuckDB.OpenDuration)
	}
	return e, nil
}

// Search counts the matches of req on viewID and returns one hydrated page.
func (e *SearchEngine) Search(ctx context.Context, viewID int64, req *formtab.SearchRequest, opts ...formtab.SearchOption) (*formtab.SearchResult, error) {
	if req == nil {
		req = &formtab.SearchRequest{}
	}
	options := formtab.ApplySearchOptions(opts...)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	view, err := e.store.ViewByID(ctx, viewID)
	if err != nil {
		return nil, err
	}
	def, err := e.reader.Read(ctx, view.FormID, formtab.ReadSchema)
	if err != nil {
		return nil, err
	}

	route := e.primary
	if e.fallback != nil && e.breaker.IsOpen() {
		route = *e.fallback
	}
	q, err := route.builder.build(def, viewID, req)
	if err != nil {
		return nil, err
	}

	searchID := uuid.New()
	rows, total, err := e.execute(ctx, searchID, route, def, q)
	if err != nil && e.fallback != nil && route.backend == e.primary.backend && ctx.Err() == nil {
		e.breaker.RecordFailure()
		zap.S().Warnw("search backend failed, retrying on fallback", "search_id", searchID,
			"backend", route.backend, "fallback", e.fallback.backend, "err", err)
		route = *e.fallback
		if q, err = route.builder.build(def, viewID, req); err != nil {
			return nil, err
		}
		rows, total, err = e.execute(ctx, searchID, route, def, q)
	} else if err == nil && route.backend == e.primary.backend {
		e.breaker.RecordSuccess()
	}
	if err != nil {
		return nil, err
	}

	result := &formtab.SearchResult{Total: total, Items: []formtab.Submission{}}
	if len(rows) == 0 {
		return result, nil
	}

	start := time.Now()
	items, err := e.hydrator.hydrate(ctx, rows, options.ExportMode)
	if err != nil {
		return nil, err
	}
	EmitLatency(ctx, stageHydrate, time.Since(start).Milliseconds())
	result.Items = items

	zap.S().Debugw("search done", "search_id", searchID, "backend", route.backend, "total", total,
		"items", len(items), "limit", q.Limit, "offset", q.Offset, "export", options.ExportMode)
	return result, nil
}

// execute runs the count and, when the page can hold rows, the page query.
func (e *SearchEngine) execute(ctx context.Context, searchID uuid.UUID, route searchRoute, def *formtab.FormDefinition, q *searchQuery) ([]map[string]any, int64, error) {
	if e.logSearches {
		zap.S().Infow("search", "search_id", searchID, "backend", route.backend,
			"form", def.Form.Name, "sql", q.PageSQL, "args", q.PageArgs)
	}

	start := time.Now()
	total, err := route.exec.Count(ctx, q.CountSQL, q.CountArgs...)
	if err != nil {
		return nil, 0, err
	}
	EmitLatency(ctx, stageCount, time.Since(start).Milliseconds())
	if total == 0 || int64(q.Offset) >= total {
		return nil, total, nil
	}

	start = time.Now()
	rows, err := route.exec.QueryMaps(ctx, q.PageSQL, q.PageArgs...)
	if err != nil {
		return nil, 0, err
	}
	EmitLatency(ctx, stagePage, time.Since(start).Milliseconds())
	EmitRowCount(ctx, route.backend, stagePage, int64(len(rows)))
	return rows, total, nil
}
