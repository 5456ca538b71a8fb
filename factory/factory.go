package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal"
	"github.com/lychee-technology/formtab/internal/ddl"
)

// Services bundles the public formtab interfaces built over one database.
type Services struct {
	Compiler  formtab.SchemaCompiler
	Reader    formtab.SchemaReader
	Validator formtab.ConstraintValidator
	Search    formtab.SearchEngine

	pool    *pgxpool.Pool
	tables  formtab.TableNames
	timeout time.Duration
	duck    *internal.DuckDBClient
}

// HealthCheck verifies the metadata tables and, when enabled, the DuckDB
// backend.
func (s *Services) HealthCheck(ctx context.Context) error {
	if err := internal.PostgresHealthCheck(ctx, s.pool, s.tables, s.timeout); err != nil {
		return err
	}
	if s.duck != nil {
		return s.duck.HealthCheck(ctx)
	}
	return nil
}

// Close releases the DuckDB backend when one was opened. The pool belongs to
// the caller.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	return s.duck.Close()
}

// NewPool opens a pgx pool from the database settings of config.
func NewPool(ctx context.Context, config *formtab.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(config.Database.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pc.MaxConns = int32(config.Database.MaxConnections)
	pc.MaxConnLifetime = config.Database.ConnMaxLifetime
	pc.MaxConnIdleTime = config.Database.ConnMaxIdleTime
	if config.Database.Timeout > 0 {
		pc.ConnConfig.ConnectTimeout = config.Database.Timeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewServicesWithConfig wires the compiler, reader, validator and search engine
// over pool. This is the primary way for external projects to use formtab.
//
// Usage:
//
//	config := formtab.DefaultConfig()
//	pool, err := factory.NewPool(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer pool.Close()
//	svc, err := factory.NewServicesWithConfig(config, pool)
//	if err != nil {
//	    // handle error
//	}
//	defer svc.Close()
//
// With config.Query.Backend set to duckdb, searches run in an embedded DuckDB
// that attaches the same Postgres database read-only, falling back to the pool
// while DuckDB keeps failing.
func NewServicesWithConfig(config *formtab.Config, pool *pgxpool.Pool) (*Services, error) {
	if config == nil {
		config = formtab.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}

	codec, err := ddl.NewNullCodec(config.Compiler.NullCodec)
	if err != nil {
		return nil, err
	}

	store := internal.NewPostgresMetadataStore(pool, config.Database.Tables, config.Compiler.AllocationRetries)
	cache := internal.NewMetadataCache()
	compiler, err := internal.NewSchemaCompiler(store, config, cache)
	if err != nil {
		return nil, err
	}
	reader := internal.NewSchemaReader(store, cache)

	svc := &Services{
		Compiler:  compiler,
		Reader:    reader,
		Validator: internal.NewValidationService(store),
		pool:      pool,
		tables:    config.Database.Tables,
		timeout:   config.Database.Timeout,
	}

	var exec, fallback internal.Executor
	switch config.Query.Backend {
	case formtab.BackendDuckDB:
		duck, err := internal.NewDuckDBClient(config.DuckDB, config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb backend: %w", err)
		}
		svc.duck = duck
		exec = internal.NewSQLExecutor(duck.DB)
		fallback = internal.NewPostgresExecutor(pool)
	default:
		exec = internal.NewPostgresExecutor(pool)
	}

	engine, err := internal.NewSearchEngine(internal.SearchEngineDeps{
		Store:        store,
		Reader:       reader,
		Executor:     exec,
		Fallback:     fallback,
		Loader:       internal.NewPostgresSubmissionLoader(pool, reader, codec, config),
		Restatements: internal.NewPostgresRestatementSource(pool, config.Database.Tables),
	}, config)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.Search = engine

	zap.S().Infow("formtab services ready", "backend", config.Query.Backend, "null_codec", codec.Kind())
	return svc, nil
}
