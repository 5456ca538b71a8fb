package internal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

// DuckDBClient wraps a database/sql DB opened with the DuckDB driver with the
// Postgres database attached read-only.
type DuckDBClient struct {
	DB  *sql.DB
	cfg formtab.DuckDBConfig
}

// ValidateDuckDBConfig performs basic sanity checks on the DuckDB settings.
func ValidateDuckDBConfig(cfg formtab.DuckDBConfig) error {
	if cfg.MemoryLimitMB < 0 {
		return fmt.Errorf("invalid memory_limit_mb: must be >= 0")
	}
	if cfg.Threads < 0 {
		return fmt.Errorf("invalid threads: must be >= 0")
	}
	if cfg.AttachAlias == "" {
		return fmt.Errorf("attach_alias is required")
	}
	return nil
}

// attachStatement renders the ATTACH of the Postgres database.
func attachStatement(db formtab.DatabaseConfig, alias string) string {
	conn := strings.ReplaceAll(db.ConnString(), "'", "''")
	return fmt.Sprintf("ATTACH '%s' AS %s (TYPE postgres, READ_ONLY)", conn, ddl.Quote(alias))
}

// NewDuckDBClient opens DuckDB, loads the postgres extension and attaches the
// configured database under cfg.AttachAlias.
func NewDuckDBClient(cfg formtab.DuckDBConfig, db formtab.DatabaseConfig) (*DuckDBClient, error) {
	if err := ValidateDuckDBConfig(cfg); err != nil {
		return nil, err
	}

	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// ATTACH and pragmas are per database, one connection keeps them visible.
	conn.SetMaxOpenConns(1)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	for _, stmt := range []string{"INSTALL postgres", "LOAD postgres", attachStatement(db, cfg.AttachAlias)} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("duckdb setup failed: %w", err)
		}
	}

	if cfg.MemoryLimitMB > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA memory_limit='%dMB'", cfg.MemoryLimitMB)); err != nil {
			zap.S().Warnw("duckdb: set memory_limit failed", "err", err, "memoryLimitMB", cfg.MemoryLimitMB)
		}
	}
	if cfg.Threads > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d", cfg.Threads)); err != nil {
			zap.S().Warnw("duckdb: set threads failed", "err", err, "threads", cfg.Threads)
		}
	}

	zap.S().Infow("duckdb search backend ready", "path", dsn, "alias", cfg.AttachAlias)
	return &DuckDBClient{DB: conn, cfg: cfg}, nil
}

// Close closes the underlying DuckDB DB.
func (c *DuckDBClient) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// HealthCheck runs a trivial query and checks the attached catalog is visible.
func (c *DuckDBClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return fmt.Errorf("duckdb client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var v int
	if err := c.DB.QueryRowContext(ctx, "SELECT 1").Scan(&v); err != nil {
		return fmt.Errorf("duckdb health query failed: %w", err)
	}
	if v != 1 {
		return fmt.Errorf("unexpected duckdb health result: %d", v)
	}

	var n int
	err := c.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM duckdb_databases() WHERE database_name = ?", c.cfg.AttachAlias).Scan(&n)
	if err != nil {
		return fmt.Errorf("duckdb catalog query failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("postgres database not attached as %q", c.cfg.AttachAlias)
	}

	if c.cfg.Threads > 0 {
		var threads int
		if err := c.DB.QueryRowContext(ctx, "SELECT current_setting('threads')").Scan(&threads); err != nil {
			zap.S().Warnw("duckdb: threads setting query failed (non-fatal)", "err", err)
		} else if threads <= 0 {
			zap.S().Warnw("duckdb: threads setting invalid (non-fatal)", "threads", threads)
		}
	}
	return nil
}
