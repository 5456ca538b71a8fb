package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

// Dialect renders the backend-specific parts of search SQL.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	// Table qualifies a physical table name.
	Table(name string) string
	// IDFilter restricts expr to ids.
	IDFilter(expr string, ids []int64, args *queryArgs) string
	Paginate(limit, offset int) string
}

// NewDialect returns the dialect of a search backend.
func NewDialect(backend formtab.SearchBackend, duck formtab.DuckDBConfig) (Dialect, error) {
	switch backend {
	case formtab.BackendPostgres, "":
		return PostgresDialect{}, nil
	case formtab.BackendDuckDB:
		return DuckDBDialect{Alias: duck.AttachAlias, Schema: "public"}, nil
	}
	return nil, fmt.Errorf("unknown search backend %q", backend)
}

// PostgresDialect uses $n placeholders and array parameters.
type PostgresDialect struct{}

func (PostgresDialect) Name() string             { return string(formtab.BackendPostgres) }
func (PostgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (PostgresDialect) Table(name string) string { return ddl.Quote(name) }

func (PostgresDialect) IDFilter(expr string, ids []int64, args *queryArgs) string {
	return fmt.Sprintf("%s = ANY(%s)", expr, args.add(ids))
}

func (PostgresDialect) Paginate(limit, offset int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

// DuckDBDialect reads the Postgres tables through an attached catalog.
type DuckDBDialect struct {
	Alias  string
	Schema string
}

func (DuckDBDialect) Name() string           { return string(formtab.BackendDuckDB) }
func (DuckDBDialect) Placeholder(int) string { return "?" }

func (d DuckDBDialect) Table(name string) string {
	parts := make([]string, 0, 3)
	if d.Alias != "" {
		parts = append(parts, d.Alias)
	}
	if d.Schema != "" {
		parts = append(parts, d.Schema)
	}
	parts = append(parts, name)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = ddl.Quote(p)
	}
	return strings.Join(quoted, ".")
}

// IDFilter inlines the ids; they are integers, so nothing needs quoting.
func (DuckDBDialect) IDFilter(expr string, ids []int64, _ *queryArgs) string {
	lits := make([]string, len(ids))
	for i, id := range ids {
		lits[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(lits, ", "))
}

func (DuckDBDialect) Paginate(limit, offset int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

// queryArgs collects bind values in placeholder order.
type queryArgs struct {
	dialect Dialect
	values  []any
}

func (a *queryArgs) add(v any) string {
	a.values = append(a.values, v)
	return a.dialect.Placeholder(len(a.values))
}
