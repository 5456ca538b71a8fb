package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
)

func TestNewDialect(t *testing.T) {
	cfg := formtab.DefaultConfig()

	d, err := NewDialect(formtab.BackendPostgres, cfg.DuckDB)
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = NewDialect(formtab.BackendDuckDB, cfg.DuckDB)
	require.NoError(t, err)
	assert.Equal(t, DuckDBDialect{Alias: "pg", Schema: "public"}, d)

	_, err = NewDialect("oracle", cfg.DuckDB)
	assert.Error(t, err)
}

func TestDialects(t *testing.T) {
	pg := PostgresDialect{}
	args := &queryArgs{dialect: pg}
	assert.Equal(t, "$1", args.add("x"))
	assert.Equal(t, "o.id = ANY($2)", pg.IDFilter("o.id", []int64{1, 2}, args))
	assert.Equal(t, []any{"x", []int64{1, 2}}, args.values)
	assert.Equal(t, `"formtab_objects"`, pg.Table("formtab_objects"))

	duck := DuckDBDialect{Alias: "pg", Schema: "public"}
	args = &queryArgs{dialect: duck}
	assert.Equal(t, "?", args.add("x"))
	assert.Equal(t, "o.id IN (1, 2)", duck.IDFilter("o.id", []int64{1, 2}, args))
	assert.Len(t, args.values, 1)
	assert.Equal(t, `"pg"."public"."formtab_objects"`, duck.Table("formtab_objects"))
	assert.Equal(t, "LIMIT 5 OFFSET 10", duck.Paginate(5, 10))
}
