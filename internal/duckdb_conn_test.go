package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lychee-technology/formtab"
)

func TestValidateDuckDBConfig(t *testing.T) {
	cfg := formtab.DefaultConfig().DuckDB
	assert.NoError(t, ValidateDuckDBConfig(cfg))

	bad := cfg
	bad.AttachAlias = ""
	assert.Error(t, ValidateDuckDBConfig(bad))

	bad = cfg
	bad.Threads = -1
	assert.Error(t, ValidateDuckDBConfig(bad))
}

func TestAttachStatement(t *testing.T) {
	db := formtab.DefaultConfig().Database
	db.Password = "it's"
	stmt := attachStatement(db, "pg")
	assert.Equal(t,
		`ATTACH 'host=localhost dbname=formtab user=postgres sslmode=disable port=5432 password=it''s' AS "pg" (TYPE postgres, READ_ONLY)`,
		stmt)
}

func TestNewDuckDBClient_RejectsInvalidConfig(t *testing.T) {
	cfg := formtab.DefaultConfig()
	cfg.DuckDB.AttachAlias = ""
	_, err := NewDuckDBClient(cfg.DuckDB, cfg.Database)
	assert.Error(t, err)
}

func TestDuckDBClient_NilHealthCheck(t *testing.T) {
	var c *DuckDBClient
	assert.Error(t, c.HealthCheck(t.Context()))
	assert.NoError(t, c.Close())
}
