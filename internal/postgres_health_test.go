package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
)

func TestPostgresHealthCheck(t *testing.T) {
	tables := formtab.DefaultTableNames()

	t.Run("all tables present", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rows := pgxmock.NewRows([]string{"table_name"}).AddRow("disclosure")
		for _, name := range requiredTables(tables) {
			rows.AddRow(name)
		}
		mock.ExpectQuery(`FROM information_schema.tables`).WillReturnRows(rows)

		assert.NoError(t, PostgresHealthCheck(context.Background(), mock, tables, 0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing table", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM information_schema.tables`).
			WillReturnRows(pgxmock.NewRows([]string{"table_name"}).AddRow(tables.Forms))

		err = PostgresHealthCheck(context.Background(), mock, tables, 0)
		assert.ErrorContains(t, err, tables.Restatements)
	})

	t.Run("query error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM information_schema.tables`).WillReturnError(errors.New("conn refused"))
		assert.ErrorContains(t, PostgresHealthCheck(context.Background(), mock, tables, 0), "conn refused")
	})
}
