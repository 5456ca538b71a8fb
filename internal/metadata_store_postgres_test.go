package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/formtab"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresMetadataStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresMetadataStore(mock, formtab.DefaultTableNames(), 3)
}

func TestPostgresMetadataStore_FormByID(t *testing.T) {
	mock, store := newMockStore(t)
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, name, description, owner_id, heritable, created_at FROM "formtab_forms" WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "owner_id", "heritable", "created_at"}).
			AddRow(int64(7), "disclosure", "", int64(0), false, created))

	f, err := store.FormByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "disclosure", f.Name)
	assert.Equal(t, created, f.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_FormByIDNotFound(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectQuery(`FROM "formtab_forms" WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "owner_id", "heritable", "created_at"}))

	_, err := store.FormByID(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, formtab.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_ExistingNames(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectQuery(`SELECT name FROM "formtab_forms" WHERE name = ANY\(\$1\)`).
		WithArgs([]string{"disclosure", "emission_row"}).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("emission_row"))
	mock.ExpectQuery(`SELECT name FROM "formtab_attributes" WHERE name = ANY\(\$1\)`).
		WithArgs([]string{"scope"}).
		WillReturnRows(pgxmock.NewRows([]string{"name"}))

	forms, attrs, err := store.ExistingNames(context.Background(), []string{"disclosure", "emission_row"}, []string{"scope"})
	require.NoError(t, err)
	assert.Equal(t, []string{"emission_row"}, forms)
	assert.Empty(t, attrs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_InsertFormDuplicate(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO "formtab_forms"`).
		WithArgs("disclosure", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.InsertForm(context.Background(), &formtab.Form{Name: "disclosure"})
	require.Error(t, err)
	assert.True(t, formtab.IsDuplicateName(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_CreateChoiceSetRetries(t *testing.T) {
	mock, store := newMockStore(t)
	next := `SELECT COALESCE\(MAX\(id\), 0\) \+ 1 FROM "formtab_choice_sets"`
	insert := `INSERT INTO "formtab_choice_sets" \(id\) VALUES \(\$1\)`

	mock.ExpectQuery(next).WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(int64(3)))
	mock.ExpectBegin()
	mock.ExpectExec(insert).WithArgs(int64(3)).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery(next).WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(int64(4)))
	mock.ExpectBegin()
	mock.ExpectExec(insert).WithArgs(int64(4)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, err := store.CreateChoiceSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_CreateChoiceSetGivesUp(t *testing.T) {
	mock, store := newMockStore(t)
	for i := int64(1); i <= 3; i++ {
		mock.ExpectQuery(`SELECT COALESCE`).WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(i))
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "formtab_choice_sets"`).WithArgs(i).WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()
	}

	_, err := store.CreateChoiceSet(context.Background())
	require.Error(t, err)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_ExecIndexDDLToleratesRace(t *testing.T) {
	mock, store := newMockStore(t)
	stmt := `CREATE INDEX IF NOT EXISTS "disclosure_obj_idx" ON "disclosure" (obj_id)`
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS`).WillReturnError(&pgconn.PgError{Code: "42P07"})
	mock.ExpectRollback()

	assert.NoError(t, store.ExecIndexDDL(context.Background(), stmt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_ExecIndexDDLFails(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE INDEX`).WillReturnError(&pgconn.PgError{Code: "42601"})
	mock.ExpectRollback()

	err := store.ExecIndexDDL(context.Background(), `CREATE INDEX broken`)
	require.Error(t, err)
	var fe *formtab.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, formtab.ErrCodeDDLFailed, fe.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_UpdateViewActive(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectExec(`UPDATE "formtab_form_views" SET active = \$4`).
		WithArgs(int64(1), "review", 2, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.UpdateViewActive(context.Background(), 1, "review", 2, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
