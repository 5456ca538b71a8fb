package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

const (
	pgUniqueViolation = "23505"
	pgDuplicateTable  = "42P07"
)

// metadataConn is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type metadataConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type metadataPool interface {
	metadataConn
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresMetadataStore keeps metadata in the formtab_* tables.
type PostgresMetadataStore struct {
	pool    metadataPool
	conn    metadataConn
	tables  formtab.TableNames
	retries int
}

// NewPostgresMetadataStore creates a store over a pool. retries bounds the
// choice-set id allocation loop.
func NewPostgresMetadataStore(pool metadataPool, tables formtab.TableNames, retries int) *PostgresMetadataStore {
	if retries <= 0 {
		retries = 1
	}
	return &PostgresMetadataStore{pool: pool, conn: pool, tables: tables, retries: retries}
}

type postgresMetadataTx struct {
	*PostgresMetadataStore
	tx pgx.Tx
}

// Begin opens a transaction. Nested calls are not supported.
func (s *PostgresMetadataStore) Begin(ctx context.Context) (StoreTx, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("metadata store is already bound to a transaction")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresMetadataTx{
		PostgresMetadataStore: &PostgresMetadataStore{conn: tx, tables: s.tables, retries: s.retries},
		tx:                    tx,
	}, nil
}

func (t *postgresMetadataTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *postgresMetadataTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgErrorCode(err) == pgUniqueViolation }

// jsonParam passes raw JSON to a JSONB parameter, NULL when empty.
func jsonParam(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}

const formColumns = "id, name, description, owner_id, heritable, created_at"

func scanForm(row pgx.Row) (*formtab.Form, error) {
	var f formtab.Form
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &f.OwnerID, &f.Heritable, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresMetadataStore) FormByID(ctx context.Context, id int64) (*formtab.Form, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", formColumns, ddl.Quote(s.tables.Forms))
	f, err := scanForm(s.conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, formNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form %d: %w", id, err)
	}
	return f, nil
}

func (s *PostgresMetadataStore) FormByName(ctx context.Context, name string) (*formtab.Form, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE name = $1", formColumns, ddl.Quote(s.tables.Forms))
	f, err := scanForm(s.conn.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, formNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form %q: %w", name, err)
	}
	return f, nil
}

func (s *PostgresMetadataStore) ExistingNames(ctx context.Context, forms, attributes []string) ([]string, []string, error) {
	existingForms, err := s.existing(ctx, s.tables.Forms, forms)
	if err != nil {
		return nil, nil, err
	}
	existingAttrs, err := s.existing(ctx, s.tables.Attributes, attributes)
	if err != nil {
		return nil, nil, err
	}
	return existingForms, existingAttrs, nil
}

func (s *PostgresMetadataStore) existing(ctx context.Context, table string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT name FROM %s WHERE name = ANY($1) ORDER BY name", ddl.Quote(table))
	rows, err := s.conn.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to check names in %s: %w", table, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan names in %s: %w", table, err)
	}
	return found, nil
}

const attributeColumns = "id, name, form_id, type, child_form_id, choice_set_id, position, owner_id"

func scanAttribute(row pgx.Row) (*formtab.Attribute, error) {
	var a formtab.Attribute
	var typ string
	if err := row.Scan(&a.ID, &a.Name, &a.FormID, &typ, &a.ChildFormID, &a.ChoiceSetID, &a.Position, &a.OwnerID); err != nil {
		return nil, err
	}
	a.Type = formtab.AttributeType(typ)
	return &a, nil
}

func (s *PostgresMetadataStore) AttributeByID(ctx context.Context, id int64) (*formtab.Attribute, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", attributeColumns, ddl.Quote(s.tables.Attributes))
	a, err := scanAttribute(s.conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, attributeNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attribute %d: %w", id, err)
	}
	return a, nil
}

func (s *PostgresMetadataStore) AttributesByForm(ctx context.Context, formID int64) ([]formtab.Attribute, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE form_id = $1 ORDER BY position, id", attributeColumns, ddl.Quote(s.tables.Attributes))
	rows, err := s.conn.Query(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes of form %d: %w", formID, err)
	}
	defer rows.Close()

	var out []formtab.Attribute
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const viewColumns = "id, form_id, name, revision, active, constraints"

func scanView(row pgx.Row) (*formtab.FormView, error) {
	var v formtab.FormView
	var constraints []byte
	if err := row.Scan(&v.ID, &v.FormID, &v.Name, &v.Revision, &v.Active, &constraints); err != nil {
		return nil, err
	}
	v.Constraints = nullableJSON(constraints)
	return &v, nil
}

func (s *PostgresMetadataStore) ViewByID(ctx context.Context, id int64) (*formtab.FormView, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", viewColumns, ddl.Quote(s.tables.FormViews))
	v, err := scanView(s.conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, viewNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load view %d: %w", id, err)
	}
	return v, nil
}

func (s *PostgresMetadataStore) ViewsByForm(ctx context.Context, formID int64) ([]formtab.FormView, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE form_id = $1 ORDER BY id", viewColumns, ddl.Quote(s.tables.FormViews))
	rows, err := s.conn.Query(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query views of form %d: %w", formID, err)
	}
	defer rows.Close()

	var out []formtab.FormView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresMetadataStore) LatestView(ctx context.Context, formID int64, name string) (*formtab.FormView, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE form_id = $1 AND name = $2 ORDER BY revision DESC LIMIT 1",
		viewColumns, ddl.Quote(s.tables.FormViews))
	v, err := scanView(s.conn.QueryRow(ctx, query, formID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, viewNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load view %q: %w", name, err)
	}
	return v, nil
}

const attributeViewColumns = "id, attribute_id, form_view_id, value_constraints, view_constraints, choice_set_id"

func scanAttributeView(row pgx.Row) (*formtab.AttributeView, error) {
	var av formtab.AttributeView
	var rules, viewConstraints []byte
	if err := row.Scan(&av.ID, &av.AttributeID, &av.FormViewID, &rules, &viewConstraints, &av.ChoiceSetID); err != nil {
		return nil, err
	}
	parsed, err := formtab.ParseRules(rules)
	if err != nil {
		return nil, fmt.Errorf("attribute view %d: %w", av.ID, err)
	}
	av.ValueConstraints = parsed
	av.ViewConstraints = nullableJSON(viewConstraints)
	return &av, nil
}

func (s *PostgresMetadataStore) AttributeViewByID(ctx context.Context, id int64) (*formtab.AttributeView, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", attributeViewColumns, ddl.Quote(s.tables.AttributeViews))
	av, err := scanAttributeView(s.conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, formtab.NewNotFoundError(formtab.ErrCodeViewNotFound, "attribute view", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attribute view %d: %w", id, err)
	}
	return av, nil
}

func (s *PostgresMetadataStore) AttributeViewsByView(ctx context.Context, viewID int64) ([]formtab.AttributeView, error) {
	return s.attributeViews(ctx, "form_view_id", viewID)
}

func (s *PostgresMetadataStore) AttributeViewsByAttribute(ctx context.Context, attributeID int64) ([]formtab.AttributeView, error) {
	return s.attributeViews(ctx, "attribute_id", attributeID)
}

func (s *PostgresMetadataStore) attributeViews(ctx context.Context, column string, id int64) ([]formtab.AttributeView, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY id",
		attributeViewColumns, ddl.Quote(s.tables.AttributeViews), column)
	rows, err := s.conn.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribute views by %s: %w", column, err)
	}
	defer rows.Close()

	var out []formtab.AttributeView
	for rows.Next() {
		av, err := scanAttributeView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *av)
	}
	return out, rows.Err()
}

func (s *PostgresMetadataStore) ChoiceSetExists(ctx context.Context, setID int64) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", ddl.Quote(s.tables.ChoiceSets))
	var ok bool
	if err := s.conn.QueryRow(ctx, query, setID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check choice set %d: %w", setID, err)
	}
	return ok, nil
}

func (s *PostgresMetadataStore) LockChoiceSet(ctx context.Context, setID int64) error {
	query := fmt.Sprintf("SELECT id FROM %s WHERE id = $1 FOR UPDATE", ddl.Quote(s.tables.ChoiceSets))
	var id int64
	err := s.conn.QueryRow(ctx, query, setID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return choiceSetNotFound(setID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock choice set %d: %w", setID, err)
	}
	return nil
}

func (s *PostgresMetadataStore) Choices(ctx context.Context, setID int64) ([]formtab.Choice, error) {
	query := fmt.Sprintf(`SELECT set_id, choice_id, label, sort_order, language FROM %s
		WHERE set_id = $1 ORDER BY sort_order, choice_id, language`, ddl.Quote(s.tables.Choices))
	rows, err := s.conn.Query(ctx, query, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to query choices of set %d: %w", setID, err)
	}
	defer rows.Close()

	var out []formtab.Choice
	for rows.Next() {
		var c formtab.Choice
		if err := rows.Scan(&c.SetID, &c.ChoiceID, &c.Label, &c.Order, &c.Language); err != nil {
			return nil, fmt.Errorf("failed to scan choice: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresMetadataStore) MaxChoiceID(ctx context.Context, setID, floor int64) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(choice_id), 0) FROM %s WHERE set_id = $1 AND choice_id >= $2",
		ddl.Quote(s.tables.Choices))
	var maxID int64
	if err := s.conn.QueryRow(ctx, query, setID, floor).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to read max choice id of set %d: %w", setID, err)
	}
	return maxID, nil
}

func (s *PostgresMetadataStore) Prompts(ctx context.Context, attributeID int64) ([]formtab.Prompt, error) {
	query := fmt.Sprintf("SELECT id, attribute_id, text, role, language FROM %s WHERE attribute_id = $1 ORDER BY id",
		ddl.Quote(s.tables.Prompts))
	rows, err := s.conn.Query(ctx, query, attributeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts of attribute %d: %w", attributeID, err)
	}
	defer rows.Close()

	var out []formtab.Prompt
	for rows.Next() {
		var p formtab.Prompt
		if err := rows.Scan(&p.ID, &p.AttributeID, &p.Text, &p.Role, &p.Language); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresMetadataStore) InsertForm(ctx context.Context, form *formtab.Form) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, description, owner_id, heritable)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`, ddl.Quote(s.tables.Forms))
	err := s.conn.QueryRow(ctx, query, form.Name, form.Description, form.OwnerID, form.Heritable).
		Scan(&form.ID, &form.CreatedAt)
	if isUniqueViolation(err) {
		return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateForm, "form", form.Name).WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert form %q: %w", form.Name, err)
	}
	return nil
}

func (s *PostgresMetadataStore) InsertAttribute(ctx context.Context, attr *formtab.Attribute) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, form_id, type, child_form_id, choice_set_id, position, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, ddl.Quote(s.tables.Attributes))
	err := s.conn.QueryRow(ctx, query, attr.Name, attr.FormID, string(attr.Type), attr.ChildFormID,
		attr.ChoiceSetID, attr.Position, attr.OwnerID).Scan(&attr.ID)
	if isUniqueViolation(err) {
		return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateAttribute, "attribute", attr.Name).WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert attribute %q: %w", attr.Name, err)
	}
	return nil
}

func (s *PostgresMetadataStore) InsertView(ctx context.Context, view *formtab.FormView) error {
	query := fmt.Sprintf(`INSERT INTO %s (form_id, name, revision, active, constraints)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`, ddl.Quote(s.tables.FormViews))
	err := s.conn.QueryRow(ctx, query, view.FormID, view.Name, view.Revision, view.Active, jsonParam(view.Constraints)).
		Scan(&view.ID)
	if isUniqueViolation(err) {
		return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateView, "view", view.Name).WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert view %q: %w", view.Name, err)
	}
	return nil
}

func (s *PostgresMetadataStore) UpdateViewActive(ctx context.Context, formID int64, name string, revision int, active bool) (bool, error) {
	query := fmt.Sprintf("UPDATE %s SET active = $4 WHERE form_id = $1 AND name = $2 AND revision = $3",
		ddl.Quote(s.tables.FormViews))
	tag, err := s.conn.Exec(ctx, query, formID, name, revision, active)
	if err != nil {
		return false, fmt.Errorf("failed to update view %q revision %d: %w", name, revision, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresMetadataStore) InsertAttributeView(ctx context.Context, av *formtab.AttributeView) error {
	var rules []byte
	if len(av.ValueConstraints) > 0 {
		var err error
		if rules, err = json.Marshal(av.ValueConstraints); err != nil {
			return fmt.Errorf("failed to encode value constraints: %w", err)
		}
	}
	query := fmt.Sprintf(`INSERT INTO %s (attribute_id, form_view_id, value_constraints, view_constraints, choice_set_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`, ddl.Quote(s.tables.AttributeViews))
	err := s.conn.QueryRow(ctx, query, av.AttributeID, av.FormViewID, jsonParam(rules),
		jsonParam(av.ViewConstraints), av.ChoiceSetID).Scan(&av.ID)
	if err != nil {
		return fmt.Errorf("failed to insert attribute view for attribute %d: %w", av.AttributeID, err)
	}
	return nil
}

// CreateChoiceSet reads max(id)+1 and inserts it inside a savepoint. A
// concurrent allocation of the same id surfaces as a unique violation and
// the next attempt re-reads the maximum.
func (s *PostgresMetadataStore) CreateChoiceSet(ctx context.Context) (int64, error) {
	table := ddl.Quote(s.tables.ChoiceSets)
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		var next int64
		if err := s.conn.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(id), 0) + 1 FROM %s", table)).Scan(&next); err != nil {
			return 0, fmt.Errorf("failed to read next choice set id: %w", err)
		}
		sp, err := s.conn.Begin(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to open savepoint: %w", err)
		}
		if _, err = sp.Exec(ctx, fmt.Sprintf("INSERT INTO %s (id) VALUES ($1)", table), next); err == nil {
			if err := sp.Commit(ctx); err != nil {
				return 0, fmt.Errorf("failed to release savepoint: %w", err)
			}
			return next, nil
		}
		_ = sp.Rollback(ctx)
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to insert choice set %d: %w", next, err)
		}
		lastErr = err
		zap.S().Debugw("choice set id taken, retrying", "set_id", next, "attempt", attempt)
	}
	return 0, fmt.Errorf("failed to allocate choice set id after %d attempts: %w", s.retries, lastErr)
}

func (s *PostgresMetadataStore) InsertChoice(ctx context.Context, c formtab.Choice) error {
	query := fmt.Sprintf(`INSERT INTO %s (set_id, choice_id, label, sort_order, language)
		VALUES ($1, $2, $3, $4, $5)`, ddl.Quote(s.tables.Choices))
	_, err := s.conn.Exec(ctx, query, c.SetID, c.ChoiceID, c.Label, c.Order, c.Language)
	if isUniqueViolation(err) {
		return duplicateChoice(c).WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert choice %d of set %d: %w", c.ChoiceID, c.SetID, err)
	}
	return nil
}

func duplicateChoice(c formtab.Choice) *formtab.Error {
	return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateChoice, "choice",
		fmt.Sprintf("%d/%d/%s", c.SetID, c.ChoiceID, c.Language))
}

func (s *PostgresMetadataStore) InsertPrompt(ctx context.Context, p *formtab.Prompt) error {
	query := fmt.Sprintf(`INSERT INTO %s (attribute_id, text, role, language)
		VALUES ($1, $2, $3, $4) RETURNING id`, ddl.Quote(s.tables.Prompts))
	if err := s.conn.QueryRow(ctx, query, p.AttributeID, p.Text, p.Role, p.Language).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to insert prompt for attribute %d: %w", p.AttributeID, err)
	}
	return nil
}

func (s *PostgresMetadataStore) ExecDDL(ctx context.Context, stmt string) error {
	zap.S().Debugw("executing ddl", "statement", stmt)
	if _, err := s.conn.Exec(ctx, stmt); err != nil {
		return formtab.NewDDLError(stmt, err)
	}
	return nil
}

func (s *PostgresMetadataStore) ExecIndexDDL(ctx context.Context, stmt string) error {
	zap.S().Debugw("executing index ddl", "statement", stmt)
	sp, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, stmt); err != nil {
		_ = sp.Rollback(ctx)
		switch pgErrorCode(err) {
		case pgDuplicateTable, pgUniqueViolation:
			zap.S().Warnw("index created concurrently, continuing", "statement", stmt, "err", err)
			return nil
		}
		return formtab.NewDDLError(stmt, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
