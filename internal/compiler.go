package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

// SchemaCompiler turns form specs into metadata rows and physical tables.
type SchemaCompiler struct {
	store    Store
	cfg      formtab.CompilerConfig
	logDDL   bool
	ddl      *ddl.Builder
	builders *builderRegistry
	cache    *MetadataCache
}

var _ formtab.SchemaCompiler = (*SchemaCompiler)(nil)

// NewSchemaCompiler creates a compiler. cache may be shared with a
// SchemaReader; it is invalidated after every committed change.
func NewSchemaCompiler(store Store, config *formtab.Config, cache *MetadataCache) (*SchemaCompiler, error) {
	if store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if config == nil {
		config = formtab.DefaultConfig()
	}
	codec, err := ddl.NewNullCodec(config.Compiler.NullCodec)
	if err != nil {
		return nil, err
	}
	return &SchemaCompiler{
		store:    store,
		cfg:      config.Compiler,
		logDDL:   config.Logging.LogDDL,
		ddl:      ddl.NewBuilder(config.Compiler.MaxIdentifierLength, codec, config.Database.Tables.Objects),
		builders: defaultBuilderRegistry(),
		cache:    cache,
	}, nil
}

// SupportedTypes lists the attribute types the compiler can build.
func (c *SchemaCompiler) SupportedTypes() []formtab.AttributeType {
	return c.builders.SupportedTypes()
}

func (c *SchemaCompiler) newBuildContext(store MetadataStore) *buildContext {
	return &buildContext{
		buildID:  uuid.New(),
		store:    store,
		cfg:      c.cfg,
		ddl:      c.ddl,
		logDDL:   c.logDDL,
		compiler: c,
	}
}

// Build compiles a whole spec tree inside one transaction.
func (c *SchemaCompiler) Build(ctx context.Context, spec *formtab.FormSpec) (*formtab.BuildResult, error) {
	if spec == nil {
		return nil, formtab.NewInvalidSpecError("", "form spec is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	bc := c.newBuildContext(tx)
	log := zap.S().With("build_id", bc.buildID, "form", spec.Name)
	log.Infow("compiling form spec", "attributes", len(spec.Attributes))

	forms, attrs := spec.Names()
	if err := checkNamesFree(ctx, tx, forms, attrs); err != nil {
		return nil, err
	}

	built, err := c.buildForm(ctx, bc, spec, false)
	if err != nil {
		log.Warnw("form compilation failed", "err", err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit build of %s: %w", spec.Name, err)
	}
	c.cache.Invalidate()

	log.Infow("form compiled", "form_id", built.Form.ID, "view_id", built.ViewID,
		"tables", built.Tables, "duration_ms", time.Since(start).Milliseconds())
	return &formtab.BuildResult{
		BuildID: bc.buildID,
		FormID:  built.Form.ID,
		ViewID:  built.ViewID,
		Tables:  built.Tables,
	}, nil
}

func checkNamesFree(ctx context.Context, store MetadataStore, forms, attrs []string) error {
	takenForms, takenAttrs, err := store.ExistingNames(ctx, forms, attrs)
	if err != nil {
		return err
	}
	if len(takenForms) > 0 {
		return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateForm, "form", takenForms[0]).
			WithDetail("names", takenForms)
	}
	if len(takenAttrs) > 0 {
		return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateAttribute, "attribute", takenAttrs[0]).
			WithDetail("names", takenAttrs)
	}
	return nil
}

type builtForm struct {
	Form   formtab.Form
	ViewID int64
	Tables []string
}

// buildForm inserts a form, its first view and every attribute, then
// materializes the form table once all attributes exist.
func (c *SchemaCompiler) buildForm(ctx context.Context, bc *buildContext, spec *formtab.FormSpec, heritable bool) (*builtForm, error) {
	owner := spec.OwnerID
	if owner == 0 {
		owner = bc.cfg.DefaultOwnerID
	}
	form := &formtab.Form{
		Name:        spec.Name,
		Description: spec.Description,
		OwnerID:     owner,
		Heritable:   heritable,
	}
	if err := bc.store.InsertForm(ctx, form); err != nil {
		return nil, err
	}

	view := &formtab.FormView{
		FormID:   form.ID,
		Name:     formtab.DefaultViewName(spec.Name),
		Revision: 1,
		Active:   true,
	}
	if spec.View != nil {
		view.Name = spec.View.Name
		view.Constraints = spec.View.Constraints
	}
	if err := bc.store.InsertView(ctx, view); err != nil {
		return nil, err
	}

	out := &builtForm{Form: *form, ViewID: view.ID}
	columns := make([]ddl.Column, 0, len(spec.Attributes))
	for i := range spec.Attributes {
		attr := &spec.Attributes[i]
		builder, err := c.builders.lookup(spec.Name+"."+attr.Name, attr.Type)
		if err != nil {
			return nil, err
		}
		res, err := builder.Build(ctx, bc, attributeRequest{
			Spec:     attr,
			FormID:   form.ID,
			ViewID:   view.ID,
			OwnerID:  owner,
			Position: i,
		})
		if err != nil {
			return nil, err
		}
		out.Tables = append(out.Tables, res.Tables...)
		columns = append(columns, ddl.Column{Attribute: attr.Name, Type: attr.Type})
	}

	table, err := c.materialize(ctx, bc, ddl.TableSpec{Form: spec.Name, Heritable: heritable, Columns: columns})
	if err != nil {
		return nil, err
	}
	out.Tables = append(out.Tables, table)
	return out, nil
}

func (c *SchemaCompiler) materialize(ctx context.Context, bc *buildContext, spec ddl.TableSpec) (string, error) {
	plan, err := bc.ddl.Table(spec)
	if err != nil {
		return "", formtab.NewInternalError("failed to render table ddl for "+spec.Form, err)
	}
	for _, stmt := range append(plan.Prelude, plan.Create) {
		bc.logStatement(stmt)
		if err := bc.store.ExecDDL(ctx, stmt); err != nil {
			return "", err
		}
	}
	for _, stmt := range plan.Indexes {
		bc.logStatement(stmt)
		if err := bc.store.ExecIndexDDL(ctx, stmt); err != nil {
			return "", err
		}
	}
	return plan.Table, nil
}

func (bc *buildContext) logStatement(stmt string) {
	if bc.logDDL {
		zap.S().Infow("ddl", "build_id", bc.buildID, "statement", stmt)
	}
}

// defaultView returns the latest revision of the first view created for a form.
func defaultView(ctx context.Context, store MetadataStore, formID int64) (*formtab.FormView, error) {
	views, err := store.ViewsByForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, viewNotFound(fmt.Sprintf("default view of form %d", formID))
	}
	return store.LatestView(ctx, formID, views[0].Name)
}

// AddAttribute adds one attribute to an existing form, including any child
// form it owns, and alters only that form's table.
func (c *SchemaCompiler) AddAttribute(ctx context.Context, formID int64, spec *formtab.AttributeSpec) (int64, error) {
	if spec == nil {
		return 0, formtab.NewInvalidSpecError("", "attribute spec is required")
	}
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	form, err := tx.FormByID(ctx, formID)
	if err != nil {
		return 0, err
	}
	forms, attrs := spec.Names()
	if err := checkNamesFree(ctx, tx, forms, attrs); err != nil {
		return 0, err
	}
	view, err := defaultView(ctx, tx, form.ID)
	if err != nil {
		return 0, err
	}
	existing, err := tx.AttributesByForm(ctx, form.ID)
	if err != nil {
		return 0, err
	}
	builder, err := c.builders.lookup(form.Name+"."+spec.Name, spec.Type)
	if err != nil {
		return 0, err
	}

	bc := c.newBuildContext(tx)
	res, err := builder.Build(ctx, bc, attributeRequest{
		Spec:     spec,
		FormID:   form.ID,
		ViewID:   view.ID,
		OwnerID:  form.OwnerID,
		Position: len(existing),
	})
	if err != nil {
		return 0, err
	}

	table := c.ddl.TableName(form.Name, form.Heritable)
	stmts, err := c.ddl.AddColumn(table, ddl.Column{Attribute: spec.Name, Type: spec.Type})
	if err != nil {
		return 0, formtab.NewInternalError("failed to render column ddl for "+spec.Name, err)
	}
	for _, stmt := range stmts {
		bc.logStatement(stmt)
		if err := tx.ExecDDL(ctx, stmt); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit attribute %s: %w", spec.Name, err)
	}
	c.cache.Invalidate()
	zap.S().Infow("attribute added", "build_id", bc.buildID, "form", form.Name,
		"attribute", spec.Name, "attribute_id", res.Attribute.ID, "tables", res.Tables)
	return res.Attribute.ID, nil
}

// AddChoices extends an existing choice set.
func (c *SchemaCompiler) AddChoices(ctx context.Context, setID int64, choices []formtab.ChoiceSpec) error {
	if len(choices) == 0 {
		return nil
	}
	probe := formtab.AttributeSpec{Name: "choice_set", Type: formtab.AttributeTypeSingleChoice, Choices: choices}
	if err := probe.Validate(); err != nil {
		return err
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.LockChoiceSet(ctx, setID); err != nil {
		return err
	}
	if err := insertChoices(ctx, tx, setID, choices, c.cfg.DefaultLanguage); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit choices of set %d: %w", setID, err)
	}
	c.cache.Invalidate()
	zap.S().Infow("choices added", "set_id", setID, "count", len(choices))
	return nil
}

// CreateView adds a new named view to a form. Its attribute views start as
// copies of the form's default view.
func (c *SchemaCompiler) CreateView(ctx context.Context, formID int64, spec *formtab.ViewSpec) (int64, error) {
	if spec == nil || strings.TrimSpace(spec.Name) == "" {
		return 0, formtab.NewInvalidSpecError("view.name", "view name must not be empty")
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.FormByID(ctx, formID); err != nil {
		return 0, err
	}
	if _, err := tx.LatestView(ctx, formID, spec.Name); err == nil {
		return 0, formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateView, "view", spec.Name)
	} else if !formtab.IsNotFound(err) {
		return 0, err
	}
	base, err := defaultView(ctx, tx, formID)
	if err != nil {
		return 0, err
	}

	view := &formtab.FormView{
		FormID:      formID,
		Name:        spec.Name,
		Revision:    1,
		Active:      true,
		Constraints: spec.Constraints,
	}
	if err := tx.InsertView(ctx, view); err != nil {
		return 0, err
	}
	if err := copyAttributeViews(ctx, tx, base.ID, view.ID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit view %s: %w", spec.Name, err)
	}
	c.cache.Invalidate()
	zap.S().Infow("view created", "form_id", formID, "view", spec.Name, "view_id", view.ID)
	return view.ID, nil
}

// CloneView creates the next revision of a view's name. The clone starts
// inactive and carries the constraints of the highest existing revision.
func (c *SchemaCompiler) CloneView(ctx context.Context, viewID int64) (int64, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	source, err := tx.ViewByID(ctx, viewID)
	if err != nil {
		return 0, err
	}
	latest, err := tx.LatestView(ctx, source.FormID, source.Name)
	if err != nil {
		return 0, err
	}
	clone := &formtab.FormView{
		FormID:      latest.FormID,
		Name:        latest.Name,
		Revision:    latest.Revision + 1,
		Active:      false,
		Constraints: latest.Constraints,
	}
	if err := tx.InsertView(ctx, clone); err != nil {
		return 0, err
	}
	if err := copyAttributeViews(ctx, tx, latest.ID, clone.ID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit clone of view %d: %w", viewID, err)
	}
	c.cache.Invalidate()
	zap.S().Infow("view cloned", "view", clone.Name, "revision", clone.Revision, "view_id", clone.ID)
	return clone.ID, nil
}

func copyAttributeViews(ctx context.Context, store MetadataStore, fromViewID, toViewID int64) error {
	avs, err := store.AttributeViewsByView(ctx, fromViewID)
	if err != nil {
		return err
	}
	for _, av := range avs {
		av.ID = 0
		av.FormViewID = toViewID
		if err := store.InsertAttributeView(ctx, &av); err != nil {
			return err
		}
	}
	return nil
}

// SetViewActive flips one (name, revision) pair. Other revisions keep their flag.
func (c *SchemaCompiler) SetViewActive(ctx context.Context, formID int64, name string, revision int, active bool) error {
	ok, err := c.store.UpdateViewActive(ctx, formID, name, revision, active)
	if err != nil {
		return err
	}
	if !ok {
		return viewNotFound(fmt.Sprintf("%s revision %d", name, revision))
	}
	c.cache.Invalidate()
	zap.S().Infow("view activation changed", "form_id", formID, "view", name, "revision", revision, "active", active)
	return nil
}
