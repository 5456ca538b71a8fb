package internal

import (
	"context"

	"github.com/lychee-technology/formtab"
)

// MetadataStore reads and writes the metadata rows behind forms, attributes,
// views, choice sets and prompts. Every method works the same inside or
// outside a transaction.
type MetadataStore interface {
	FormByID(ctx context.Context, id int64) (*formtab.Form, error)
	FormByName(ctx context.Context, name string) (*formtab.Form, error)
	// ExistingNames returns the subset of forms and attributes already stored.
	ExistingNames(ctx context.Context, forms, attributes []string) ([]string, []string, error)

	AttributeByID(ctx context.Context, id int64) (*formtab.Attribute, error)
	AttributesByForm(ctx context.Context, formID int64) ([]formtab.Attribute, error)

	ViewByID(ctx context.Context, id int64) (*formtab.FormView, error)
	// ViewsByForm returns every view revision of a form ordered by id.
	ViewsByForm(ctx context.Context, formID int64) ([]formtab.FormView, error)
	// LatestView returns the highest revision of a named view.
	LatestView(ctx context.Context, formID int64, name string) (*formtab.FormView, error)

	AttributeViewByID(ctx context.Context, id int64) (*formtab.AttributeView, error)
	AttributeViewsByView(ctx context.Context, viewID int64) ([]formtab.AttributeView, error)
	AttributeViewsByAttribute(ctx context.Context, attributeID int64) ([]formtab.AttributeView, error)

	ChoiceSetExists(ctx context.Context, setID int64) (bool, error)
	// LockChoiceSet serializes choice allocation on an existing set.
	LockChoiceSet(ctx context.Context, setID int64) error
	Choices(ctx context.Context, setID int64) ([]formtab.Choice, error)
	// MaxChoiceID returns the largest choice id of the set that is >= floor, or 0.
	MaxChoiceID(ctx context.Context, setID, floor int64) (int64, error)
	Prompts(ctx context.Context, attributeID int64) ([]formtab.Prompt, error)

	InsertForm(ctx context.Context, form *formtab.Form) error
	InsertAttribute(ctx context.Context, attr *formtab.Attribute) error
	InsertView(ctx context.Context, view *formtab.FormView) error
	UpdateViewActive(ctx context.Context, formID int64, name string, revision int, active bool) (bool, error)
	InsertAttributeView(ctx context.Context, av *formtab.AttributeView) error
	// CreateChoiceSet allocates the next set id.
	CreateChoiceSet(ctx context.Context) (int64, error)
	InsertChoice(ctx context.Context, c formtab.Choice) error
	InsertPrompt(ctx context.Context, p *formtab.Prompt) error

	// ExecDDL runs one DDL statement.
	ExecDDL(ctx context.Context, stmt string) error
	// ExecIndexDDL runs an index statement in its own savepoint and treats
	// a concurrent creation of the same index as success.
	ExecIndexDDL(ctx context.Context, stmt string) error
}

// Store is a MetadataStore that can open transactions.
type Store interface {
	MetadataStore
	Begin(ctx context.Context) (StoreTx, error)
}

// StoreTx is a MetadataStore bound to one transaction.
type StoreTx interface {
	MetadataStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

func formNotFound(ref any) error {
	return formtab.NewNotFoundError(formtab.ErrCodeFormNotFound, "form", ref)
}

func attributeNotFound(ref any) error {
	return formtab.NewNotFoundError(formtab.ErrCodeAttributeNotFound, "attribute", ref)
}

func viewNotFound(ref any) error {
	return formtab.NewNotFoundError(formtab.ErrCodeViewNotFound, "view", ref)
}

func choiceSetNotFound(ref any) error {
	return formtab.NewNotFoundError(formtab.ErrCodeChoiceSetNotFound, "choice set", ref)
}
