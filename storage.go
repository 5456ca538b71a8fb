package formtab

import (
	"context"

	"github.com/google/uuid"
)

// BuildResult describes what a top-level Build created.
type BuildResult struct {
	BuildID uuid.UUID `json:"build_id"`
	FormID  int64     `json:"form_id"`
	ViewID  int64     `json:"view_id"`
	Tables  []string  `json:"tables"`
}

// SchemaCompiler turns form specs into metadata rows and physical tables.
type SchemaCompiler interface {
	// Build compiles a whole spec tree in one transaction.
	Build(ctx context.Context, spec *FormSpec) (*BuildResult, error)
	// AddAttribute adds one attribute (and its column) to an existing form.
	AddAttribute(ctx context.Context, formID int64, spec *AttributeSpec) (int64, error)
	CreateView(ctx context.Context, formID int64, spec *ViewSpec) (int64, error)
	// CloneView creates the next revision of the view's name.
	CloneView(ctx context.Context, viewID int64) (int64, error)
	SetViewActive(ctx context.Context, formID int64, name string, revision int, active bool) error
	AddChoices(ctx context.Context, setID int64, choices []ChoiceSpec) error
}

// SchemaReader reconstructs nested form definitions from metadata.
type SchemaReader interface {
	Read(ctx context.Context, formID int64, rc ReadContext) (*FormDefinition, error)
	ReadByName(ctx context.Context, name string, rc ReadContext) (*FormDefinition, error)
}

// SearchEngine runs searches over the physical tables of a view's form.
type SearchEngine interface {
	Search(ctx context.Context, viewID int64, req *SearchRequest, opts ...SearchOption) (*SearchResult, error)
}

// ConstraintValidator checks values against the rules stored on an attribute view.
type ConstraintValidator interface {
	ValidateValue(ctx context.Context, attributeViewID int64, value any) error
	// ValidateSubmission checks top-level values keyed by attribute name against
	// every attribute view of a form view.
	ValidateSubmission(ctx context.Context, viewID int64, values map[string]any) error
}

// SubmissionLoader materializes the physical row tree of submissions into nested values.
type SubmissionLoader interface {
	LoadSubmissions(ctx context.Context, objectIDs []int64) (map[int64]map[string]any, error)
}

// RestatementSource returns the latest restatement per path for each object.
type RestatementSource interface {
	LatestRestatements(ctx context.Context, objectIDs []int64) (map[int64][]Restatement, error)
}
