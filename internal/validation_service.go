package internal

import (
	"context"

	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/constraint"
)

// ValidationService validates values against the rules stored on attribute views.
type ValidationService struct {
	store MetadataStore
	opts  []constraint.Option
}

var _ formtab.ConstraintValidator = (*ValidationService)(nil)

// NewValidationService creates a validator over store. opts apply to every call.
func NewValidationService(store MetadataStore, opts ...constraint.Option) *ValidationService {
	return &ValidationService{store: store, opts: opts}
}

// ValidateValue checks one value against the rules of an attribute view.
func (s *ValidationService) ValidateValue(ctx context.Context, attributeViewID int64, value any) error {
	av, err := s.store.AttributeViewByID(ctx, attributeViewID)
	if err != nil {
		return err
	}
	attr, err := s.store.AttributeByID(ctx, av.AttributeID)
	if err != nil {
		return err
	}
	if err := constraint.Validate(av.ValueConstraints, value, attr.Name, attr.Type, s.opts...); err != nil {
		zap.S().Debugw("value rejected", "attribute", attr.Name, "attribute_view_id", attributeViewID, "err", err)
		return err
	}
	return nil
}

// ValidateSubmission checks a whole set of top-level values against a form
// view. Values are keyed by attribute name; every attribute of the view is
// checked so that required rules see missing values. It returns nil or a
// formtab.ValidationErrors.
func (s *ValidationService) ValidateSubmission(ctx context.Context, viewID int64, values map[string]any) error {
	avs, err := s.store.AttributeViewsByView(ctx, viewID)
	if err != nil {
		return err
	}
	fields := make([]constraint.Field, 0, len(avs))
	for _, av := range avs {
		attr, err := s.store.AttributeByID(ctx, av.AttributeID)
		if err != nil {
			return err
		}
		fields = append(fields, constraint.Field{
			Name:  attr.Name,
			Type:  attr.Type,
			Rules: av.ValueConstraints,
			Value: values[attr.Name],
		})
	}
	return constraint.ValidateAll(fields, s.opts...)
}
