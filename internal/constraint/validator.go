// Package constraint checks submitted values against attribute rules.
// It performs no I/O.
package constraint

import (
	"fmt"
	"reflect"
	"time"

	"github.com/lychee-technology/formtab"
)

type options struct {
	targets map[string]any
	now     func() time.Time
}

// Option configures a validation call.
type Option func(*options)

// WithTargets supplies the values that condition targets refer to. A
// condition whose target is not in the map compares the candidate value.
func WithTargets(targets map[string]any) Option {
	return func(o *options) { o.targets = targets }
}

// WithClock overrides the clock used to resolve the "now" bound.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Validate runs every rule against value. It returns the first violation as
// a *formtab.Error: ConstraintViolation, TypeMismatch, or InvalidSpec when a
// rule itself cannot be applied.
func Validate(rules []formtab.Rule, value any, attribute string, t formtab.AttributeType, opts ...Option) error {
	o := newOptions(opts)
	for _, rule := range rules {
		if err := validateRule(rule, value, attribute, t, o); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(rule formtab.Rule, value any, attribute string, t formtab.AttributeType, o options) error {
	if len(rule.Conditions) > 0 && !anyConditionHolds(rule.Conditions, value, o) {
		return formtab.NewConstraintViolation(attribute, rule, value, "no precondition of the rule holds")
	}

	candidate, withheld := unwrap(value)
	for _, action := range rule.Actions {
		if action.IsRequired() && !withheld && isAbsent(candidate) {
			return formtab.NewConstraintViolation(attribute, rule, value, "value is required")
		}
		if withheld || candidate == nil {
			continue
		}

		var err error
		switch t.Primitive() {
		case formtab.PrimitiveDateTime:
			err = checkDateTime(action, candidate, attribute, o)
		case formtab.PrimitiveNumeric:
			err = checkNumeric(action, candidate, attribute)
		case formtab.PrimitiveText:
			err = checkText(action, candidate, attribute)
		case formtab.PrimitiveFile:
			err = checkFile(action, candidate, attribute)
		}
		if err != nil {
			return attach(err, rule, value)
		}
	}
	return nil
}

func anyConditionHolds(conds []formtab.Condition, value any, o options) bool {
	for _, c := range conds {
		lhs := value
		if c.Target != "" && o.targets != nil {
			if v, ok := o.targets[c.Target]; ok {
				lhs = v
			}
		}
		lhs, _ = unwrap(lhs)
		if compare(lhs, c.Op, c.Operand) {
			return true
		}
	}
	return false
}

// violation is raised by the primitive checks; attach adds the rule and raw value.
type violation struct {
	attribute string
	message   string
}

func (v *violation) Error() string { return v.message }

func violationf(attribute, format string, args ...any) error {
	return &violation{attribute: attribute, message: fmt.Sprintf(format, args...)}
}

func attach(err error, rule formtab.Rule, value any) error {
	if v, ok := err.(*violation); ok {
		return formtab.NewConstraintViolation(v.attribute, rule, value, v.message)
	}
	if fe, ok := err.(*formtab.Error); ok && fe.Type == formtab.ErrorTypeInvalidSpec {
		r := rule
		fe.Rule = &r
	}
	return err
}

// unwrap strips a Withholdable, reporting whether the value was withheld.
func unwrap(v any) (any, bool) {
	switch w := v.(type) {
	case formtab.Withholdable:
		switch w.State {
		case formtab.StateWithheld:
			return nil, true
		case formtab.StatePresent:
			return w.Value, false
		default:
			return nil, false
		}
	case *formtab.Withholdable:
		if w == nil {
			return nil, false
		}
		return unwrap(*w)
	}
	return v, false
}

// isAbsent treats nil, empty strings and empty collections as missing.
// false and numeric zero are real answers.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	if x, ok := v.(string); ok {
		return x == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Field is one attribute value to check in ValidateAll.
type Field struct {
	Name  string
	Type  formtab.AttributeType
	Rules []formtab.Rule
	Value any
}

// ValidateAll validates every field and aggregates failures per attribute.
// Other fields are available to condition targets. It returns nil or a
// formtab.ValidationErrors.
func ValidateAll(fields []Field, opts ...Option) error {
	targets := make(map[string]any, len(fields))
	for _, f := range fields {
		targets[f.Name] = f.Value
	}
	opts = append([]Option{WithTargets(targets)}, opts...)

	errs := formtab.ValidationErrors{}
	for _, f := range fields {
		o := newOptions(opts)
		for _, rule := range f.Rules {
			if err := validateRule(rule, f.Value, f.Name, f.Type, o); err != nil {
				fe, ok := err.(*formtab.Error)
				if !ok {
					fe = formtab.NewInternalError("validation failed", err)
				}
				errs.Add(f.Name, fe)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
