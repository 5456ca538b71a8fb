package internal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lychee-technology/formtab"
)

var (
	sortSegmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	sortPathPattern    = regexp.MustCompile(`^([^\[\]]+)(?:\[([^=\[\]]+)=([^\[\]]*)\])?$`)
)

// sortPath is a parsed sort field: dotted attribute segments and an
// optional [field=value] qualifier on the last level.
type sortPath struct {
	Segments  []string
	Qualifier *sortQualifier
}

type sortQualifier struct {
	Field string
	Value string
}

func parseSortPath(field string) (sortPath, error) {
	m := sortPathPattern.FindStringSubmatch(strings.TrimSpace(field))
	if m == nil {
		return sortPath{}, formtab.NewInvalidSortFieldError(field, "malformed sort field")
	}
	var p sortPath
	for _, seg := range strings.Split(m[1], ".") {
		if !sortSegmentPattern.MatchString(seg) {
			return sortPath{}, formtab.NewInvalidSortFieldError(field, fmt.Sprintf("invalid path segment %q", seg))
		}
		p.Segments = append(p.Segments, seg)
	}
	if m[2] != "" {
		qf := strings.TrimSpace(m[2])
		if !sortSegmentPattern.MatchString(qf) {
			return sortPath{}, formtab.NewInvalidSortFieldError(field, fmt.Sprintf("invalid qualifier field %q", qf))
		}
		p.Qualifier = &sortQualifier{Field: qf, Value: strings.TrimSpace(m[3])}
	}
	return p, nil
}

// attributeSort is a sort key resolved against a form definition.
type attributeSort struct {
	// Path holds the child-bearing attributes from the root down to the
	// form that owns Leaf. Empty for root attributes.
	Path      []*formtab.AttributeDefinition
	Leaf      *formtab.AttributeDefinition
	Qualifier *resolvedQualifier
}

type resolvedQualifier struct {
	Attribute *formtab.AttributeDefinition
	Value     any
}

// resolveSort validates a sort key against def. Meta fields resolve to a
// nil attributeSort.
func resolveSort(def *formtab.FormDefinition, key formtab.SortKey) (*attributeSort, error) {
	if formtab.IsMetaField(key.Field) {
		return nil, nil
	}
	p, err := parseSortPath(key.Field)
	if err != nil {
		return nil, err
	}

	out := &attributeSort{}
	form := def
	for i, seg := range p.Segments {
		ad, ok := form.Attribute(seg)
		if !ok {
			return nil, formtab.NewInvalidSortFieldError(key.Field,
				fmt.Sprintf("%q is neither a meta field nor an attribute of %s", seg, form.Form.Name))
		}
		last := i == len(p.Segments)-1
		if last {
			if ad.Attribute.Type.HasChildForm() {
				return nil, formtab.NewInvalidSortFieldError(key.Field,
					fmt.Sprintf("%s attribute %q is not sortable", ad.Attribute.Type, seg))
			}
			out.Leaf = ad
			break
		}
		if !ad.Attribute.Type.HasChildForm() || ad.Child == nil {
			return nil, formtab.NewInvalidSortFieldError(key.Field, fmt.Sprintf("%q has no nested form", seg))
		}
		out.Path = append(out.Path, ad)
		form = ad.Child
	}

	if p.Qualifier != nil {
		q, err := resolveQualifier(key.Field, form, p.Qualifier)
		if err != nil {
			return nil, err
		}
		out.Qualifier = q
	}
	return out, nil
}

func resolveQualifier(field string, form *formtab.FormDefinition, q *sortQualifier) (*resolvedQualifier, error) {
	ad, ok := form.Attribute(q.Field)
	if !ok {
		return nil, formtab.NewInvalidSortFieldError(field,
			fmt.Sprintf("qualifier %q is not an attribute of %s", q.Field, form.Form.Name))
	}
	t := ad.Attribute.Type
	bad := func(reason string) error { return formtab.NewInvalidSortFieldError(field, reason) }

	switch t.Base() {
	case formtab.AttributeTypeSingleChoice:
		if id, err := strconv.ParseInt(q.Value, 10, 64); err == nil {
			return &resolvedQualifier{Attribute: ad, Value: id}, nil
		}
		for _, c := range ad.Choices {
			if strings.EqualFold(c.Label, q.Value) {
				return &resolvedQualifier{Attribute: ad, Value: c.ChoiceID}, nil
			}
		}
		return nil, bad(fmt.Sprintf("%q is not a choice of %s", q.Value, q.Field))
	case formtab.AttributeTypeInt:
		id, err := strconv.ParseInt(q.Value, 10, 64)
		if err != nil {
			return nil, bad(fmt.Sprintf("qualifier value %q is not an integer", q.Value))
		}
		return &resolvedQualifier{Attribute: ad, Value: id}, nil
	case formtab.AttributeTypeFloat:
		f, err := strconv.ParseFloat(q.Value, 64)
		if err != nil {
			return nil, bad(fmt.Sprintf("qualifier value %q is not a number", q.Value))
		}
		return &resolvedQualifier{Attribute: ad, Value: f}, nil
	case formtab.AttributeTypeBool:
		b, err := strconv.ParseBool(q.Value)
		if err != nil {
			return nil, bad(fmt.Sprintf("qualifier value %q is not a boolean", q.Value))
		}
		return &resolvedQualifier{Attribute: ad, Value: b}, nil
	case formtab.AttributeTypeText:
		return &resolvedQualifier{Attribute: ad, Value: q.Value}, nil
	}
	return nil, bad(fmt.Sprintf("%s attributes cannot qualify a sort", t))
}
