package formtab

import (
	"encoding/json"
	"fmt"
	"time"
)

// AttributeType is the type tag of a form attribute. It selects the builder,
// the reader, the physical column type and the validator primitive.
type AttributeType string

const (
	AttributeTypeText         AttributeType = "text"
	AttributeTypeBool         AttributeType = "bool"
	AttributeTypeInt          AttributeType = "int"
	AttributeTypeFloat        AttributeType = "float"
	AttributeTypeDateTime     AttributeType = "datetime"
	AttributeTypeSingleChoice AttributeType = "single_choice"
	AttributeTypeMultiChoice  AttributeType = "multi_choice"
	AttributeTypeSubForm      AttributeType = "subform"
	AttributeTypeRepeated     AttributeType = "repeated"
	AttributeTypeFile         AttributeType = "file"

	AttributeTypeTextOrNull         AttributeType = "text_or_null"
	AttributeTypeIntOrNull          AttributeType = "int_or_null"
	AttributeTypeFloatOrNull        AttributeType = "float_or_null"
	AttributeTypeBoolOrNull         AttributeType = "bool_or_null"
	AttributeTypeDateTimeOrNull     AttributeType = "datetime_or_null"
	AttributeTypeSingleChoiceOrNull AttributeType = "single_choice_or_null"
)

// orNullBase maps every "X_or_null" tag to its scalar base type.
var orNullBase = map[AttributeType]AttributeType{
	AttributeTypeTextOrNull:         AttributeTypeText,
	AttributeTypeIntOrNull:          AttributeTypeInt,
	AttributeTypeFloatOrNull:        AttributeTypeFloat,
	AttributeTypeBoolOrNull:         AttributeTypeBool,
	AttributeTypeDateTimeOrNull:     AttributeTypeDateTime,
	AttributeTypeSingleChoiceOrNull: AttributeTypeSingleChoice,
}

// AllAttributeTypes lists every supported type tag.
func AllAttributeTypes() []AttributeType {
	return []AttributeType{
		AttributeTypeText, AttributeTypeBool, AttributeTypeInt, AttributeTypeFloat,
		AttributeTypeDateTime, AttributeTypeSingleChoice, AttributeTypeMultiChoice,
		AttributeTypeSubForm, AttributeTypeRepeated, AttributeTypeFile,
		AttributeTypeTextOrNull, AttributeTypeIntOrNull, AttributeTypeFloatOrNull,
		AttributeTypeBoolOrNull, AttributeTypeDateTimeOrNull, AttributeTypeSingleChoiceOrNull,
	}
}

// Valid reports whether t is a known type tag.
func (t AttributeType) Valid() bool {
	switch t {
	case AttributeTypeText, AttributeTypeBool, AttributeTypeInt, AttributeTypeFloat,
		AttributeTypeDateTime, AttributeTypeSingleChoice, AttributeTypeMultiChoice,
		AttributeTypeSubForm, AttributeTypeRepeated, AttributeTypeFile:
		return true
	}
	_, ok := orNullBase[t]
	return ok
}

// IsOrNull reports whether values of t distinguish "withheld" from "not submitted".
func (t AttributeType) IsOrNull() bool {
	_, ok := orNullBase[t]
	return ok
}

// Base strips the or-null wrapper, returning t itself for plain types.
func (t AttributeType) Base() AttributeType {
	if base, ok := orNullBase[t]; ok {
		return base
	}
	return t
}

// HasChildForm reports whether the attribute owns a heritable child form.
func (t AttributeType) HasChildForm() bool {
	switch t {
	case AttributeTypeSubForm, AttributeTypeRepeated, AttributeTypeMultiChoice:
		return true
	}
	return false
}

// HasChoices reports whether the attribute is backed by a choice set.
func (t AttributeType) HasChoices() bool {
	switch t.Base() {
	case AttributeTypeSingleChoice, AttributeTypeMultiChoice:
		return true
	}
	return false
}

// IsIntegerShaped reports whether the stored value is an integer, which is
// where the withheld sentinel has to be filtered before sorting.
func (t AttributeType) IsIntegerShaped() bool {
	switch t.Base() {
	case AttributeTypeInt, AttributeTypeSingleChoice:
		return true
	}
	return false
}

// PrimitiveKind is the validator-facing family of an attribute type.
type PrimitiveKind string

const (
	PrimitiveText     PrimitiveKind = "text"
	PrimitiveNumeric  PrimitiveKind = "numeric"
	PrimitiveDateTime PrimitiveKind = "datetime"
	PrimitiveFile     PrimitiveKind = "file"
	PrimitiveOther    PrimitiveKind = "other"
)

// Primitive returns the validator family of t.
func (t AttributeType) Primitive() PrimitiveKind {
	switch t.Base() {
	case AttributeTypeText:
		return PrimitiveText
	case AttributeTypeInt, AttributeTypeFloat:
		return PrimitiveNumeric
	case AttributeTypeDateTime:
		return PrimitiveDateTime
	case AttributeTypeFile:
		return PrimitiveFile
	default:
		return PrimitiveOther
	}
}

// Form is a named schema definition. Heritable forms are sub-forms whose rows
// are owned by an attribute slot of a parent row.
type Form struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     int64     `json:"owner_id"`
	Heritable   bool      `json:"heritable"`
	CreatedAt   time.Time `json:"created_at"`
}

// Attribute is one typed field of a form.
type Attribute struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	FormID      int64         `json:"form_id"`
	Type        AttributeType `json:"type"`
	ChildFormID *int64        `json:"child_form_id,omitempty"`
	ChoiceSetID *int64        `json:"choice_set_id,omitempty"`
	Position    int           `json:"position"`
	OwnerID     int64         `json:"owner_id"`
}

// FormView is a named, revisioned projection of a form.
type FormView struct {
	ID          int64           `json:"id"`
	FormID      int64           `json:"form_id"`
	Name        string          `json:"name"`
	Revision    int             `json:"revision"`
	Active      bool            `json:"active"`
	Constraints json.RawMessage `json:"constraints,omitempty"`
}

// AttributeView holds the per-view constraints of one attribute.
type AttributeView struct {
	ID               int64           `json:"id"`
	AttributeID      int64           `json:"attribute_id"`
	FormViewID       int64           `json:"form_view_id"`
	ValueConstraints []Rule          `json:"value_constraints,omitempty"`
	ViewConstraints  json.RawMessage `json:"view_constraints,omitempty"`
	ChoiceSetID      *int64          `json:"choice_set_id,omitempty"`
}

// FirstAutoChoiceID is where automatically allocated choice ids start.
const FirstAutoChoiceID int64 = 1_000_000

// Choice is one labeled option of a choice set in one language.
type Choice struct {
	SetID    int64  `json:"set_id"`
	ChoiceID int64  `json:"choice_id"`
	Label    string `json:"label"`
	Order    int    `json:"order"`
	Language string `json:"language"`
}

// Prompt is a localized label attached to an attribute.
type Prompt struct {
	ID          int64  `json:"id"`
	AttributeID int64  `json:"attribute_id"`
	Text        string `json:"text"`
	Role        string `json:"role"`
	Language    string `json:"language"`
}

// WithholdState distinguishes the three storage states of an or-null value.
type WithholdState int

const (
	StateNotSubmitted WithholdState = iota
	StatePresent
	StateWithheld
)

func (s WithholdState) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateWithheld:
		return "withheld"
	default:
		return "not_submitted"
	}
}

// Withholdable is the tagged union stored in or-null columns. SQL NULL means
// not submitted; (NULL, true) means explicitly withheld; (v, false) is present.
type Withholdable struct {
	State WithholdState
	Value any
}

// Present wraps a submitted value.
func Present(v any) Withholdable { return Withholdable{State: StatePresent, Value: v} }

// Withheld marks a value the submitter explicitly declined to provide.
func Withheld() Withholdable { return Withholdable{State: StateWithheld} }

func (w Withholdable) String() string {
	if w.State == StatePresent {
		return fmt.Sprintf("%v", w.Value)
	}
	return w.State.String()
}

// MarshalJSON renders present values as themselves, withheld values as
// {"withheld": true} and missing values as null.
func (w Withholdable) MarshalJSON() ([]byte, error) {
	switch w.State {
	case StatePresent:
		return json.Marshal(w.Value)
	case StateWithheld:
		return []byte(`{"withheld":true}`), nil
	default:
		return []byte("null"), nil
	}
}
