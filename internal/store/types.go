package store

import (
	"fmt"
	"sort"
)

// Wildcard in Required stands for every declared field.
const Wildcard = "*"

// DefaultPrimary is the field the generated id is mirrored into.
const DefaultPrimary = "id"

// ResourceType is the read-only configuration of one kind of resource.
// Build it with NewResourceType so defaults are applied and checked.
type ResourceType struct {
	Name string

	// Required lists fields that must be present on create. A single
	// Wildcard entry means all of Fields.
	Required []string

	// Fields declares the model's fields.
	Fields []string

	// Indexes are unique, exact-match lookupable fields.
	Indexes []string

	// Sets are the named collections every resource is added to.
	Sets []string

	// Primary is the field the generated uuid is mirrored into.
	Primary string

	Associations []Association
	Validations  map[string]Validation
	Generators   map[string]Generator
}

// TypeOption configures a ResourceType.
type TypeOption func(*ResourceType)

func WithRequired(fields ...string) TypeOption {
	return func(rt *ResourceType) { rt.Required = append(rt.Required, fields...) }
}

func WithFields(fields ...string) TypeOption {
	return func(rt *ResourceType) { rt.Fields = append(rt.Fields, fields...) }
}

func WithIndexes(fields ...string) TypeOption {
	return func(rt *ResourceType) { rt.Indexes = append(rt.Indexes, fields...) }
}

func WithSets(sets ...string) TypeOption {
	return func(rt *ResourceType) { rt.Sets = append(rt.Sets, sets...) }
}

func WithPrimary(field string) TypeOption {
	return func(rt *ResourceType) { rt.Primary = field }
}

func WithAssociations(assocs ...Association) TypeOption {
	return func(rt *ResourceType) { rt.Associations = append(rt.Associations, assocs...) }
}

func WithValidation(field string, check Validator, message string) TypeOption {
	return func(rt *ResourceType) {
		rt.Validations[field] = Validation{Check: check, Message: message}
	}
}

func WithGenerator(field string, g Generator) TypeOption {
	return func(rt *ResourceType) { rt.Generators[field] = g }
}

// NewResourceType returns a resource type with Primary defaulting to "id".
func NewResourceType(name string, opts ...TypeOption) (*ResourceType, error) {
	rt := &ResourceType{
		Name:        name,
		Primary:     DefaultPrimary,
		Validations: make(map[string]Validation),
		Generators:  make(map[string]Generator),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Validate checks the configuration itself.
func (rt *ResourceType) Validate() error {
	if rt.Name == "" {
		return fmt.Errorf("%w: resource type needs a name", ErrInvalidConfig)
	}
	if _, err := rt.requiredFields(); err != nil {
		return err
	}
	for _, a := range rt.Associations {
		if a == nil || a.LocalKey() == "" {
			return fmt.Errorf("%w: %s: association without local key", ErrInvalidConfig, rt.Name)
		}
	}
	return nil
}

// ListSet is the set used to list every resource of this type: the set
// named after the plural of the type if configured, otherwise the first
// configured set. It is empty when the type has no sets.
func (rt *ResourceType) ListSet() string {
	plural := rt.Name + "s"
	for _, s := range rt.Sets {
		if s == plural {
			return s
		}
	}
	if len(rt.Sets) > 0 {
		return rt.Sets[0]
	}
	return ""
}

// idField is the field whose value index entries point at.
func (rt *ResourceType) idField() string {
	if rt.Primary == "" {
		return UUIDField
	}
	return rt.Primary
}

func (rt *ResourceType) requiredFields() ([]string, error) {
	if len(rt.Required) == 1 && rt.Required[0] == Wildcard {
		if len(rt.Fields) == 0 {
			return nil, fmt.Errorf("%w: %s: required %q without declared fields", ErrInvalidConfig, rt.Name, Wildcard)
		}
		return rt.Fields, nil
	}
	return rt.Required, nil
}

// checkRequired returns a ValidationError for the first missing required
// field, in configuration order.
func (rt *ResourceType) checkRequired(r Resource) error {
	fields, err := rt.requiredFields()
	if err != nil {
		return err
	}
	for _, f := range fields {
		if _, ok := r[f]; !ok {
			return &ValidationError{Field: f, Reason: MissingRequiredField}
		}
	}
	return nil
}

// checkValidations runs every validation whose field is present. Fields are
// visited in sorted order so the reported failure is deterministic.
func (rt *ResourceType) checkValidations(r Resource) error {
	fields := make([]string, 0, len(rt.Validations))
	for f := range rt.Validations {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		value, ok := r[f]
		if !ok {
			continue
		}
		v := rt.Validations[f]
		if v.Check != nil && !v.Check.Validate(value) {
			return &ValidationError{Field: f, Reason: InvalidField, Message: v.Message}
		}
	}
	return nil
}

// boundFields returns the fields whose values derived entries were keyed
// on at create: every index and every field an association reads.
func (rt *ResourceType) boundFields() []string {
	fields := append([]string(nil), rt.Indexes...)
	for _, a := range rt.Associations {
		if fb, ok := a.(interface{ BoundFields() []string }); ok {
			fields = append(fields, fb.BoundFields()...)
			continue
		}
		fields = append(fields, a.LocalKey())
	}
	return fields
}

// keepBoundFields copies bound fields r omits from stored and rejects any
// bound field r changes. Derived entries are only written by create, so a
// changed value would leave them pointing at the wrong value.
func (rt *ResourceType) keepBoundFields(stored, r Resource) error {
	for _, f := range rt.boundFields() {
		if _, present := r[f]; !present {
			if v, ok := stored[f]; ok {
				r[f] = v
			}
			continue
		}
		was, hadValue := fieldValue(stored[f])
		now, hasValue := fieldValue(r[f])
		if was != now || hadValue != hasValue {
			return &ValidationError{Field: f, Reason: ImmutableField,
				Message: "indexed and associated fields cannot change; delete and re-create the resource"}
		}
	}
	return nil
}

// applyGenerators replaces every generated field in place.
func (rt *ResourceType) applyGenerators(r Resource) error {
	fields := make([]string, 0, len(rt.Generators))
	for f := range rt.Generators {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		v, err := rt.Generators[f].Generate(r[f])
		if err != nil {
			return &ValidationError{Field: f, Reason: InvalidField, Message: err.Error()}
		}
		r[f] = v
	}
	return nil
}
