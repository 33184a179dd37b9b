package domain

import (
	"maps"
	"slices"
	"sort"
)

// Options maps option names (or their wire names) to values.
// Keys the entity does not declare are passed to docker verbatim.
type Options map[string]any

// Attributes maps attribute names to values. Every key must be declared.
type Attributes map[string]any

// Entity is the field store shared by Container and Service.
// It remembers which fields were set explicitly so forks carry only those.
type Entity struct {
	schema *Schema
	owner  any
	name   string
	values map[string]any
	extra  map[string]any
}

func newEntity(schema *Schema, owner any, name string, options Options, attrs Attributes) (Entity, error) {
	e := Entity{
		schema: schema,
		owner:  owner,
		name:   name,
		values: make(map[string]any),
		extra:  make(map[string]any),
	}
	for key, value := range options {
		if f, ok := schema.option(key); ok {
			e.values[f.Name] = value
			continue
		}
		e.extra[key] = value
	}
	for key, value := range attrs {
		f, ok := schema.Field(key)
		if !ok || f.Kind != AttributeField {
			return Entity{}, &UnknownFieldError{Entity: schema.Name(), Kind: AttributeField, Field: key}
		}
		e.values[key] = value
	}
	return e, nil
}

func (e *Entity) Name() string { return e.name }

func (e *Entity) String() string { return e.name }

// Get returns the explicit value of field, or its computed value, or its default.
func (e *Entity) Get(field string) any {
	if v, ok := e.values[field]; ok {
		return v
	}
	f, ok := e.schema.Field(field)
	if !ok {
		return nil
	}
	if f.Compute != nil {
		if v := f.Compute(e.owner); v != nil {
			return v
		}
	}
	return f.Default
}

// Set assigns field and records it as overridden.
func (e *Entity) Set(field string, value any) error {
	if _, ok := e.schema.Field(field); !ok {
		return &UnknownFieldError{Entity: e.schema.Name(), Field: field}
	}
	e.values[field] = value
	return nil
}

func (e *Entity) IsOverridden(field string) bool {
	_, ok := e.values[field]
	return ok
}

// OverriddenOptions lists the options set explicitly, sorted.
func (e *Entity) OverriddenOptions() []string {
	return e.overridden(OptionField)
}

// OverriddenAttributes lists the attributes set explicitly, sorted.
func (e *Entity) OverriddenAttributes() []string {
	return e.overridden(AttributeField)
}

func (e *Entity) overridden(kind FieldKind) []string {
	var out []string
	for name := range e.values {
		if f, _ := e.schema.Field(name); f.Kind == kind {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// AdditionalOptions returns a copy of the passthrough options.
func (e *Entity) AdditionalOptions() Options {
	return Options(maps.Clone(e.extra))
}

// Flags renders every option in declaration order followed by the passthrough
// options sorted by name.
func (e *Entity) Flags() Flags {
	var flags Flags
	for _, f := range e.schema.Fields(OptionField) {
		flags = append(flags, Flag{Name: f.Wire, Value: e.Get(f.Name)})
	}
	return append(flags, e.extraFlags()...)
}

func (e *Entity) extraFlags() Flags {
	keys := slices.Sorted(maps.Keys(e.extra))
	flags := make(Flags, 0, len(keys))
	for _, key := range keys {
		flags = append(flags, Flag{Name: key, Value: e.extra[key]})
	}
	return flags
}

// forkFields merges the explicit fields of e with overrides for a fork.
// Values in options and attrs win over the ones carried from e.
func (e *Entity) forkFields(options Options, attrs Attributes) (Options, Attributes) {
	outOptions := Options(maps.Clone(e.extra))
	outAttrs := Attributes{}
	for name, value := range e.values {
		if f, _ := e.schema.Field(name); f.Kind == OptionField {
			outOptions[name] = value
		} else {
			outAttrs[name] = value
		}
	}
	for key, value := range options {
		if f, ok := e.schema.option(key); ok {
			key = f.Name
		}
		outOptions[key] = value
	}
	maps.Copy(outAttrs, attrs)
	return outOptions, outAttrs
}
