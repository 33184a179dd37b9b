package domain

import "fmt"

// FieldKind tells options (rendered as remote command-line flags) from
// attributes (local behaviour parameters).
type FieldKind int

const (
	OptionField FieldKind = iota + 1
	AttributeField
)

func (k FieldKind) String() string {
	switch k {
	case OptionField:
		return "option"
	case AttributeField:
		return "attribute"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Field declares one configurable field of an entity type.
type Field struct {
	Name string
	// Wire is the flag name used on the docker command line. Defaults to Name.
	Wire    string
	Kind    FieldKind
	Default any
	// Compute derives the value from the owning entity when the field is not set.
	// A nil result falls back to Default.
	Compute func(owner any) any
	// Diff is set for options that can be diffed against live swarm state.
	Diff *Diff
}

type FieldOption func(*Field)

// Wire sets the command-line flag name of an option.
func Wire(name string) FieldOption { return func(f *Field) { f.Wire = name } }

func Default(v any) FieldOption { return func(f *Field) { f.Default = v } }

func Computed(fn func(owner any) any) FieldOption { return func(f *Field) { f.Compute = fn } }

// Removable marks an option as diffable with d.
func Removable(d Diff) FieldOption { return func(f *Field) { f.Diff = &d } }

func Option(name string, opts ...FieldOption) Field {
	return newField(name, OptionField, opts)
}

func Attribute(name string, opts ...FieldOption) Field {
	return newField(name, AttributeField, opts)
}

func newField(name string, kind FieldKind, opts []FieldOption) Field {
	f := Field{Name: name, Kind: kind}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Schema is the immutable field table of one entity type.
type Schema struct {
	name   string
	fields []Field
	index  map[string]int
	wires  map[string]int
}

// NewSchema builds the field table of an entity type.
// Fields of base come first. A field redeclared with the same name replaces the
// wire name, default, compute function and diff of the base declaration where
// the redeclaration sets them, and keeps the base values otherwise.
//
// NewSchema panics when a name is declared both as option and attribute or when two
// options share a wire name; schemas are package-level values so this surfaces at init.
func NewSchema(name string, base *Schema, fields ...Field) *Schema {
	s := &Schema{
		name:  name,
		index: make(map[string]int),
		wires: make(map[string]int),
	}
	if base != nil {
		s.fields = append(s.fields, base.fields...)
		for i, f := range s.fields {
			s.index[f.Name] = i
		}
	}
	for _, f := range fields {
		i, ok := s.index[f.Name]
		if !ok {
			s.index[f.Name] = len(s.fields)
			s.fields = append(s.fields, f)
			continue
		}
		prev := s.fields[i]
		if prev.Kind != f.Kind {
			panic(fmt.Sprintf("schema %s: %s redeclared as %s, was %s", name, f.Name, f.Kind, prev.Kind))
		}
		if f.Wire != "" {
			prev.Wire = f.Wire
		}
		if f.Default != nil {
			prev.Default = f.Default
		}
		if f.Compute != nil {
			prev.Compute = f.Compute
		}
		if f.Diff != nil {
			prev.Diff = f.Diff
		}
		s.fields[i] = prev
	}
	for i := range s.fields {
		f := &s.fields[i]
		if f.Kind != OptionField {
			continue
		}
		if f.Wire == "" {
			f.Wire = f.Name
		}
		if j, dup := s.wires[f.Wire]; dup {
			panic(fmt.Sprintf("schema %s: options %s and %s share wire name %s", name, s.fields[j].Name, f.Name, f.Wire))
		}
		s.wires[f.Wire] = i
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Field returns the declaration of the named field.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// option resolves key as an option name first and as a wire name second.
func (s *Schema) option(key string) (Field, bool) {
	if i, ok := s.index[key]; ok && s.fields[i].Kind == OptionField {
		return s.fields[i], true
	}
	if i, ok := s.wires[key]; ok {
		return s.fields[i], true
	}
	return Field{}, false
}

// Fields returns the declarations of the given kind in declaration order.
func (s *Schema) Fields(kind FieldKind) []Field {
	var out []Field
	for _, f := range s.fields {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
