package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is returned by SchemaBuilder.Build for inconsistent input.
var ErrInvalidSchema = errors.New("invalid schema")

// SchemaBuilder assembles a Schema with a fluent API.
//
//	schema, err := catalog.NewSchemaBuilder().
//		Field("name", catalog.TypeString).
//		Field("geom", catalog.TypeGeometry).
//		Partition("created", catalog.GranularityDay, true).
//		Build()
type SchemaBuilder struct {
	fields   []Field
	geometry string
	errs     []error
}

// NewSchemaBuilder returns an empty builder.
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{}
}

// Field appends a field.
func (b *SchemaBuilder) Field(name string, typ FieldType) *SchemaBuilder {
	return b.Add(Field{Name: name, Type: typ})
}

// Add appends a fully described field.
func (b *SchemaBuilder) Add(f Field) *SchemaBuilder {
	if f.Name == "" {
		b.errs = append(b.errs, fmt.Errorf("field %d has no name", len(b.fields)))
		return b
	}
	for _, existing := range b.fields {
		if existing.Name == f.Name {
			b.errs = append(b.errs, fmt.Errorf("duplicate field %q", f.Name))
			return b
		}
	}
	b.fields = append(b.fields, f)
	return b
}

// Geometry designates the default geometry field. Without it, the first
// geometry-typed field is used.
func (b *SchemaBuilder) Geometry(name string) *SchemaBuilder {
	b.geometry = name
	return b
}

// Clustered marks existing fields as clustering columns.
func (b *SchemaBuilder) Clustered(names ...string) *SchemaBuilder {
	for _, n := range names {
		b.update(n, func(f *Field) { f.Clustered = true })
	}
	return b
}

// Partition marks an existing field as the partitioning column.
func (b *SchemaBuilder) Partition(name string, g Granularity, required bool) *SchemaBuilder {
	b.update(name, func(f *Field) {
		f.Partitioned = true
		f.Granularity = g
		f.PartitionRequired = required
	})
	return b
}

func (b *SchemaBuilder) update(name string, fn func(*Field)) {
	for i := range b.fields {
		if b.fields[i].Name == name {
			fn(&b.fields[i])
			return
		}
	}
	b.errs = append(b.errs, fmt.Errorf("unknown field %q", name))
}

// Build validates the accumulated fields and returns an immutable Schema.
func (b *SchemaBuilder) Build() (*Schema, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, errors.Join(b.errs...))
	}
	if len(b.fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidSchema)
	}

	s := &Schema{
		fields: make([]Field, len(b.fields)),
		index:  make(map[string]int, len(b.fields)),
	}
	copy(s.fields, b.fields)
	for i, f := range s.fields {
		s.index[f.Name] = i
	}

	switch {
	case b.geometry != "":
		f, ok := s.Field(b.geometry)
		if !ok {
			return nil, fmt.Errorf("%w: geometry field %q not found", ErrInvalidSchema, b.geometry)
		}
		if f.Type != TypeGeometry {
			return nil, fmt.Errorf("%w: field %q is %s, not geometry", ErrInvalidSchema, f.Name, f.Type)
		}
		s.geometry = b.geometry
	default:
		for _, f := range s.fields {
			if f.Type == TypeGeometry {
				s.geometry = f.Name
				break
			}
		}
	}

	return s, nil
}
