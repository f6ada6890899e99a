package catalog

import (
	"strings"
)

// FieldType is the semantic type of a schema field.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeDate
	TypeTimestamp
	TypeGeometry
)

var fieldTypeNames = map[FieldType]string{
	TypeString:    "string",
	TypeInteger:   "integer",
	TypeFloat:     "float",
	TypeBoolean:   "boolean",
	TypeDate:      "date",
	TypeTimestamp: "timestamp",
	TypeGeometry:  "geometry",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseFieldType parses a field type name as written in configuration files.
func ParseFieldType(s string) (FieldType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range fieldTypeNames {
		if name == s {
			return t, true
		}
	}
	switch s {
	case "int", "int64", "long":
		return TypeInteger, true
	case "double", "float64", "numeric":
		return TypeFloat, true
	case "bool":
		return TypeBoolean, true
	case "datetime", "time":
		return TypeTimestamp, true
	case "geography":
		return TypeGeometry, true
	}
	return TypeString, false
}

// Granularity is the time unit a partitioned field is split by.
type Granularity int

const (
	GranularityYear Granularity = iota
	GranularityMonth
	GranularityDay
	GranularityHour
)

func (g Granularity) String() string {
	switch g {
	case GranularityHour:
		return "HOUR"
	case GranularityDay:
		return "DAY"
	case GranularityMonth:
		return "MONTH"
	default:
		return "YEAR"
	}
}

// ParseGranularity maps HOUR, DAY and MONTH (any case) to their granularity.
// Anything else is YEAR.
func ParseGranularity(s string) Granularity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HOUR":
		return GranularityHour
	case "DAY":
		return GranularityDay
	case "MONTH":
		return GranularityMonth
	default:
		return GranularityYear
	}
}

// Field describes one column of a target table.
type Field struct {
	Name              string
	Type              FieldType
	Clustered         bool
	Partitioned       bool
	PartitionRequired bool
	Granularity       Granularity
}

// Schema is an ordered, immutable list of fields with a designated default
// geometry field. Build one with NewSchemaBuilder.
type Schema struct {
	fields   []Field
	index    map[string]int
	geometry string
}

// Fields returns a copy of the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether the schema contains a field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Geometry returns the default geometry field name, or "" when the schema
// has no geometry.
func (s *Schema) Geometry() string { return s.geometry }

// PartitionRequired returns the fields whose partition filter is mandatory.
func (s *Schema) PartitionRequired() []Field {
	var out []Field
	for _, f := range s.fields {
		if f.PartitionRequired {
			out = append(out, f)
		}
	}
	return out
}
