package filter

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/geoquery/geometry"
)

// Kind identifies the predicate a Node represents. The set is closed: Compile
// handles every kind explicitly and rejects the unsupported ones.
type Kind int

const (
	KindInclude Kind = iota // always true
	KindExclude             // always false

	// Boolean combinators
	KindAnd
	KindOr
	KindNot

	// Comparisons
	KindEq
	KindNe
	KindGt
	KindGe
	KindLt
	KindLe
	KindLike
	KindIsNull
	KindBetween

	// Spatial predicates
	KindIntersects
	KindWithin
	KindContains
	KindDisjoint
	KindTouches
	KindEquals
	KindDWithin
	KindBBox

	// Recognized but not translatable
	KindOverlaps
	KindCrosses
	KindBeyond
	KindIsNil
	KindAfter
	KindBefore
	KindDuring
	KindTEquals
	KindAnyInteracts
	KindBegins
	KindBegunBy
	KindEnds
	KindEndedBy
	KindMeets
	KindMetBy
	KindOverlappedBy
	KindTContains
	KindTOverlaps
)

var kindNames = [...]string{
	KindInclude:      "include",
	KindExclude:      "exclude",
	KindAnd:          "and",
	KindOr:           "or",
	KindNot:          "not",
	KindEq:           "eq",
	KindNe:           "ne",
	KindGt:           "gt",
	KindGe:           "ge",
	KindLt:           "lt",
	KindLe:           "le",
	KindLike:         "like",
	KindIsNull:       "isNull",
	KindBetween:      "between",
	KindIntersects:   "intersects",
	KindWithin:       "within",
	KindContains:     "contains",
	KindDisjoint:     "disjoint",
	KindTouches:      "touches",
	KindEquals:       "equals",
	KindDWithin:      "dwithin",
	KindBBox:         "bbox",
	KindOverlaps:     "overlaps",
	KindCrosses:      "crosses",
	KindBeyond:       "beyond",
	KindIsNil:        "isNil",
	KindAfter:        "after",
	KindBefore:       "before",
	KindDuring:       "during",
	KindTEquals:      "tequals",
	KindAnyInteracts: "anyInteracts",
	KindBegins:       "begins",
	KindBegunBy:      "begunBy",
	KindEnds:         "ends",
	KindEndedBy:      "endedBy",
	KindMeets:        "meets",
	KindMetBy:        "metBy",
	KindOverlappedBy: "overlappedBy",
	KindTContains:    "tcontains",
	KindTOverlaps:    "toverlaps",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Operand is one side of a binary predicate: either a property reference or
// a literal value. Literal values are orb.Geometry, geometry.Envelope, string,
// int64, float64, bool or time.Time.
type Operand struct {
	Property string
	Value    any
}

// Property references a schema field by name.
func Property(name string) Operand {
	return Operand{Property: name}
}

// Literal wraps a constant. Go integer and float kinds are widened to int64
// and float64; orb.Bound becomes a geometry.Envelope. Unsigned values above
// math.MaxInt64 stay uint64 and render exactly.
func Literal(v any) Operand {
	switch x := v.(type) {
	case int:
		v = int64(x)
	case int8:
		v = int64(x)
	case int16:
		v = int64(x)
	case int32:
		v = int64(x)
	case uint:
		v = widenUnsigned(uint64(x))
	case uint64:
		v = widenUnsigned(x)
	case uint8:
		v = int64(x)
	case uint16:
		v = int64(x)
	case uint32:
		v = int64(x)
	case float32:
		v = float64(x)
	case orb.Bound:
		v = geometry.NewEnvelope(x.Min[0], x.Max[0], x.Min[1], x.Max[1])
	}
	return Operand{Value: v}
}

func widenUnsigned(x uint64) any {
	if x > math.MaxInt64 {
		return x
	}
	return int64(x)
}

// IsProperty reports whether the operand references a field.
func (o Operand) IsProperty() bool { return o.Property != "" }

// IsSet reports whether the operand is a property or a non-nil literal.
func (o Operand) IsSet() bool { return o.Property != "" || o.Value != nil }

func (o Operand) String() string {
	if o.IsProperty() {
		return o.Property
	}
	return fmt.Sprintf("%v", o.Value)
}

// Node is one element of a filter tree.
//
//   - And, Or and Not use Children.
//   - Comparisons and spatial predicates use two Operands.
//   - IsNull and IsNil use one Operand.
//   - Between uses three Operands: value, lower and upper.
//   - DWithin and Beyond also set Distance, in meters.
//   - BBox uses a property Operand followed by an envelope or geometry literal.
type Node struct {
	Kind     Kind
	Children []*Node
	Operands []Operand
	Distance float64
}

// Include matches every row.
func Include() *Node { return &Node{Kind: KindInclude} }

// Exclude matches no row.
func Exclude() *Node { return &Node{Kind: KindExclude} }

// And combines children with AND.
func And(children ...*Node) *Node { return &Node{Kind: KindAnd, Children: children} }

// Or combines children with OR.
func Or(children ...*Node) *Node { return &Node{Kind: KindOr, Children: children} }

// Not negates a child.
func Not(child *Node) *Node { return &Node{Kind: KindNot, Children: []*Node{child}} }

// Compare builds a binary comparison or spatial predicate.
func Compare(kind Kind, a, b Operand) *Node {
	return &Node{Kind: kind, Operands: []Operand{a, b}}
}

// Eq builds a = b.
func Eq(a, b Operand) *Node { return Compare(KindEq, a, b) }

// Like builds property LIKE 'pattern'.
func Like(property, pattern string) *Node {
	return Compare(KindLike, Property(property), Literal(pattern))
}

// IsNull builds property IS NULL.
func IsNull(property string) *Node {
	return &Node{Kind: KindIsNull, Operands: []Operand{Property(property)}}
}

// Between builds value BETWEEN lower AND upper.
func Between(value, lower, upper Operand) *Node {
	return &Node{Kind: KindBetween, Operands: []Operand{value, lower, upper}}
}

// Intersects builds a spatial intersection between a property and a geometry.
func Intersects(property string, g orb.Geometry) *Node {
	return Compare(KindIntersects, Property(property), Literal(g))
}

// DWithin builds a distance predicate with a distance in meters.
func DWithin(a, b Operand, meters float64) *Node {
	return &Node{Kind: KindDWithin, Operands: []Operand{a, b}, Distance: meters}
}

// BBox builds a bounding-box predicate on a geometry property.
func BBox(property string, env geometry.Envelope) *Node {
	return Compare(KindBBox, Property(property), Literal(env))
}

// Date truncates t to a calendar date literal.
func Date(t time.Time) Operand {
	y, m, d := t.Date()
	return Literal(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
