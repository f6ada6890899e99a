package filter

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
)

// Options configures Compile.
type Options struct {
	// Dialect renders backend functions. Nil means dialect.BigQuery.
	Dialect dialect.Dialect
	// Simplify rewrites the default geometry expression once a bbox predicate
	// on it has been compiled.
	Simplify bool
	// ToleranceMode selects the tolerance derivation for simplification.
	ToleranceMode geometry.ToleranceMode
	// PixelSpan is the target output resolution. Zero means 1024.
	PixelSpan int
	// EscapeStrings escapes quotes embedded in string literals and LIKE
	// patterns. Off by default: literals are inlined verbatim.
	EscapeStrings bool
}

// Result is the output of Compile.
type Result struct {
	// Fragments are the top-level pieces of the restriction in order. For an
	// and/or root they interleave child clauses with the keyword.
	Fragments []string
	// Where is the complete row restriction, TRUE for an empty filter.
	Where string
	// GeometryExpr is the active expression for the default geometry field:
	// the field name, or its simplification after a bbox predicate.
	GeometryExpr string
	// Tolerance is the simplification tolerance in meters, 0 when the
	// geometry expression was not rewritten.
	Tolerance float64
}

// state is threaded through the walk. Each step receives the state produced
// by the previously compiled node.
type state struct {
	geomExpr  string
	tolerance float64
}

type env struct {
	schema  *catalog.Schema
	dialect dialect.Dialect
	opts    Options
}

var relations = map[Kind]dialect.Relation{
	KindIntersects: dialect.Intersects,
	KindWithin:     dialect.Within,
	KindContains:   dialect.Contains,
	KindDisjoint:   dialect.Disjoint,
	KindTouches:    dialect.Touches,
	KindEquals:     dialect.Equals,
}

var comparisonOps = map[Kind]string{
	KindEq: "=",
	KindNe: "!=",
	KindGt: ">",
	KindGe: ">=",
	KindLt: "<",
	KindLe: "<=",
}

// Compile translates a filter tree into a backend row restriction. A nil root
// compiles to TRUE.
func Compile(root *Node, schema *catalog.Schema, opts Options) (Result, error) {
	if schema == nil {
		return Result{}, fmt.Errorf("filter: nil schema")
	}
	e := env{schema: schema, dialect: opts.Dialect, opts: opts}
	if e.dialect == nil {
		e.dialect = dialect.BigQuery
	}

	st := state{geomExpr: schema.Geometry()}
	if root == nil {
		return Result{Fragments: []string{"TRUE"}, Where: "TRUE", GeometryExpr: st.geomExpr}, nil
	}

	frags, st, err := e.fragments(root, st)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Fragments:    frags,
		Where:        strings.Join(frags, " "),
		GeometryExpr: st.geomExpr,
		Tolerance:    st.tolerance,
	}, nil
}

// fragments compiles the root into its top-level pieces.
func (e env) fragments(n *Node, st state) ([]string, state, error) {
	if (n.Kind == KindAnd || n.Kind == KindOr) && len(n.Children) > 1 {
		return e.combine(n, st)
	}
	s, st, err := e.compile(n, st)
	if err != nil {
		return nil, st, err
	}
	return []string{s}, st, nil
}

func (e env) compile(n *Node, st state) (string, state, error) {
	if n == nil {
		return "", st, fmt.Errorf("%w: nil node", ErrInvalidFilter)
	}

	switch n.Kind {
	case KindInclude:
		return "TRUE", st, nil
	case KindExclude:
		return "FALSE", st, nil

	case KindAnd, KindOr:
		switch len(n.Children) {
		case 0:
			if n.Kind == KindAnd {
				return "TRUE", st, nil
			}
			return "FALSE", st, nil
		case 1:
			return e.compile(n.Children[0], st)
		}
		frags, st, err := e.combine(n, st)
		if err != nil {
			return "", st, err
		}
		return strings.Join(frags, " "), st, nil

	case KindNot:
		if len(n.Children) != 1 {
			return "", st, fmt.Errorf("%w: not takes exactly one child, got %d", ErrInvalidFilter, len(n.Children))
		}
		inner, st, err := e.compile(n.Children[0], st)
		if err != nil {
			return "", st, err
		}
		return "NOT ( " + inner + " )", st, nil

	case KindEq, KindNe, KindGt, KindGe, KindLt, KindLe:
		a, b, err := e.pair(n)
		if err != nil {
			return "", st, err
		}
		return a + " " + comparisonOps[n.Kind] + " " + b, st, nil

	case KindLike:
		return e.like(n, st)

	case KindIsNull:
		if len(n.Operands) != 1 || !n.Operands[0].IsSet() {
			return "", st, &UnresolvedOperandError{Kind: n.Kind, Reason: "expected one operand"}
		}
		v, err := e.value(n.Kind, n.Operands[0])
		if err != nil {
			return "", st, err
		}
		return v + " IS NULL", st, nil

	case KindBetween:
		return e.between(n, st)

	case KindIntersects, KindWithin, KindContains, KindDisjoint, KindTouches, KindEquals:
		a, b, err := e.spatialPair(n, st)
		if err != nil {
			return "", st, err
		}
		return e.dialect.Relate(relations[n.Kind], a, b), st, nil

	case KindDWithin:
		a, b, err := e.spatialPair(n, st)
		if err != nil {
			return "", st, err
		}
		return e.dialect.DWithin(a, b, n.Distance), st, nil

	case KindBBox:
		return e.bbox(n, st)

	case KindOverlaps, KindCrosses, KindBeyond, KindIsNil,
		KindAfter, KindBefore, KindDuring, KindTEquals, KindAnyInteracts,
		KindBegins, KindBegunBy, KindEnds, KindEndedBy, KindMeets, KindMetBy,
		KindOverlappedBy, KindTContains, KindTOverlaps:
		return "", st, &UnsupportedPredicateError{Kind: n.Kind}

	default:
		return "", st, &UnsupportedPredicateError{Kind: n.Kind}
	}
}

// combine compiles the children of an and/or node, interleaving the keyword.
// Nested and/or children are parenthesized to keep their grouping.
func (e env) combine(n *Node, st state) ([]string, state, error) {
	keyword := "AND"
	if n.Kind == KindOr {
		keyword = "OR"
	}

	frags := make([]string, 0, 2*len(n.Children)-1)
	for i, child := range n.Children {
		s, next, err := e.compile(child, st)
		if err != nil {
			return nil, st, err
		}
		st = next
		if child.Kind != n.Kind && (child.Kind == KindAnd || child.Kind == KindOr) && len(child.Children) > 1 {
			s = "(" + s + ")"
		}
		if i > 0 {
			frags = append(frags, keyword)
		}
		frags = append(frags, s)
	}
	return frags, st, nil
}

func (e env) pair(n *Node) (string, string, error) {
	if len(n.Operands) != 2 || !n.Operands[0].IsSet() || !n.Operands[1].IsSet() {
		return "", "", &UnresolvedOperandError{Kind: n.Kind, Reason: "expected two operands"}
	}
	a, err := e.value(n.Kind, n.Operands[0])
	if err != nil {
		return "", "", err
	}
	b, err := e.value(n.Kind, n.Operands[1])
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func (e env) like(n *Node, st state) (string, state, error) {
	if len(n.Operands) != 2 || !n.Operands[0].IsSet() || !n.Operands[1].IsSet() {
		return "", st, &UnresolvedOperandError{Kind: n.Kind, Reason: "expected a value and a pattern"}
	}
	v, err := e.value(n.Kind, n.Operands[0])
	if err != nil {
		return "", st, err
	}
	pattern, ok := n.Operands[1].Value.(string)
	if !ok || n.Operands[1].IsProperty() {
		return "", st, &UnresolvedOperandError{Kind: n.Kind, Operand: n.Operands[1].String(), Reason: "pattern must be a string literal"}
	}
	return v + " LIKE " + e.dialect.StringLiteral(pattern, e.opts.EscapeStrings), st, nil
}

func (e env) between(n *Node, st state) (string, state, error) {
	if len(n.Operands) != 3 {
		return "", st, &UnresolvedOperandError{Kind: n.Kind, Reason: "expected a value and two bounds"}
	}
	parts := make([]string, 3)
	for i, op := range n.Operands {
		if !op.IsSet() {
			return "", st, &UnresolvedOperandError{Kind: n.Kind, Reason: fmt.Sprintf("operand %d is missing", i)}
		}
		v, err := e.value(n.Kind, op)
		if err != nil {
			return "", st, err
		}
		parts[i] = v
	}
	return parts[0] + " BETWEEN " + parts[1] + " AND " + parts[2], st, nil
}

// value renders a non-spatial operand.
func (e env) value(kind Kind, op Operand) (string, error) {
	if op.IsProperty() {
		if !e.schema.Has(op.Property) {
			return "", &UnresolvedOperandError{Kind: kind, Operand: op.Property, Reason: "no such field"}
		}
		return op.Property, nil
	}
	return e.literal(kind, op.Value)
}

// spatialPair renders the two operands of a spatial predicate. References to
// the default geometry field render as the active geometry expression.
func (e env) spatialPair(n *Node, st state) (string, string, error) {
	if len(n.Operands) != 2 || !n.Operands[0].IsSet() || !n.Operands[1].IsSet() {
		return "", "", &UnresolvedOperandError{Kind: n.Kind, Reason: "expected two operands"}
	}
	a, err := e.spatialOperand(n.Kind, n.Operands[0], st)
	if err != nil {
		return "", "", err
	}
	b, err := e.spatialOperand(n.Kind, n.Operands[1], st)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func (e env) spatialOperand(kind Kind, op Operand, st state) (string, error) {
	if op.IsProperty() {
		if !e.schema.Has(op.Property) {
			return "", &UnresolvedOperandError{Kind: kind, Operand: op.Property, Reason: "no such field"}
		}
		if op.Property == e.schema.Geometry() {
			return st.geomExpr, nil
		}
		return op.Property, nil
	}

	var g orb.Geometry
	switch v := op.Value.(type) {
	case geometry.Envelope:
		g = v.Polygon()
	case orb.Geometry:
		g = v
	default:
		return "", &UnresolvedOperandError{Kind: kind, Operand: op.String(), Reason: fmt.Sprintf("expected a geometry literal, got %T", op.Value)}
	}
	return e.dialect.GeometryLiteral(g)
}

// bbox normalizes the envelope and, when simplification applies, switches the
// active geometry expression to a simplification sized for the box.
func (e env) bbox(n *Node, st state) (string, state, error) {
	if len(n.Operands) != 2 || !n.Operands[0].IsSet() || !n.Operands[1].IsSet() {
		return "", st, &UnresolvedOperandError{Kind: n.Kind, Reason: "expected a property and an envelope"}
	}
	prop := n.Operands[0]
	if !prop.IsProperty() {
		return "", st, &UnresolvedOperandError{Kind: n.Kind, Operand: prop.String(), Reason: "first operand must be a property"}
	}
	if !e.schema.Has(prop.Property) {
		return "", st, &UnresolvedOperandError{Kind: n.Kind, Operand: prop.Property, Reason: "no such field"}
	}

	var raw geometry.Envelope
	switch v := n.Operands[1].Value.(type) {
	case geometry.Envelope:
		raw = v
	case orb.Geometry:
		if v == nil {
			return "", st, &UnresolvedOperandError{Kind: n.Kind, Reason: "empty envelope"}
		}
		raw = geometry.EnvelopeOf(v)
	default:
		return "", st, &UnresolvedOperandError{Kind: n.Kind, Operand: n.Operands[1].String(), Reason: "second operand must be an envelope literal"}
	}

	box := geometry.NormalizeBoundingBox(raw)
	if e.opts.Simplify && prop.Property == e.schema.Geometry() {
		tol := geometry.SimplifyTolerance(box, e.opts.PixelSpan, e.opts.ToleranceMode)
		st = state{geomExpr: e.dialect.Simplify(prop.Property, tol), tolerance: tol}
	}

	expr := prop.Property
	if prop.Property == e.schema.Geometry() {
		expr = st.geomExpr
	}
	return e.dialect.IntersectsBox(expr, box), st, nil
}
