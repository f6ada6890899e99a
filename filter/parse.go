package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/hugr-lab/geoquery/geometry"
)

// Parse reads a CQL2-JSON filter document into a Node tree. Empty input and
// the literal true yield Include.
//
// Error conditions:
//   - invalid JSON
//   - unknown operator
//   - wrong argument count or argument shape
func Parse(data []byte) (*Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "true" {
		return Include(), nil
	}
	if string(data) == "false" {
		return Exclude(), nil
	}
	n, err := parseNode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	return n, nil
}

type rawExpression struct {
	Op   string            `json:"op"`
	Args []json.RawMessage `json:"args"`
}

var operatorKinds = map[string]Kind{
	"and": KindAnd,
	"or":  KindOr,
	"not": KindNot,

	"=":       KindEq,
	"<>":      KindNe,
	"!=":      KindNe,
	">":       KindGt,
	">=":      KindGe,
	"<":       KindLt,
	"<=":      KindLe,
	"like":    KindLike,
	"isNull":  KindIsNull,
	"between": KindBetween,

	"s_intersects": KindIntersects,
	"s_within":     KindWithin,
	"s_contains":   KindContains,
	"s_disjoint":   KindDisjoint,
	"s_touches":    KindTouches,
	"s_equals":     KindEquals,
	"s_dwithin":    KindDWithin,
	"s_overlaps":   KindOverlaps,
	"s_crosses":    KindCrosses,
	"s_beyond":     KindBeyond,
	"bbox":         KindBBox,

	"t_after":        KindAfter,
	"t_before":       KindBefore,
	"t_during":       KindDuring,
	"t_equals":       KindTEquals,
	"t_intersects":   KindAnyInteracts,
	"t_starts":       KindBegins,
	"t_startedBy":    KindBegunBy,
	"t_finishes":     KindEnds,
	"t_finishedBy":   KindEndedBy,
	"t_meets":        KindMeets,
	"t_metBy":        KindMetBy,
	"t_overlappedBy": KindOverlappedBy,
	"t_contains":     KindTContains,
	"t_overlaps":     KindTOverlaps,
}

func parseNode(data json.RawMessage) (*Node, error) {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true":
		return Include(), nil
	case "false":
		return Exclude(), nil
	}

	var raw rawExpression
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	if raw.Op == "" {
		return nil, fmt.Errorf("expression has no op")
	}
	kind, ok := operatorKinds[raw.Op]
	if !ok {
		kind, ok = operatorKinds[strings.ToLower(raw.Op)]
	}
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", raw.Op)
	}

	switch kind {
	case KindAnd, KindOr:
		if len(raw.Args) == 0 {
			return nil, fmt.Errorf("%s requires at least one argument", raw.Op)
		}
		return parseChildren(kind, raw.Args)
	case KindNot:
		if len(raw.Args) != 1 {
			return nil, fmt.Errorf("not requires exactly one argument, got %d", len(raw.Args))
		}
		return parseChildren(kind, raw.Args)
	case KindIsNull:
		return parseOperands(kind, raw.Op, raw.Args, 1)
	case KindBetween:
		return parseOperands(kind, raw.Op, raw.Args, 3)
	case KindDWithin, KindBeyond:
		return parseDistance(kind, raw.Op, raw.Args)
	case KindIntersects:
		n, err := parseOperands(kind, raw.Op, raw.Args, 2)
		if err != nil {
			return nil, err
		}
		// s_intersects against a bbox literal is a box filter
		if _, ok := n.Operands[1].Value.(geometry.Envelope); ok && n.Operands[0].IsProperty() {
			n.Kind = KindBBox
		}
		return n, nil
	default:
		return parseOperands(kind, raw.Op, raw.Args, 2)
	}
}

func parseChildren(kind Kind, args []json.RawMessage) (*Node, error) {
	n := &Node{Kind: kind, Children: make([]*Node, 0, len(args))}
	for i, arg := range args {
		child, err := parseNode(arg)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", kind, i, err)
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func parseOperands(kind Kind, op string, args []json.RawMessage, want int) (*Node, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%s requires exactly %d arguments, got %d", op, want, len(args))
	}
	n := &Node{Kind: kind, Operands: make([]Operand, 0, want)}
	for i, arg := range args {
		operand, err := parseOperand(arg)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", op, i, err)
		}
		n.Operands = append(n.Operands, operand)
	}
	return n, nil
}

func parseDistance(kind Kind, op string, args []json.RawMessage) (*Node, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%s requires exactly 3 arguments, got %d", op, len(args))
	}
	n, err := parseOperands(kind, op, args[:2], 2)
	if err != nil {
		return nil, err
	}
	var distance float64
	if err := json.Unmarshal(args[2], &distance); err != nil {
		return nil, fmt.Errorf("%s distance: %w", op, err)
	}
	n.Distance = distance
	return n, nil
}

// parseOperand reads a property reference, a typed literal wrapper (date,
// timestamp, bbox), a GeoJSON geometry or a JSON primitive.
func parseOperand(data json.RawMessage) (Operand, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Operand{}, fmt.Errorf("empty argument")
	}

	if data[0] != '{' {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return Operand{}, fmt.Errorf("invalid literal: %w", err)
		}
		return primitive(v)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return Operand{}, fmt.Errorf("invalid argument: %w", err)
	}

	switch {
	case obj["property"] != nil:
		var name string
		if err := json.Unmarshal(obj["property"], &name); err != nil || name == "" {
			return Operand{}, fmt.Errorf("invalid property reference")
		}
		return Property(name), nil

	case obj["date"] != nil:
		var s string
		if err := json.Unmarshal(obj["date"], &s); err != nil {
			return Operand{}, fmt.Errorf("invalid date: %w", err)
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid date: %w", err)
		}
		return Literal(t), nil

	case obj["timestamp"] != nil:
		var s string
		if err := json.Unmarshal(obj["timestamp"], &s); err != nil {
			return Operand{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		return Literal(t), nil

	case obj["bbox"] != nil:
		var b []float64
		if err := json.Unmarshal(obj["bbox"], &b); err != nil {
			return Operand{}, fmt.Errorf("invalid bbox: %w", err)
		}
		switch len(b) {
		case 4:
			return Literal(geometry.NewEnvelope(b[0], b[2], b[1], b[3])), nil
		case 6:
			return Literal(geometry.NewEnvelope(b[0], b[3], b[1], b[4])), nil
		default:
			return Operand{}, fmt.Errorf("bbox needs 4 or 6 numbers, got %d", len(b))
		}

	case obj["type"] != nil:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid geometry: %w", err)
		}
		return Literal(g.Geometry()), nil

	case obj["op"] != nil:
		return Operand{}, fmt.Errorf("nested expressions are not supported as operands")

	default:
		return Operand{}, fmt.Errorf("unrecognized argument %s", string(data))
	}
}

func primitive(v any) (Operand, error) {
	switch x := v.(type) {
	case string, bool:
		return Literal(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Literal(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Operand{}, fmt.Errorf("invalid number %s", x)
		}
		return Literal(f), nil
	case nil:
		return Operand{}, fmt.Errorf("null literal")
	default:
		return Operand{}, fmt.Errorf("unsupported literal %T", v)
	}
}
