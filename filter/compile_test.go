package filter

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
)

func testSchema(t *testing.T) *catalog.Schema {
	t.Helper()
	s, err := catalog.NewSchemaBuilder().
		Field("name", catalog.TypeString).
		Field("population", catalog.TypeInteger).
		Field("created", catalog.TypeDate).
		Field("geom", catalog.TypeGeometry).
		Field("footprint", catalog.TypeGeometry).
		Geometry("geom").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return s
}

var scenarioBox = geometry.NewEnvelope(-78.6785, -74.4158, 36.0049, 38.4493)

const scenarioClause = "ST_INTERSECTSBOX(geom, -78.678500, 36.004900, -74.415800, 38.449300)"

func compileWhere(t *testing.T, n *Node, opts Options) string {
	t.Helper()
	res, err := Compile(n, testSchema(t), opts)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return res.Where
}

func TestCompile_Comparisons(t *testing.T) {
	tests := []struct {
		name   string
		node   *Node
		expect string
	}{
		{"property to property", Eq(Property("name"), Property("population")), "name = population"},
		{"integer literal", Eq(Property("name"), Literal(7)), "name = 7"},
		{"uint64 literal", Eq(Property("population"), Literal(uint64(42))), "population = 42"},
		{"large uint64 literal", Eq(Property("population"), Literal(uint64(math.MaxUint64))), "population = 18446744073709551615"},
		{"large uint literal", Eq(Property("population"), Literal(uint(math.MaxInt64)+1)), "population = 9223372036854775808"},
		{"float literal", Eq(Property("name"), Literal(7.123)), "name = 7.123"},
		{"string literal", Eq(Property("name"), Literal("abc")), "name = 'abc'"},
		{"two literals", Eq(Literal("xyz"), Literal("abc")), "'xyz' = 'abc'"},
		{"not equal", Compare(KindNe, Property("name"), Property("population")), "name != population"},
		{"greater", Compare(KindGt, Property("population"), Literal(100)), "population > 100"},
		{"less", Compare(KindLt, Property("population"), Literal(100.8)), "population < 100.8"},
		{"less or equal", Compare(KindLe, Property("population"), Literal(999)), "population <= 999"},
		{"greater or equal", Compare(KindGe, Property("population"), Literal(999)), "population >= 999"},
		{"boolean", Eq(Property("name"), Literal(true)), "name = TRUE"},
		{"date", Compare(KindGe, Property("created"), Date(time.Date(2022, 3, 4, 15, 0, 0, 0, time.UTC))), "created >= '2022-03-04'"},
		{"is null", IsNull("name"), "name IS NULL"},
		{"like", Like("name", "nor%"), "name LIKE 'nor%'"},
		{"between", Between(Property("population"), Literal(100), Literal(200)), "population BETWEEN 100 AND 200"},
		{"include", Include(), "TRUE"},
		{"exclude", Exclude(), "FALSE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compileWhere(t, tt.node, Options{}); got != tt.expect {
				t.Errorf("expected '%s', got '%s'", tt.expect, got)
			}
		})
	}
}

func TestCompile_Combinators(t *testing.T) {
	eq := Eq(Property("name"), Literal("abc"))
	gt := Compare(KindGt, Property("population"), Literal(100))

	tests := []struct {
		name   string
		node   *Node
		expect string
	}{
		{"not", Not(eq), "NOT ( name = 'abc' )"},
		{"and", And(eq, gt), "name = 'abc' AND population > 100"},
		{"or", Or(eq, gt), "name = 'abc' OR population > 100"},
		{"single child and", And(eq), "name = 'abc'"},
		{"empty and", And(), "TRUE"},
		{"empty or", Or(), "FALSE"},
		{"nested or in and", And(eq, Or(gt, IsNull("name"))), "name = 'abc' AND (population > 100 OR name IS NULL)"},
		{"same kind nested", And(eq, And(gt, IsNull("name"))), "name = 'abc' AND population > 100 AND name IS NULL"},
		{"not of and", Not(And(eq, gt)), "NOT ( name = 'abc' AND population > 100 )"},
		{"double not", Not(Not(eq)), "NOT ( NOT ( name = 'abc' ) )"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compileWhere(t, tt.node, Options{}); got != tt.expect {
				t.Errorf("expected '%s', got '%s'", tt.expect, got)
			}
		})
	}
}

// TestCompile_NoTrailingKeyword checks and/or output for any child count.
func TestCompile_NoTrailingKeyword(t *testing.T) {
	for n := 1; n <= 6; n++ {
		children := make([]*Node, n)
		for i := range children {
			children[i] = Compare(KindGt, Property("population"), Literal(i))
		}
		for _, root := range []*Node{And(children...), Or(children...)} {
			where := compileWhere(t, root, Options{})
			if strings.HasSuffix(where, " AND") || strings.HasSuffix(where, " OR") ||
				strings.HasPrefix(where, "AND ") || strings.HasPrefix(where, "OR ") {
				t.Errorf("dangling keyword in '%s'", where)
			}
			if got := strings.Count(where, " "+strings.ToUpper(root.Kind.String())+" "); got != n-1 {
				t.Errorf("expected %d keywords, got %d in '%s'", n-1, got, where)
			}
		}
	}
}

func TestCompile_NotWrapsOnce(t *testing.T) {
	inner := []*Node{
		IsNull("name"),
		And(IsNull("name"), Like("name", "a%")),
		Or(BBox("geom", scenarioBox), And(IsNull("name"), Eq(Property("population"), Literal(1)))),
	}
	for _, n := range inner {
		where := compileWhere(t, Not(n), Options{})
		if !strings.HasPrefix(where, "NOT ( ") || !strings.HasSuffix(where, " )") {
			t.Errorf("expected NOT ( ... ) wrapper, got '%s'", where)
		}
		if strings.Count(where, "NOT (") != 1 {
			t.Errorf("expected exactly one NOT wrapper in '%s'", where)
		}
	}
}

func TestCompile_Spatial(t *testing.T) {
	point := orb.Point{-76.2859, 36.8508}
	pointLit := `ST_GEOGFROMGEOJSON('{"type":"Point","coordinates":[-76.2859,36.8508]}', make_valid => true)`
	polygon := orb.Polygon{{{-76.2, 36.8}, {-76.1, 36.8}, {-76.1, 36.9}, {-76.2, 36.8}}}
	polygonLit := `ST_GEOGFROMGEOJSON('{"type":"Polygon","coordinates":[[[-76.2,36.8],[-76.1,36.8],[-76.1,36.9],[-76.2,36.8]]]}', make_valid => true)`

	tests := []struct {
		name   string
		node   *Node
		expect string
	}{
		{"bbox", BBox("geom", scenarioBox), scenarioClause},
		{"intersects point", Intersects("geom", point), "ST_INTERSECTS(geom, " + pointLit + ")"},
		{"within", Compare(KindWithin, Property("geom"), Literal(polygon)), "ST_WITHIN(geom, " + polygonLit + ")"},
		{"contains", Compare(KindContains, Property("geom"), Literal(point)), "ST_CONTAINS(geom, " + pointLit + ")"},
		{"disjoint", Compare(KindDisjoint, Property("geom"), Literal(point)), "ST_DISJOINT(geom, " + pointLit + ")"},
		{"touches", Compare(KindTouches, Property("geom"), Literal(point)), "ST_TOUCHES(geom, " + pointLit + ")"},
		{"equals", Compare(KindEquals, Property("geom"), Literal(point)), "ST_EQUALS(geom, " + pointLit + ")"},
		{"reversed operands", Compare(KindWithin, Literal(point), Property("geom")), "ST_WITHIN(" + pointLit + ", geom)"},
		{"two properties", Compare(KindIntersects, Property("footprint"), Property("geom")), "ST_INTERSECTS(footprint, geom)"},
		{"dwithin", DWithin(Property("geom"), Literal(point), 123.45), "ST_DWITHIN(geom, " + pointLit + ", 123.450000)"},
		{
			"or of bboxes",
			Or(BBox("geom", geometry.NewEnvelope(-200, 300, -95, 95)), BBox("geom", scenarioBox)),
			"ST_INTERSECTSBOX(geom, -180.000000, -90.000000, 180.000000, 90.000000) OR " + scenarioClause,
		},
		{
			"bbox from geometry literal",
			Compare(KindBBox, Property("geom"), Literal(scenarioBox.Polygon())),
			scenarioClause,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compileWhere(t, tt.node, Options{}); got != tt.expect {
				t.Errorf("expected '%s', got '%s'", tt.expect, got)
			}
		})
	}
}

func TestCompile_Simplify(t *testing.T) {
	schema := testSchema(t)
	point := orb.Point{-76.2859, 36.8508}

	t.Run("bbox rewrites geometry expression", func(t *testing.T) {
		res, err := Compile(BBox("geom", scenarioBox), schema, Options{Simplify: true})
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		want := "ST_INTERSECTSBOX(ST_SIMPLIFY(geom, 100), -78.678500, 36.004900, -74.415800, 38.449300)"
		if res.Where != want {
			t.Errorf("expected '%s', got '%s'", want, res.Where)
		}
		if res.GeometryExpr != "ST_SIMPLIFY(geom, 100)" || res.Tolerance != 100 {
			t.Errorf("unexpected geometry state %q / %v", res.GeometryExpr, res.Tolerance)
		}
	})

	t.Run("rewrite applies to later spatial predicates only", func(t *testing.T) {
		res, err := Compile(And(
			Intersects("geom", point),
			BBox("geom", scenarioBox),
			Intersects("geom", point),
		), schema, Options{Simplify: true})
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if !strings.HasPrefix(res.Where, "ST_INTERSECTS(geom, ") {
			t.Errorf("first predicate should use raw geometry: %s", res.Where)
		}
		if strings.Count(res.Where, "ST_SIMPLIFY(geom, 100)") != 2 {
			t.Errorf("expected bbox and later predicate to use simplified geometry: %s", res.Where)
		}
	})

	t.Run("second bbox replaces tolerance without nesting", func(t *testing.T) {
		res, err := Compile(And(BBox("geom", scenarioBox), BBox("geom", geometry.FullGlobe)), schema, Options{Simplify: true})
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if res.GeometryExpr != "ST_SIMPLIFY(geom, 1000)" {
			t.Errorf("unexpected geometry expression %q", res.GeometryExpr)
		}
		if strings.Contains(res.Where, "ST_SIMPLIFY(ST_SIMPLIFY") {
			t.Errorf("nested simplification in %s", res.Where)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		res, err := Compile(BBox("geom", scenarioBox), schema, Options{})
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if res.Where != scenarioClause || res.GeometryExpr != "geom" || res.Tolerance != 0 {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("bbox on non-default geometry", func(t *testing.T) {
		res, err := Compile(BBox("footprint", scenarioBox), schema, Options{Simplify: true})
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if res.GeometryExpr != "geom" {
			t.Errorf("expected untouched geometry expression, got %q", res.GeometryExpr)
		}
	})
}

func TestCompile_Fragments(t *testing.T) {
	res, err := Compile(Or(BBox("geom", scenarioBox), IsNull("name")), testSchema(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	want := []string{scenarioClause, "OR", "name IS NULL"}
	if len(res.Fragments) != len(want) {
		t.Fatalf("expected %d fragments, got %v", len(want), res.Fragments)
	}
	for i := range want {
		if res.Fragments[i] != want[i] {
			t.Errorf("fragment %d: expected '%s', got '%s'", i, want[i], res.Fragments[i])
		}
	}
}

func TestCompile_Empty(t *testing.T) {
	res, err := Compile(nil, testSchema(t), Options{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if res.Where != "TRUE" || res.GeometryExpr != "geom" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCompile_EscapeStrings(t *testing.T) {
	n := And(Eq(Property("name"), Literal("O'Hare")), Like("name", "it's%"))

	if got := compileWhere(t, n, Options{}); got != "name = 'O'Hare' AND name LIKE 'it's%'" {
		t.Errorf("verbatim literals changed: %s", got)
	}
	if got := compileWhere(t, n, Options{EscapeStrings: true}); got != `name = 'O\'Hare' AND name LIKE 'it\'s%'` {
		t.Errorf("unexpected escaped output: %s", got)
	}
	if got := compileWhere(t, n, Options{EscapeStrings: true, Dialect: dialect.DuckDB}); got != "name = 'O''Hare' AND name LIKE 'it''s%'" {
		t.Errorf("unexpected duckdb escaped output: %s", got)
	}
}

func TestCompile_DuckDB(t *testing.T) {
	got := compileWhere(t, And(BBox("geom", scenarioBox), Compare(KindGt, Property("population"), Literal(5))), Options{Dialect: dialect.DuckDB})
	want := "ST_Intersects(geom, ST_MakeEnvelope(-78.678500, 36.004900, -74.415800, 38.449300)) AND population > 5"
	if got != want {
		t.Errorf("expected '%s', got '%s'", want, got)
	}
}

func TestCompile_Unresolved(t *testing.T) {
	tests := []struct {
		name string
		node *Node
	}{
		{"unknown property", Eq(Property("missing"), Literal(1))},
		{"missing operand", &Node{Kind: KindEq, Operands: []Operand{Property("name")}}},
		{"unset operand", &Node{Kind: KindIntersects, Operands: []Operand{Property("geom"), {}}}},
		{"unknown spatial property", Intersects("missing", orb.Point{1, 2})},
		{"non-geometry spatial literal", Compare(KindIntersects, Property("geom"), Literal("POINT(1 2)"))},
		{"bbox without envelope", Compare(KindBBox, Property("geom"), Literal(5))},
		{"bbox with literal first", Compare(KindBBox, Literal(scenarioBox), Property("geom"))},
		{"like with non-string pattern", Compare(KindLike, Property("name"), Literal(5))},
		{"between with two operands", &Node{Kind: KindBetween, Operands: []Operand{Property("population"), Literal(1)}}},
		{"is null without operand", &Node{Kind: KindIsNull}},
		{"unsupported literal", Eq(Property("name"), Literal(struct{}{}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.node, testSchema(t), Options{})
			var uerr *UnresolvedOperandError
			if !errors.As(err, &uerr) {
				t.Errorf("expected *UnresolvedOperandError, got %v", err)
			}
		})
	}
}

func TestCompile_Unsupported(t *testing.T) {
	kinds := []Kind{
		KindOverlaps, KindCrosses, KindBeyond, KindIsNil,
		KindAfter, KindBefore, KindDuring, KindTEquals, KindAnyInteracts,
		KindBegins, KindBegunBy, KindEnds, KindEndedBy, KindMeets, KindMetBy,
		KindOverlappedBy, KindTContains, KindTOverlaps, Kind(999),
	}

	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			n := Compare(k, Property("geom"), Literal(orb.Point{1, 2}))
			_, err := Compile(And(IsNull("name"), n), testSchema(t), Options{})
			var uerr *UnsupportedPredicateError
			if !errors.As(err, &uerr) {
				t.Fatalf("expected *UnsupportedPredicateError, got %v", err)
			}
			if uerr.Kind != k {
				t.Errorf("expected kind %s, got %s", k, uerr.Kind)
			}
		})
	}
}

func TestCompile_NilChild(t *testing.T) {
	_, err := Compile(And(IsNull("name"), nil), testSchema(t), Options{})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}
