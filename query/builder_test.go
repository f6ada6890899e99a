package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/filter"
	"github.com/hugr-lab/geoquery/geometry"
)

var (
	fixedNow    = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	scenarioBox = geometry.NewEnvelope(-78.6785, -74.4158, 36.0049, 38.4493)
)

func testSchema(t *testing.T, partition bool) *catalog.Schema {
	t.Helper()
	b := catalog.NewSchemaBuilder().
		Field("name", catalog.TypeString).
		Field("population", catalog.TypeInteger).
		Field("created", catalog.TypeTimestamp).
		Field("geom", catalog.TypeGeometry)
	if partition {
		b.Partition("created", catalog.GranularityDay, true)
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func newBuilder(opts Options) *Builder {
	return NewBuilder(opts).WithClock(func() time.Time { return fixedNow })
}

func TestBuild_Expression(t *testing.T) {
	schema := testSchema(t, false)

	tests := []struct {
		name   string
		opts   Options
		req    Request
		expect string
	}{
		{
			name:   "all fields without filter",
			req:    Request{Target: "ds.places", Schema: schema, IncludeAll: true, Limit: 10},
			expect: "SELECT * except (geom), ST_ASGEOJSON(geom) as geom FROM `ds.places` WHERE TRUE LIMIT 10",
		},
		{
			name:   "no limit",
			req:    Request{Target: "ds.places", Schema: schema},
			expect: "SELECT * except (geom), ST_ASGEOJSON(geom) as geom FROM `ds.places` WHERE TRUE",
		},
		{
			name: "explicit fields drop geometry from the list",
			req: Request{
				Target: "ds.places", Schema: schema,
				Fields: []string{"name", "geom", "population"},
				Filter: filter.Compare(filter.KindGt, filter.Property("population"), filter.Literal(100)),
			},
			expect: "SELECT name, population, ST_ASGEOJSON(geom) as geom FROM `ds.places` WHERE population > 100",
		},
		{
			name: "simplified geometry",
			opts: Options{Simplify: true},
			req:  Request{Target: "ds.places", Schema: schema, IncludeAll: true, Filter: filter.BBox("geom", scenarioBox)},
			expect: "SELECT * except (geom), ST_ASGEOJSON(ST_SIMPLIFY(geom, 100)) as geom FROM `ds.places` " +
				"WHERE ST_INTERSECTSBOX(ST_SIMPLIFY(geom, 100), -78.678500, 36.004900, -74.415800, 38.449300)",
		},
		{
			name: "pregenerated view",
			opts: Options{Simplify: true, UsePregenerated: true},
			req:  Request{Target: "ds.places", Schema: schema, IncludeAll: true, Filter: filter.BBox("geom", scenarioBox)},
			expect: "SELECT * except (geom), ST_ASGEOJSON(geom) as geom FROM `ds.places_pregen_100m` " +
				"WHERE ST_INTERSECTSBOX(geom, -78.678500, 36.004900, -74.415800, 38.449300)",
		},
		{
			name:   "duckdb",
			opts:   Options{Dialect: dialect.DuckDB},
			req:    Request{Target: "places", Schema: schema, Filter: filter.IsNull("name"), Limit: 5},
			expect: `SELECT * EXCLUDE (geom), CAST(ST_AsGeoJSON(geom) AS VARCHAR) as geom FROM "places" WHERE name IS NULL LIMIT 5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newBuilder(tt.opts).Build(tt.req)
			require.NoError(t, err)
			assert.Equal(t, ModeExpression, p.Mode)
			assert.Equal(t, tt.expect, p.Statement())
		})
	}
}

func TestBuild_Streaming(t *testing.T) {
	schema := testSchema(t, false)
	b := newBuilder(Options{Mode: ModeStreaming, Simplify: true})

	p, err := b.Build(Request{Target: "proj.ds.places", Schema: schema, Filter: filter.BBox("geom", scenarioBox), Limit: 5})
	require.NoError(t, err)

	ro := p.ReadOptions()
	assert.Equal(t, "proj.ds.places", ro.Table)
	assert.Equal(t, "ST_INTERSECTSBOX(geom, -78.678500, 36.004900, -74.415800, 38.449300)", ro.RowRestriction)
	assert.Equal(t, []string{"name", "population", "created", "geom"}, ro.SelectedFields)
	assert.Equal(t, "geom", p.GeometryExpr)
	assert.Zero(t, p.Tolerance)
	assert.Equal(t, 5, p.Limit)

	p, err = b.Build(Request{Target: "proj.ds.places", Schema: schema, Fields: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "geom"}, p.ReadOptions().SelectedFields)
	assert.Equal(t, "TRUE", p.ReadOptions().RowRestriction)
}

func TestBuild_Errors(t *testing.T) {
	schema := testSchema(t, false)
	b := newBuilder(Options{})

	_, err := b.Build(Request{Schema: schema})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = b.Build(Request{Target: "t"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = b.Build(Request{Target: "t", Schema: schema, Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = b.Build(Request{Target: "t", Schema: schema, Fields: []string{"nope"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = b.Build(Request{Target: "t", Schema: schema, Filter: filter.IsNull("nope")})
	var uerr *filter.UnresolvedOperandError
	assert.True(t, errors.As(err, &uerr), "expected *filter.UnresolvedOperandError, got %v", err)

	_, err = b.Build(Request{Target: "t", Schema: schema, Filter: &filter.Node{Kind: filter.KindCrosses}})
	var serr *filter.UnsupportedPredicateError
	assert.True(t, errors.As(err, &serr), "expected *filter.UnsupportedPredicateError, got %v", err)
}

func TestInjectPartitionFilter(t *testing.T) {
	schema := testSchema(t, true)

	assert.Equal(t, "created >= '2024-03-14'", InjectPartitionFilter(schema, "TRUE", true, fixedNow))
	assert.Equal(t, "name IS NULL AND created >= '2024-03-14'", InjectPartitionFilter(schema, "name IS NULL", true, fixedNow))
	assert.Equal(t, "(a = 1 OR b = 2) AND created >= '2024-03-14'", InjectPartitionFilter(schema, "a = 1 OR b = 2", true, fixedNow))
	assert.Equal(t, "name IS NULL", InjectPartitionFilter(schema, "name IS NULL", false, fixedNow))
	assert.Equal(t, "TRUE", InjectPartitionFilter(testSchema(t, false), "TRUE", true, fixedNow))
}

func TestPartitionBound(t *testing.T) {
	tests := []struct {
		g      catalog.Granularity
		expect string
	}{
		{catalog.GranularityHour, "2024-03-15 09:30"},
		{catalog.GranularityDay, "2024-03-14 10:30"},
		{catalog.GranularityMonth, "2024-02-15 10:30"},
		{catalog.GranularityYear, "2023-03-15 10:30"},
		{catalog.ParseGranularity("WEEK"), "2023-03-15 10:30"},
	}
	for _, tt := range tests {
		t.Run(tt.g.String(), func(t *testing.T) {
			assert.Equal(t, tt.expect, PartitionBound(tt.g, fixedNow).Format("2006-01-02 15:04"))
		})
	}
}

func TestBuild_PartitionFilter(t *testing.T) {
	schema := testSchema(t, true)

	p, err := newBuilder(Options{AutoPartitionFilter: true}).Build(Request{
		Target: "ds.events", Schema: schema,
		Filter: filter.Or(filter.IsNull("name"), filter.Like("name", "a%")),
	})
	require.NoError(t, err)
	assert.Equal(t, "(name IS NULL OR name LIKE 'a%') AND created >= '2024-03-14'", p.Restriction)

	p, err = newBuilder(Options{}).Build(Request{Target: "ds.events", Schema: schema})
	require.NoError(t, err)
	assert.Equal(t, "TRUE", p.Restriction)
}

func TestStatements(t *testing.T) {
	schema := testSchema(t, false)

	stmt, err := ExtentStatement("ds.places", schema, "name IS NULL", dialect.BigQuery)
	require.NoError(t, err)
	assert.Equal(t, "SELECT extent.xmin, extent.ymin, extent.xmax, extent.ymax FROM (SELECT ST_EXTENT(geom) AS extent FROM `ds.places` WHERE name IS NULL)", stmt)

	assert.Equal(t, "SELECT COUNT(*) AS n FROM `ds.places` WHERE TRUE", CountStatement("ds.places", "", dialect.BigQuery))

	stmts, err := PregenerateStatements("ds.places", schema, dialect.BigQuery)
	require.NoError(t, err)
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "`ds.places_pregen_1m`")
	assert.Contains(t, stmts[3], "ST_SIMPLIFY(geom, 1000)")

	noGeom, err := catalog.NewSchemaBuilder().Field("a", catalog.TypeString).Build()
	require.NoError(t, err)
	_, err = ExtentStatement("t", noGeom, "", dialect.BigQuery)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = PregenerateStatements("t", noGeom, dialect.BigQuery)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":                   ModeExpression,
		"STANDARD_QUERY_API": ModeExpression,
		"streaming":          ModeStreaming,
		"STORAGE_API":        ModeStreaming,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("bulk")
	assert.Error(t, err)
}
