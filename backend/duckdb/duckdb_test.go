package duckdb

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/filter"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/query"
)

var created = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// openPlaces opens an in-memory database holding a places table with WKB
// geometry in a BLOB column.
func openPlaces(t *testing.T, opts Options) *Backend {
	t.Helper()
	ctx := context.Background()
	opts.GeometryField = "geom"
	b, err := Open(ctx, "", opts)
	if err != nil {
		t.Fatalf("DuckDB not available: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	if err := b.ExecStatement(ctx, "CREATE TABLE places (id BIGINT, name VARCHAR, created TIMESTAMP, geom BLOB)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	for i := 1; i <= 5; i++ {
		data, err := wkb.Marshal(orb.Point{float64(i), float64(-i)})
		if err != nil {
			t.Fatalf("wkb.Marshal failed: %v", err)
		}
		_, err = b.DB().ExecContext(ctx, "INSERT INTO places VALUES (?, ?, ?, ?)", i, "place", created, data)
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	return b
}

func TestSchema(t *testing.T) {
	b := openPlaces(t, Options{})
	ctx := context.Background()

	s, err := b.Schema(ctx, "places")
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if s.Geometry() != "geom" {
		t.Errorf("expected geometry 'geom', got '%s'", s.Geometry())
	}
	tests := map[string]catalog.FieldType{
		"id":      catalog.TypeInteger,
		"name":    catalog.TypeString,
		"created": catalog.TypeTimestamp,
		"geom":    catalog.TypeGeometry,
	}
	for name, want := range tests {
		f, ok := s.Field(name)
		if !ok || f.Type != want {
			t.Errorf("field %s: expected %s, got %+v", name, want, f)
		}
	}

	missing, err := b.Schema(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for a missing table, got %v, %v", missing, err)
	}
}

func TestReadRows(t *testing.T) {
	b := openPlaces(t, Options{BatchSize: 2})
	ctx := context.Background()

	reader, err := b.ReadRows(ctx, query.ReadOptions{
		Table:          "places",
		RowRestriction: "id > 1",
		SelectedFields: []string{"id", "geom"},
	})
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	defer reader.Release()

	if reader.Schema().NumFields() != 2 || !geometry.IsGeometryField(reader.Schema().Field(1)) {
		t.Fatalf("unexpected schema %s", reader.Schema())
	}

	dec, err := decode.NewDecoder(decode.Descriptor{ArrowSchema: reader.Schema()}, nil, decode.Options{})
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	defer dec.Release()

	batches, n := 0, 0
	for reader.Next() {
		batches++
		if err := dec.DecodeBatch(decode.Batch{Record: reader.RecordBatch()}); err != nil {
			t.Fatalf("DecodeBatch failed: %v", err)
		}
		for dec.HasMore() {
			rec, err := dec.NextRecord()
			if err != nil {
				t.Fatalf("NextRecord failed: %v", err)
			}
			id := rec.Values["id"].(int64)
			g, ok := rec.Geometry("geom")
			if !ok || !orb.Equal(g.Geometry, orb.Point{float64(id), float64(-id)}) {
				t.Errorf("unexpected geometry for %d: %v", id, rec.Values["geom"])
			}
			n++
		}
	}
	if err := reader.Err(); err != nil {
		t.Fatalf("reader failed: %v", err)
	}
	if n != 4 || batches != 2 {
		t.Errorf("expected 4 rows in 2 batches, got %d in %d", n, batches)
	}

	_, err = b.ReadRows(ctx, query.ReadOptions{Table: "places", SelectedFields: []string{"area"}})
	var qerr *backend.QueryError
	if !errors.As(err, &qerr) {
		t.Errorf("expected *backend.QueryError for unknown column, got %v", err)
	}
}

func TestRunStatement(t *testing.T) {
	b := openPlaces(t, Options{BatchSize: 2})
	ctx := context.Background()

	stream, err := b.RunStatement(ctx, "SELECT id, created FROM places ORDER BY id")
	if err != nil {
		t.Fatalf("RunStatement failed: %v", err)
	}
	defer stream.Close()

	desc := stream.Descriptor()
	if desc.Encoding != decode.EncodingTabular || len(desc.Columns) != 2 {
		t.Fatalf("unexpected descriptor %+v", desc)
	}

	var sizes []int
	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		sizes = append(sizes, batch.Len())
		if ts, ok := batch.Rows[0][1].(time.Time); !ok || !ts.Equal(created) {
			t.Errorf("expected %v, got %v", created, batch.Rows[0][1])
		}
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[2] != 1 {
		t.Errorf("expected batches [2 2 1], got %v", sizes)
	}

	_, err = b.RunStatement(ctx, "SELECT * FROM nope")
	var qerr *backend.QueryError
	if !errors.As(err, &qerr) || qerr.Statement != "SELECT * FROM nope" {
		t.Errorf("expected *backend.QueryError carrying the statement, got %v", err)
	}
}

func TestQueryExtent(t *testing.T) {
	b := openPlaces(t, Options{})
	ctx := context.Background()

	env, err := b.QueryExtent(ctx, "SELECT 1.0::DOUBLE, 2.0::DOUBLE, 3.0::DOUBLE, 4.0::DOUBLE")
	if err != nil {
		t.Fatalf("QueryExtent failed: %v", err)
	}
	if env != (geometry.Envelope{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}) {
		t.Errorf("unexpected envelope %+v", env)
	}

	env, err = b.QueryExtent(ctx, "SELECT NULL::DOUBLE, NULL::DOUBLE, NULL::DOUBLE, NULL::DOUBLE")
	if err != nil || !env.IsZero() {
		t.Errorf("expected zero envelope, got %+v, %v", env, err)
	}
}

// TestSpatialStatement runs a compiled expression-mode statement. It needs
// the spatial extension, which is downloaded on first use.
func TestSpatialStatement(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, "", Options{LoadSpatial: true})
	if err != nil {
		t.Skipf("spatial extension not available: %v", err)
	}
	defer b.Close()

	if err := b.ExecStatement(ctx, "CREATE TABLE pts AS SELECT i AS id, ST_Point(i, i) AS geom FROM range(10) t(i)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	schema, err := b.Schema(ctx, "pts")
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	plan, err := query.NewBuilder(query.Options{Dialect: b.Dialect()}).Build(query.Request{
		Target: "pts",
		Schema: schema,
		Filter: filter.BBox("geom", geometry.NewEnvelope(2.5, 5.5, 2.5, 5.5)),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	stream, err := b.RunStatement(ctx, plan.Statement())
	if err != nil {
		t.Fatalf("RunStatement failed: %v", err)
	}
	defer stream.Close()

	dec, err := decode.NewDecoder(stream.Descriptor(), schema, decode.Options{})
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	n := 0
	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if err := dec.DecodeBatch(batch); err != nil {
			t.Fatalf("DecodeBatch failed: %v", err)
		}
		for dec.HasMore() {
			rec, err := dec.NextRecord()
			if err != nil {
				t.Fatalf("NextRecord failed: %v", err)
			}
			if _, ok := rec.Geometry("geom"); !ok {
				t.Errorf("expected geometry, got %T", rec.Values["geom"])
			}
			n++
		}
	}
	if n != 3 {
		t.Errorf("expected 3 points in the box, got %d", n)
	}
}

func TestCheckRestriction(t *testing.T) {
	tests := []struct {
		restriction string
		ok          bool
	}{
		{"", true},
		{"id > 1", true},
		{"name = 'a;b -- SELECT * FROM x'", true},
		{`"from" = 'it''s'`, true},
		{"ST_Intersects(geom, ST_MakeValid(ST_GeomFromGeoJSON('{\"type\":\"Point\",\"coordinates\":[1,2]}')))", true},
		{"created >= '2024-03-14'", true},
		{"id > 1; DROP TABLE places", false},
		{"EXISTS (SELECT * FROM read_text('/etc/passwd'))", false},
		{"(FROM places) IS NOT NULL", false},
		{"id > 1 -- trailing", false},
		{"id > 1 /* block */", false},
		{"name = $$x$$", false},
		{`name = E'\'' OR TRUE`, false},
		{"name = 'open", false},
	}
	for _, tt := range tests {
		err := checkRestriction(tt.restriction)
		if tt.ok && err != nil {
			t.Errorf("%q: expected no error, got %v", tt.restriction, err)
		}
		if !tt.ok && !errors.Is(err, ErrUnsafeRestriction) {
			t.Errorf("%q: expected ErrUnsafeRestriction, got %v", tt.restriction, err)
		}
	}
}

func TestReadRows_RejectsFileRead(t *testing.T) {
	b := openPlaces(t, Options{Sandbox: true})
	ctx := context.Background()

	_, err := b.ReadRows(ctx, query.ReadOptions{
		Table:          "places",
		RowRestriction: "EXISTS (SELECT * FROM read_text('/etc/passwd'))",
	})
	var qerr *backend.QueryError
	if !errors.As(err, &qerr) || !errors.Is(err, ErrUnsafeRestriction) {
		t.Fatalf("expected *backend.QueryError wrapping ErrUnsafeRestriction, got %v", err)
	}

	reader, err := b.ReadRows(ctx, query.ReadOptions{Table: "places", RowRestriction: "name = 'a;b'"})
	if err != nil {
		t.Fatalf("ReadRows with a quoted separator failed: %v", err)
	}
	defer reader.Release()
	for reader.Next() {
		t.Errorf("expected no rows, got %d", reader.RecordBatch().NumRows())
	}
	if err := reader.Err(); err != nil {
		t.Errorf("reader failed: %v", err)
	}
}

func TestOpen_Sandbox(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte("secret"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	plain, err := Open(ctx, "", Options{})
	if err != nil {
		t.Fatalf("DuckDB not available: %v", err)
	}
	defer plain.Close()
	if err := plain.ExecStatement(ctx, "SELECT * FROM read_text('"+path+"')"); err != nil {
		t.Fatalf("expected an unsandboxed database to read files, got %v", err)
	}

	b, err := Open(ctx, "", Options{Sandbox: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close()

	if err := b.ExecStatement(ctx, "SELECT * FROM read_text('"+path+"')"); err == nil {
		t.Error("expected file access to be disabled")
	}
	if err := b.ExecStatement(ctx, "SET GLOBAL enable_external_access = true"); err == nil {
		t.Error("expected the configuration to be locked")
	}
	if err := b.ExecStatement(ctx, "CREATE TABLE t (id BIGINT)"); err != nil {
		t.Errorf("expected local tables to keep working, got %v", err)
	}
}
