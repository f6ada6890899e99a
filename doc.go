// Package geoquery compiles geospatial filter trees into native queries for
// column-store analytical backends and streams the results back as typed,
// geometry-bearing records.
//
// A Scanner ties the pieces together:
//
//   - filter compiles a predicate tree into a WHERE clause
//   - query assembles a SQL statement (expression mode) or read-session
//     options (streaming mode)
//   - decode turns backend row batches into records
//   - cursor pulls records one at a time under a row limit
//
// # Quick Start
//
//	bq, err := bigquery.New(ctx, bigquery.Config{Project: "my-project", Dataset: "geo"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bq.Close()
//
//	scanner, err := geoquery.NewScanner(bq, geoquery.Config{
//	    Simplify: true,
//	    RowLimit: 1000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := scanner.Scan(ctx, geoquery.Request{
//	    Target: "my-project.geo.places",
//	    Filter: filter.BBox("geom", geometry.NewEnvelope(-10, 10, 40, 60)),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	for c.HasNext(ctx) {
//	    rec, err := c.Next(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(rec.ID(), rec.Values["name"])
//	}
//
// # Access Modes
//
// Expression mode (query.ModeExpression) sends a generated statement and may
// rewrite the geometry column through ST_SIMPLIFY when a bounding-box filter
// is present. Streaming mode (query.ModeStreaming) opens a read session with
// a row restriction and selected fields. Geometry comes back as stored and
// simplification is disabled.
//
// # Backends
//
// backend/bigquery talks to BigQuery through the jobs API and the Storage
// Read API. backend/duckdb runs the DuckDB dialect against an embedded
// database. The flight package serves DuckDB tables as read sessions over
// Arrow Flight and provides the matching client.
//
// # Memory Management
//
// Arrow batches are reference counted. The cursor releases the decoder and
// closes the backend stream on exhaustion, failure or Close. Callers MUST
// Close every cursor they open.
package geoquery
