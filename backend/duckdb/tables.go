package duckdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/query"
)

// column is one table column with its DuckDB type.
type column struct {
	name   string
	dbType string
	field  arrow.Field
}

// describe lists the columns of table. It returns nil when the table does
// not exist.
func (b *Backend) describe(ctx context.Context, table string) ([]column, error) {
	schemaName, tableName := "main", table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schemaName, tableName = table[:i], table[i+1:]
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`,
		schemaName, tableName)
	if err != nil {
		return nil, backend.Wrap("describe", table, err)
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.name, &c.dbType); err != nil {
			return nil, backend.Wrap("describe", table, err)
		}
		c.field = b.arrowField(c.name, c.dbType)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, backend.Wrap("describe", table, err)
	}
	return cols, nil
}

// arrowField maps a DuckDB column to an Arrow field. Geometry is exposed
// as geoarrow.wkb regardless of how it is stored.
func (b *Backend) arrowField(name, dbType string) arrow.Field {
	t := strings.ToUpper(dbType)
	if t == "GEOMETRY" || name == b.opts.GeometryField {
		return geometry.NewField(name, true)
	}

	var dt arrow.DataType
	switch {
	case t == "BIGINT" || t == "INTEGER" || t == "SMALLINT" || t == "TINYINT" ||
		t == "UBIGINT" || t == "UINTEGER" || t == "USMALLINT" || t == "UTINYINT":
		dt = arrow.PrimitiveTypes.Int64
	case t == "DOUBLE" || t == "FLOAT" || t == "REAL" || strings.HasPrefix(t, "DECIMAL"):
		dt = arrow.PrimitiveTypes.Float64
	case t == "BOOLEAN":
		dt = arrow.FixedWidthTypes.Boolean
	case t == "DATE":
		dt = arrow.FixedWidthTypes.Date32
	case strings.HasPrefix(t, "TIMESTAMP"):
		dt = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	case t == "BLOB":
		dt = arrow.BinaryTypes.Binary
	default:
		dt = arrow.BinaryTypes.String
	}
	return arrow.Field{Name: name, Type: dt, Nullable: true}
}

// selectExpr renders the expression reading a column. Geometry leaves the
// database as WKB.
func selectExpr(c column) string {
	ident := quoteIdent(c.name)
	if !geometry.IsGeometryField(c.field) {
		return ident
	}
	switch strings.ToUpper(c.dbType) {
	case "GEOMETRY":
		return "ST_AsWKB(" + ident + ") AS " + ident
	case "VARCHAR":
		return "ST_AsWKB(ST_GeomFromText(" + ident + ")) AS " + ident
	default:
		return ident
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (b *Backend) geometryColumn(s *arrow.Schema) string {
	for _, f := range s.Fields() {
		if geometry.IsGeometryField(f) {
			return f.Name
		}
	}
	return ""
}

// TableSchema implements flight.TableReader.
func (b *Backend) TableSchema(ctx context.Context, table string) (*arrow.Schema, error) {
	cols, err := b.describe(ctx, table)
	if err != nil || len(cols) == 0 {
		return nil, err
	}
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = c.field
	}
	return arrow.NewSchema(fields, nil), nil
}

// ReadRows implements flight.TableReader. Rows are converted to Arrow
// lazily, one batch per Next.
func (b *Backend) ReadRows(ctx context.Context, opts query.ReadOptions) (array.RecordReader, error) {
	if err := checkRestriction(opts.RowRestriction); err != nil {
		b.log.Warn("Rejected row restriction", "table", opts.Table, "error", err)
		return nil, backend.Wrap("read", opts.RowRestriction, err)
	}
	cols, err := b.describe(ctx, opts.Table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, backend.Wrap("read", opts.Table, fmt.Errorf("table %s not found", opts.Table))
	}

	selected := cols
	if len(opts.SelectedFields) > 0 {
		byName := make(map[string]column, len(cols))
		for _, c := range cols {
			byName[c.name] = c
		}
		selected = make([]column, 0, len(opts.SelectedFields))
		for _, name := range opts.SelectedFields {
			c, ok := byName[name]
			if !ok {
				return nil, backend.Wrap("read", opts.Table, fmt.Errorf("unknown column %q", name))
			}
			selected = append(selected, c)
		}
	}

	exprs := make([]string, len(selected))
	fields := make([]arrow.Field, len(selected))
	for i, c := range selected {
		exprs[i] = selectExpr(c)
		fields[i] = c.field
	}
	restriction := opts.RowRestriction
	if restriction == "" {
		restriction = "TRUE"
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(exprs, ", "), dialect.DuckDB.Table(opts.Table), restriction)

	b.log.Debug("Reading rows", "statement", stmt)
	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, backend.Wrap("read", stmt, err)
	}

	schema := arrow.NewSchema(fields, nil)
	return &rowsReader{
		refs:      1,
		stream:    newRowsStream(rows, fieldNames(fields), stmt, b.opts.BatchSize),
		ctx:       ctx,
		schema:    schema,
		allocator: memory.DefaultAllocator,
	}, nil
}

func fieldNames(fields []arrow.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// rowsReader adapts a rowsStream to array.RecordReader.
type rowsReader struct {
	refs      int64
	stream    *rowsStream
	ctx       context.Context
	schema    *arrow.Schema
	allocator memory.Allocator

	current arrow.RecordBatch
	err     error
}

func (r *rowsReader) Retain() { atomic.AddInt64(&r.refs, 1) }

func (r *rowsReader) Release() {
	if atomic.AddInt64(&r.refs, -1) == 0 {
		r.releaseCurrent()
		r.stream.Close()
	}
}

func (r *rowsReader) Schema() *arrow.Schema { return r.schema }

func (r *rowsReader) Next() bool {
	r.releaseCurrent()
	if r.err != nil {
		return false
	}
	batch, err := r.stream.Next(r.ctx)
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		r.err = err
		return false
	}

	builder := array.NewRecordBuilder(r.allocator, r.schema)
	defer builder.Release()
	for _, row := range batch.Rows {
		for i, v := range row {
			if err := appendValue(builder.Field(i), v); err != nil {
				r.err = fmt.Errorf("column %q: %w", r.schema.Field(i).Name, err)
				return false
			}
		}
	}
	r.current = builder.NewRecordBatch()
	return true
}

func (r *rowsReader) RecordBatch() arrow.RecordBatch { return r.current }

// Record is the deprecated spelling of RecordBatch.
func (r *rowsReader) Record() arrow.RecordBatch { return r.current }

// Err returns the error that stopped Next, nil for a drained reader.
func (r *rowsReader) Err() error { return r.err }

func (r *rowsReader) releaseCurrent() {
	if r.current != nil {
		r.current.Release()
		r.current = nil
	}
}
