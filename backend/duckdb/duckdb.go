// Package duckdb runs scans against an embedded DuckDB database with the
// spatial extension.
//
// The Backend serves both access modes: it executes generated statements
// for expression mode and it is the TableReader behind the Flight read
// session server for streaming mode.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
)

// DefaultBatchSize is the number of rows per batch.
const DefaultBatchSize = 1024

// Options configure a Backend.
type Options struct {
	// BatchSize is the number of rows per batch. Zero uses DefaultBatchSize.
	BatchSize int
	// GeometryField names a BLOB (WKB) or VARCHAR (WKT) column to treat as
	// geometry in tables without a native GEOMETRY column.
	GeometryField string
	// LoadSpatial installs and loads the spatial extension on Open.
	LoadSpatial bool
	// Sandbox disables file and network access and locks the
	// configuration once Open has finished. Set it for databases served to
	// remote clients.
	Sandbox bool
	Logger  *slog.Logger
}

// Backend is a DuckDB database.
type Backend struct {
	db   *sql.DB
	opts Options
	log  *slog.Logger
}

var (
	_ backend.StatementRunner = (*Backend)(nil)
	_ backend.Executor        = (*Backend)(nil)
	_ backend.ExtentReader    = (*Backend)(nil)
	_ catalog.Provider        = (*Backend)(nil)
)

// Open opens the database at path. An empty path is an in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Backend, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb %q: %w", path, err)
	}
	b := New(db, opts)
	if opts.LoadSpatial {
		if err := b.loadSpatial(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	if opts.Sandbox {
		if err := b.sandbox(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return b, nil
}

// New wraps an open database.
func New(db *sql.DB, opts Options) *Backend {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Backend{db: db, opts: opts, log: opts.Logger}
}

func (b *Backend) loadSpatial(ctx context.Context) error {
	for _, stmt := range []string{"INSTALL spatial", "LOAD spatial"} {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to %s: %w", stmt, err)
		}
	}
	b.log.Debug("DuckDB spatial extension loaded")
	return nil
}

// sandbox must run after loadSpatial: INSTALL needs external access.
func (b *Backend) sandbox(ctx context.Context) error {
	for _, stmt := range []string{
		"SET GLOBAL enable_external_access = false",
		"SET GLOBAL lock_configuration = true",
	} {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to %s: %w", stmt, err)
		}
	}
	b.log.Debug("DuckDB sandboxed")
	return nil
}

// DB returns the underlying database.
func (b *Backend) DB() *sql.DB { return b.db }

// Close closes the database.
func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Dialect() dialect.Dialect { return dialect.DuckDB }

// RunStatement executes a query and streams its rows in batches.
func (b *Backend) RunStatement(ctx context.Context, stmt string) (backend.Stream, error) {
	b.log.Debug("Running statement", "statement", stmt)
	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, backend.Wrap("query", stmt, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, backend.Wrap("query", stmt, err)
	}
	return newRowsStream(rows, cols, stmt, b.opts.BatchSize), nil
}

// ExecStatement runs a statement that returns no rows.
func (b *Backend) ExecStatement(ctx context.Context, stmt string) error {
	b.log.Debug("Executing statement", "statement", stmt)
	if _, err := b.db.ExecContext(ctx, stmt); err != nil {
		return backend.Wrap("exec", stmt, err)
	}
	return nil
}

// QueryExtent runs an extent statement returning xmin, ymin, xmax, ymax.
// An empty result is the zero envelope.
func (b *Backend) QueryExtent(ctx context.Context, stmt string) (geometry.Envelope, error) {
	var xmin, ymin, xmax, ymax sql.NullFloat64
	err := b.db.QueryRowContext(ctx, stmt).Scan(&xmin, &ymin, &xmax, &ymax)
	if errors.Is(err, sql.ErrNoRows) {
		return geometry.Envelope{}, nil
	}
	if err != nil {
		return geometry.Envelope{}, backend.Wrap("extent", stmt, err)
	}
	if !xmin.Valid || !ymin.Valid || !xmax.Valid || !ymax.Valid {
		return geometry.Envelope{}, nil
	}
	return geometry.Envelope{MinX: xmin.Float64, MinY: ymin.Float64, MaxX: xmax.Float64, MaxY: ymax.Float64}, nil
}

// Schema derives the catalog schema of a table from its Arrow schema.
// It returns (nil, nil) when the table does not exist.
func (b *Backend) Schema(ctx context.Context, table string) (*catalog.Schema, error) {
	s, err := b.TableSchema(ctx, table)
	if err != nil || s == nil {
		return nil, err
	}
	return catalog.FromArrow(s, b.geometryColumn(s))
}
