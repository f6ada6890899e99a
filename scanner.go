package geoquery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/cursor"
	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/filter"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/query"
)

// Request describes one scan of a target.
type Request struct {
	// Target is the table identifier: project.dataset.table for BigQuery,
	// a table name for DuckDB.
	Target string
	// Schema describes Target. If nil, it is resolved through the backend
	// when the backend implements catalog.Provider.
	Schema *catalog.Schema
	// Filter is the predicate tree. nil selects every row.
	Filter *filter.Node
	Fields []string
	// IncludeAll selects every column. An empty Fields does the same.
	IncludeAll bool
	// Limit overrides Config.RowLimit when positive.
	Limit int
}

// Scanner plans and runs scans against one backend.
type Scanner struct {
	backend backend.Backend
	cfg     Config
	builder *query.Builder
	schemas *catalog.Cache
	alloc   memory.Allocator
	logger  *slog.Logger
}

// NewScanner validates cfg and checks that b supports the configured mode.
func NewScanner(b backend.Backend, cfg Config) (*Scanner, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case query.ModeStreaming:
		if _, ok := b.(backend.SessionReader); !ok {
			return nil, fmt.Errorf("%w: backend %T has no read sessions", ErrUnsupportedMode, b)
		}
	default:
		if _, ok := b.(backend.StatementRunner); !ok {
			return nil, fmt.Errorf("%w: backend %T cannot run statements", ErrUnsupportedMode, b)
		}
	}

	logger := cfg.logger()
	if cfg.Mode == query.ModeStreaming && cfg.Simplify {
		logger.Warn("Simplification is not available in streaming mode, disabling it")
		cfg.Simplify = false
	}

	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	s := &Scanner{
		backend: b,
		cfg:     cfg,
		builder: query.NewBuilder(query.Options{
			Mode:                cfg.Mode,
			Dialect:             b.Dialect(),
			Simplify:            cfg.Simplify,
			ToleranceMode:       cfg.ToleranceMode,
			PixelSpan:           cfg.PixelSpan,
			AutoPartitionFilter: cfg.AutoPartitionFilter,
			EscapeStrings:       cfg.EscapeStrings,
			UsePregenerated:     cfg.Pregenerate != PregenerateNone,
		}),
		alloc:  alloc,
		logger: logger,
	}
	if p, ok := b.(catalog.Provider); ok {
		s.schemas = catalog.NewCache(p, logger)
	}

	logger.Info("Scanner created",
		"mode", cfg.Mode.String(),
		"dialect", b.Dialect().Name(),
		"simplify", cfg.Simplify,
		"row_limit", cfg.RowLimit,
	)
	return s, nil
}

// WithClock replaces the clock used for automatic partition filters.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.builder.WithClock(now)
	return s
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Schema resolves the schema of a target through the backend.
func (s *Scanner) Schema(ctx context.Context, target string) (*catalog.Schema, error) {
	if s.schemas == nil {
		return nil, fmt.Errorf("%w: backend %T has no catalog, pass Request.Schema", ErrTableNotFound, s.backend)
	}
	schema, err := s.schemas.Schema(ctx, target)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, target)
	}
	return schema, nil
}

func (s *Scanner) resolve(ctx context.Context, req *Request) error {
	if req.Schema != nil {
		return nil
	}
	schema, err := s.Schema(ctx, req.Target)
	if err != nil {
		return err
	}
	req.Schema = schema
	return nil
}

// Plan compiles req without contacting the backend, except to resolve a
// missing schema.
func (s *Scanner) Plan(ctx context.Context, req Request) (*query.Plan, error) {
	if err := s.resolve(ctx, &req); err != nil {
		return nil, err
	}
	limit := s.cfg.RowLimit
	if req.Limit > 0 {
		limit = req.Limit
	}
	return s.builder.Build(query.Request{
		Target:     req.Target,
		Schema:     req.Schema,
		Filter:     req.Filter,
		Fields:     req.Fields,
		IncludeAll: req.IncludeAll,
		Limit:      limit,
	})
}

// Scan plans req, opens the backend stream and returns a cursor over it.
// The caller MUST Close the cursor.
func (s *Scanner) Scan(ctx context.Context, req Request) (*cursor.Cursor, error) {
	if err := s.resolve(ctx, &req); err != nil {
		return nil, err
	}
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	var stream backend.Stream
	switch plan.Mode {
	case query.ModeStreaming:
		opts := plan.ReadOptions()
		s.logger.Debug("Opening read session", "table", opts.Table, "restriction", opts.RowRestriction)
		stream, err = s.backend.(backend.SessionReader).OpenReadSession(ctx, opts)
	default:
		stmt := plan.Statement()
		s.logger.Debug("Running statement", "statement", stmt)
		stream, err = s.backend.(backend.StatementRunner).RunStatement(ctx, stmt)
	}
	if err != nil {
		return nil, err
	}

	dec, err := decode.NewDecoder(stream.Descriptor(), req.Schema, decode.Options{Allocator: s.alloc})
	if err != nil {
		stream.Close()
		return nil, err
	}

	s.logger.Info("Scan started",
		"target", plan.Target,
		"mode", plan.Mode.String(),
		"tolerance", plan.Tolerance,
	)
	return cursor.New(stream, dec, cursor.Options{
		Limit:  plan.Limit,
		Policy: s.cfg.GeometryErrors,
		Mode:   plan.Mode,
		Logger: s.logger,
	}), nil
}

// Bounds returns the extent of the geometry of rows matching req.Filter.
// An empty match is the zero envelope.
func (s *Scanner) Bounds(ctx context.Context, req Request) (geometry.Envelope, error) {
	er, ok := s.backend.(backend.ExtentReader)
	if !ok {
		return geometry.Envelope{}, fmt.Errorf("%w: backend %T cannot compute extents", ErrUnsupportedMode, s.backend)
	}
	if err := s.resolve(ctx, &req); err != nil {
		return geometry.Envelope{}, err
	}
	where, err := s.restriction(req)
	if err != nil {
		return geometry.Envelope{}, err
	}
	stmt, err := query.ExtentStatement(req.Target, req.Schema, where, s.builder.Dialect())
	if err != nil {
		return geometry.Envelope{}, err
	}
	return er.QueryExtent(ctx, stmt)
}

// Count returns the number of rows matching req.Filter. Limits are ignored.
func (s *Scanner) Count(ctx context.Context, req Request) (int64, error) {
	runner, ok := s.backend.(backend.StatementRunner)
	if !ok {
		return 0, fmt.Errorf("%w: backend %T cannot run statements", ErrUnsupportedMode, s.backend)
	}
	if err := s.resolve(ctx, &req); err != nil {
		return 0, err
	}
	where, err := s.restriction(req)
	if err != nil {
		return 0, err
	}
	stmt := query.CountStatement(req.Target, where, s.builder.Dialect())

	stream, err := runner.RunStatement(ctx, stmt)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	batch, err := stream.Next(ctx)
	if err != nil {
		return 0, backend.Wrap("count", stmt, err)
	}
	if len(batch.Rows) != 1 || len(batch.Rows[0]) != 1 {
		return 0, backend.Wrap("count", stmt, fmt.Errorf("unexpected count result shape"))
	}
	n, ok := batch.Rows[0][0].(int64)
	if !ok {
		return 0, backend.Wrap("count", stmt, fmt.Errorf("count is %T", batch.Rows[0][0]))
	}
	return n, nil
}

func (s *Scanner) restriction(req Request) (string, error) {
	plan, err := s.builder.Build(query.Request{
		Target: req.Target,
		Schema: req.Schema,
		Filter: req.Filter,
	})
	if err != nil {
		return "", err
	}
	return plan.Restriction, nil
}

// Pregenerate creates the simplified views of target for every ladder
// tolerance. It requires PregenerateAll.
func (s *Scanner) Pregenerate(ctx context.Context, target string, schema *catalog.Schema) error {
	if s.cfg.Pregenerate != PregenerateAll {
		return fmt.Errorf("%w: pregenerate mode is %s", ErrUnsupportedMode, s.cfg.Pregenerate)
	}
	exec, ok := s.backend.(backend.Executor)
	if !ok {
		return fmt.Errorf("%w: backend %T cannot execute statements", ErrUnsupportedMode, s.backend)
	}
	if schema == nil {
		var err error
		if schema, err = s.Schema(ctx, target); err != nil {
			return err
		}
	}

	stmts, err := query.PregenerateStatements(target, schema, s.builder.Dialect())
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := exec.ExecStatement(ctx, stmt); err != nil {
			return err
		}
		s.logger.Debug("Pregenerated view", "statement", stmt)
	}
	if s.schemas != nil {
		s.schemas.Invalidate(target)
	}
	s.logger.Info("Pregenerated simplified views", "target", target, "views", len(stmts))
	return nil
}
