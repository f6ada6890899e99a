package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/filter"
	"github.com/hugr-lab/geoquery/geometry"
)

// ErrInvalidRequest is returned for requests that cannot be planned.
var ErrInvalidRequest = errors.New("query: invalid request")

// Request describes one scan.
type Request struct {
	Target string
	Schema *catalog.Schema
	Filter *filter.Node
	// Fields restricts the output columns. Ignored when IncludeAll is set.
	Fields     []string
	IncludeAll bool
	Limit      int
}

// Options are the scan settings shared by every request of a Builder.
type Options struct {
	Mode                Mode
	Dialect             dialect.Dialect
	Simplify            bool
	ToleranceMode       geometry.ToleranceMode
	PixelSpan           int
	AutoPartitionFilter bool
	EscapeStrings       bool
	// UsePregenerated reads simplified geometry from the pregenerated view
	// matching the compiled tolerance instead of simplifying per query.
	UsePregenerated bool
}

// Builder turns requests into plans.
type Builder struct {
	opts Options
	now  func() time.Time
}

// NewBuilder creates a builder. A nil dialect means BigQuery.
func NewBuilder(opts Options) *Builder {
	if opts.Dialect == nil {
		opts.Dialect = dialect.BigQuery
	}
	return &Builder{opts: opts, now: time.Now}
}

// WithClock replaces the clock used for partition filters.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() dialect.Dialect { return b.opts.Dialect }

// Build compiles a request into a plan.
func (b *Builder) Build(req Request) (*Plan, error) {
	if req.Target == "" {
		return nil, fmt.Errorf("%w: empty target", ErrInvalidRequest)
	}
	if req.Schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrInvalidRequest)
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrInvalidRequest, req.Limit)
	}
	for _, f := range req.Fields {
		if !req.Schema.Has(f) {
			return nil, fmt.Errorf("%w: field %q not in schema", ErrInvalidRequest, f)
		}
	}

	// streaming reads return geometry as stored
	simplify := b.opts.Simplify && b.opts.Mode == ModeExpression

	fopts := filter.Options{
		Dialect:       b.opts.Dialect,
		Simplify:      simplify,
		ToleranceMode: b.opts.ToleranceMode,
		PixelSpan:     b.opts.PixelSpan,
		EscapeStrings: b.opts.EscapeStrings,
	}
	res, err := BuildRowRestriction(req.Filter, req.Schema, fopts)
	if err != nil {
		return nil, err
	}

	table := b.opts.Dialect.Table(req.Target)
	geomExpr := res.GeometryExpr
	if simplify && b.opts.UsePregenerated && isLadderTolerance(res.Tolerance) && req.Schema.Geometry() != "" {
		view := catalog.PregeneratedViewName(req.Target, int(res.Tolerance))
		table = b.opts.Dialect.Table(view)
		geomExpr = req.Schema.Geometry()

		// the view already holds simplified geometry
		fopts.Simplify = false
		raw, err := BuildRowRestriction(req.Filter, req.Schema, fopts)
		if err != nil {
			return nil, err
		}
		res.Where = raw.Where
	}

	p := &Plan{
		Mode:         b.opts.Mode,
		Target:       req.Target,
		Restriction:  InjectPartitionFilter(req.Schema, res.Where, b.opts.AutoPartitionFilter, b.now()),
		GeometryExpr: geomExpr,
		Tolerance:    res.Tolerance,
		Limit:        req.Limit,
		table:        table,
	}

	switch b.opts.Mode {
	case ModeStreaming:
		p.Fields = selectedFields(req)
	default:
		p.Projection = BuildProjection(req.Schema, req.Fields, req.IncludeAll || len(req.Fields) == 0, p.GeometryExpr, b.opts.Dialect)
	}
	return p, nil
}

// BuildRowRestriction compiles a filter tree. An empty tree yields TRUE.
func BuildRowRestriction(n *filter.Node, schema *catalog.Schema, opts filter.Options) (filter.Result, error) {
	return filter.Compile(n, schema, opts)
}

// BuildProjection renders the select list. With includeAll it selects every
// column except the geometry; otherwise the requested fields minus the
// geometry. Either way the geometry is appended through the dialect's GeoJSON
// output function and aliased back to its field name.
func BuildProjection(schema *catalog.Schema, fields []string, includeAll bool, geomExpr string, d dialect.Dialect) string {
	if d == nil {
		d = dialect.BigQuery
	}
	geomField := schema.Geometry()
	if geomField == "" {
		if includeAll {
			return "*"
		}
		return strings.Join(fields, ", ")
	}
	if geomExpr == "" {
		geomExpr = geomField
	}

	var cols []string
	if includeAll {
		cols = append(cols, d.SelectAllExcept(geomField))
	} else {
		for _, f := range fields {
			if f != geomField {
				cols = append(cols, f)
			}
		}
	}
	cols = append(cols, d.GeometryOutput(geomExpr)+" as "+geomField)
	return strings.Join(cols, ", ")
}

func selectedFields(req Request) []string {
	if req.IncludeAll || len(req.Fields) == 0 {
		return req.Schema.Names()
	}
	fields := make([]string, 0, len(req.Fields)+1)
	hasGeom := false
	for _, f := range req.Fields {
		fields = append(fields, f)
		hasGeom = hasGeom || f == req.Schema.Geometry()
	}
	if !hasGeom && req.Schema.Geometry() != "" {
		fields = append(fields, req.Schema.Geometry())
	}
	return fields
}

func isLadderTolerance(tol float64) bool {
	for _, t := range geometry.LadderTolerances {
		if float64(t) == tol {
			return true
		}
	}
	return false
}
