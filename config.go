package geoquery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/geoquery/cursor"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/query"
)

// PregenerateMode controls the use of materialized simplified views.
type PregenerateMode int

const (
	// PregenerateNone simplifies geometry per query.
	PregenerateNone PregenerateMode = iota
	// PregenerateUseExisting reads simplified geometry from views created
	// earlier by Scanner.Pregenerate.
	PregenerateUseExisting
	// PregenerateAll behaves like PregenerateUseExisting and lets
	// Scanner.Pregenerate create the views.
	PregenerateAll
)

func (m PregenerateMode) String() string {
	switch m {
	case PregenerateUseExisting:
		return "use_existing"
	case PregenerateAll:
		return "all"
	default:
		return "none"
	}
}

// ParsePregenerateMode accepts none, use_existing and all. Empty means none.
func ParsePregenerateMode(s string) (PregenerateMode, error) {
	switch s {
	case "", "none":
		return PregenerateNone, nil
	case "use_existing", "existing":
		return PregenerateUseExisting, nil
	case "all", "pregen_all":
		return PregenerateAll, nil
	}
	return PregenerateNone, fmt.Errorf("unknown pregenerate mode %q", s)
}

// Config contains the scan settings of a Scanner.
type Config struct {
	// Mode selects expression (SQL statement) or streaming (read session)
	// access. The backend MUST support the selected mode.
	Mode query.Mode

	// Simplify rewrites the geometry column through a resolution-adaptive
	// simplification when a bounding-box filter is present.
	// Ignored in streaming mode.
	Simplify bool

	// ToleranceMode selects the ladder (default) or continuous tolerance.
	ToleranceMode geometry.ToleranceMode

	// PixelSpan is the output width in pixels used to derive the
	// tolerance. OPTIONAL: If 0, uses geometry.DefaultPixelSpan.
	PixelSpan int

	// AutoPartitionFilter adds a lower bound on every partition field that
	// requires one.
	AutoPartitionFilter bool

	// RowLimit caps rows per scan. 0 means unlimited. A positive
	// Request.Limit overrides it.
	RowLimit int

	// GeometryErrors decides whether a row with unparsable geometry fails
	// the scan (default) or is skipped.
	GeometryErrors cursor.Policy

	// EscapeStrings doubles embedded quotes in string literals.
	EscapeStrings bool

	Pregenerate PregenerateMode

	// Allocator for Arrow memory management.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for internal logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// LogLevel builds a text logger on stderr with that level.
	// Ignored when Logger is set.
	LogLevel *slog.Level
}

// Standard errors returned by the geoquery package.
var (
	// ErrInvalidConfig indicates Config validation failed.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnsupportedMode indicates the backend cannot serve the configured
	// access mode or operation.
	ErrUnsupportedMode = errors.New("unsupported mode")

	// ErrTableNotFound indicates no schema could be resolved for a target.
	ErrTableNotFound = errors.New("table not found")
)

// Validate checks the settings. It does not contact the backend.
func (c Config) Validate() error {
	if c.Mode != query.ModeExpression && c.Mode != query.ModeStreaming {
		return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, ErrUnsupportedMode, int(c.Mode))
	}
	if c.RowLimit < 0 {
		return fmt.Errorf("%w: negative row limit %d", ErrInvalidConfig, c.RowLimit)
	}
	if c.PixelSpan < 0 {
		return fmt.Errorf("%w: negative pixel span %d", ErrInvalidConfig, c.PixelSpan)
	}
	if c.GeometryErrors != cursor.PolicyAbort && c.GeometryErrors != cursor.PolicySkip {
		return fmt.Errorf("%w: unknown geometry error policy %d", ErrInvalidConfig, int(c.GeometryErrors))
	}
	if c.Pregenerate < PregenerateNone || c.Pregenerate > PregenerateAll {
		return fmt.Errorf("%w: unknown pregenerate mode %d", ErrInvalidConfig, int(c.Pregenerate))
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *c.LogLevel}))
	}
	return slog.Default()
}
