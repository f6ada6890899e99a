// Package cursor implements the pull-driven streaming cursor over a backend
// result stream.
//
// A Cursor is not safe for concurrent use. Batches are fetched only when the
// caller asks for the next record; nothing decodes ahead of demand.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/internal/metrics"
	"github.com/hugr-lab/geoquery/query"
)

// ErrNoMoreRows is matched by every *NoMoreRowsError.
var ErrNoMoreRows = errors.New("cursor: no more rows")

// NoMoreRowsError is returned by Next when HasNext would report false.
type NoMoreRowsError struct {
	State    State
	Returned int64
}

func (e *NoMoreRowsError) Error() string {
	return fmt.Sprintf("cursor: no more rows (state %s, %d returned)", e.State, e.Returned)
}

func (e *NoMoreRowsError) Unwrap() error { return ErrNoMoreRows }

// State is the lifecycle position of a cursor.
type State int

const (
	// StateInitializing is the zero value, before a source is attached.
	StateInitializing State = iota
	StateAwaitingBatch
	StateDecoding
	StateExhausted
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	StateInitializing:  "INITIALIZING",
	StateAwaitingBatch: "AWAITING_BATCH",
	StateDecoding:      "DECODING",
	StateExhausted:     "EXHAUSTED",
	StateClosed:        "CLOSED",
	StateFailed:        "FAILED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Policy decides what happens to a row whose geometry fails to parse.
type Policy int

const (
	// PolicyAbort surfaces the parse error from Next and fails the cursor.
	PolicyAbort Policy = iota
	// PolicySkip drops the row and continues.
	PolicySkip
)

// ParsePolicy accepts "abort" and "skip". Empty means abort.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	}
	return PolicyAbort, fmt.Errorf("unknown geometry error policy %q", s)
}

// Source yields raw batches. Next returns io.EOF once the stream is drained.
// Close cancels the stream and may be called before it is drained.
type Source interface {
	Next(ctx context.Context) (decode.Batch, error)
	Close() error
}

// Options configure a cursor.
type Options struct {
	// Limit caps the records returned. Zero means unlimited.
	Limit  int
	Policy Policy
	Mode   query.Mode
	Logger *slog.Logger
}

// Stats counts what a cursor has done so far.
type Stats struct {
	Batches  int64
	Returned int64
	Skipped  int64
}

// Cursor pulls records out of a Source through a RowDecoder.
type Cursor struct {
	src  Source
	dec  decode.RowDecoder
	opts Options
	log  *slog.Logger

	state State
	stats Stats

	pending    *decode.Record
	pendingErr error
	errStage   string
	err        error

	released bool
}

// New creates a cursor over an opened source.
func New(src Source, dec decode.RowDecoder, opts Options) *Cursor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cursor{
		src:   src,
		dec:   dec,
		opts:  opts,
		log:   logger.With("mode", opts.Mode.String()),
		state: StateAwaitingBatch,
	}
	c.log.Info("Cursor opened", "limit", opts.Limit)
	return c
}

// State returns the current state.
func (c *Cursor) State() State { return c.state }

// Stats returns the running counters.
func (c *Cursor) Stats() Stats { return c.stats }

// Err returns the error that failed the cursor, if any.
func (c *Cursor) Err() error { return c.err }

// HasNext reports whether Next will return a record or an error. It looks
// ahead one row, fetching batches as needed.
func (c *Cursor) HasNext(ctx context.Context) bool {
	switch c.state {
	case StateClosed, StateFailed:
		return false
	}
	if c.pending != nil || c.pendingErr != nil {
		return true
	}
	if c.state == StateExhausted {
		return false
	}
	if c.opts.Limit > 0 && c.stats.Returned >= int64(c.opts.Limit) {
		c.finish("limit reached")
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			c.setPendingErr(err, "fetch")
			return true
		}

		if c.state == StateDecoding {
			if !c.dec.HasMore() {
				c.state = StateAwaitingBatch
				continue
			}
			rec, err := c.dec.NextRecord()
			if err == nil {
				c.pending = rec
				return true
			}
			var perr *geometry.ParseError
			if errors.As(err, &perr) && c.opts.Policy == PolicySkip {
				c.stats.Skipped++
				metrics.IncSkipped(c.opts.Mode.String())
				c.log.Warn("Skipping row with invalid geometry", "ordinal", perr.Ordinal, "field", perr.Field, "error", perr.Err)
				continue
			}
			c.setPendingErr(err, "decode")
			return true
		}

		batch, err := c.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			c.finish("upstream drained")
			return false
		}
		if err != nil {
			c.setPendingErr(err, "fetch")
			return true
		}
		if err := c.dec.DecodeBatch(batch); err != nil {
			c.setPendingErr(err, "decode")
			return true
		}
		c.stats.Batches++
		metrics.IncBatches(c.opts.Mode.String())
		c.log.Debug("Batch fetched", "batch", c.stats.Batches, "rows", batch.Len())
		c.state = StateDecoding
	}
}

// Next returns the next record. Without one it returns a *NoMoreRowsError.
// A pending error is returned once and leaves the cursor failed.
func (c *Cursor) Next(ctx context.Context) (*decode.Record, error) {
	if !c.HasNext(ctx) {
		return nil, &NoMoreRowsError{State: c.state, Returned: c.stats.Returned}
	}
	if c.pendingErr != nil {
		err := c.pendingErr
		c.pendingErr = nil
		c.fail(err)
		return nil, err
	}

	rec := c.pending
	c.pending = nil
	// skipped rows do not consume an ordinal
	rec.Ordinal = c.stats.Returned
	c.stats.Returned++
	metrics.AddRows(c.opts.Mode.String(), 1)
	return rec, nil
}

// Close releases the decoder and cancels the source. It is idempotent.
func (c *Cursor) Close() error {
	if c.state == StateClosed {
		return nil
	}
	// a closed cursor drops whatever it looked ahead at, errors included
	c.pending = nil
	c.pendingErr = nil
	err := c.release()
	c.state = StateClosed
	c.log.Info("Cursor closed", "returned", c.stats.Returned, "skipped", c.stats.Skipped, "batches", c.stats.Batches)
	return err
}

func (c *Cursor) setPendingErr(err error, stage string) {
	c.pendingErr = err
	c.errStage = stage
}

func (c *Cursor) finish(reason string) {
	c.state = StateExhausted
	if err := c.release(); err != nil {
		c.log.Warn("Failed to close source", "error", err)
	}
	c.log.Debug("Cursor exhausted", "reason", reason, "returned", c.stats.Returned)
}

func (c *Cursor) fail(err error) {
	c.state = StateFailed
	c.err = err
	metrics.IncFailures(c.opts.Mode.String(), c.errStage)
	if rerr := c.release(); rerr != nil {
		c.log.Warn("Failed to close source", "error", rerr)
	}
	c.log.Error("Scan failed", "stage", c.errStage, "returned", c.stats.Returned, "error", err)
}

func (c *Cursor) release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.pending = nil
	if c.dec != nil {
		c.dec.Release()
	}
	if c.src == nil {
		return nil
	}
	if err := c.src.Close(); err != nil {
		return fmt.Errorf("failed to close source: %w", err)
	}
	return nil
}
