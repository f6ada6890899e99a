// Package backend defines the contract between scans and the engines that
// execute them.
//
// Expression mode sends a complete statement to a StatementRunner and reads
// tabular rows back. Streaming mode opens a read session on a SessionReader
// with structured read options and reads Arrow batches back.
package backend

import (
	"context"
	"fmt"

	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/query"
)

// Backend is implemented by every engine.
type Backend interface {
	Dialect() dialect.Dialect
}

// StatementRunner executes generated SQL statements.
type StatementRunner interface {
	Backend
	RunStatement(ctx context.Context, stmt string) (Stream, error)
}

// SessionReader opens streaming read sessions.
type SessionReader interface {
	Backend
	OpenReadSession(ctx context.Context, opts query.ReadOptions) (Stream, error)
}

// Executor runs statements that return no rows, such as the DDL creating
// pregenerated views.
type Executor interface {
	ExecStatement(ctx context.Context, stmt string) error
}

// ExtentReader evaluates an aggregate extent statement.
type ExtentReader interface {
	QueryExtent(ctx context.Context, stmt string) (geometry.Envelope, error)
}

// Stream is an open result channel. Next returns io.EOF when drained.
type Stream interface {
	Descriptor() decode.Descriptor
	Next(ctx context.Context) (decode.Batch, error)
	Close() error
}

// QueryError is a backend rejection or failure of a submitted query. It is
// surfaced to callers unmodified and never retried.
type QueryError struct {
	Op        string
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("backend %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s failed: %v (statement: %s)", e.Op, e.Err, e.Statement)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Wrap returns err as a *QueryError unless it is nil or already one.
func Wrap(op, stmt string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*QueryError); ok {
		return err
	}
	return &QueryError{Op: op, Statement: stmt, Err: err}
}
