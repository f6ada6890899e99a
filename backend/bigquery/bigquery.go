// Package bigquery runs scans against Google BigQuery.
//
// Expression mode submits generated SQL as query jobs and reads rows back
// through the jobs API. Streaming mode opens a Storage Read API session in
// Arrow format with the compiled row restriction and selected fields.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	storage "cloud.google.com/go/bigquery/storage/apiv1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
)

// DefaultJobTimeout bounds query jobs when Config.JobTimeout is zero.
const DefaultJobTimeout = 30 * time.Second

// DefaultPageSize is the number of rows per tabular batch.
const DefaultPageSize = 1000

// Config configures a Backend.
type Config struct {
	Project string
	Dataset string
	// Location is the job location, empty for the dataset default.
	Location      string
	JobTimeout    time.Duration
	UseQueryCache bool
	PageSize      int
	Logger        *slog.Logger
	// ClientOptions are passed to both API clients (credentials, endpoint).
	ClientOptions []option.ClientOption
}

// Backend is a BigQuery project.
type Backend struct {
	cfg    Config
	client *bigquery.Client
	read   *storage.BigQueryReadClient
	log    *slog.Logger
}

var (
	_ backend.StatementRunner = (*Backend)(nil)
	_ backend.SessionReader   = (*Backend)(nil)
	_ backend.Executor        = (*Backend)(nil)
	_ backend.ExtentReader    = (*Backend)(nil)
	_ catalog.Provider        = (*Backend)(nil)
)

// New creates the jobs and storage read clients. Both are created once and
// shared by every scan of the backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Project == "" {
		return nil, errors.New("bigquery: project is required")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := bigquery.NewClient(ctx, cfg.Project, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	read, err := storage.NewBigQueryReadClient(ctx, cfg.ClientOptions...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create bigquery storage read client: %w", err)
	}

	cfg.Logger.Info("BigQuery backend ready", "project", cfg.Project, "dataset", cfg.Dataset)
	return &Backend{cfg: cfg, client: client, read: read, log: cfg.Logger}, nil
}

// Close closes both API clients.
func (b *Backend) Close() error {
	return errors.Join(b.read.Close(), b.client.Close())
}

func (b *Backend) Dialect() dialect.Dialect { return dialect.BigQuery }

func (b *Backend) newQuery(stmt string) *bigquery.Query {
	q := b.client.Query(stmt)
	q.DefaultProjectID = b.cfg.Project
	q.DefaultDatasetID = b.cfg.Dataset
	q.Location = b.cfg.Location
	q.JobTimeout = b.cfg.JobTimeout
	q.DisableQueryCache = !b.cfg.UseQueryCache
	return q
}

// RunStatement submits stmt as a query job. The first page is fetched
// before returning so the column list is known.
func (b *Backend) RunStatement(ctx context.Context, stmt string) (backend.Stream, error) {
	b.log.Debug("Submitting query job", "statement", stmt)
	it, err := b.newQuery(stmt).Read(ctx)
	if err != nil {
		return nil, backend.Wrap("query", stmt, err)
	}
	return newJobStream(it, stmt, b.cfg.PageSize)
}

// ExecStatement runs stmt as a job and waits for it to finish.
func (b *Backend) ExecStatement(ctx context.Context, stmt string) error {
	job, err := b.newQuery(stmt).Run(ctx)
	if err != nil {
		return backend.Wrap("exec", stmt, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return backend.Wrap("exec", stmt, err)
	}
	if err := status.Err(); err != nil {
		return backend.Wrap("exec", stmt, err)
	}
	b.log.Debug("Job completed", "job", job.ID())
	return nil
}

// QueryExtent runs an extent statement. A null extent (no rows matched) is
// the zero envelope.
func (b *Backend) QueryExtent(ctx context.Context, stmt string) (geometry.Envelope, error) {
	it, err := b.newQuery(stmt).Read(ctx)
	if err != nil {
		return geometry.Envelope{}, backend.Wrap("extent", stmt, err)
	}
	var row []bigquery.Value
	err = it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return geometry.Envelope{}, nil
	}
	if err != nil {
		return geometry.Envelope{}, backend.Wrap("extent", stmt, err)
	}
	return envelopeFromRow(row)
}

func envelopeFromRow(row []bigquery.Value) (geometry.Envelope, error) {
	if len(row) != 4 {
		return geometry.Envelope{}, fmt.Errorf("extent row has %d values", len(row))
	}
	var v [4]float64
	for i, x := range row {
		if x == nil {
			return geometry.Envelope{}, nil
		}
		f, ok := x.(float64)
		if !ok {
			return geometry.Envelope{}, fmt.Errorf("extent value %d is %T", i, x)
		}
		v[i] = f
	}
	return geometry.Envelope{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}

// TableRef is a fully qualified table.
type TableRef struct {
	Project, Dataset, Table string
}

func (r TableRef) String() string { return r.Project + "." + r.Dataset + "." + r.Table }

// Path is the resource name used by the storage API.
func (r TableRef) Path() string {
	return fmt.Sprintf("projects/%s/datasets/%s/tables/%s", r.Project, r.Dataset, r.Table)
}

// ParseTableRef resolves table, dataset.table or project.dataset.table
// against default project and dataset.
func ParseTableRef(target, project, dataset string) (TableRef, error) {
	parts := strings.Split(strings.Trim(target, "`"), ".")
	switch len(parts) {
	case 1:
		if dataset == "" {
			return TableRef{}, fmt.Errorf("table %q needs a dataset", target)
		}
		return TableRef{Project: project, Dataset: dataset, Table: parts[0]}, nil
	case 2:
		return TableRef{Project: project, Dataset: parts[0], Table: parts[1]}, nil
	case 3:
		return TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
	}
	return TableRef{}, fmt.Errorf("invalid table reference %q", target)
}

// Schema reads table metadata and converts it. A missing table is (nil, nil).
func (b *Backend) Schema(ctx context.Context, target string) (*catalog.Schema, error) {
	ref, err := ParseTableRef(target, b.cfg.Project, b.cfg.Dataset)
	if err != nil {
		return nil, err
	}
	md, err := b.client.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, backend.Wrap("metadata", ref.String(), err)
	}
	return SchemaFromMetadata(md)
}
