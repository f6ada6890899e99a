package main

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/backend/bigquery"
	"github.com/hugr-lab/geoquery/backend/duckdb"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/flight"
	"github.com/hugr-lab/geoquery/internal/config"
)

// openBackend connects the configured backend. The returned function
// releases it.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Backend, func() error, error) {
	switch cfg.Backend {
	case config.BackendBigQuery:
		bc := bigquery.Config{
			Project:       cfg.BigQuery.Project,
			Dataset:       cfg.BigQuery.Dataset,
			Location:      cfg.BigQuery.Location,
			JobTimeout:    cfg.BigQuery.JobTimeout,
			UseQueryCache: cfg.BigQuery.UseQueryCache,
			PageSize:      cfg.BigQuery.PageSize,
			Logger:        logger,
		}
		if cfg.BigQuery.CredentialsFile != "" {
			bc.ClientOptions = append(bc.ClientOptions, option.WithCredentialsFile(cfg.BigQuery.CredentialsFile))
		}
		b, err := bigquery.New(ctx, bc)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil

	case config.BackendDuckDB:
		b, err := openDuckDB(ctx, cfg, logger, false)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil

	case config.BackendFlight:
		c, err := flight.Dial(cfg.Flight.Address, flight.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openDuckDB opens the configured database. A served database is
// sandboxed.
func openDuckDB(ctx context.Context, cfg *config.Config, logger *slog.Logger, served bool) (*duckdb.Backend, error) {
	return duckdb.Open(ctx, cfg.DuckDB.Path, duckdb.Options{
		BatchSize:     cfg.DuckDB.BatchSize,
		GeometryField: cfg.DuckDB.GeometryField,
		LoadSpatial:   cfg.DuckDB.LoadSpatial,
		Sandbox:       served,
		Logger:        logger,
	})
}

// dialectFor returns the dialect of a backend without connecting to it.
func dialectFor(b config.Backend) dialect.Dialect {
	if b == config.BackendBigQuery {
		return dialect.BigQuery
	}
	return dialect.DuckDB
}
