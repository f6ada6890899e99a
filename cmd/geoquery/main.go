package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hugr-lab/geoquery/internal/config"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML or JSON configuration file",
	}
	backendFlag = &cli.StringFlag{
		Name:    "backend",
		Aliases: []string{"b"},
		Usage:   "backend: bigquery, duckdb or flight",
	}
	modeFlag = &cli.StringFlag{
		Name:    "mode",
		Aliases: []string{"m"},
		Usage:   "access mode: expression or streaming",
	}
	projectFlag = &cli.StringFlag{
		Name:  "project",
		Usage: "BigQuery project",
	}
	datasetFlag = &cli.StringFlag{
		Name:  "dataset",
		Usage: "BigQuery default dataset",
	}
	databaseFlag = &cli.StringFlag{
		Name:  "database",
		Usage: "DuckDB database file",
	}
	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "Flight read-session server address",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
	}
)

func main() {
	cmd := &cli.Command{
		Name:  "geoquery",
		Usage: "Compile geospatial filters into backend queries and stream the results",
		Flags: []cli.Flag{
			configFlag, backendFlag, modeFlag, projectFlag, datasetFlag,
			databaseFlag, addressFlag, logLevelFlag,
		},
		Commands: []*cli.Command{
			newCompileCommand(),
			newScanCommand(),
			newBoundsCommand(),
			newCountCommand(),
			newPregenerateCommand(),
			newServeCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configFromCommand loads the configuration file, then the environment, then
// the global flags, and validates the result.
func configFromCommand(cmd *cli.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := cmd.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	if v := cmd.String(backendFlag.Name); v != "" {
		cfg.Backend = config.Backend(v)
	}
	if v := cmd.String(modeFlag.Name); v != "" {
		cfg.Mode = v
	}
	if v := cmd.String(projectFlag.Name); v != "" {
		cfg.BigQuery.Project = v
	}
	if v := cmd.String(datasetFlag.Name); v != "" {
		cfg.BigQuery.Dataset = v
	}
	if v := cmd.String(databaseFlag.Name); v != "" {
		cfg.DuckDB.Path = v
	}
	if v := cmd.String(addressFlag.Name); v != "" {
		cfg.Flight.Address = v
	}
	if v := cmd.String(logLevelFlag.Name); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
