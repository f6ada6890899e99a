package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hugr-lab/geoquery"
	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/query"
)

func newCompileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Print the statement or read options a scan would send",
		ArgsUsage: "<target>",
		Flags:     requestFlags(),
		Action:    compileAction,
	}
}

func compileAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return err
	}
	req, err := requestFromCommand(cmd)
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	// compiling only needs a backend to look up the schema
	if req.Schema == nil {
		b, closeFn, err := openBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()
		p, ok := b.(catalog.Provider)
		if !ok {
			return fmt.Errorf("backend %s cannot describe tables, pass --schema", cfg.Backend)
		}
		if err := resolveSchema(ctx, &req, p); err != nil {
			return err
		}
	}

	sc, err := cfg.ScannerConfig(logger)
	if err != nil {
		return err
	}
	limit := sc.RowLimit
	if req.Limit > 0 {
		limit = req.Limit
	}

	builder := query.NewBuilder(query.Options{
		Mode:                sc.Mode,
		Dialect:             dialectFor(cfg.Backend),
		Simplify:            sc.Simplify,
		ToleranceMode:       sc.ToleranceMode,
		PixelSpan:           sc.PixelSpan,
		AutoPartitionFilter: sc.AutoPartitionFilter,
		EscapeStrings:       sc.EscapeStrings,
		UsePregenerated:     sc.Pregenerate != geoquery.PregenerateNone,
	})
	plan, err := builder.Build(query.Request{
		Target:     req.Target,
		Schema:     req.Schema,
		Filter:     req.Filter,
		Fields:     req.Fields,
		IncludeAll: len(req.Fields) == 0,
		Limit:      limit,
	})
	if err != nil {
		return err
	}

	if plan.Mode == query.ModeStreaming {
		data, err := json.MarshalIndent(plan.ReadOptions(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}
	fmt.Fprintln(os.Stdout, plan.Statement())
	return nil
}
