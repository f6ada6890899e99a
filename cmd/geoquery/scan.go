package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/urfave/cli/v3"

	"github.com/hugr-lab/geoquery"
	"github.com/hugr-lab/geoquery/cursor"
	"github.com/hugr-lab/geoquery/decode"
)

func newScanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Stream matching rows as GeoJSON features",
		ArgsUsage: "<target>",
		Flags: append(requestFlags(),
			&cli.BoolFlag{
				Name:  "collection",
				Usage: "wrap the output in a FeatureCollection instead of one feature per line",
			},
		),
		Action: scanAction,
	}
}

func newBoundsCommand() *cli.Command {
	return &cli.Command{
		Name:      "bounds",
		Usage:     "Print the extent of matching geometries as a GeoJSON bbox",
		ArgsUsage: "<target>",
		Flags:     requestFlags(),
		Action:    boundsAction,
	}
}

func newCountCommand() *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "Count matching rows",
		ArgsUsage: "<target>",
		Flags:     requestFlags(),
		Action:    countAction,
	}
}

func newPregenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "pregenerate",
		Usage:     "Create simplified views of a table at every tolerance",
		ArgsUsage: "<target>",
		Flags:     requestFlags(),
		Action:    pregenerateAction,
	}
}

// scannerFromCommand opens the backend and builds a scanner plus request.
func scannerFromCommand(ctx context.Context, cmd *cli.Command) (*geoquery.Scanner, geoquery.Request, func() error, error) {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return nil, geoquery.Request{}, nil, err
	}
	req, err := requestFromCommand(cmd)
	if err != nil {
		return nil, geoquery.Request{}, nil, err
	}

	logger := cfg.Logger()
	sc, err := cfg.ScannerConfig(logger)
	if err != nil {
		return nil, geoquery.Request{}, nil, err
	}

	b, closeFn, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, geoquery.Request{}, nil, err
	}
	s, err := geoquery.NewScanner(b, sc)
	if err != nil {
		closeFn()
		return nil, geoquery.Request{}, nil, err
	}
	return s, req, closeFn, nil
}

func scanAction(ctx context.Context, cmd *cli.Command) error {
	s, req, closeFn, err := scannerFromCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if req.Schema == nil {
		if req.Schema, err = s.Schema(ctx, req.Target); err != nil {
			return err
		}
	}

	c, err := s.Scan(ctx, req)
	if err != nil {
		return err
	}
	defer c.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	geomField := req.Schema.Geometry()
	if cmd.Bool("collection") {
		return writeCollection(ctx, out, c, geomField)
	}
	return writeFeatures(ctx, out, c, geomField)
}

// writeFeatures writes newline-delimited GeoJSON features.
func writeFeatures(ctx context.Context, out *bufio.Writer, c *cursor.Cursor, geomField string) error {
	return each(ctx, c, func(rec *decode.Record) error {
		data, err := rec.Feature(geomField).MarshalJSON()
		if err != nil {
			return err
		}
		out.Write(data)
		return out.WriteByte('\n')
	})
}

func writeCollection(ctx context.Context, out *bufio.Writer, c *cursor.Cursor, geomField string) error {
	fc := geojson.NewFeatureCollection()
	if err := each(ctx, c, func(rec *decode.Record) error {
		fc.Append(rec.Feature(geomField))
		return nil
	}); err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	out.Write(data)
	return out.WriteByte('\n')
}

func each(ctx context.Context, c *cursor.Cursor, fn func(*decode.Record) error) error {
	for c.HasNext(ctx) {
		rec, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return c.Err()
}

func boundsAction(ctx context.Context, cmd *cli.Command) error {
	s, req, closeFn, err := scannerFromCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	env, err := s.Bounds(ctx, req)
	if err != nil {
		return err
	}
	data, err := json.Marshal(geojson.BBox{env.MinX, env.MinY, env.MaxX, env.MaxY})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}

func countAction(ctx context.Context, cmd *cli.Command) error {
	s, req, closeFn, err := scannerFromCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := s.Count(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, n)
	return nil
}

func pregenerateAction(ctx context.Context, cmd *cli.Command) error {
	s, req, closeFn, err := scannerFromCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	return s.Pregenerate(ctx, req.Target, req.Schema)
}
