package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hugr-lab/geoquery"
	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/filter"
)

var (
	filterFlag = &cli.StringFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   "filter expression as JSON, or @file to read it from a file",
	}
	fieldsFlag = &cli.StringSliceFlag{
		Name:  "fields",
		Usage: "output fields (default all)",
	}
	limitFlag = &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"n"},
		Usage:   "row limit, overrides scan.row_limit",
	}
	schemaFlag = &cli.StringFlag{
		Name:  "schema",
		Usage: "table schema as name:type,... instead of asking the backend",
	}
	partitionFlag = &cli.StringFlag{
		Name:  "partition",
		Usage: "partition field as name:HOUR|DAY|MONTH|YEAR[:required], used with --schema",
	}
	clusterFlag = &cli.StringSliceFlag{
		Name:  "cluster",
		Usage: "clustering fields, used with --schema",
	}
)

func requestFlags() []cli.Flag {
	return []cli.Flag{filterFlag, fieldsFlag, limitFlag, schemaFlag, partitionFlag, clusterFlag}
}

// requestFromCommand builds a scan request from the command arguments.
// Without --schema the schema is left for the scanner to resolve.
func requestFromCommand(cmd *cli.Command) (geoquery.Request, error) {
	if cmd.Args().Len() != 1 {
		return geoquery.Request{}, fmt.Errorf("expected 1 argument: target table")
	}
	req := geoquery.Request{
		Target: cmd.Args().First(),
		Fields: cmd.StringSlice(fieldsFlag.Name),
		Limit:  int(cmd.Int(limitFlag.Name)),
	}

	if f := cmd.String(filterFlag.Name); f != "" {
		node, err := readFilter(f)
		if err != nil {
			return geoquery.Request{}, err
		}
		req.Filter = node
	}

	if s := cmd.String(schemaFlag.Name); s != "" {
		schema, err := parseSchema(s, cmd.String(partitionFlag.Name), cmd.StringSlice(clusterFlag.Name))
		if err != nil {
			return geoquery.Request{}, err
		}
		req.Schema = schema
	}
	return req, nil
}

func readFilter(arg string) (*filter.Node, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read filter file: %w", err)
		}
	}
	return filter.Parse(data)
}

// parseSchema reads "name:type,name:type" plus an optional partition spec
// "name:GRANULARITY[:required]".
func parseSchema(fields, partition string, cluster []string) (*catalog.Schema, error) {
	b := catalog.NewSchemaBuilder()
	for _, part := range strings.Split(fields, ",") {
		name, typeName, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("schema field %q must be name:type", part)
		}
		typ, ok := catalog.ParseFieldType(typeName)
		if !ok {
			return nil, fmt.Errorf("schema field %q has unknown type %q", name, typeName)
		}
		b.Field(name, typ)
	}
	if len(cluster) > 0 {
		b.Clustered(cluster...)
	}
	if partition != "" {
		parts := strings.Split(partition, ":")
		if len(parts) < 2 || len(parts) > 3 || (len(parts) == 3 && parts[2] != "required") {
			return nil, fmt.Errorf("partition %q must be name:granularity[:required]", partition)
		}
		b.Partition(parts[0], catalog.ParseGranularity(parts[1]), len(parts) == 3)
	}
	return b.Build()
}

// resolveSchema fills req.Schema through a catalog provider when --schema
// was not given.
func resolveSchema(ctx context.Context, req *geoquery.Request, p catalog.Provider) error {
	if req.Schema != nil {
		return nil
	}
	schema, err := p.Schema(ctx, req.Target)
	if err != nil {
		return err
	}
	if schema == nil {
		return fmt.Errorf("%w: %s", geoquery.ErrTableNotFound, req.Target)
	}
	req.Schema = schema
	return nil
}
