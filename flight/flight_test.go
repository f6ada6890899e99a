package flight

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/internal/wire"
	"github.com/hugr-lab/geoquery/query"
)

var placesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String},
	geometry.NewField("geom", true),
}, nil)

type memTables struct {
	mu      sync.Mutex
	records []arrow.RecordBatch
	got     []query.ReadOptions
}

func (m *memTables) TableSchema(_ context.Context, table string) (*arrow.Schema, error) {
	switch table {
	case "places":
		return placesSchema, nil
	case "broken":
		panic("catalog unavailable")
	}
	return nil, nil
}

func (m *memTables) ReadRows(_ context.Context, opts query.ReadOptions) (array.RecordReader, error) {
	m.mu.Lock()
	m.got = append(m.got, opts)
	m.mu.Unlock()
	if opts.RowRestriction == "FALSE" {
		return nil, errors.New("restriction rejected")
	}
	return array.NewRecordReader(placesSchema, m.records)
}

func (m *memTables) requests() []query.ReadOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]query.ReadOptions(nil), m.got...)
}

func placesRecord(t *testing.T, ids ...int64) arrow.RecordBatch {
	t.Helper()
	builder := array.NewRecordBuilder(memory.NewGoAllocator(), placesSchema)
	defer builder.Release()

	for _, id := range ids {
		data, err := wkb.Marshal(orb.Point{float64(id), float64(id)})
		if err != nil {
			t.Fatalf("wkb.Marshal failed: %v", err)
		}
		builder.Field(0).(*array.Int64Builder).Append(id)
		builder.Field(1).(*array.StringBuilder).Append("place")
		builder.Field(2).(*array.ExtensionBuilder).Builder.(*array.BinaryBuilder).Append(data)
	}
	return builder.NewRecordBatch()
}

type testServer struct {
	tables *memTables
	server *Server
	client *Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tables := &memTables{}
	srv := NewServer(tables, nil, nil, "")

	grpcServer := grpc.NewServer()
	RegisterFlightServer(grpcServer, srv)

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go grpcServer.Serve(listener)

	client, err := Dial(listener.Addr().String())
	if err != nil {
		grpcServer.Stop()
		t.Fatalf("failed to create client: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		grpcServer.Stop()
		for _, r := range tables.records {
			r.Release()
		}
	})
	return &testServer{tables: tables, server: srv, client: client}
}

func TestReadSession(t *testing.T) {
	ts := newTestServer(t)
	ts.tables.records = []arrow.RecordBatch{placesRecord(t, 1, 2), placesRecord(t, 3)}

	ctx := context.Background()
	opts := query.ReadOptions{
		Table:          "places",
		RowRestriction: "ST_Intersects(geom, ST_MakeEnvelope(0, 0, 5, 5))",
		SelectedFields: []string{"id", "geom"},
	}
	stream, err := ts.client.OpenReadSession(ctx, opts)
	if err != nil {
		t.Fatalf("OpenReadSession failed: %v", err)
	}
	defer stream.Close()

	dec, err := decode.NewDecoder(stream.Descriptor(), nil, decode.Options{})
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	defer dec.Release()

	var ids []int64
	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("stream.Next failed: %v", err)
		}
		if err := dec.DecodeBatch(batch); err != nil {
			t.Fatalf("DecodeBatch failed: %v", err)
		}
		for dec.HasMore() {
			rec, err := dec.NextRecord()
			if err != nil {
				t.Fatalf("NextRecord failed: %v", err)
			}
			id := rec.Values["id"].(int64)
			g, ok := rec.Geometry("geom")
			if !ok || !orb.Equal(g.Geometry, orb.Point{float64(id), float64(id)}) {
				t.Errorf("unexpected geometry for %d: %v", id, rec.Values["geom"])
			}
			ids = append(ids, id)
		}
	}

	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("expected ids [1 2 3], got %v", ids)
	}

	got := ts.tables.requests()
	if len(got) != 1 {
		t.Fatalf("expected 1 read, got %d", len(got))
	}
	if got[0].RowRestriction != opts.RowRestriction || len(got[0].SelectedFields) != 2 {
		t.Errorf("unexpected read options on the server: %+v", got[0])
	}

	if err := stream.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := stream.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after Close, got %v", err)
	}
}

func TestReadSession_Errors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts query.ReadOptions
		msg  string
	}{
		{"unknown table", query.ReadOptions{Table: "nope"}, "table not found: nope"},
		{"unknown field", query.ReadOptions{Table: "places", SelectedFields: []string{"area"}}, `unknown column "area"`},
		{"empty table", query.ReadOptions{}, "read options must name a table"},
		{"panicking catalog", query.ReadOptions{Table: "broken"}, "TableSchema panicked"},
		{"rejected restriction", query.ReadOptions{Table: "places", RowRestriction: "FALSE"}, "restriction rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := ts.client.OpenReadSession(ctx, tt.opts)
			if err == nil {
				stream.Close()
				t.Fatal("expected error")
			}
			var qerr *backend.QueryError
			if !errors.As(err, &qerr) {
				t.Fatalf("expected *backend.QueryError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("expected error containing '%s', got '%s'", tt.msg, err.Error())
			}
		})
	}
}

func TestGetFlightInfo_Descriptor(t *testing.T) {
	srv := NewServer(&memTables{}, nil, nil, "localhost:9999")
	ctx := context.Background()

	_, err := srv.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{"places"}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for PATH descriptor, got %v", err)
	}

	_, err = srv.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: []byte{9, 9}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument for garbage command, got %v", err)
	}

	cmd, err := wire.Marshal(query.ReadOptions{Table: "places", SelectedFields: []string{"geom", "id"}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	info, err := srv.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: cmd})
	if err != nil {
		t.Fatalf("GetFlightInfo failed: %v", err)
	}
	schema, err := flight.DeserializeSchema(info.Schema, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("DeserializeSchema failed: %v", err)
	}
	if schema.NumFields() != 2 || schema.Field(0).Name != "geom" {
		t.Errorf("expected projected schema [geom id], got %s", schema)
	}
	if uri := info.Endpoint[0].Location[0].Uri; uri != "grpc://localhost:9999" {
		t.Errorf("expected 'grpc://localhost:9999', got '%s'", uri)
	}
	tk, err := wire.DecodeTicket(info.Endpoint[0].Ticket.Ticket)
	if err != nil {
		t.Fatalf("DecodeTicket failed: %v", err)
	}
	if tk.Table != "places" {
		t.Errorf("expected ticket for 'places', got '%s'", tk.Table)
	}
}

func TestProjectSchema(t *testing.T) {
	s, err := ProjectSchema(placesSchema, nil)
	if err != nil || s != placesSchema {
		t.Errorf("expected unchanged schema, got %v, %v", s, err)
	}
	s, err = ProjectSchema(placesSchema, []string{"name"})
	if err != nil || s.NumFields() != 1 || s.Field(0).Name != "name" {
		t.Errorf("unexpected projection %v, %v", s, err)
	}
	if _, err := ProjectSchema(placesSchema, []string{"missing"}); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestClientSchema(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	schema, err := ts.client.Schema(ctx, "places")
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if got := strings.Join(schema.Names(), ","); got != "id,name,geom" {
		t.Errorf("expected 'id,name,geom', got '%s'", got)
	}
	if schema.Geometry() != "geom" {
		t.Errorf("expected geometry 'geom', got '%s'", schema.Geometry())
	}

	missing, err := ts.client.Schema(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for unknown table, got (%v, %v)", missing, err)
	}
}
