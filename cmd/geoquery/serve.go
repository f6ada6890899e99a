package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/hugr-lab/geoquery/flight"
	"github.com/hugr-lab/geoquery/internal/metrics"
)

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve DuckDB tables as Flight read sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "gRPC listen address (default flight.listen)",
			},
			&cli.StringFlag{
				Name:  "metrics",
				Usage: "HTTP address for /metrics (default flight.metrics_addr)",
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("listen"); v != "" {
		cfg.Flight.Listen = v
	}
	if v := cmd.String("metrics"); v != "" {
		cfg.Flight.MetricsAddr = v
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDuckDB(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer db.Close()

	var opts []grpc.ServerOption
	if cfg.Flight.MaxMessageSize > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(cfg.Flight.MaxMessageSize),
			grpc.MaxSendMsgSize(cfg.Flight.MaxMessageSize),
		)
	}
	grpcServer := grpc.NewServer(opts...)
	flight.RegisterFlightServer(grpcServer, flight.NewServer(db, memory.DefaultAllocator, logger, advertised(cfg.Flight.Listen)))

	lis, err := net.Listen("tcp", cfg.Flight.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Flight.Listen, err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("Flight server listening", "address", lis.Addr().String())
		return grpcServer.Serve(lis)
	})

	var metricsServer *http.Server
	if cfg.Flight.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Flight.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("Metrics server listening", "address", cfg.Flight.MetricsAddr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		grpcServer.GracefulStop()
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	return eg.Wait()
}

// advertised turns a listen address into the address put in flight
// endpoints. A bare port advertises localhost.
func advertised(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
