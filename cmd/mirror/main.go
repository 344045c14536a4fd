package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/bpgergo/kmirror/internal/engine"
	"github.com/bpgergo/kmirror/internal/logging"
)

func main() {
	var grpcPort, metricsPort int
	flag.IntVar(&grpcPort, "grpc-port", 7070, "control plane listen port")
	flag.IntVar(&metricsPort, "metrics-port", 9100, "Prometheus exposition port")
	flag.Parse()

	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, engine.Config{
		GRPCPort:    grpcPort,
		MetricsPort: metricsPort,
	})
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	logging.L().Info("mirror: control plane listening", "port", grpcPort, "metrics_port", metricsPort)
	if err := e.Run(ctx); err != nil {
		log.Fatalf("engine: %v", err)
	}
}
