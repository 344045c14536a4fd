package engine

import (
	"context"
	"fmt"

	"github.com/bpgergo/kmirror/internal/mirror"
	"github.com/bpgergo/kmirror/internal/telemetry"
	"github.com/bpgergo/kmirror/internal/transport"
)

// Config is the host process' startup configuration: where the control
// plane and the metrics endpoint listen. Individual replication flows
// are deployed afterward, over the control plane, each carrying its own
// cluster and topic configuration.
type Config struct {
	GRPCPort    int
	MetricsPort int
}

// Bootstrap starts the control plane and the metrics endpoint and
// returns an Engine ready for Run. No replication flow is running yet;
// DeployPipeline starts one.
func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	registry := telemetry.NewRegistry()
	telemetry.Expose(cfg.MetricsPort, registry)

	e := &Engine{
		registry:  registry,
		storage:   mirror.NewInMemoryOffsetStorage(),
		flows:     make(map[string]*flow),
		lifecycle: ctx,
	}

	srv, err := transport.StartServer(cfg.GRPCPort, e)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	e.transport = srv

	return e, nil
}
