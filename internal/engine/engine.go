package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-uuid"
	"github.com/prometheus/client_golang/prometheus"

	pb "github.com/bpgergo/kmirror/api/proto/v1"
	"github.com/bpgergo/kmirror/internal/config"
	"github.com/bpgergo/kmirror/internal/logging"
	"github.com/bpgergo/kmirror/internal/mirror"
	"github.com/bpgergo/kmirror/internal/transport"
)

// Engine is the host process: it serves the control plane and owns
// every replication flow currently deployed to it.
type Engine struct {
	transport *transport.Server
	registry  *prometheus.Registry
	storage   mirror.OffsetStorage

	// lifecycle is the engine's own long-lived context, set by Bootstrap.
	// Flows run against it, not against an individual DeployPipeline
	// call's context: a unary RPC's context is cancelled the moment its
	// handler returns, long before the deployed flow should stop.
	lifecycle context.Context

	mu    sync.Mutex
	flows map[string]*flow

	pb.UnimplementedControlServer
}

// Run serves the control plane until ctx is cancelled, then stops every
// deployed flow before returning.
func (e *Engine) Run(ctx context.Context) error {
	flowsStopped := make(chan struct{})
	go func() {
		defer close(flowsStopped)
		<-ctx.Done()
		e.transport.Stop()
		e.mu.Lock()
		flows := make([]*flow, 0, len(e.flows))
		for _, f := range e.flows {
			flows = append(flows, f)
		}
		e.flows = nil
		e.mu.Unlock()
		for _, f := range flows {
			f.stop()
		}
	}()

	err := e.transport.Serve()
	if ctx.Err() != nil {
		<-flowsStopped
	}
	return err
}

// Ping answers a liveness check.
func (e *Engine) Ping(_ context.Context, _ *pb.PingRequest) (*pb.PingReply, error) {
	return &pb.PingReply{Status: "ok"}, nil
}

// DeployPipeline parses req's YAML as a replication flow, starts it, and
// returns the id future PausePipeline calls reference. The name is the
// control service's, inherited from its original connector-deployment
// purpose; a deployed unit here is one replication flow.
func (e *Engine) DeployPipeline(_ context.Context, req *pb.DeployRequest) (*pb.DeployReply, error) {
	cfg, err := config.LoadBytes([]byte(req.GetYaml()))
	if err != nil {
		return nil, fmt.Errorf("engine: parsing flow: %w", err)
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("engine: generating flow id: %w", err)
	}

	f, err := newFlow(id, cfg, e.registry, e.storage)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.flows[id] = f
	e.mu.Unlock()

	go f.run(e.lifecycle)

	logging.L().Info("engine: flow deployed", "flow", id, "source", cfg.SourceClusterAlias, "target", cfg.TargetClusterAlias, "topics", len(cfg.Topics))
	return &pb.DeployReply{Id: id}, nil
}

// PausePipeline stops and removes a previously deployed flow.
func (e *Engine) PausePipeline(_ context.Context, req *pb.PauseRequest) (*pb.PauseReply, error) {
	e.mu.Lock()
	f, ok := e.flows[req.GetId()]
	if ok {
		delete(e.flows, req.GetId())
	}
	e.mu.Unlock()

	if !ok {
		return &pb.PauseReply{Ok: false}, nil
	}

	f.stop()
	logging.L().Info("engine: flow paused", "flow", req.GetId())
	return &pb.PauseReply{Ok: true}, nil
}
