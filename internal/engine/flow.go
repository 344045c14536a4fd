package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bpgergo/kmirror/internal/config"
	"github.com/bpgergo/kmirror/internal/logging"
	"github.com/bpgergo/kmirror/internal/mirror"
)

// flow is the host side of one deployed replication flow: it owns the
// ReplicationTask's consumer-side core plus the target-cluster producer
// the core itself never touches, drives the poll/forward/commit loop,
// and writes acknowledged source positions back to offset storage.
type flow struct {
	id  string
	cfg config.FlowConfig

	task *mirror.ReplicationTask

	targetClient   sarama.Client
	targetProducer sarama.AsyncProducer

	storage  mirror.OffsetStorage
	metrics  *mirror.PromMetrics
	inflight *inFlightLimiter

	cancel context.CancelFunc
	done   chan struct{}
}

// forwardMeta travels inside a sarama.ProducerMessage's Metadata field
// so the ack-draining loop can commit the right source record and
// release its in-flight slot regardless of delivery order.
type forwardMeta struct {
	rec     *mirror.ForwardedRecord
	resolve func()
}

// newFlow connects to both clusters, discovers the partitions backing
// cfg's topics, and assembles a ReplicationTask ready to run.
func newFlow(id string, cfg config.FlowConfig, reg *prometheus.Registry, storage mirror.OffsetStorage) (*flow, error) {
	sourceDial := clusterDial(cfg.Source)
	targetDial := clusterDial(cfg.Target)

	discoveryCfg, err := mirror.NewSaramaConfig(sourceDial)
	if err != nil {
		return nil, fmt.Errorf("flow %s: source sarama config: %w", id, err)
	}
	discoveryClient, err := sarama.NewClient(sourceDial.Brokers, discoveryCfg)
	if err != nil {
		return nil, fmt.Errorf("flow %s: connecting to source cluster: %w", id, err)
	}
	defer discoveryClient.Close()

	var partitions []mirror.TopicPartition
	for _, topic := range cfg.Topics {
		ids, err := discoveryClient.Partitions(topic)
		if err != nil {
			return nil, fmt.Errorf("flow %s: discovering partitions for %s: %w", id, topic, err)
		}
		for _, p := range ids {
			partitions = append(partitions, mirror.TopicPartition{Topic: topic, Partition: p})
		}
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("flow %s: no partitions discovered across %d configured topics", id, len(cfg.Topics))
	}

	targetSaramaCfg, err := mirror.NewSaramaConfig(targetDial)
	if err != nil {
		return nil, fmt.Errorf("flow %s: target sarama config: %w", id, err)
	}
	targetClient, err := sarama.NewClient(targetDial.Brokers, targetSaramaCfg)
	if err != nil {
		return nil, fmt.Errorf("flow %s: connecting to target cluster: %w", id, err)
	}
	targetProducer, err := sarama.NewAsyncProducerFromClient(targetClient)
	if err != nil {
		_ = targetClient.Close()
		return nil, fmt.Errorf("flow %s: creating target producer: %w", id, err)
	}

	metrics := mirror.NewPromMetrics(reg, cfg.SourceClusterAlias, cfg.TargetClusterAlias)

	assignment := mirror.TaskAssignment{
		SourceClusterAlias: cfg.SourceClusterAlias,
		TargetClusterAlias: cfg.TargetClusterAlias,
		AssignedPartitions: partitions,
		MaxOffsetLag:       cfg.MaxOffsetLag,
		PollTimeout:        cfg.PollTimeout,
		OffsetSyncsTopic:   cfg.OffsetSyncsTopic,
		ReplicationPolicy: mirror.DefaultReplicationPolicy{
			Separator: cfg.ReplicationPolicy.Separator,
		},
	}

	task := mirror.NewReplicationTask()
	if err := task.Start(assignment, sourceDial, storage, metrics); err != nil {
		_ = targetProducer.Close()
		_ = targetClient.Close()
		return nil, fmt.Errorf("flow %s: starting replication task: %w", id, err)
	}

	return &flow{
		id:             id,
		cfg:            cfg,
		task:           task,
		targetClient:   targetClient,
		targetProducer: targetProducer,
		storage:        storage,
		metrics:        metrics,
		inflight:       newInFlightLimiter(maxInFlightRecords(cfg)),
		done:           make(chan struct{}),
	}, nil
}

func maxInFlightRecords(cfg config.FlowConfig) int64 {
	if cfg.MaxInFlightRecords > 0 {
		return cfg.MaxInFlightRecords
	}
	return 500
}

func clusterDial(c config.ClusterConfig) mirror.ClusterDial {
	return mirror.ClusterDial{
		Brokers:    c.Brokers,
		Version:    c.Version,
		TLSEnabled: c.TLSEn,
		SASLUser:   c.SASLUser,
		SASLPass:   c.SASLPass,
		StartFrom:  c.StartFrom,
	}
}

// run drives the poll/forward loop until ctx is cancelled or stop is
// called. Acknowledged records are committed back to the task and their
// source offset is persisted, so a restart resumes downstream of the
// last record the target cluster actually accepted.
func (f *flow) run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	defer close(f.done)

	go f.drainAcks()

	for {
		batch, err := f.task.Poll(runCtx)
		if runCtx.Err() != nil {
			return
		}
		if err != nil {
			logging.L().Error("flow: poll failed", "flow", f.id, "error", err)
			continue
		}
		for _, rec := range batch {
			if err := f.forward(runCtx, rec); err != nil {
				logging.L().Warn("flow: dropping record, shutting down", "flow", f.id, "error", err)
			}
		}
	}
}

// forward blocks for in-flight capacity, then hands rec to the target
// producer. The returned error is non-nil only when ctx was cancelled
// while waiting for capacity, meaning the flow is stopping.
func (f *flow) forward(ctx context.Context, rec *mirror.ForwardedRecord) error {
	resolve, err := f.inflight.Track(ctx, rec)
	if err != nil {
		return err
	}

	headers := make([]sarama.RecordHeader, 0, len(rec.Headers))
	for k, v := range rec.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	msg := &sarama.ProducerMessage{
		Topic:     rec.TargetTopic,
		Partition: rec.TargetPartition,
		Key:       sarama.ByteEncoder(rec.Key),
		Value:     sarama.ByteEncoder(rec.Value),
		Headers:   headers,
		Timestamp: rec.Timestamp,
		Metadata:  &forwardMeta{rec: rec, resolve: resolve},
	}
	f.targetProducer.Input() <- msg
	return nil
}

func (f *flow) drainAcks() {
	for {
		select {
		case msg, ok := <-f.targetProducer.Successes():
			if !ok {
				return
			}
			meta, _ := msg.Metadata.(*forwardMeta)
			if meta == nil {
				continue
			}
			meta.resolve()
			f.task.CommitRecord(meta.rec, mirror.RecordMetadata{Offset: msg.Offset, HasOffset: true})
			f.storage.Set(
				mirror.WrapPartition(meta.rec.SourceTopicPartition, f.cfg.SourceClusterAlias),
				mirror.WrapOffset(meta.rec.UpstreamOffset),
			)
		case perr, ok := <-f.targetProducer.Errors():
			if !ok {
				return
			}
			meta, _ := perr.Msg.Metadata.(*forwardMeta)
			if meta != nil {
				meta.resolve()
				logging.L().Error("flow: forward failed", "flow", f.id, "topic", meta.rec.SourceTopicPartition.Topic, "partition", meta.rec.SourceTopicPartition.Partition, "error", perr.Err)
			} else {
				logging.L().Error("flow: forward failed", "flow", f.id, "error", perr.Err)
			}
		}
	}
}

// stop cancels the poll loop, waits briefly for it to quiesce, and
// closes every resource the flow owns.
func (f *flow) stop() {
	if f.cancel != nil {
		f.cancel()
	}
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		logging.L().Warn("flow: poll loop did not quiesce in time", "flow", f.id)
	}

	f.task.Stop()
	if err := f.targetProducer.Close(); err != nil {
		logging.L().Error("flow: target producer close failed", "flow", f.id, "error", err)
	}
	if err := f.targetClient.Close(); err != nil {
		logging.L().Error("flow: target client close failed", "flow", f.id, "error", err)
	}
}
