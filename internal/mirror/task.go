package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/bpgergo/kmirror/internal/logging"
)

// maxOutstandingOffsetSyncs bounds in-flight offset-sync sends so a slow
// or unreachable source cluster can't grow an unbounded producer buffer.
const maxOutstandingOffsetSyncs = 10

// TaskState is a ReplicationTask's lifecycle stage.
type TaskState int32

const (
	TaskCreated TaskState = iota
	TaskRunning
	TaskStopping
	TaskStopped
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskRunning:
		return "running"
	case TaskStopping:
		return "stopping"
	case TaskStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ForwardedRecord is one source-cluster record pulled by Poll, translated
// to its target-cluster destination and ready for the host to publish.
type ForwardedRecord struct {
	SourceTopicPartition TopicPartition
	UpstreamOffset       int64

	TargetTopic     string
	TargetPartition int32

	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte
}

// RecordMetadata is what the host learned about a forwarded record once
// the target cluster acknowledged it.
type RecordMetadata struct {
	Offset    int64
	HasOffset bool
}

// ReplicationTask pumps one source cluster's assigned partitions toward
// a target, tracking per-partition offset drift and periodically
// publishing an offset-sync record so a reader of the target topic can
// translate a source offset into its target equivalent.
//
// A single mutex serializes Start, Poll, CommitRecord, and Stop exactly
// as spec'd: Poll holds it for the whole of one bounded wait, so a
// commit arriving mid-wait (from the host's producer ack callback) and
// a Stop both queue behind it. Stop is the one exception — it flips the
// stopping flag and wakes any blocked Poll before taking the lock, so a
// shutdown is never stuck behind a full poll timeout.
type ReplicationTask struct {
	mu    sync.Mutex
	state TaskState

	stopping atomic.Bool
	wakeCh   chan struct{}
	wakeOnce sync.Once

	assignment    TaskAssignment
	offsetStorage OffsetStorage
	metrics       Metrics
	outstanding   *outstandingSyncs

	partitionStates map[TopicPartition]*PartitionState

	sourceClient       sarama.Client
	consumer           sarama.Consumer
	partitionConsumers map[TopicPartition]sarama.PartitionConsumer
	offsetProducer     sarama.AsyncProducer

	rawCh chan *sarama.ConsumerMessage
}

// NewReplicationTask returns a task in TaskCreated state, ready for
// Start.
func NewReplicationTask() *ReplicationTask {
	return &ReplicationTask{
		wakeCh:             make(chan struct{}),
		partitionStates:    make(map[TopicPartition]*PartitionState),
		partitionConsumers: make(map[TopicPartition]sarama.PartitionConsumer),
		rawCh:              make(chan *sarama.ConsumerMessage, 256),
	}
}

// State reports the task's current lifecycle stage.
func (t *ReplicationTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start connects to the source cluster, seeds each assigned partition's
// consume position from storage (advancing a stored offset by one, since
// the stored value is the last delivered offset, or falling back to the
// earliest retained record when nothing is stored), and begins fanning
// consumed records into Poll's internal buffer.
func (t *ReplicationTask) Start(assignment TaskAssignment, dial ClusterDial, storage OffsetStorage, metrics Metrics) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TaskCreated {
		return fmt.Errorf("task: Start called in state %s", t.state)
	}
	if len(assignment.AssignedPartitions) == 0 {
		return errors.New("task: assignment has no partitions")
	}

	t.assignment = assignment
	t.offsetStorage = storage
	t.metrics = metrics
	t.outstanding = newOutstandingSyncs(maxOutstandingOffsetSyncs)

	saramaCfg, err := NewSaramaConfig(dial)
	if err != nil {
		return fmt.Errorf("task: building sarama config: %w", err)
	}

	client, err := sarama.NewClient(dial.Brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("task: connecting to source cluster: %w", err)
	}
	t.sourceClient = client

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("task: creating consumer: %w", err)
	}
	t.consumer = consumer

	offsetProducer, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return fmt.Errorf("task: creating offset-sync producer: %w", err)
	}
	t.offsetProducer = offsetProducer
	go t.drainOffsetAcks()

	offsets, uncommitted := t.loadStartOffsets(assignment.AssignedPartitions)
	logging.L().Info("task: starting",
		"source", assignment.SourceClusterAlias,
		"target", assignment.TargetClusterAlias,
		"partitions", len(assignment.AssignedPartitions),
		"partitions_without_stored_offset", uncommitted,
	)

	for _, tp := range assignment.AssignedPartitions {
		pc, err := consumer.ConsumePartition(tp.Topic, tp.Partition, offsets[tp])
		if err != nil {
			return fmt.Errorf("task: consuming %s: %w", tp, err)
		}
		t.partitionConsumers[tp] = pc
		go t.fanIn(pc)
	}

	t.state = TaskRunning
	return nil
}

func (t *ReplicationTask) loadStartOffsets(partitions []TopicPartition) (map[TopicPartition]int64, int) {
	out := make(map[TopicPartition]int64, len(partitions))
	uncommitted := 0
	for _, tp := range partitions {
		wrapped := WrapPartition(tp, t.assignment.SourceClusterAlias)
		stored := UnwrapOffset(t.offsetStorage.Offset(wrapped))
		if stored == -1 {
			out[tp] = sarama.OffsetOldest
			uncommitted++
			continue
		}
		out[tp] = stored + 1
	}
	return out, uncommitted
}

// fanIn copies one partition consumer's messages into the task's shared
// buffer until the consumer closes or the task wakes for shutdown.
func (t *ReplicationTask) fanIn(pc sarama.PartitionConsumer) {
	for {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			select {
			case t.rawCh <- msg:
			case <-t.wakeCh:
				return
			}
		case kerr, ok := <-pc.Errors():
			if !ok {
				return
			}
			logging.L().Warn("task: consumer error", "topic", kerr.Topic, "partition", kerr.Partition, "error", kerr.Err)
		case <-t.wakeCh:
			return
		}
	}
}

// drainOffsetAcks releases one outstanding-sync permit per offset-sync
// producer ack, success or failure; a failed send is logged, not
// retried, since the next qualifying commit re-fires the sync anyway.
func (t *ReplicationTask) drainOffsetAcks() {
	for {
		select {
		case _, ok := <-t.offsetProducer.Successes():
			if !ok {
				return
			}
			t.outstanding.Release()
		case perr, ok := <-t.offsetProducer.Errors():
			if !ok {
				return
			}
			logging.L().Error("task: offset-sync send failed", "error", perr.Err)
			t.outstanding.Release()
		}
	}
}

// Poll waits up to the assignment's poll timeout for consumed records,
// converts each to its target-cluster destination, and returns the
// batch. It returns an empty, non-error batch on timeout, on a
// concurrent Stop, and on context cancellation — the host is expected to
// simply call Poll again unless it's also shutting down.
func (t *ReplicationTask) Poll(ctx context.Context) ([]*ForwardedRecord, error) {
	if t.stopping.Load() {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopping.Load() {
		return nil, nil
	}

	msgs, woke := t.pollBatch(ctx, t.assignment.PollTimeout)
	if woke {
		return nil, nil
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	batch := make([]*ForwardedRecord, 0, len(msgs))
	for _, m := range msgs {
		fr := t.convert(m)
		if fr == nil {
			continue
		}
		t.metrics.RecordAge(fr.SourceTopicPartition, time.Since(m.Timestamp).Milliseconds())
		t.metrics.RecordBytes(fr.SourceTopicPartition, len(m.Value))
		batch = append(batch, fr)
	}
	return batch, nil
}

// pollBatch blocks for the first available message, error, wake, or
// timeout, then drains whatever else is immediately at hand without
// waiting out the timeout a second time. woke reports whether the wait
// ended because of Stop or context cancellation rather than data or
// timeout.
func (t *ReplicationTask) pollBatch(ctx context.Context, timeout time.Duration) (out []*sarama.ConsumerMessage, woke bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case msg := <-t.rawCh:
			out = append(out, msg)
			continue
		case <-t.wakeCh:
			return out, true
		case <-ctx.Done():
			return out, true
		case <-deadline.C:
			return out, false
		default:
		}

		if len(out) > 0 {
			return out, false
		}

		select {
		case msg := <-t.rawCh:
			out = append(out, msg)
		case <-t.wakeCh:
			return out, true
		case <-ctx.Done():
			return out, true
		case <-deadline.C:
			return out, false
		}
	}
}

func (t *ReplicationTask) convert(m *sarama.ConsumerMessage) *ForwardedRecord {
	if m == nil || m.Topic == "" {
		return nil
	}
	headers := make(map[string][]byte, len(m.Headers))
	for _, h := range m.Headers {
		headers[string(h.Key)] = h.Value
	}
	targetTopic := t.assignment.ReplicationPolicy.FormatRemoteTopic(t.assignment.SourceClusterAlias, m.Topic)
	return &ForwardedRecord{
		SourceTopicPartition: TopicPartition{Topic: m.Topic, Partition: m.Partition},
		UpstreamOffset:       m.Offset,
		TargetTopic:          targetTopic,
		TargetPartition:      m.Partition,
		Key:                  m.Key,
		Value:                m.Value,
		Timestamp:            m.Timestamp,
		Headers:              headers,
	}
}

// CommitRecord is invoked by the host once the target cluster has
// acknowledged a forwarded record. It updates the record's partition's
// drift state and, when the state decides a sync is due, attempts to
// publish one — a backpressure miss (the outstanding-sync budget is
// exhausted) is silently skipped, since the next qualifying commit
// tries again.
func (t *ReplicationTask) CommitRecord(record *ForwardedRecord, metadata RecordMetadata) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopping.Load() || record == nil {
		return
	}
	if !metadata.HasOffset {
		logging.L().Error("task: commit has no target offset, cannot sync", "topic", record.SourceTopicPartition.Topic, "partition", record.SourceTopicPartition.Partition)
		return
	}

	tp := record.SourceTopicPartition
	t.metrics.CountRecord(tp)
	t.metrics.ReplicationLatency(tp, time.Since(record.Timestamp).Milliseconds())

	state := t.partitionStateLocked(tp)
	if state.Update(record.UpstreamOffset, metadata.Offset) {
		t.sendOffsetSync(tp, record.UpstreamOffset, metadata.Offset)
	}
}

func (t *ReplicationTask) partitionStateLocked(tp TopicPartition) *PartitionState {
	s, ok := t.partitionStates[tp]
	if !ok {
		s = NewPartitionState(t.assignment.MaxOffsetLag)
		t.partitionStates[tp] = s
	}
	return s
}

func (t *ReplicationTask) sendOffsetSync(tp TopicPartition, upstream, downstream int64) {
	if !t.outstanding.TryAcquire() {
		return
	}

	sync := OffsetSync{TopicPartition: tp, UpstreamOffset: upstream, DownstreamOffset: downstream}
	msg := &sarama.ProducerMessage{
		Topic:     t.assignment.OffsetSyncsTopic,
		Partition: 0,
		Key:       sarama.ByteEncoder(EncodeKey(tp)),
		Value:     sarama.ByteEncoder(EncodeValue(sync)),
	}

	select {
	case t.offsetProducer.Input() <- msg:
	default:
		t.outstanding.Release()
		logging.L().Warn("task: offset-sync producer input full, dropping", "topic", tp.Topic, "partition", tp.Partition)
	}
}

// Stop is idempotent: the first call drains the task's resources within
// bounded timeouts; later calls return immediately.
func (t *ReplicationTask) Stop() {
	if t.stopping.Swap(true) {
		return
	}
	t.wakeOnce.Do(func() { close(t.wakeCh) })

	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	t.state = TaskStopping

	for tp, pc := range t.partitionConsumers {
		if err := closeWithTimeout(pc.Close, 500*time.Millisecond); err != nil {
			logging.L().Error("task: partition consumer close timed out", "topic", tp.Topic, "partition", tp.Partition, "error", err)
		}
	}
	if t.consumer != nil {
		if err := closeWithTimeout(t.consumer.Close, 500*time.Millisecond); err != nil {
			logging.L().Error("task: consumer close timed out", "error", err)
		}
	}
	if t.offsetProducer != nil {
		if err := closeWithTimeout(t.offsetProducer.Close, 500*time.Millisecond); err != nil {
			logging.L().Error("task: offset-sync producer close timed out", "error", err)
		}
	}
	if t.sourceClient != nil {
		if err := t.sourceClient.Close(); err != nil {
			logging.L().Error("task: source client close failed", "error", err)
		}
	}
	if t.metrics != nil {
		t.metrics.Close()
	}

	t.state = TaskStopped
	logging.L().Info("task: stopped", "elapsed_ms", time.Since(start).Milliseconds())
}

// closeWithTimeout runs fn in its own goroutine and waits up to timeout
// for it to finish. A timeout is logged by the caller and otherwise
// ignored: the close keeps running in the background, and the process
// is expected to exit shortly after shutdown regardless.
func closeWithTimeout(fn func() error, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("close exceeded %s", timeout)
	}
}
