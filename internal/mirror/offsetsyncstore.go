package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/bpgergo/kmirror/internal/logging"
)

// syncRecord is the minimal shape OffsetSyncStore needs out of a polled
// record; it lets the store be tested against a fake without depending on
// sarama's concrete message type.
type syncRecord struct {
	Key   []byte
	Value []byte
}

// syncConsumer is the narrow slice of a Kafka consumer OffsetSyncStore
// needs: tail a single partition from the earliest retained record and
// hand back whatever is available within a bounded wait.
type syncConsumer interface {
	Poll(ctx context.Context, timeout time.Duration) ([]syncRecord, error)
	Close() error
}

// OffsetSyncStore tails the compacted offset-syncs topic and answers
// translation queries. It is sole owner of its consumer; nothing here is
// shared with a ReplicationTask.
type OffsetSyncStore struct {
	mu       sync.Mutex
	consumer syncConsumer
	syncs    map[TopicPartition]OffsetSync
	closed   bool
}

// NewOffsetSyncStore tails offsetSyncsTopic partition 0 on the given
// client, starting from the earliest retained record.
func NewOffsetSyncStore(client sarama.Client, offsetSyncsTopic string) (*OffsetSyncStore, error) {
	consumer, err := newSaramaSyncConsumer(client, offsetSyncsTopic)
	if err != nil {
		return nil, err
	}
	return newOffsetSyncStoreWithConsumer(consumer), nil
}

// newOffsetSyncStoreWithConsumer is used directly by tests to inject a
// fake consumer.
func newOffsetSyncStoreWithConsumer(consumer syncConsumer) *OffsetSyncStore {
	return &OffsetSyncStore{
		consumer: consumer,
		syncs:    make(map[TopicPartition]OffsetSync),
	}
}

// TranslateDownstream converts an upstream offset into its estimated
// downstream position, by linear extrapolation from the latest sync on
// record for tp. It returns NotTranslatable if upstream predates that
// sync — that position is too far in the past to translate accurately,
// and the store refuses to guess. With no sync on record for tp, a
// sentinel sync (-1, -1) is used, so any upstream offset of -1 or more
// translates to itself.
func (s *OffsetSyncStore) TranslateDownstream(tp TopicPartition, upstream int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.latestSyncLocked(tp)
	if latest.UpstreamOffset > upstream {
		return NotTranslatable
	}
	step := upstream - latest.UpstreamOffset
	return latest.DownstreamOffset + step
}

func (s *OffsetSyncStore) latestSyncLocked(tp TopicPartition) OffsetSync {
	if latest, ok := s.syncs[tp]; ok {
		return latest
	}
	return OffsetSync{TopicPartition: tp, UpstreamOffset: -1, DownstreamOffset: -1}
}

// Update blocks up to pollTimeout, applies every record fetched, and
// returns. Concurrent callers are serialized by the store's lock;
// Update and Close are mutually exclusive with each other.
func (s *OffsetSyncStore) Update(ctx context.Context, pollTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	records, err := s.consumer.Poll(ctx, pollTimeout)
	if err != nil {
		return err
	}
	for _, rec := range records {
		s.handleRecordLocked(rec)
	}
	return nil
}

func (s *OffsetSyncStore) handleRecordLocked(rec syncRecord) {
	decoded, err := DecodeRecord(rec.Key, rec.Value)
	if err != nil {
		logging.L().Warn("offset-sync-store: dropping malformed record", "error", err)
		return
	}
	s.syncs[decoded.TopicPartition] = decoded
}

// Close schedules the underlying consumer's shutdown off the caller's
// thread, since the source cluster's network close can block
// arbitrarily, and returns immediately. Subsequent Update/
// TranslateDownstream calls succeed against the pre-close snapshot:
// TranslateDownstream never touches the consumer, and Update becomes a
// no-op once closed is observed.
func (s *OffsetSyncStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	consumer := s.consumer
	s.mu.Unlock()

	go func() {
		if err := consumer.Close(); err != nil {
			logging.L().Warn("offset-sync-store: error closing consumer", "error", err)
		}
	}()
}

// saramaSyncConsumer is the production syncConsumer, backed by a single
// sarama.PartitionConsumer on partition 0 of the offset-syncs topic.
type saramaSyncConsumer struct {
	pc sarama.PartitionConsumer
}

func newSaramaSyncConsumer(client sarama.Client, topic string) (*saramaSyncConsumer, error) {
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return nil, err
	}
	pc, err := consumer.ConsumePartition(topic, 0, sarama.OffsetOldest)
	if err != nil {
		return nil, err
	}
	return &saramaSyncConsumer{pc: pc}, nil
}

// Poll blocks until the first message (or error/timeout/cancellation),
// then drains whatever else is immediately available without waiting out
// the full timeout a second time — the same shape as a bulk consumer
// poll() call.
func (c *saramaSyncConsumer) Poll(ctx context.Context, timeout time.Duration) ([]syncRecord, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var out []syncRecord
	for {
		select {
		case msg, ok := <-c.pc.Messages():
			if !ok {
				return out, nil
			}
			out = append(out, syncRecord{Key: msg.Key, Value: msg.Value})
			continue
		case kerr := <-c.pc.Errors():
			if kerr != nil {
				logging.L().Warn("offset-sync-store: consumer error", "error", kerr.Err)
			}
			continue
		case <-deadline.C:
			return out, nil
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		if len(out) > 0 {
			return out, nil
		}

		select {
		case msg, ok := <-c.pc.Messages():
			if !ok {
				return out, nil
			}
			out = append(out, syncRecord{Key: msg.Key, Value: msg.Value})
		case kerr := <-c.pc.Errors():
			if kerr != nil {
				logging.L().Warn("offset-sync-store: consumer error", "error", kerr.Err)
			}
		case <-deadline.C:
			return out, nil
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

func (c *saramaSyncConsumer) Close() error {
	return c.pc.Close()
}
