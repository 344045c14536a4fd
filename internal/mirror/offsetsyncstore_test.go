package mirror

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeSyncConsumer hands back pre-seeded batches of records, one slice
// per Poll call, without involving a real broker.
type fakeSyncConsumer struct {
	batches [][]syncRecord
	next    int
	closed  bool
}

func (f *fakeSyncConsumer) Poll(ctx context.Context, timeout time.Duration) ([]syncRecord, error) {
	if f.next >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.next]
	f.next++
	return b, nil
}

func (f *fakeSyncConsumer) Close() error {
	f.closed = true
	return nil
}

func syncRecordFor(sync OffsetSync) syncRecord {
	return syncRecord{Key: EncodeKey(sync.TopicPartition), Value: EncodeValue(sync)}
}

func TestOffsetSyncStore_TranslateBeforeAnyUpdateUsesSentinelSync(t *testing.T) {
	store := newOffsetSyncStoreWithConsumer(&fakeSyncConsumer{})
	tp := TopicPartition{Topic: "orders", Partition: 0}
	// with no sync on record the sentinel (-1, -1) applies: -1 + (5 - -1) = 5.
	if got := store.TranslateDownstream(tp, 5); got != 5 {
		t.Fatalf("TranslateDownstream = %d, want 5 (extrapolated from the (-1, -1) sentinel)", got)
	}
}

func TestOffsetSyncStore_UpdateThenTranslate(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	fake := &fakeSyncConsumer{batches: [][]syncRecord{
		{syncRecordFor(OffsetSync{TopicPartition: tp, UpstreamOffset: 100, DownstreamOffset: 1000})},
	}}
	store := newOffsetSyncStoreWithConsumer(fake)

	if err := store.Update(context.Background(), time.Second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := store.TranslateDownstream(tp, 105); got != 1005 {
		t.Fatalf("TranslateDownstream(105) = %d, want 1005", got)
	}
	if got := store.TranslateDownstream(tp, 99); got != NotTranslatable {
		t.Fatalf("TranslateDownstream(99) = %d, want NotTranslatable (predates the sync)", got)
	}
}

func TestOffsetSyncStore_LaterSyncSupersedesEarlier(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	fake := &fakeSyncConsumer{batches: [][]syncRecord{
		{
			syncRecordFor(OffsetSync{TopicPartition: tp, UpstreamOffset: 100, DownstreamOffset: 1000}),
			syncRecordFor(OffsetSync{TopicPartition: tp, UpstreamOffset: 200, DownstreamOffset: 1150}),
		},
	}}
	store := newOffsetSyncStoreWithConsumer(fake)
	if err := store.Update(context.Background(), time.Second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := store.TranslateDownstream(tp, 210); got != 1160 {
		t.Fatalf("TranslateDownstream(210) = %d, want 1160", got)
	}
}

func TestOffsetSyncStore_MalformedRecordIsDroppedNotFatal(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	fake := &fakeSyncConsumer{batches: [][]syncRecord{
		{
			{Key: nil, Value: []byte{0xFF}}, // bad magic byte
			syncRecordFor(OffsetSync{TopicPartition: tp, UpstreamOffset: 1, DownstreamOffset: 1}),
		},
	}}
	store := newOffsetSyncStoreWithConsumer(fake)
	if err := store.Update(context.Background(), time.Second); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := store.TranslateDownstream(tp, 1); got != 1 {
		t.Fatalf("TranslateDownstream(1) = %d, want 1 (the valid record should still apply)", got)
	}
}

func TestOffsetSyncStore_CloseIsIdempotentAndStopsUpdates(t *testing.T) {
	store := newOffsetSyncStoreWithConsumer(&fakeSyncConsumer{})
	store.Close()
	store.Close() // must not panic or block

	if err := store.Update(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Update after Close should be a no-op, not an error: %v", err)
	}
}

type errorSyncConsumer struct{}

func (errorSyncConsumer) Poll(ctx context.Context, timeout time.Duration) ([]syncRecord, error) {
	return nil, errors.New("boom")
}
func (errorSyncConsumer) Close() error { return nil }

func TestOffsetSyncStore_UpdatePropagatesConsumerError(t *testing.T) {
	store := newOffsetSyncStoreWithConsumer(errorSyncConsumer{})
	if err := store.Update(context.Background(), time.Millisecond); err == nil {
		t.Fatal("expected Update to propagate the consumer's error")
	}
}
