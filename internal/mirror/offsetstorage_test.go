package mirror

import "testing"

func TestInMemoryOffsetStorage_MissingOffsetUnwrapsToNegativeOne(t *testing.T) {
	s := NewInMemoryOffsetStorage()
	tp := TopicPartition{Topic: "orders", Partition: 0}
	wrapped := s.Offset(WrapPartition(tp, "east"))
	if got := UnwrapOffset(wrapped); got != -1 {
		t.Fatalf("UnwrapOffset of an unset partition = %d, want -1", got)
	}
}

func TestInMemoryOffsetStorage_SetThenOffsetRoundTrips(t *testing.T) {
	s := NewInMemoryOffsetStorage()
	tp := TopicPartition{Topic: "orders", Partition: 2}
	key := WrapPartition(tp, "east")

	s.Set(key, WrapOffset(4242))

	got := UnwrapOffset(s.Offset(key))
	if got != 4242 {
		t.Fatalf("UnwrapOffset = %d, want 4242", got)
	}
}

func TestInMemoryOffsetStorage_PartitionsAreIsolated(t *testing.T) {
	s := NewInMemoryOffsetStorage()
	a := WrapPartition(TopicPartition{Topic: "orders", Partition: 0}, "east")
	b := WrapPartition(TopicPartition{Topic: "orders", Partition: 1}, "east")

	s.Set(a, WrapOffset(10))
	s.Set(b, WrapOffset(20))

	if got := UnwrapOffset(s.Offset(a)); got != 10 {
		t.Fatalf("partition 0 offset = %d, want 10", got)
	}
	if got := UnwrapOffset(s.Offset(b)); got != 20 {
		t.Fatalf("partition 1 offset = %d, want 20", got)
	}
}

func TestInMemoryOffsetStorage_ClusterAliasScopesTheKey(t *testing.T) {
	s := NewInMemoryOffsetStorage()
	tp := TopicPartition{Topic: "orders", Partition: 0}
	eastKey := WrapPartition(tp, "east")
	westKey := WrapPartition(tp, "west")

	s.Set(eastKey, WrapOffset(1))

	if got := UnwrapOffset(s.Offset(westKey)); got != -1 {
		t.Fatalf("west-scoped key should not see east's stored offset, got %d", got)
	}
}
