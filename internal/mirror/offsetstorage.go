package mirror

import (
	"fmt"
	"sync"
)

// OffsetStorage is the host's opaque source-position store. The core only
// wraps and unwraps the host's key/value shape; it never interprets how
// or where the host persists it.
type OffsetStorage interface {
	// Offset returns the last persisted value for a wrapped partition key,
	// or nil if nothing has been stored yet for it.
	Offset(wrappedPartition map[string]any) map[string]any
	// Set persists a wrapped offset value under a wrapped partition key.
	Set(wrappedPartition, wrappedOffset map[string]any)
}

// WrapPartition builds the host's opaque partition key shape for tp,
// scoped by the source cluster alias so one offset-storage namespace can
// serve multiple flows sharing a target.
func WrapPartition(tp TopicPartition, sourceAlias string) map[string]any {
	return map[string]any{
		"cluster":   sourceAlias,
		"topic":     tp.Topic,
		"partition": tp.Partition,
	}
}

// WrapOffset builds the host's opaque offset value shape.
func WrapOffset(offset int64) map[string]any {
	return map[string]any{"offset": offset}
}

// UnwrapOffset tolerates a missing or malformed map, returning -1 rather
// than erroring: "nothing stored yet" is a normal startup state, not a
// fault.
func UnwrapOffset(wrapped map[string]any) int64 {
	if wrapped == nil {
		return -1
	}
	v, ok := wrapped["offset"]
	if !ok {
		return -1
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return -1
	}
}

// InMemoryOffsetStorage is a process-local OffsetStorage used by the
// standalone runner (cmd/mirror) and by tests. A real deployment's host
// supplies its own implementation backed by durable storage; this core
// never depends on where or how that happens.
type InMemoryOffsetStorage struct {
	mu    sync.Mutex
	store map[string]map[string]any
}

// NewInMemoryOffsetStorage returns an empty storage.
func NewInMemoryOffsetStorage() *InMemoryOffsetStorage {
	return &InMemoryOffsetStorage{store: make(map[string]map[string]any)}
}

func (s *InMemoryOffsetStorage) Offset(wrappedPartition map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store[partitionKey(wrappedPartition)]
}

func (s *InMemoryOffsetStorage) Set(wrappedPartition, wrappedOffset map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[partitionKey(wrappedPartition)] = wrappedOffset
}

func partitionKey(wrapped map[string]any) string {
	cluster, _ := wrapped["cluster"].(string)
	topic, _ := wrapped["topic"].(string)
	partition, _ := wrapped["partition"].(int32)
	return fmt.Sprintf("%s/%s/%d", cluster, topic, partition)
}
