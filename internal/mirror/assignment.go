package mirror

import "time"

// TaskAssignment is the orchestrator's immutable input to one
// ReplicationTask activation: which source partitions to replicate,
// under which aliases, with which drift tolerance and naming policy.
// Its lifetime is one task activation; the core never mutates it.
type TaskAssignment struct {
	SourceClusterAlias string
	TargetClusterAlias string

	AssignedPartitions []TopicPartition

	MaxOffsetLag     int64
	PollTimeout      time.Duration
	OffsetSyncsTopic string

	ReplicationPolicy ReplicationPolicy
}
