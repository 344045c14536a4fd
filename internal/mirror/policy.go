package mirror

import "strings"

// ReplicationPolicy renames topics on the target side and classifies the
// internal topics a flow must never replicate back to the source.
type ReplicationPolicy interface {
	FormatRemoteTopic(sourceAlias, topic string) string
	IsHeartbeatsTopic(topic string) bool
	IsCheckpointsTopic(topic string) bool
	IsInternalTopic(topic string) bool
}

// DefaultReplicationPolicy is the stock naming strategy: remote topics are
// "<sourceAlias><separator><topic>"; internal topics are recognized by
// well-known suffixes, and offset-syncs topics also by a
// "mm2-offset-syncs." anywhere in the name.
type DefaultReplicationPolicy struct {
	// Separator joins the source alias and the original topic name.
	// Defaults to "." when empty.
	Separator string
}

const (
	heartbeatsSuffix  = ".heartbeats"
	checkpointsSuffix = ".checkpoints.internal"
	offsetSyncsSuffix = "-offset-syncs.internal"
)

func (p DefaultReplicationPolicy) separator() string {
	if p.Separator == "" {
		return "."
	}
	return p.Separator
}

func (p DefaultReplicationPolicy) FormatRemoteTopic(sourceAlias, topic string) string {
	return sourceAlias + p.separator() + topic
}

func (p DefaultReplicationPolicy) IsHeartbeatsTopic(topic string) bool {
	return strings.HasSuffix(topic, heartbeatsSuffix)
}

func (p DefaultReplicationPolicy) IsCheckpointsTopic(topic string) bool {
	return strings.HasSuffix(topic, checkpointsSuffix)
}

// IsInternalTopic reports whether topic is one of the flow's own
// bookkeeping topics (heartbeats, checkpoints, or offset syncs) and must
// therefore never be picked up for replication itself.
func (p DefaultReplicationPolicy) IsInternalTopic(topic string) bool {
	return p.IsHeartbeatsTopic(topic) ||
		p.IsCheckpointsTopic(topic) ||
		strings.HasSuffix(topic, offsetSyncsSuffix) ||
		strings.Contains(topic, "mm2-offset-syncs.")
}
