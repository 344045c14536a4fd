package mirror

import "fmt"

// TopicPartition identifies one log shard. Equality is structural, so it is
// safe to use directly as a map key.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}
