package mirror

import (
	"encoding/binary"
	"fmt"
)

// OffsetSync pins one (upstream, downstream) offset pair for a partition.
// It is the single record type carried on the compacted offset-syncs
// topic; translateDownstream extrapolates from it linearly.
type OffsetSync struct {
	TopicPartition TopicPartition
	UpstreamOffset int64
	DownstreamOffset int64
}

// NotTranslatable is returned by OffsetSyncStore.TranslateDownstream when
// the requested upstream offset is below the upstream offset of the
// latest sync on record for its partition.
const NotTranslatable int64 = -1

const offsetSyncValueMagic uint8 = 1

// EncodeKey yields a stable byte string for tp, suitable as a compaction
// key: the last sync per TopicPartition is retained by the broker.
func EncodeKey(tp TopicPartition) []byte {
	topic := []byte(tp.Topic)
	buf := make([]byte, 4+len(topic)+4)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], uint32(len(topic)))
	off += 4
	copy(buf[off:], topic)
	off += len(topic)
	binary.BigEndian.PutUint32(buf[off:], uint32(tp.Partition))
	return buf
}

// EncodeValue yields a self-describing payload carrying all three fields,
// so a consumer of the offset-syncs topic need not assume key/value
// pairing to recover a full OffsetSync.
func EncodeValue(s OffsetSync) []byte {
	topic := []byte(s.TopicPartition.Topic)
	buf := make([]byte, 1+4+len(topic)+4+8+8)
	off := 0
	buf[off] = offsetSyncValueMagic
	off++
	binary.BigEndian.PutUint32(buf[off:], uint32(len(topic)))
	off += 4
	copy(buf[off:], topic)
	off += len(topic)
	binary.BigEndian.PutUint32(buf[off:], uint32(s.TopicPartition.Partition))
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(s.UpstreamOffset))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(s.DownstreamOffset))
	return buf
}

// DecodeRecord rebuilds an OffsetSync from a record's raw key and value.
// It succeeds on any value EncodeValue produced and tolerates extra
// trailing bytes, since the only external contract is key compaction
// stability — the value layout is internal to this codec.
func DecodeRecord(key, value []byte) (OffsetSync, error) {
	if len(value) < 1+4 {
		return OffsetSync{}, fmt.Errorf("mirror: offset sync value too short (%d bytes)", len(value))
	}
	if value[0] != offsetSyncValueMagic {
		return OffsetSync{}, fmt.Errorf("mirror: unsupported offset sync value version %d", value[0])
	}
	off := 1
	topicLen := int(binary.BigEndian.Uint32(value[off:]))
	off += 4
	if len(value) < off+topicLen+4+8+8 {
		return OffsetSync{}, fmt.Errorf("mirror: offset sync value truncated")
	}
	topic := string(value[off : off+topicLen])
	off += topicLen
	partition := int32(binary.BigEndian.Uint32(value[off:]))
	off += 4
	upstream := int64(binary.BigEndian.Uint64(value[off:]))
	off += 8
	downstream := int64(binary.BigEndian.Uint64(value[off:]))

	return OffsetSync{
		TopicPartition:   TopicPartition{Topic: topic, Partition: partition},
		UpstreamOffset:   upstream,
		DownstreamOffset: downstream,
	}, nil
}
