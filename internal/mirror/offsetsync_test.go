package mirror

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 3}
	sync := OffsetSync{TopicPartition: tp, UpstreamOffset: 4200, DownstreamOffset: 4195}

	key := EncodeKey(tp)
	value := EncodeValue(sync)

	got, err := DecodeRecord(key, value)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got != sync {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, sync)
	}
}

func TestEncodeKeyIsStablePerPartition(t *testing.T) {
	a := EncodeKey(TopicPartition{Topic: "orders", Partition: 0})
	b := EncodeKey(TopicPartition{Topic: "orders", Partition: 0})
	c := EncodeKey(TopicPartition{Topic: "orders", Partition: 1})

	if !bytes.Equal(a, b) {
		t.Fatal("EncodeKey should be deterministic for the same topic-partition")
	}
	if bytes.Equal(a, c) {
		t.Fatal("EncodeKey should differ across partitions")
	}
}

func TestDecodeRecordTruncated(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	value := EncodeValue(OffsetSync{TopicPartition: tp, UpstreamOffset: 1, DownstreamOffset: 1})

	if _, err := DecodeRecord(nil, value[:5]); err == nil {
		t.Fatal("expected an error decoding a truncated value")
	}
}

func TestDecodeRecordBadMagic(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	value := EncodeValue(OffsetSync{TopicPartition: tp, UpstreamOffset: 1, DownstreamOffset: 1})
	corrupt := append([]byte{}, value...)
	corrupt[0] = 0xFF

	if _, err := DecodeRecord(nil, corrupt); err == nil {
		t.Fatal("expected an error decoding a value with an unrecognized magic byte")
	}
}

func TestDecodeRecordToleratesTrailingBytes(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 0}
	sync := OffsetSync{TopicPartition: tp, UpstreamOffset: 7, DownstreamOffset: 9}
	value := append(EncodeValue(sync), 0xDE, 0xAD)

	got, err := DecodeRecord(nil, value)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got != sync {
		t.Fatalf("got %+v, want %+v", got, sync)
	}
}
