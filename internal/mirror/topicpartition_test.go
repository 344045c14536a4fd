package mirror

import "testing"

func TestTopicPartition_String(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 3}
	if got := tp.String(); got != "orders-3" {
		t.Fatalf("String() = %q, want %q", got, "orders-3")
	}
}
