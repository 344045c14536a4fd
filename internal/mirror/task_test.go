package mirror

import (
	"context"
	"testing"
)

func TestReplicationTask_InitialState(t *testing.T) {
	task := NewReplicationTask()
	if got := task.State(); got != TaskCreated {
		t.Fatalf("State() = %s, want %s", got, TaskCreated)
	}
}

func TestReplicationTask_StopOnUnstartedTaskIsSafeAndIdempotent(t *testing.T) {
	task := NewReplicationTask()
	task.Stop()
	if got := task.State(); got != TaskStopped {
		t.Fatalf("State() after Stop = %s, want %s", got, TaskStopped)
	}
	task.Stop() // must not block or panic
}

func TestReplicationTask_PollAfterStopReturnsImmediately(t *testing.T) {
	task := NewReplicationTask()
	task.Stop()

	batch, err := task.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll after Stop returned an error: %v", err)
	}
	if batch != nil {
		t.Fatalf("Poll after Stop returned %d records, want none", len(batch))
	}
}

func TestReplicationTask_CommitRecordWithoutOffsetIsANoop(t *testing.T) {
	task := NewReplicationTask()
	task.assignment = TaskAssignment{MaxOffsetLag: 100}
	task.metrics = NoopMetrics{}

	rec := &ForwardedRecord{SourceTopicPartition: TopicPartition{Topic: "orders", Partition: 0}}
	task.CommitRecord(rec, RecordMetadata{HasOffset: false})

	if len(task.partitionStates) != 0 {
		t.Fatal("a commit with no target offset must not touch partition state")
	}
}

func TestReplicationTask_CommitRecordAfterStopIsANoop(t *testing.T) {
	task := NewReplicationTask()
	task.assignment = TaskAssignment{MaxOffsetLag: 100}
	task.metrics = NoopMetrics{}
	task.Stop()

	rec := &ForwardedRecord{SourceTopicPartition: TopicPartition{Topic: "orders", Partition: 0}}
	task.CommitRecord(rec, RecordMetadata{Offset: 10, HasOffset: true})

	if len(task.partitionStates) != 0 {
		t.Fatal("a commit arriving after Stop must not touch partition state")
	}
}
