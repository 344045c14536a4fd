package mirror

import "testing"

func TestPartitionState_FirstCommitAlwaysEmits(t *testing.T) {
	s := NewPartitionState(100)
	if !s.Update(0, 1000) {
		t.Fatal("first commit should always emit a sync")
	}
}

func TestPartitionState_LinearNoDrift(t *testing.T) {
	s := NewPartitionState(100)
	s.Update(0, 1000)
	if s.Update(1, 1001) {
		t.Fatal("a linear, driftless commit should not emit a sync")
	}
	if s.Update(2, 1002) {
		t.Fatal("a linear, driftless commit should not emit a sync")
	}
}

func TestPartitionState_DriftBeyondMaxOffsetLagEmits(t *testing.T) {
	s := NewPartitionState(100)
	s.Update(0, 1000)
	// extrapolation from (0,1000) predicts offset 2 lands at 1002;
	// 1250 overshoots that by 248, well past the 100 tolerance.
	if !s.Update(2, 1250) {
		t.Fatal("drift beyond maxOffsetLag should emit a sync")
	}
}

func TestPartitionState_UpstreamGapEmits(t *testing.T) {
	s := NewPartitionState(100)
	s.Update(0, 1000)
	s.Update(1, 1001)
	// offset 1 -> 5 is a gap of 4, not the expected +1 step.
	if !s.Update(5, 1005) {
		t.Fatal("a gap in upstream offsets should emit a sync")
	}
}

func TestPartitionState_DownstreamRegressionEmits(t *testing.T) {
	s := NewPartitionState(100)
	s.Update(0, 1000)
	s.Update(1, 1001)
	if !s.Update(2, 999) {
		t.Fatal("a downstream regression should emit a sync")
	}
}

func TestPartitionState_PreviousOffsetsAlwaysAdvance(t *testing.T) {
	s := NewPartitionState(100)
	s.Update(0, 1000)
	s.Update(5, 1005) // gap, emits, but previous* must still track the actual values
	if s.previousUpstream != 5 || s.previousDownstream != 1005 {
		t.Fatalf("previous offsets not updated: got (%d, %d)", s.previousUpstream, s.previousDownstream)
	}
}

func TestPartitionState_NotIdempotent(t *testing.T) {
	s := NewPartitionState(100)
	s.Update(0, 1000)
	if s.Update(1, 1001) {
		t.Fatal("a linear, driftless commit should not emit a sync")
	}
	// replaying (1, 1001) now looks like a zero-length gap relative to
	// the previous offset the first call recorded, so the same inputs
	// that didn't emit a moment ago now do.
	if !s.Update(1, 1001) {
		t.Fatal("replaying a commit against its own 'previous' state should emit")
	}
}
