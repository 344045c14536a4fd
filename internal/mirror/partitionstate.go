package mirror

// PartitionState tracks one source partition's replication progress and
// decides when a new offset sync must be emitted. It is held only inside
// a running ReplicationTask; nothing about it is shared across tasks.
//
// A downstream reader extrapolates linearly from the last emitted sync:
// given sync (U, D), it assumes offset U+k on the source lands at D+k on
// the target. Update reports that the extrapolation would already be
// wrong by maxOffsetLag or more, or that the source stream itself just
// became un-extrapolatable (a gap or a regression), and a fresh sync is
// needed.
//
// Example:
//
//	s := NewPartitionState(100)
//	s.Update(0, 1000)  // -> true  (no prior sync)
//	s.Update(1, 1001)  // -> false (linear, no drift)
//	s.Update(2, 1250)  // -> true  (drift: 1250 - (1000+2) >= 100)
type PartitionState struct {
	previousUpstream   int64
	previousDownstream int64
	lastSyncUpstream   int64
	lastSyncDownstream int64
	maxOffsetLag       int64
}

// NewPartitionState returns a fresh state with no prior sync. maxOffsetLag
// is the largest translation error, in records, tolerated before a new
// sync is emitted.
func NewPartitionState(maxOffsetLag int64) *PartitionState {
	return &PartitionState{
		previousUpstream:   -1,
		previousDownstream: -1,
		lastSyncUpstream:   -1,
		lastSyncDownstream: -1,
		maxOffsetLag:       maxOffsetLag,
	}
}

// Update folds one committed (upstream, downstream) pair into the state
// and reports whether a new offset sync should be emitted for it. The
// decision rule is evaluated in order, emitting on the first match:
//
//  1. no prior sync exists;
//  2. the linear prediction from the last sync has drifted by
//     maxOffsetLag or more;
//  3. the upstream offset isn't exactly one past the previous one (a gap);
//  4. the downstream offset regressed relative to the previous one.
//
// previousUpstream/previousDownstream are updated unconditionally;
// lastSyncUpstream/lastSyncDownstream are updated only when Update
// returns true. Update is deterministic given its inputs but is not
// idempotent — calling it twice with the same arguments can yield two
// different answers, since the second call sees itself as "previous".
func (s *PartitionState) Update(upstream, downstream int64) bool {
	upstreamStep := upstream - s.lastSyncUpstream
	downstreamTarget := s.lastSyncDownstream + upstreamStep

	emit := s.lastSyncDownstream == -1 ||
		downstream-downstreamTarget >= s.maxOffsetLag ||
		upstream-s.previousUpstream != 1 ||
		downstream < s.previousDownstream

	if emit {
		s.lastSyncUpstream = upstream
		s.lastSyncDownstream = downstream
	}
	s.previousUpstream = upstream
	s.previousDownstream = downstream
	return emit
}
