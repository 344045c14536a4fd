// Package mirror implements the replication data-plane of a single
// source→target flow: the task that pulls record batches from assigned
// source topic-partitions, republishes them onto renamed target
// topic-partitions, and emits a compacted stream of offset syncs that lets
// a downstream reader translate source offsets into target offsets.
package mirror
