// Package sync coordinates the three flows that keep the device store
// truthful: periodic REST polls, live MQTT push deltas, and outbound
// hardware commands with optimistic state.
//
// The coordinator runs a single goroutine that owns every store
// mutation. Polls replace all buckets atomically; push frames patch
// individual devices and never insert; commands patch optimistically
// only after the broker confirms the publish. Consumers observe changes
// through Subscribe callbacks and read through deep-copied accessors.
//
// Failure policy: a failed poll keeps the previous snapshot (stale beats
// empty), a malformed or unknown push frame is dropped and counted, and
// a failed publish applies no state at all.
package sync
