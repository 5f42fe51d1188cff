// Package dedupe remembers keys that have already been handled.
//
// The thread engine records "runID:callID" for every tool call whose output
// was accepted by the remote service. A polled run can report requires_action
// again before the submission is reflected; those calls are found in the cache
// and skipped, so a tool's side effect never runs twice for one call.
//
//	handled := dedupe.New(10*time.Minute, 10_000)
//	if handled.Seen(key) { continue }
//	...
//	handled.Record(keys...)
//
// Keys expire after the TTL and the oldest key is evicted once the size bound
// is reached. Expired keys are pruned on every write.
package dedupe
