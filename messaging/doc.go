// Package messaging implements the reliable queue pipeline.
//
// A Producer wraps payloads in a contracts.QueueMessage and dispatches a Job to the
// message's logical queue. A Worker pops jobs from physical queues, resolves the
// handler through the Router by the message's logical queue, and runs it.
//
// Handlers built with NewQueueHandler never let a processing failure escape. The
// failure is recorded on the envelope, the retry count is bumped and the envelope is
// re-published as a new job:
//
//	orders -> orders_retry -> orders_retry -> orders_dlq
//
// All retry state lives in the envelope, so nothing is lost if a worker dies between
// attempts. Transports are configured for a single delivery attempt per job.
package messaging
