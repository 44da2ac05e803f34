// Package contracts provides the message envelope that flows through the reliable queue.
//
// A QueueMessage carries one unit of asynchronous work together with its delivery
// bookkeeping:
//   - ID: opaque identifier that survives retries and reprocessing
//   - Queue: the logical queue name (e.g. "orders"), never the physical retry/DLQ variant
//   - LastError: the failure recorded by the last attempt
//   - RetryCount: the number of failed attempts
//
// Messages are immutable. Every state change returns a new value, so a handler that
// crashes between attempts cannot lose or corrupt retry state held by the envelope.
package contracts
