// Package reliability provides the recovery paths of the reliable queue.
//
// This package implements:
//   - Reprocessor: drains a dead-letter queue back into the original logical queues
//   - Circuit Breaker: stops calling a failing outbound service for a cool-down period
//
// Example usage:
//
//	r := NewReprocessor(queue, messaging.NewQueueDispatcher(queue))
//	result, err := r.Reprocess(ctx, "orders_dlq")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Message())
package reliability
