// Package order places orders through a saga.
//
// The plan creates a pending order, charges it through the payment service and
// confirms it. When the payment keeps failing the order is marked failed and
// any charge is refunded. A confirmed order emits order.confirmed, which the
// OrderConfirmedListener turns into a message on the notifications queue; the
// NotificationProcessor delivers it to the notification service with the
// queue's retry and dead-letter semantics.
//
// Orders can also be placed asynchronously by publishing the request to the
// orders queue, where PlaceOrderProcessor runs the same saga.
package order
