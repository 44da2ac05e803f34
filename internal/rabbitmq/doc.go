// Package rabbitmq provides the RabbitMQ queue driver.
//
// ConnectionManager dials the broker and re-dials with exponential backoff when
// the broker drops the connection. Queue implements messaging.Queue on top of
// durable queues: every logical queue is backed by "<name>", "<name>_retry" and
// "<name>_dlq", published with publisher confirms and consumed with basic.get so
// the worker's polling model maps directly onto the broker.
package rabbitmq
