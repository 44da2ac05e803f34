// Package redisqueue implements messaging.Queue on Redis lists.
//
// Every physical queue is a list at "sagaflow:queue:{name}". Pop atomically
// moves the head into "sagaflow:queue:{name}:processing" with LMOVE, so a job
// is never lost between pop and delete. Release hands one reservation back and
// Requeue moves abandoned reservations back after a crash. Elements not
// written by Push are handed out unchanged so consumers can discard them.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	q := redisqueue.New(client)
package redisqueue
