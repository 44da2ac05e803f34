package redisqueue

// All keys are prefixed with "sagaflow:" to avoid collisions.
const keyPrefix = "sagaflow:"

// queueKey returns the list key of a queue: sagaflow:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// processingKey returns the list of reserved items: sagaflow:queue:{name}:processing
func processingKey(name string) string { return queueKey(name) + ":processing" }
