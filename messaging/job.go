package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glimte/sagaflow-go/contracts"
)

// jobKind tags encoded payloads so foreign items in a queue can be told apart
const jobKind = "queue_job"

// Job carries exactly one message to a physical queue. The physical queue
// (e.g. "orders_retry") is kept apart from the message's logical queue
// ("orders"), which is what the router resolves at consume time.
type Job struct {
	Message contracts.QueueMessage
	queue   string
}

// NewJob creates a job targeting the message's logical queue
func NewJob(msg contracts.QueueMessage) *Job {
	return &Job{Message: msg, queue: msg.Queue()}
}

// OnQueue sets the physical queue the job is pushed to
func (j *Job) OnQueue(queue string) *Job {
	j.queue = queue
	return j
}

// Queue returns the physical target queue
func (j *Job) Queue() string {
	return j.queue
}

// Tries is the number of delivery attempts the transport may make. Retries are
// always explicit re-publications, so the transport never redelivers on its own.
func (j *Job) Tries() int {
	return 1
}

// MaxExceptions is the number of failures tolerated before the transport gives up
func (j *Job) MaxExceptions() int {
	return 1
}

// Handle resolves the handler for the message's logical queue and runs it
func (j *Job) Handle(ctx context.Context, router *Router) error {
	factory, err := router.Resolve(j.Message.Queue())
	if err != nil {
		return err
	}
	return factory().Handle(ctx, j.Message)
}

type encodedJob struct {
	Job     string             `json:"job"`
	Queue   string             `json:"queue"`
	Message *contracts.Record `json:"message"`
}

// EncodeJob serializes a job for transport
func EncodeJob(j *Job) ([]byte, error) {
	record := j.Message.ToRecord()
	b, err := json.Marshal(encodedJob{Job: jobKind, Queue: j.queue, Message: &record})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return b, nil
}

// DecodeJob parses a transport payload. Payloads that are not encoded jobs
// yield ErrUnrecognizedJob.
func DecodeJob(b []byte) (*Job, error) {
	var raw encodedJob
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedJob, err)
	}
	if raw.Job != jobKind || raw.Message == nil {
		return nil, fmt.Errorf("%w: missing job envelope", ErrUnrecognizedJob)
	}

	msg, err := contracts.FromRecord(*raw.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedJob, err)
	}

	job := NewJob(msg)
	if raw.Queue != "" {
		job.OnQueue(raw.Queue)
	}
	return job, nil
}
