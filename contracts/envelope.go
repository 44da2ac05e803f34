package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// MessageVersion is the envelope protocol version stamped on new messages.
const MessageVersion = "1.0"

// supportedVersions accepts every 1.x envelope.
var supportedVersions = mustConstraint("^1")

// QueueMessage wraps one unit of asynchronous work for transport.
// It is an immutable value: the With* methods return a modified copy and
// the accessors hand out copies of the payload maps.
type QueueMessage struct {
	id         string
	timestamp  time.Time
	version    string
	source     string
	queue      string
	data       map[string]any
	metadata   map[string]any
	err        *ErrorInfo
	retryCount int
}

// NewQueueMessage creates a message for the given logical queue
func NewQueueMessage(source, queue string, data, metadata map[string]any) QueueMessage {
	return QueueMessage{
		id:        uuid.New().String(),
		timestamp: time.Now().UTC().Round(0),
		version:   MessageVersion,
		source:    source,
		queue:     queue,
		data:      copyMap(data),
		metadata:  copyMap(metadata),
	}
}

// ID returns the message identifier
func (m QueueMessage) ID() string { return m.id }

// Timestamp returns the creation time
func (m QueueMessage) Timestamp() time.Time { return m.timestamp }

// Version returns the protocol version tag
func (m QueueMessage) Version() string { return m.version }

// Source returns the label of the producer
func (m QueueMessage) Source() string { return m.source }

// Queue returns the logical queue name
func (m QueueMessage) Queue() string { return m.queue }

// Data returns a copy of the payload
func (m QueueMessage) Data() map[string]any { return copyMap(m.data) }

// Metadata returns a copy of the metadata
func (m QueueMessage) Metadata() map[string]any { return copyMap(m.metadata) }

// LastError returns the error recorded by the last failed attempt, or nil
func (m QueueMessage) LastError() *ErrorInfo { return m.err.clone() }

// RetryCount returns how many attempts have failed so far
func (m QueueMessage) RetryCount() int { return m.retryCount }

// HasError reports whether a failed attempt has been recorded
func (m QueueMessage) HasError() bool { return m.err != nil }

// WithError returns a copy carrying the given failure
func (m QueueMessage) WithError(message, code string, trace *string) QueueMessage {
	next := m.derive()
	next.err = &ErrorInfo{Message: message, Code: code, Trace: copyString(trace)}
	return next
}

// WithIncrementedRetry returns a copy with the retry count increased by one
func (m QueueMessage) WithIncrementedRetry() QueueMessage {
	next := m.derive()
	next.retryCount++
	return next
}

// WithReset returns a copy with the error cleared and the retry count zeroed.
// The message ID and all other fields are kept.
func (m QueueMessage) WithReset() QueueMessage {
	next := m.derive()
	next.err = nil
	next.retryCount = 0
	return next
}

func (m QueueMessage) derive() QueueMessage {
	next := m
	next.data = copyMap(m.data)
	next.metadata = copyMap(m.metadata)
	next.err = m.err.clone()
	return next
}

// Record is the flat transport form of a QueueMessage
type Record struct {
	MessageID  string         `json:"message_id"`
	Timestamp  string         `json:"timestamp"`
	Version    string         `json:"version"`
	Source     string         `json:"source"`
	Queue      string         `json:"queue"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata"`
	Error      *ErrorInfo     `json:"error"`
	RetryCount int            `json:"retry_count"`
}

// ToRecord converts the message into its transport record
func (m QueueMessage) ToRecord() Record {
	return Record{
		MessageID:  m.id,
		Timestamp:  m.timestamp.Format(time.RFC3339Nano),
		Version:    m.version,
		Source:     m.source,
		Queue:      m.queue,
		Data:       copyMap(m.data),
		Metadata:   copyMap(m.metadata),
		Error:      m.err.clone(),
		RetryCount: m.retryCount,
	}
}

// FromRecord rebuilds a message from its transport record
func FromRecord(r Record) (QueueMessage, error) {
	if r.MessageID == "" {
		return QueueMessage{}, fmt.Errorf("%w: missing message_id", ErrInvalidRecord)
	}
	if r.Queue == "" {
		return QueueMessage{}, fmt.Errorf("%w: missing queue", ErrInvalidRecord)
	}
	if r.RetryCount < 0 {
		return QueueMessage{}, fmt.Errorf("%w: negative retry_count %d", ErrInvalidRecord, r.RetryCount)
	}

	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return QueueMessage{}, fmt.Errorf("%w: invalid timestamp %q: %v", ErrInvalidRecord, r.Timestamp, err)
	}

	version, err := semver.NewVersion(r.Version)
	if err != nil {
		return QueueMessage{}, fmt.Errorf("%w: invalid version %q: %v", ErrUnsupportedVersion, r.Version, err)
	}
	if !supportedVersions.Check(version) {
		return QueueMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedVersion, r.Version)
	}

	return QueueMessage{
		id:         r.MessageID,
		timestamp:  ts,
		version:    r.Version,
		source:     r.Source,
		queue:      r.Queue,
		data:       copyMap(r.Data),
		metadata:   copyMap(r.Metadata),
		err:        r.Error.clone(),
		retryCount: r.RetryCount,
	}, nil
}

// MarshalJSON encodes the message as its transport record
func (m QueueMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToRecord())
}

// UnmarshalJSON decodes a transport record into the message
func (m *QueueMessage) UnmarshalJSON(b []byte) error {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	decoded, err := FromRecord(r)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(fmt.Sprintf("invalid version constraint %q: %v", c, err))
	}
	return constraint
}

// copyMap deep copies nested maps and slices so derived messages never share
// mutable state with their origin. A nil map becomes an empty one.
func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
