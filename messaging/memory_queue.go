package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue for tests and single-process setups.
// Popped items stay reserved until deleted. A reserved item is only handed
// out again after Release or Requeue; nothing expires on its own.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  map[string][]*Delivery
	reserved map[string]reservation
	seq      int64
}

type reservation struct {
	item *Delivery
	seq  int64
}

var (
	_ Releaser = (*MemoryQueue)(nil)
	_ Requeuer = (*MemoryQueue)(nil)
)

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		pending:  make(map[string][]*Delivery),
		reserved: make(map[string]reservation),
	}
}

// Push implements Queue
func (q *MemoryQueue) Push(ctx context.Context, queue string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item := &Delivery{
		ID:    uuid.New().String(),
		Queue: queue,
		Body:  append([]byte(nil), body...),
	}
	q.pending[queue] = append(q.pending[queue], item)
	return nil
}

// Pop implements Queue
func (q *MemoryQueue) Pop(ctx context.Context, queue string) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.pending[queue]
	if len(items) == 0 {
		return nil, ErrQueueEmpty
	}

	item := items[0]
	q.pending[queue] = items[1:]
	q.seq++
	q.reserved[item.ID] = reservation{item: item, seq: q.seq}
	return item, nil
}

// Delete implements Queue
func (q *MemoryQueue) Delete(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.reserved[d.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDelivery, d.ID)
	}
	delete(q.reserved, d.ID)
	return nil
}

// Release implements Releaser
func (q *MemoryQueue) Release(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.reserved[d.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDelivery, d.ID)
	}
	delete(q.reserved, d.ID)
	q.pending[r.item.Queue] = append([]*Delivery{r.item}, q.pending[r.item.Queue]...)
	return nil
}

// Requeue implements Requeuer. Items go back in the order they were popped.
func (q *MemoryQueue) Requeue(ctx context.Context, queue string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var held []reservation
	for id, r := range q.reserved {
		if r.item.Queue == queue {
			held = append(held, r)
			delete(q.reserved, id)
		}
	}
	sort.Slice(held, func(i, j int) bool { return held[i].seq < held[j].seq })

	items := make([]*Delivery, 0, len(held)+len(q.pending[queue]))
	for _, r := range held {
		items = append(items, r.item)
	}
	q.pending[queue] = append(items, q.pending[queue]...)
	return len(held), nil
}

// Len returns the number of items waiting on a queue
func (q *MemoryQueue) Len(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[queue])
}

// Reserved returns the number of popped items not yet deleted
func (q *MemoryQueue) Reserved() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reserved)
}

// Jobs decodes the items waiting on a queue without reserving them.
// Items that do not decode are skipped.
func (q *MemoryQueue) Jobs(queue string) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*Job, 0, len(q.pending[queue]))
	for _, item := range q.pending[queue] {
		job, err := DecodeJob(item.Body)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}
