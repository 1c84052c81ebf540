// Package queue holds the durable FIFO of pending jobs.
//
// Every backend follows the same claim/ack protocol: DequeueOne moves the
// head into an in-flight set before the shortened queue is committed, Ack
// drops it once the dispatcher is done with it, and Recover puts anything
// left in flight by a crash back at the head.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gsd.app/relay/internal/model"
)

var ErrClosed = errors.New("queue closed")

type Entry struct {
	ID         int64
	Job        model.Job
	Attempt    int
	EnqueuedAt time.Time
	LastError  string
}

type Queue interface {
	// Enqueue appends job at the tail and returns the stored entry.
	Enqueue(ctx context.Context, job model.Job) (Entry, error)

	// Requeue appends an existing entry at the tail, keeping its ID.
	Requeue(ctx context.Context, entry Entry) error

	// DequeueOne claims the head. Returns ok=false and a nil error when empty.
	DequeueOne(ctx context.Context) (entry Entry, ok bool, err error)

	// Ack forgets a claimed entry. Acking an unknown ID is a no-op.
	Ack(ctx context.Context, id int64) error

	Peek(ctx context.Context) (entry Entry, ok bool, err error)
	Len(ctx context.Context) (int, error)

	// List returns up to limit pending entries from the head; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Recover returns claimed but unacked entries to the head and reports how many moved.
	Recover(ctx context.Context) (int, error)

	Close() error
}

// StorageError wraps a persistence failure. The queue state is unchanged
// when one is returned.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s queue %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// record is the persisted form of an Entry: queue metadata plus the solver wire fields.
type record struct {
	ID         int64     `json:"id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
	model.WireJob
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w, err := model.ToWire(e.Job)
	if err != nil {
		return nil, err
	}
	return json.Marshal(record{
		ID:         e.ID,
		Attempt:    e.Attempt,
		EnqueuedAt: e.EnqueuedAt,
		LastError:  e.LastError,
		WireJob:    w,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	job, err := r.WireJob.ToJob()
	if err != nil {
		return fmt.Errorf("entry %d: %w", r.ID, err)
	}
	*e = Entry{
		ID:         r.ID,
		Job:        job,
		Attempt:    r.Attempt,
		EnqueuedAt: r.EnqueuedAt,
		LastError:  r.LastError,
	}
	return nil
}
