package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gsd.app/relay/common/atomicfile"
	"gsd.app/relay/common/id"
	"gsd.app/relay/common/logger"
	"gsd.app/relay/internal/command"
	"gsd.app/relay/internal/model"
)

const backendFile = "file"

// FileQueue keeps the queue as a pretty-printed JSON array that is rewritten
// in full on every mutation. Claimed entries are journaled to <path>.inflight
// before the shortened queue is written.
type FileQueue struct {
	mu           sync.Mutex
	path         string
	inflightPath string
	pending      []Entry
	inflight     []Entry
	closed       bool
	now          func() time.Time
	logger       *slog.Logger
}

type FileOption func(*FileQueue)

func WithFileLogger(l *slog.Logger) FileOption {
	return func(q *FileQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

func WithClock(now func() time.Time) FileOption {
	return func(q *FileQueue) {
		q.now = now
	}
}

// NewFileQueue loads path (creating an empty queue when missing) and the
// in-flight journal next to it. Call Recover to requeue journaled entries.
func NewFileQueue(path string, opts ...FileOption) (*FileQueue, error) {
	if path == "" {
		return nil, fmt.Errorf("queue path is required")
	}

	q := &FileQueue{
		path:         path,
		inflightPath: path + ".inflight",
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}

	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		Component: "relay.queue.file",
		Backend:   logger.Ptr(backendFile),
	})

	pending, exists, err := q.load(ctx, q.path)
	if err != nil {
		return nil, &StorageError{Backend: backendFile, Op: "load", Err: err}
	}
	inflight, _, err := q.load(ctx, q.inflightPath)
	if err != nil {
		return nil, &StorageError{Backend: backendFile, Op: "load inflight", Err: err}
	}
	q.pending = pending
	q.inflight = inflight

	if !exists {
		if err := q.write(q.path, q.pending); err != nil {
			return nil, &StorageError{Backend: backendFile, Op: "create", Err: err}
		}
	}

	q.logger.InfoContext(ctx, "file queue loaded",
		"path", path,
		"pending", len(q.pending),
		"inflight", len(q.inflight))

	return q, nil
}

func (q *FileQueue) Enqueue(ctx context.Context, job model.Job) (Entry, error) {
	if job == nil {
		return Entry{}, errors.New("enqueue: nil job")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Entry{}, ErrClosed
	}

	entry := Entry{ID: id.New(), Job: job, EnqueuedAt: q.now().UTC()}
	if err := q.commitPending(appendEntry(q.pending, entry)); err != nil {
		return Entry{}, &StorageError{Backend: backendFile, Op: "enqueue", Err: err}
	}
	return entry, nil
}

func (q *FileQueue) Requeue(ctx context.Context, entry Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	if err := q.commitPending(appendEntry(q.pending, entry)); err != nil {
		return &StorageError{Backend: backendFile, Op: "requeue", Err: err}
	}
	return nil
}

func (q *FileQueue) DequeueOne(ctx context.Context) (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Entry{}, false, ErrClosed
	}
	if len(q.pending) == 0 {
		return Entry{}, false, nil
	}

	head := q.pending[0]
	inflight := appendEntry(q.inflight, head)

	// Journal first: a crash after this point leaves the entry in both files,
	// which Recover dedupes by ID.
	if err := q.write(q.inflightPath, inflight); err != nil {
		return Entry{}, false, &StorageError{Backend: backendFile, Op: "dequeue", Err: err}
	}

	rest := append([]Entry(nil), q.pending[1:]...)
	if err := q.write(q.path, rest); err != nil {
		if rbErr := q.write(q.inflightPath, q.inflight); rbErr != nil {
			q.logger.ErrorContext(ctx, "failed to roll back inflight journal", "error", rbErr)
		}
		return Entry{}, false, &StorageError{Backend: backendFile, Op: "dequeue", Err: err}
	}

	q.pending = rest
	q.inflight = inflight
	return head, true, nil
}

func (q *FileQueue) Ack(ctx context.Context, entryID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	idx := indexOf(q.inflight, entryID)
	if idx < 0 {
		return nil
	}

	inflight := make([]Entry, 0, len(q.inflight)-1)
	inflight = append(inflight, q.inflight[:idx]...)
	inflight = append(inflight, q.inflight[idx+1:]...)
	if err := q.write(q.inflightPath, inflight); err != nil {
		return &StorageError{Backend: backendFile, Op: "ack", Err: err}
	}
	q.inflight = inflight
	return nil
}

func (q *FileQueue) Peek(ctx context.Context) (Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Entry{}, false, ErrClosed
	}
	if len(q.pending) == 0 {
		return Entry{}, false, nil
	}
	return q.pending[0], true, nil
}

func (q *FileQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrClosed
	}
	return len(q.pending), nil
}

func (q *FileQueue) List(ctx context.Context, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	n := len(q.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]Entry(nil), q.pending[:n]...), nil
}

// Recover moves journaled entries back to the head of the queue, oldest first.
func (q *FileQueue) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrClosed
	}
	if len(q.inflight) == 0 {
		return 0, nil
	}

	var restored []Entry
	for _, e := range q.inflight {
		if indexOf(q.pending, e.ID) < 0 {
			restored = append(restored, e)
		}
	}

	pending := make([]Entry, 0, len(restored)+len(q.pending))
	pending = append(pending, restored...)
	pending = append(pending, q.pending...)

	if err := q.write(q.path, pending); err != nil {
		return 0, &StorageError{Backend: backendFile, Op: "recover", Err: err}
	}
	q.pending = pending

	if err := q.write(q.inflightPath, nil); err != nil {
		return len(restored), &StorageError{Backend: backendFile, Op: "recover", Err: err}
	}
	q.inflight = nil

	return len(restored), nil
}

func (q *FileQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// commitPending persists then swaps the in-memory view. Caller holds mu.
func (q *FileQueue) commitPending(next []Entry) error {
	if err := q.write(q.path, next); err != nil {
		return err
	}
	q.pending = next
	return nil
}

func (q *FileQueue) write(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0o644)
}

// load reads a queue file. Plain string records are treated as raw commands
// from older deployments and parsed with the command grammar; records that
// cannot be decoded are logged and skipped.
func (q *FileQueue) load(ctx context.Context, path string) ([]Entry, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, true, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, true, fmt.Errorf("decoding %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, item := range raw {
		entry, err := q.decodeRecord(item)
		if err != nil {
			q.logger.ErrorContext(ctx, "skipping undecodable queue record",
				"error", err,
				"path", path,
				"index", i,
				"record", logger.Truncate(string(item), 200))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, true, nil
}

func (q *FileQueue) decodeRecord(item json.RawMessage) (Entry, error) {
	item = bytes.TrimSpace(item)
	if len(item) > 0 && item[0] == '"' {
		var raw string
		if err := json.Unmarshal(item, &raw); err != nil {
			return Entry{}, err
		}
		job, err := command.Parse(raw)
		if err != nil {
			return Entry{}, err
		}
		return Entry{ID: id.New(), Job: job, EnqueuedAt: q.now().UTC()}, nil
	}

	var entry Entry
	if err := json.Unmarshal(item, &entry); err != nil {
		return Entry{}, err
	}
	if entry.ID == 0 {
		entry.ID = id.New()
	}
	return entry, nil
}

func appendEntry(entries []Entry, e Entry) []Entry {
	next := make([]Entry, 0, len(entries)+1)
	next = append(next, entries...)
	return append(next, e)
}

func indexOf(entries []Entry, entryID int64) int {
	for i, e := range entries {
		if e.ID == entryID {
			return i
		}
	}
	return -1
}
