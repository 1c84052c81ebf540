package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gsd.app/relay/common/id"
	"gsd.app/relay/common/logger"
	"gsd.app/relay/internal/model"
)

const backendRedis = "redis"

// RedisQueue keeps pending entries in the list <key> and claimed entries in
// <key>:processing. LMOVE makes the claim a single server-side step.
type RedisQueue struct {
	client        *redis.Client
	key           string
	processingKey string
	logger        *slog.Logger
}

// NewRedisQueue does not take ownership of client; Close leaves it open.
func NewRedisQueue(client *redis.Client, key string, logger *slog.Logger) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		return nil, errors.New("queue key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
		logger:        logger,
	}, nil
}

func (q *RedisQueue) withFields(ctx context.Context) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.queue.redis",
		Backend:   logger.Ptr(backendRedis),
	})
}

func (q *RedisQueue) Enqueue(ctx context.Context, job model.Job) (Entry, error) {
	if job == nil {
		return Entry{}, errors.New("enqueue: nil job")
	}
	entry := Entry{ID: id.New(), Job: job, EnqueuedAt: time.Now().UTC()}
	if err := q.push(ctx, "enqueue", entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, entry Entry) error {
	return q.push(ctx, "requeue", entry)
}

func (q *RedisQueue) push(ctx context.Context, op string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%s: encoding entry: %w", op, err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return &StorageError{Backend: backendRedis, Op: op, Err: fmt.Errorf("rpush (key=%s): %w", q.key, err)}
	}

	slog.DebugContext(q.withFields(ctx), "entry pushed", "op", op, "job_id", entry.ID, "key", q.key)
	return nil
}

// DequeueOne skips records it cannot decode, so a corrupt element never
// hides the jobs queued behind it.
func (q *RedisQueue) DequeueOne(ctx context.Context) (Entry, bool, error) {
	ctx = q.withFields(ctx)

	for {
		raw, err := q.client.LMove(ctx, q.key, q.processingKey, "LEFT", "RIGHT").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return Entry{}, false, nil
			}
			return Entry{}, false, &StorageError{Backend: backendRedis, Op: "dequeue", Err: fmt.Errorf("lmove (key=%s): %w", q.key, err)}
		}

		var entry Entry
		decodeErr := json.Unmarshal([]byte(raw), &entry)
		if decodeErr == nil {
			return entry, true, nil
		}
		slog.ErrorContext(ctx, "failed to decode queue entry, dropping",
			"error", decodeErr,
			"raw", logger.Truncate(raw, 200))

		if err := q.client.LRem(ctx, q.processingKey, 1, raw).Err(); err != nil {
			// Still claimed; Recover puts it back and the next dequeue drops it again.
			slog.ErrorContext(ctx, "failed to drop undecodable queue entry", "error", err, "key", q.processingKey)
			return Entry{}, false, &StorageError{Backend: backendRedis, Op: "dequeue", Err: fmt.Errorf("lrem (key=%s): %w", q.processingKey, err)}
		}
	}
}

func (q *RedisQueue) Ack(ctx context.Context, entryID int64) error {
	claimed, err := q.client.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return &StorageError{Backend: backendRedis, Op: "ack", Err: fmt.Errorf("lrange (key=%s): %w", q.processingKey, err)}
	}

	for _, raw := range claimed {
		if claimID, ok := rawEntryID(raw); !ok || claimID != entryID {
			continue
		}
		if err := q.client.LRem(ctx, q.processingKey, 1, raw).Err(); err != nil {
			return &StorageError{Backend: backendRedis, Op: "ack", Err: fmt.Errorf("lrem (key=%s): %w", q.processingKey, err)}
		}
		slog.DebugContext(q.withFields(ctx), "entry acknowledged", "job_id", entryID)
		return nil
	}
	return nil
}

func (q *RedisQueue) Peek(ctx context.Context) (Entry, bool, error) {
	raw, err := q.client.LIndex(ctx, q.key, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, &StorageError{Backend: backendRedis, Op: "peek", Err: err}
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("peek: decoding entry: %w", err)
	}
	return entry, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, &StorageError{Backend: backendRedis, Op: "len", Err: err}
	}
	return int(n), nil
}

func (q *RedisQueue) List(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := q.client.LRange(ctx, q.key, 0, stop).Result()
	if err != nil {
		return nil, &StorageError{Backend: backendRedis, Op: "list", Err: err}
	}

	entries := make([]Entry, 0, len(items))
	for _, raw := range items {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			slog.WarnContext(q.withFields(ctx), "skipping undecodable queue entry", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

const recoverRetries = 5

// Recover puts claimed entries back at the head, oldest claim first. A claim
// whose ID is already pending was requeued before its ack was lost; it is
// dropped instead of restored. The read and the rewrite run under WATCH so a
// concurrent push makes the attempt retry rather than interleave.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	ctx = q.withFields(ctx)

	var restored, dropped int
	recoverTx := func(tx *redis.Tx) error {
		restored, dropped = 0, 0

		pending, err := tx.LRange(ctx, q.key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("lrange (key=%s): %w", q.key, err)
		}
		claimed, err := tx.LRange(ctx, q.processingKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("lrange (key=%s): %w", q.processingKey, err)
		}
		if len(claimed) == 0 {
			return nil
		}

		seen := make(map[int64]bool, len(pending))
		for _, raw := range pending {
			if pendingID, ok := rawEntryID(raw); ok {
				seen[pendingID] = true
			}
		}

		// Claims are appended on the right; pushing from oldest to newest
		// onto the left would reverse them, so walk newest first.
		var restore []string
		for i := len(claimed) - 1; i >= 0; i-- {
			raw := claimed[i]
			if claimID, ok := rawEntryID(raw); ok {
				if seen[claimID] {
					dropped++
					continue
				}
				seen[claimID] = true
			}
			restore = append(restore, raw)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, raw := range restore {
				pipe.LPush(ctx, q.key, raw)
			}
			pipe.Del(ctx, q.processingKey)
			return nil
		})
		if err != nil {
			return err
		}
		restored = len(restore)
		return nil
	}

	var err error
	for attempt := 0; attempt < recoverRetries; attempt++ {
		err = q.client.Watch(ctx, recoverTx, q.key, q.processingKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return 0, &StorageError{Backend: backendRedis, Op: "recover", Err: err}
	}

	if dropped > 0 {
		slog.WarnContext(ctx, "dropped stale claims already requeued", "count", dropped, "key", q.key)
	}
	if restored > 0 {
		slog.InfoContext(ctx, "recovered claimed entries", "count", restored, "key", q.key)
	}
	return restored, nil
}

// rawEntryID reads only the id of a stored record, so records whose job no
// longer decodes can still be matched.
func rawEntryID(raw string) (int64, bool) {
	var r struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &r); err != nil || r.ID == 0 {
		return 0, false
	}
	return r.ID, true
}

func (q *RedisQueue) Close() error {
	return nil
}
