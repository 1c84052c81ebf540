package queue_test

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"gsd.app/relay/internal/queue"
)

// Runs against RELAY_TEST_REDIS_URL when set, otherwise an in-process miniredis.
var _ = Describe("RedisQueue", Ordered, func() {
	var client *redis.Client

	BeforeAll(func() {
		url := os.Getenv("RELAY_TEST_REDIS_URL")
		if url == "" {
			srv, err := miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(srv.Close)
			url = "redis://" + srv.Addr()
		}
		opts, err := redis.ParseURL(url)
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(opts)
		Expect(client.Ping(context.Background()).Err()).To(Succeed())
		DeferCleanup(client.Close)
	})

	newKey := func() string {
		key := fmt.Sprintf("relay-test:%d", time.Now().UnixNano())
		DeferCleanup(func() {
			client.Del(context.Background(), key, key+":processing")
		})
		return key
	}

	It("requires a key", func() {
		_, err := queue.NewRedisQueue(client, "", nil)
		Expect(err).To(HaveOccurred())
	})

	Describe("queue contract", func() {
		itBehavesLikeAQueue(func() queue.Queue {
			q, err := queue.NewRedisQueue(client, newKey(), nil)
			Expect(err).NotTo(HaveOccurred())
			return q
		})
	})

	It("skips an undecodable record instead of reporting an empty queue", func() {
		ctx := context.Background()
		key := newKey()
		q, err := queue.NewRedisQueue(client, key, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(client.RPush(ctx, key, `{"id":`, "not json").Err()).To(Succeed())
		stored, err := q.Enqueue(ctx, moveTo(3, 4))
		Expect(err).NotTo(HaveOccurred())

		entry, ok, err := q.DequeueOne(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(entry.ID).To(Equal(stored.ID))

		claimed, err := client.LRange(ctx, key+":processing", 0, -1).Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(claimed).To(HaveLen(1))

		n, err := q.Len(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("restores several claims in their original order", func() {
		ctx := context.Background()
		q, err := queue.NewRedisQueue(client, newKey(), nil)
		Expect(err).NotTo(HaveOccurred())

		var ids []int64
		for i := range 3 {
			e, err := q.Enqueue(ctx, moveTo(i, i))
			Expect(err).NotTo(HaveOccurred())
			ids = append(ids, e.ID)
		}
		for range 3 {
			_, ok, err := q.DequeueOne(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		}

		moved, err := q.Recover(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(moved).To(Equal(3))

		entries, err := q.List(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect([]int64{entries[0].ID, entries[1].ID, entries[2].ID}).To(Equal(ids))
	})
})
