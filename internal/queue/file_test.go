package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gsd.app/relay/internal/command"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
)

var _ = Describe("FileQueue", func() {
	var (
		dir  string
		path string
		ctx  context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "orders.json")
	})

	Describe("queue contract", func() {
		itBehavesLikeAQueue(func() queue.Queue {
			q, err := queue.NewFileQueue(filepath.Join(GinkgoT().TempDir(), "orders.json"))
			Expect(err).NotTo(HaveOccurred())
			return q
		})
	})

	It("creates an empty array file when the path does not exist", func() {
		_, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("[]\n"))
	})

	It("persists pretty-printed records with the solver wire fields", func() {
		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())

		_, err = q.Enqueue(ctx, model.Move{To: model.Coordinate{X: 3, Y: 4}})
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("\n  {\n"))

		var records []map[string]any
		Expect(json.Unmarshal(data, &records)).To(Succeed())
		Expect(records).To(HaveLen(1))
		Expect(records[0]).To(HaveKeyWithValue("job", "move"))
		Expect(records[0]).To(HaveKeyWithValue("to", map[string]any{"x_coord": "3", "y_coord": "4"}))
		Expect(records[0]).To(HaveKey("id"))
		Expect(records[0]).To(HaveKeyWithValue("attempt", BeNumerically("==", 0)))
	})

	It("survives a restart", func() {
		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, model.Move{To: model.Coordinate{X: 1, Y: 2}})
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, model.RemoveGood{From: model.Coordinate{X: 5, Y: 6}})
		Expect(err).NotTo(HaveOccurred())
		Expect(q.Close()).To(Succeed())

		reopened, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		n, err := reopened.Len(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))

		head, ok, err := reopened.DequeueOne(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(head.Job).To(Equal(model.Move{To: model.Coordinate{X: 1, Y: 2}}))
	})

	It("returns a claimed but unacked entry after a crash", func() {
		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		first, err := q.Enqueue(ctx, model.Move{To: model.Coordinate{X: 1, Y: 1}})
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, model.Move{To: model.Coordinate{X: 2, Y: 2}})
		Expect(err).NotTo(HaveOccurred())

		_, _, err = q.DequeueOne(ctx)
		Expect(err).NotTo(HaveOccurred())
		// no Ack: simulate the process dying mid-dispatch

		reopened, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		n, _ := reopened.Len(ctx)
		Expect(n).To(Equal(1))

		moved, err := reopened.Recover(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(moved).To(Equal(1))

		head, ok, err := reopened.DequeueOne(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(head.ID).To(Equal(first.ID))
	})

	It("does not duplicate an entry journaled before the queue rewrite", func() {
		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		entry, err := q.Enqueue(ctx, model.Move{To: model.Coordinate{X: 4, Y: 4}})
		Expect(err).NotTo(HaveOccurred())

		// journal written, queue file not yet shortened
		journal, err := json.Marshal([]queue.Entry{entry})
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(path+".inflight", journal, 0o644)).To(Succeed())

		reopened, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		moved, err := reopened.Recover(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(moved).To(BeZero())

		n, _ := reopened.Len(ctx)
		Expect(n).To(Equal(1))
	})

	It("loads raw command strings written by older deployments", func() {
		Expect(os.WriteFile(path, []byte(`["move(3,4)", "removeGood(1,1)", "bogus"]`), 0o644)).To(Succeed())

		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())

		entries, err := q.List(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Job).To(Equal(model.Move{To: model.Coordinate{X: 3, Y: 4}}))
		Expect(entries[1].Job).To(Equal(model.RemoveGood{From: model.Coordinate{X: 1, Y: 1}}))
		Expect(entries[0].ID).NotTo(BeZero())
	})

	It("rejects a queue file that is not a JSON array", func() {
		Expect(os.WriteFile(path, []byte(`{"job":"move"}`), 0o644)).To(Succeed())

		_, err := queue.NewFileQueue(path)
		var storageErr *queue.StorageError
		Expect(errors.As(err, &storageErr)).To(BeTrue())
		Expect(storageErr.Op).To(Equal("load"))
	})

	It("keeps memory and disk in step when a write fails", func() {
		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, model.Move{To: model.Coordinate{X: 1, Y: 1}})
		Expect(err).NotTo(HaveOccurred())

		if os.Geteuid() == 0 {
			Skip("root ignores directory permissions")
		}
		// a read-only directory makes the temp file impossible to create
		Expect(os.Chmod(dir, 0o500)).To(Succeed())
		DeferCleanup(os.Chmod, dir, os.FileMode(0o755))

		_, err = q.Enqueue(ctx, model.Move{To: model.Coordinate{X: 2, Y: 2}})
		var storageErr *queue.StorageError
		Expect(errors.As(err, &storageErr)).To(BeTrue())

		n, err := q.Len(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("round-trips a parsed command", func() {
		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())

		job, err := command.Parse("move(3,4)")
		Expect(err).NotTo(HaveOccurred())
		_, err = q.Enqueue(ctx, job)
		Expect(err).NotTo(HaveOccurred())

		entry, ok, err := q.DequeueOne(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(entry.Job).To(Equal(model.Move{To: model.Coordinate{X: 3, Y: 4}}))
	})

	It("fails every operation after Close", func() {
		q, err := queue.NewFileQueue(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(q.Close()).To(Succeed())

		_, err = q.Enqueue(ctx, model.Move{})
		Expect(err).To(MatchError(queue.ErrClosed))
		_, _, err = q.DequeueOne(ctx)
		Expect(err).To(MatchError(queue.ErrClosed))
	})
})
