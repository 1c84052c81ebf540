package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gsd.app/relay/internal/command"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
	"gsd.app/relay/internal/service"
)

var _ = Describe("SubmissionService", func() {
	var (
		ctx context.Context
		q   *mockQueue
		svc service.SubmissionService
	)

	BeforeEach(func() {
		ctx = context.Background()
		q = &mockQueue{}
		svc = service.NewServices(q, &mockStateStore{}, model.DefaultGrid).Submissions()
	})

	Describe("Submit", func() {
		It("should enqueue a parsed move", func() {
			entry, err := svc.Submit(ctx, "move(3,4)")

			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Job).To(Equal(model.Move{To: model.Coordinate{X: 3, Y: 4}}))
			Expect(q.enqueued).To(HaveLen(1))
		})

		It("should enqueue place and remove commands", func() {
			_, err := svc.Submit(ctx, "placeGood((0,1),(2,3))")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Submit(ctx, "removeGood(5,6)")
			Expect(err).NotTo(HaveOccurred())

			Expect(q.enqueued).To(Equal([]model.Job{
				model.PlaceGood{From: model.Coordinate{X: 0, Y: 1}, To: model.Coordinate{X: 2, Y: 3}},
				model.RemoveGood{From: model.Coordinate{X: 5, Y: 6}},
			}))
		})

		Context("when the command is malformed", func() {
			It("should reject it without touching the queue", func() {
				_, err := svc.Submit(ctx, "mvoe(1,2)")

				Expect(err).To(MatchError(command.ErrUnrecognizedCommand))
				Expect(q.enqueued).To(BeEmpty())
			})
		})

		Context("when the target is off the grid", func() {
			It("should return a validation error", func() {
				_, err := svc.Submit(ctx, "move(7,0)")

				Expect(err).To(MatchError(model.ErrOutOfRange))
				Expect(q.enqueued).To(BeEmpty())
			})
		})

		Context("when the queue cannot persist", func() {
			It("should wrap the storage error", func() {
				storageErr := &queue.StorageError{Backend: "file", Op: "enqueue", Err: errors.New("disk full")}
				q.enqueueFn = func(_ context.Context, _ model.Job) (queue.Entry, error) {
					return queue.Entry{}, storageErr
				}

				_, err := svc.Submit(ctx, "move(1,1)")

				var target *queue.StorageError
				Expect(errors.As(err, &target)).To(BeTrue())
			})
		})
	})

	Describe("SubmitGood", func() {
		It("should enqueue a good definition", func() {
			entry, err := svc.SubmitGood(ctx, command.AddGoodFields{
				Name: "Cola", TempMin: "8", TempMax: "12", LightMin: "80", LightMax: "200",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Job).To(Equal(model.AddGoodDefinition{
				Name:               "Cola",
				DesiredTemperature: model.Range{Min: 8, Max: 12},
				DesiredLighting:    model.Range{Min: 80, Max: 200},
			}))
		})

		It("should reject a missing name", func() {
			_, err := svc.SubmitGood(ctx, command.AddGoodFields{
				TempMin: "8", TempMax: "12", LightMin: "80", LightMax: "200",
			})

			Expect(err).To(MatchError(model.ErrMissingField))
			Expect(q.enqueued).To(BeEmpty())
		})

		It("should reject a non-numeric field", func() {
			_, err := svc.SubmitGood(ctx, command.AddGoodFields{
				Name: "Cola", TempMin: "cold", TempMax: "12", LightMin: "80", LightMax: "200",
			})

			Expect(err).To(MatchError(command.ErrMalformedNumber))
			Expect(q.enqueued).To(BeEmpty())
		})
	})

	Describe("rate limiting", func() {
		It("should refuse submissions beyond the burst", func() {
			svc = service.NewServices(q, &mockStateStore{}, model.DefaultGrid,
				service.WithRateLimit(0.001, 2)).Submissions()

			_, err := svc.Submit(ctx, "move(1,1)")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Submit(ctx, "move(1,2)")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Submit(ctx, "move(1,3)")
			Expect(err).To(MatchError(service.ErrRateLimited))

			Expect(q.enqueued).To(HaveLen(2))
		})
	})

	Describe("Pending", func() {
		It("should report length and entries", func() {
			q.lenFn = func(_ context.Context) (int, error) { return 3, nil }
			q.listFn = func(_ context.Context, limit int) ([]queue.Entry, error) {
				Expect(limit).To(Equal(2))
				return []queue.Entry{{ID: 1}, {ID: 2}}, nil
			}

			snap, err := svc.Pending(ctx, 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Length).To(Equal(3))
			Expect(snap.Entries).To(HaveLen(2))
		})
	})
})
