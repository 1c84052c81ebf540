package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"gsd.app/relay/common/logger"
	"gsd.app/relay/internal/command"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
)

var ErrRateLimited = errors.New("submission rate limit exceeded")

type QueueSnapshot struct {
	Length  int
	Entries []queue.Entry
}

// SubmissionService turns client instructions into queued jobs. A command
// that fails to parse or validate is never enqueued.
type SubmissionService interface {
	Submit(ctx context.Context, raw string) (queue.Entry, error)
	SubmitGood(ctx context.Context, fields command.AddGoodFields) (queue.Entry, error)
	Pending(ctx context.Context, limit int) (QueueSnapshot, error)
}

type submissionService struct {
	queue   queue.Queue
	parser  *command.Parser
	limiter *rate.Limiter
}

// NewSubmissionService builds the submission path. limiter may be nil.
func NewSubmissionService(q queue.Queue, grid model.Grid, limiter *rate.Limiter) SubmissionService {
	return &submissionService{
		queue:   q,
		parser:  command.NewParser(grid),
		limiter: limiter,
	}
}

func (s *submissionService) Submit(ctx context.Context, raw string) (queue.Entry, error) {
	if err := s.allow(ctx); err != nil {
		return queue.Entry{}, err
	}

	job, err := s.parser.Parse(raw)
	if err != nil {
		slog.WarnContext(ctx, "command rejected",
			"error", err,
			"command", logger.Truncate(raw, 128))
		return queue.Entry{}, err
	}

	return s.enqueue(ctx, job)
}

func (s *submissionService) SubmitGood(ctx context.Context, fields command.AddGoodFields) (queue.Entry, error) {
	if err := s.allow(ctx); err != nil {
		return queue.Entry{}, err
	}

	job, err := command.ParseAddGood(fields)
	if err != nil {
		slog.WarnContext(ctx, "good definition rejected", "error", err, "name", fields.Name)
		return queue.Entry{}, err
	}

	return s.enqueue(ctx, job)
}

func (s *submissionService) Pending(ctx context.Context, limit int) (QueueSnapshot, error) {
	n, err := s.queue.Len(ctx)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("reading queue length: %w", err)
	}
	entries, err := s.queue.List(ctx, limit)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("listing queue: %w", err)
	}
	return QueueSnapshot{Length: n, Entries: entries}, nil
}

func (s *submissionService) allow(ctx context.Context) error {
	if s.limiter == nil || s.limiter.Allow() {
		return nil
	}
	slog.WarnContext(ctx, "submission rate limited")
	return ErrRateLimited
}

func (s *submissionService) enqueue(ctx context.Context, job model.Job) (queue.Entry, error) {
	entry, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue job", "error", err, "job_kind", job.Kind())
		return queue.Entry{}, fmt.Errorf("enqueueing job: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:   logger.Ptr(entry.ID),
		JobKind: logger.Ptr(string(job.Kind())),
	})
	slog.InfoContext(ctx, "job submitted")
	return entry, nil
}
