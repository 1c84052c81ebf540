package handler_test

import (
	"context"

	"gsd.app/relay/internal/command"
	"gsd.app/relay/internal/dispatch"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
	"gsd.app/relay/internal/service"
)

type mockSubmissionService struct {
	submitFn     func(ctx context.Context, raw string) (queue.Entry, error)
	submitGoodFn func(ctx context.Context, fields command.AddGoodFields) (queue.Entry, error)
	pendingFn    func(ctx context.Context, limit int) (service.QueueSnapshot, error)
}

func (m *mockSubmissionService) Submit(ctx context.Context, raw string) (queue.Entry, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, raw)
	}
	return queue.Entry{}, nil
}

func (m *mockSubmissionService) SubmitGood(ctx context.Context, fields command.AddGoodFields) (queue.Entry, error) {
	if m.submitGoodFn != nil {
		return m.submitGoodFn(ctx, fields)
	}
	return queue.Entry{}, nil
}

func (m *mockSubmissionService) Pending(ctx context.Context, limit int) (service.QueueSnapshot, error) {
	if m.pendingFn != nil {
		return m.pendingFn(ctx, limit)
	}
	return service.QueueSnapshot{}, nil
}

type mockRobotService struct {
	stateFn func(ctx context.Context) (model.RobotState, error)
	stats   *dispatch.Stats
	link    service.LinkStatus
}

func (m *mockRobotService) State(ctx context.Context) (model.RobotState, error) {
	if m.stateFn != nil {
		return m.stateFn(ctx)
	}
	return model.InitialRobotState(), nil
}

func (m *mockRobotService) Dispatch() (dispatch.Stats, bool) {
	if m.stats == nil {
		return dispatch.Stats{}, false
	}
	return *m.stats, true
}

func (m *mockRobotService) Link() service.LinkStatus { return m.link }
