package service_test

import (
	"context"

	"gsd.app/relay/internal/dispatch"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
)

type mockQueue struct {
	enqueueFn func(ctx context.Context, job model.Job) (queue.Entry, error)
	lenFn     func(ctx context.Context) (int, error)
	listFn    func(ctx context.Context, limit int) ([]queue.Entry, error)

	enqueued []model.Job
}

func (m *mockQueue) Enqueue(ctx context.Context, job model.Job) (queue.Entry, error) {
	m.enqueued = append(m.enqueued, job)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, job)
	}
	return queue.Entry{ID: int64(len(m.enqueued)), Job: job}, nil
}

func (m *mockQueue) Requeue(ctx context.Context, entry queue.Entry) error { return nil }

func (m *mockQueue) DequeueOne(ctx context.Context) (queue.Entry, bool, error) {
	return queue.Entry{}, false, nil
}

func (m *mockQueue) Ack(ctx context.Context, id int64) error { return nil }

func (m *mockQueue) Peek(ctx context.Context) (queue.Entry, bool, error) {
	return queue.Entry{}, false, nil
}

func (m *mockQueue) Len(ctx context.Context) (int, error) {
	if m.lenFn != nil {
		return m.lenFn(ctx)
	}
	return len(m.enqueued), nil
}

func (m *mockQueue) List(ctx context.Context, limit int) ([]queue.Entry, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockQueue) Recover(ctx context.Context) (int, error) { return 0, nil }
func (m *mockQueue) Close() error                             { return nil }

type mockStateStore struct {
	getFn func(ctx context.Context) (model.RobotState, error)
}

func (m *mockStateStore) Reset(ctx context.Context) (model.RobotState, error) {
	return model.InitialRobotState(), nil
}

func (m *mockStateStore) Get(ctx context.Context) (model.RobotState, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return model.InitialRobotState(), nil
}

func (m *mockStateStore) MoveTo(ctx context.Context, to model.Coordinate) (model.RobotState, error) {
	return model.InitialRobotState().WithPosition(to), nil
}

type stubStats struct {
	stats dispatch.Stats
}

func (s stubStats) Stats() dispatch.Stats { return s.stats }
