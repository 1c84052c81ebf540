package service

import (
	"context"
	"fmt"

	"gsd.app/relay/internal/dispatch"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/store"
)

// DispatchStats is implemented by *dispatch.Dispatcher.
type DispatchStats interface {
	Stats() dispatch.Stats
}

type RobotService interface {
	State(ctx context.Context) (model.RobotState, error)
	Dispatch() (dispatch.Stats, bool)
	Link() LinkStatus
}

type LinkStatus struct {
	Address   string
	Connected bool
}

type robotService struct {
	state      store.RobotStateStore
	dispatcher DispatchStats
	link       LinkStatus
}

func NewRobotService(state store.RobotStateStore, dispatcher DispatchStats, link LinkStatus) RobotService {
	return &robotService{state: state, dispatcher: dispatcher, link: link}
}

func (s *robotService) State(ctx context.Context) (model.RobotState, error) {
	st, err := s.state.Get(ctx)
	if err != nil {
		return model.RobotState{}, fmt.Errorf("reading robot state: %w", err)
	}
	return st, nil
}

func (s *robotService) Dispatch() (dispatch.Stats, bool) {
	if s.dispatcher == nil {
		return dispatch.Stats{}, false
	}
	return s.dispatcher.Stats(), true
}

func (s *robotService) Link() LinkStatus {
	return s.link
}
