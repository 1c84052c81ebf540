package dto

import (
	"gsd.app/relay/internal/dispatch"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/service"
)

type LinkResponse struct {
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
}

type RobotStatusResponse struct {
	State    model.RobotState `json:"state"`
	Link     LinkResponse     `json:"link"`
	Dispatch *dispatch.Stats  `json:"dispatch,omitempty"`
}

func ToRobotStatusResponse(state model.RobotState, link service.LinkStatus, stats *dispatch.Stats) RobotStatusResponse {
	return RobotStatusResponse{
		State:    state,
		Link:     LinkResponse{Address: link.Address, Connected: link.Connected},
		Dispatch: stats,
	}
}
