package dto

import (
	"time"

	"gsd.app/relay/internal/command"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
	"gsd.app/relay/internal/service"
)

type SubmitCommandRequest struct {
	Command string `json:"command" binding:"required,max=256"`
}

// AddGoodRequest binds from a JSON body or, on the legacy route, the query string.
type AddGoodRequest struct {
	Name     string `json:"name" form:"name" binding:"max=128"`
	TempMin  string `json:"temp_min" form:"temp_min"`
	TempMax  string `json:"temp_max" form:"temp_max"`
	LightMin string `json:"light_min" form:"light_min"`
	LightMax string `json:"light_max" form:"light_max"`
}

func (r AddGoodRequest) Fields() command.AddGoodFields {
	return command.AddGoodFields{
		Name:     r.Name,
		TempMin:  r.TempMin,
		TempMax:  r.TempMax,
		LightMin: r.LightMin,
		LightMax: r.LightMax,
	}
}

type JobResponse struct {
	ID         int64          `json:"id,string"`
	Kind       model.JobKind  `json:"kind"`
	Job        *model.WireJob `json:"job,omitempty"`
	Attempt    int            `json:"attempt"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	LastError  string         `json:"last_error,omitempty"`
}

func ToJobResponse(e queue.Entry) JobResponse {
	resp := JobResponse{
		ID:         e.ID,
		Attempt:    e.Attempt,
		EnqueuedAt: e.EnqueuedAt,
		LastError:  e.LastError,
	}
	if e.Job != nil {
		resp.Kind = e.Job.Kind()
		if wire, err := model.ToWire(e.Job); err == nil {
			resp.Job = &wire
		}
	}
	return resp
}

type QueueResponse struct {
	Length int           `json:"length"`
	Jobs   []JobResponse `json:"jobs"`
}

func ToQueueResponse(s service.QueueSnapshot) QueueResponse {
	jobs := make([]JobResponse, 0, len(s.Entries))
	for _, e := range s.Entries {
		jobs = append(jobs, ToJobResponse(e))
	}
	return QueueResponse{Length: s.Length, Jobs: jobs}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
	Pos   *int   `json:"pos,omitempty"`
}
