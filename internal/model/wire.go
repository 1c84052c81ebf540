package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// NullPayload is sent to the solver when the queue is empty.
var NullPayload = []byte("null")

// WireInt is an integer the solver reads as a decimal string.
// It encodes as "3" and decodes from either "3" or 3.
type WireInt int

func (n WireInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(n)))
}

func (n *WireInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("wire int %q: %w", s, err)
		}
		*n = WireInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("wire int %s: %w", data, err)
	}
	*n = WireInt(v)
	return nil
}

type WireCoordinate struct {
	X WireInt `json:"x_coord"`
	Y WireInt `json:"y_coord"`
}

type WireRange struct {
	Min WireInt `json:"min"`
	Max WireInt `json:"max"`
}

type WireGood struct {
	Name               string    `json:"name"`
	DesiredTemperature WireRange `json:"desiredTemperature"`
	DesiredLighting    WireRange `json:"desiredLighting"`
}

// WireJob is the JSON record handed to the solver and stored in the queue.
type WireJob struct {
	Job  JobKind         `json:"job" jsonschema:"enum=move,enum=placeGood,enum=remove,enum=add"`
	From *WireCoordinate `json:"from,omitempty"`
	To   *WireCoordinate `json:"to,omitempty"`
	Good *WireGood       `json:"good,omitempty"`
}

func wireCoordinate(c Coordinate) *WireCoordinate {
	return &WireCoordinate{X: WireInt(c.X), Y: WireInt(c.Y)}
}

func (c *WireCoordinate) coordinate() Coordinate {
	return Coordinate{X: int(c.X), Y: int(c.Y)}
}

func wireRange(r Range) WireRange {
	return WireRange{Min: WireInt(r.Min), Max: WireInt(r.Max)}
}

func (r WireRange) rng() Range {
	return Range{Min: int(r.Min), Max: int(r.Max)}
}

// ToWire converts a job into its wire record.
func ToWire(j Job) (WireJob, error) {
	switch v := j.(type) {
	case Move:
		return WireJob{Job: JobKindMove, To: wireCoordinate(v.To)}, nil
	case PlaceGood:
		return WireJob{Job: JobKindPlaceGood, From: wireCoordinate(v.From), To: wireCoordinate(v.To)}, nil
	case RemoveGood:
		return WireJob{Job: JobKindRemoveGood, From: wireCoordinate(v.From)}, nil
	case AddGoodDefinition:
		return WireJob{Job: JobKindAddGood, Good: &WireGood{
			Name:               v.Name,
			DesiredTemperature: wireRange(v.DesiredTemperature),
			DesiredLighting:    wireRange(v.DesiredLighting),
		}}, nil
	case nil:
		return WireJob{}, missingField("job")
	default:
		return WireJob{}, fmt.Errorf("unknown job type %T", j)
	}
}

// ToJob converts a wire record back into a job. Coordinates must be
// non-negative; grid bounds are the caller's concern.
func (w WireJob) ToJob() (Job, error) {
	unbounded := Grid{}
	switch w.Job {
	case JobKindMove:
		if w.To == nil {
			return nil, missingField("to")
		}
		return unbounded.NewMove(w.To.coordinate())
	case JobKindPlaceGood:
		if w.From == nil {
			return nil, missingField("from")
		}
		if w.To == nil {
			return nil, missingField("to")
		}
		return unbounded.NewPlaceGood(w.From.coordinate(), w.To.coordinate())
	case JobKindRemoveGood:
		if w.From == nil {
			return nil, missingField("from")
		}
		return unbounded.NewRemoveGood(w.From.coordinate())
	case JobKindAddGood:
		if w.Good == nil {
			return nil, missingField("good")
		}
		return NewAddGoodDefinition(w.Good.Name, w.Good.DesiredTemperature.rng(), w.Good.DesiredLighting.rng())
	case "":
		return nil, missingField("job")
	default:
		return nil, fmt.Errorf("unknown job kind %q", w.Job)
	}
}

// EncodeJob serializes a job into the solver wire format. Output is deterministic.
func EncodeJob(j Job) ([]byte, error) {
	w, err := ToWire(j)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func DecodeJob(data []byte) (Job, error) {
	var w WireJob
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	return w.ToJob()
}
