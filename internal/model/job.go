package model

import "strings"

// JobKind is the wire name of a job variant, as understood by the solver.
type JobKind string

const (
	JobKindMove       JobKind = "move"
	JobKindPlaceGood  JobKind = "placeGood"
	JobKindRemoveGood JobKind = "remove"
	JobKindAddGood    JobKind = "add"
)

// Job is one unit of warehouse work. The set of variants is closed:
// Move, PlaceGood, RemoveGood and AddGoodDefinition.
//
// All variants are plain values, so two jobs are equal iff == says so.
type Job interface {
	Kind() JobKind
	job()
}

type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type Move struct {
	To Coordinate
}

type PlaceGood struct {
	From Coordinate
	To   Coordinate
}

type RemoveGood struct {
	From Coordinate
}

type AddGoodDefinition struct {
	Name               string
	DesiredTemperature Range
	DesiredLighting    Range
}

func (Move) Kind() JobKind              { return JobKindMove }
func (PlaceGood) Kind() JobKind         { return JobKindPlaceGood }
func (RemoveGood) Kind() JobKind        { return JobKindRemoveGood }
func (AddGoodDefinition) Kind() JobKind { return JobKindAddGood }

func (Move) job()              {}
func (PlaceGood) job()         {}
func (RemoveGood) job()        {}
func (AddGoodDefinition) job() {}

// NewMove validates to against the default grid.
func NewMove(to Coordinate) (Job, error) {
	return DefaultGrid.NewMove(to)
}

func NewPlaceGood(from, to Coordinate) (Job, error) {
	return DefaultGrid.NewPlaceGood(from, to)
}

func NewRemoveGood(from Coordinate) (Job, error) {
	return DefaultGrid.NewRemoveGood(from)
}

// NewAddGoodDefinition requires a non-blank name and ordered ranges.
// Temperatures may be negative; lighting may not.
func NewAddGoodDefinition(name string, temperature, lighting Range) (Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, missingField("name")
	}
	if temperature.Min > temperature.Max {
		return nil, outOfRange("desiredTemperature")
	}
	if lighting.Min < 0 {
		return nil, outOfRange("desiredLighting.min")
	}
	if lighting.Min > lighting.Max {
		return nil, outOfRange("desiredLighting")
	}
	return AddGoodDefinition{
		Name:               name,
		DesiredTemperature: temperature,
		DesiredLighting:    lighting,
	}, nil
}
