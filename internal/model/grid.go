package model

import "fmt"

// DefaultGrid matches the solver's warehouse layout (position = y*7 + x).
var DefaultGrid = Grid{Width: 7, Height: 7}

// Grid bounds coordinates to [0, Width) x [0, Height).
// A zero dimension leaves that axis unbounded above.
type Grid struct {
	Width  int
	Height int
}

func (g Grid) Contains(c Coordinate) bool {
	if c.X < 0 || c.Y < 0 {
		return false
	}
	if g.Width > 0 && c.X >= g.Width {
		return false
	}
	if g.Height > 0 && c.Y >= g.Height {
		return false
	}
	return true
}

func (g Grid) validate(field string, c Coordinate) error {
	if !g.Contains(c) {
		return &ValidationError{Kind: OutOfRange, Field: field, Detail: fmt.Sprintf("(%d,%d) outside %s", c.X, c.Y, g)}
	}
	return nil
}

func (g Grid) NewMove(to Coordinate) (Job, error) {
	if err := g.validate("to", to); err != nil {
		return nil, err
	}
	return Move{To: to}, nil
}

func (g Grid) NewPlaceGood(from, to Coordinate) (Job, error) {
	if err := g.validate("from", from); err != nil {
		return nil, err
	}
	if err := g.validate("to", to); err != nil {
		return nil, err
	}
	return PlaceGood{From: from, To: to}, nil
}

func (g Grid) NewRemoveGood(from Coordinate) (Job, error) {
	if err := g.validate("from", from); err != nil {
		return nil, err
	}
	return RemoveGood{From: from}, nil
}

// Validate re-checks a job that did not come through a constructor,
// e.g. one decoded from a queue file.
func (g Grid) Validate(j Job) error {
	switch v := j.(type) {
	case Move:
		_, err := g.NewMove(v.To)
		return err
	case PlaceGood:
		_, err := g.NewPlaceGood(v.From, v.To)
		return err
	case RemoveGood:
		_, err := g.NewRemoveGood(v.From)
		return err
	case AddGoodDefinition:
		_, err := NewAddGoodDefinition(v.Name, v.DesiredTemperature, v.DesiredLighting)
		return err
	case nil:
		return missingField("job")
	default:
		return fmt.Errorf("unknown job type %T", j)
	}
}

func (g Grid) String() string {
	w, h := "inf", "inf"
	if g.Width > 0 {
		w = fmt.Sprint(g.Width)
	}
	if g.Height > 0 {
		h = fmt.Sprint(g.Height)
	}
	return w + "x" + h
}
